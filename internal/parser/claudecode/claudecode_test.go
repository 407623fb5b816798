package claudecode

import (
	"strings"
	"testing"

	"github.com/yocore/yocore/internal/parser"
)

func TestParseAssignsMonotonicSequenceNumbers(t *testing.T) {
	p := New()
	input := `{"role":"user","content":"hello"}
{"role":"assistant","content":"hi there"}
{"role":"assistant","content":"` + "```go\\nfmt.Println(1)\\n```" + `"}
`
	result, err := p.Parse(strings.NewReader(input), parser.ResumePoint{})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(result.Messages))
	}
	for i, m := range result.Messages {
		if m.SequenceNum != i+1 {
			t.Fatalf("sequence monotonicity violated at index %d: got %d", i, m.SequenceNum)
		}
	}
	if !result.Messages[2].HasCode {
		t.Errorf("expected fenced code block to set HasCode")
	}
}

func TestIncrementalMatchesFullParseEquivalence(t *testing.T) {
	p := New()
	lines := []string{
		`{"role":"user","content":"one"}`,
		`{"role":"assistant","content":"two"}`,
		`{"role":"assistant","content":"three"}`,
	}
	full := strings.Join(lines, "\n") + "\n"

	fullResult, err := p.Parse(strings.NewReader(full), parser.ResumePoint{})
	if err != nil {
		t.Fatalf("full parse failed: %v", err)
	}

	firstChunk := lines[0] + "\n"
	firstResult, err := p.Parse(strings.NewReader(firstChunk), parser.ResumePoint{})
	if err != nil {
		t.Fatalf("first chunk parse failed: %v", err)
	}

	resume := parser.ResumePoint{
		ByteOffset:  firstResult.Stats.BytesConsumed,
		MaxSequence: firstResult.Messages[len(firstResult.Messages)-1].SequenceNum,
	}
	remaining := strings.Join(lines[1:], "\n") + "\n"
	secondResult, err := p.Parse(strings.NewReader(remaining), resume)
	if err != nil {
		t.Fatalf("second chunk parse failed: %v", err)
	}

	incremental := append(firstResult.Messages, secondResult.Messages...)
	if len(incremental) != len(fullResult.Messages) {
		t.Fatalf("incremental/full message count mismatch: %d vs %d", len(incremental), len(fullResult.Messages))
	}
	for i := range fullResult.Messages {
		if incremental[i].SequenceNum != fullResult.Messages[i].SequenceNum {
			t.Errorf("sequence mismatch at %d: incremental=%d full=%d", i, incremental[i].SequenceNum, fullResult.Messages[i].SequenceNum)
		}
		if incremental[i].SearchContent != fullResult.Messages[i].SearchContent {
			t.Errorf("content mismatch at %d", i)
		}
	}
}

func TestMalformedLinesAreSkippedNotFatal(t *testing.T) {
	p := New()
	input := `{"role":"user","content":"ok"}
not json at all
{"role":"assistant","content":"still ok"}
`
	result, err := p.Parse(strings.NewReader(input), parser.ResumePoint{})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result.Messages) != 2 {
		t.Fatalf("expected 2 valid messages, got %d", len(result.Messages))
	}
	if result.Stats.LinesSkipped != 1 {
		t.Fatalf("expected 1 skipped line, got %d", result.Stats.LinesSkipped)
	}
}

func TestErrorKeywordHeuristic(t *testing.T) {
	p := New()
	input := `{"role":"tool","content":"Traceback (most recent call last): failed"}
`
	result, err := p.Parse(strings.NewReader(input), parser.ResumePoint{})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !result.Messages[0].HasError {
		t.Errorf("expected HasError to be set for traceback content")
	}
}

func TestContentPreviewTruncatesAtRuneBoundary(t *testing.T) {
	long := strings.Repeat("中", ContentPreviewMaxRunes+50) // multi-byte CJK rune
	preview := truncatePreview(long)
	if got := len([]rune(preview)); got != ContentPreviewMaxRunes {
		t.Fatalf("expected preview truncated to %d runes, got %d", ContentPreviewMaxRunes, got)
	}
}

func TestContentBlockArrayFlattening(t *testing.T) {
	input := `{"role":"assistant","content":[{"type":"text","text":"part one"},{"type":"text","text":"part two"}]}
`
	p := New()
	result, err := p.Parse(strings.NewReader(input), parser.ResumePoint{})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Messages[0].SearchContent != "part one\npart two" {
		t.Fatalf("unexpected flattened content: %q", result.Messages[0].SearchContent)
	}
}
