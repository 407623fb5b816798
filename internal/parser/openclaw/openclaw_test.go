package openclaw

import (
	"strings"
	"testing"

	"github.com/yocore/yocore/internal/parser"
)

func TestParseAssignsMonotonicSequenceNumbers(t *testing.T) {
	p := New()
	input := `{"ts":1,"event":{"actor":"user","text":"hello"}}
{"ts":2,"event":{"actor":"agent","text":"hi there"}}
{"ts":3,"event":{"actor":"agent","text":"` + "```go\\nfmt.Println(1)\\n```" + `"}}
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
	if result.Messages[0].Role != "human" {
		t.Errorf("expected actor %q to normalize to human, got %q", "user", result.Messages[0].Role)
	}
}

func TestIncrementalMatchesFullParseEquivalence(t *testing.T) {
	p := New()
	lines := []string{
		`{"ts":1,"event":{"actor":"user","text":"one"}}`,
		`{"ts":2,"event":{"actor":"agent","text":"two"}}`,
		`{"ts":3,"event":{"actor":"agent","text":"three"}}`,
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
	}
}

func TestMissingEventEnvelopeIsSkipped(t *testing.T) {
	p := New()
	input := `{"ts":1,"event":{"actor":"user","text":"ok"}}
{"ts":2}
{"ts":3,"event":{"actor":"agent","text":"still ok"}}
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

func TestMillisecondTimestampIsNormalized(t *testing.T) {
	input := `{"ts":1700000000000,"event":{"actor":"user","text":"hi"}}
`
	p := New()
	result, err := p.Parse(strings.NewReader(input), parser.ResumePoint{})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Messages[0].TimestampUnix != 1700000000 {
		t.Fatalf("expected millisecond timestamp normalized to seconds, got %d", result.Messages[0].TimestampUnix)
	}
}

func TestContentPreviewTruncatesAtRuneBoundary(t *testing.T) {
	long := strings.Repeat("漢", ContentPreviewMaxRunes+50)
	preview := truncatePreview(long)
	if got := len([]rune(preview)); got != ContentPreviewMaxRunes {
		t.Fatalf("expected preview truncated to %d runes, got %d", ContentPreviewMaxRunes, got)
	}
}
