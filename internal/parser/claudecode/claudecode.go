// Package claudecode implements the required parser (spec.md §4.3) for
// Claude Code's JSONL transcript format: one JSON record per line,
// containing role, timestamp, model, and token usage.
//
// Grounded on the teacher's bufio.Scanner line-reading loop
// (internal/aider/bridge.go's parseAiderOutput) and its keyword-heuristic
// classifier (parseAiderLine's switch over strings.Contains(lower, ...)),
// adapted here from "classify Aider's live stdout into a status" to
// "classify a transcript line into has_code/has_error."
package claudecode

import (
	"bufio"
	"encoding/json"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yocore/yocore/internal/parser"
)

// Name is this parser's registry key (config.ParserClaudeCode).
const Name = "claude_code"

// ContentPreviewMaxRunes bounds content_preview to a Unicode-safe ~500
// characters per spec.md §4.3.
const ContentPreviewMaxRunes = 500

var fencedCodeBlock = regexp.MustCompile("```")

var errorKeywords = []string{"error", "exception", "traceback", "failed", "fatal"}

// record is the on-disk shape of one Claude Code JSONL line.
type record struct {
	Role      string `json:"role"`
	Content   any    `json:"content"`
	Timestamp string `json:"timestamp"`
	Model     string `json:"model"`
	ToolName  string `json:"tool_name"`
	Usage     *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Parser implements parser.Parser for Claude Code transcripts.
type Parser struct{}

// New constructs the Claude Code parser.
func New() *Parser { return &Parser{} }

// Name returns the registry key.
func (p *Parser) Name() string { return Name }

// Parse decodes one JSON record per line, continuing sequence numbers from
// resume.MaxSequence. Lines that fail to decode are skipped and counted,
// never failing the batch (spec.md §4.3, §7).
func (p *Parser) Parse(r io.Reader, resume parser.ResumePoint) (parser.ParseResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	result := parser.ParseResult{}
	seq := resume.MaxSequence
	offset := resume.ByteOffset

	for scanner.Scan() {
		line := scanner.Bytes()
		lineLen := int64(len(line)) + 1 // +1 for the newline the scanner stripped
		result.Stats.LinesRead++

		if len(strings.TrimSpace(string(line))) == 0 {
			offset += lineLen
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			result.Stats.LinesSkipped++
			offset += lineLen
			continue
		}

		seq++
		msg := toParsedMessage(rec, seq, offset, lineLen)
		result.Messages = append(result.Messages, msg)
		offset += lineLen
	}

	if err := scanner.Err(); err != nil {
		return result, err
	}

	result.Stats.BytesConsumed = offset - resume.ByteOffset
	return result, nil
}

func toParsedMessage(rec record, seq int, byteOffset, byteLength int64) parser.ParsedMessage {
	content := flattenContent(rec.Content)
	tokens := 0
	if rec.Usage != nil {
		tokens = rec.Usage.InputTokens + rec.Usage.OutputTokens
	}

	msg := parser.ParsedMessage{
		SequenceNum:    seq,
		Role:           normalizeRole(rec.Role),
		ContentPreview: truncatePreview(content),
		SearchContent:  content,
		HasCode:        fencedCodeBlock.MatchString(content),
		HasError:       containsErrorKeyword(content),
		ToolName:       rec.ToolName,
		ByteOffset:     byteOffset,
		ByteLength:     byteLength,
		Tokens:         tokens,
		Model:          rec.Model,
		TimestampUnix:  parseTimestamp(rec.Timestamp),
	}
	return msg
}

func normalizeRole(role string) string {
	switch strings.ToLower(role) {
	case "user", "human":
		return "human"
	case "assistant":
		return "assistant"
	case "tool", "tool_result":
		return "tool"
	default:
		return "assistant"
	}
}

// flattenContent handles both plain-string content and Claude Code's
// content-block array shape ([{type:"text",text:"..."}, ...]).
func flattenContent(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var sb strings.Builder
		for _, block := range v {
			m, ok := block.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := m["text"].(string); ok {
				if sb.Len() > 0 {
					sb.WriteByte('\n')
				}
				sb.WriteString(text)
			}
		}
		return sb.String()
	default:
		return ""
	}
}

// truncatePreview is a Unicode-safe truncation to ContentPreviewMaxRunes,
// slicing at rune boundaries (spec.md §4.3's "Unicode-safe truncation").
func truncatePreview(s string) string {
	if utf8.RuneCountInString(s) <= ContentPreviewMaxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:ContentPreviewMaxRunes])
}

func containsErrorKeyword(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range errorKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func parseTimestamp(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0
	}
	return t.Unix()
}
