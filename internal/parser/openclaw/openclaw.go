// Package openclaw implements the secondary parser (spec.md §4.3) for the
// OpenClaw agent's JSONL transcript format. Same Parser contract as
// internal/parser/claudecode, different on-disk record shape: OpenClaw
// nests its payload one level deeper under an "event" envelope and names
// its speaker field "actor" instead of "role".
package openclaw

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

// Name is this parser's registry key (config.ParserOpenClaw).
const Name = "openclaw"

// ContentPreviewMaxRunes matches the claudecode parser's bound.
const ContentPreviewMaxRunes = 500

var fencedCodeBlock = regexp.MustCompile("```")

var errorKeywords = []string{"error", "exception", "traceback", "failed", "fatal"}

// envelope is OpenClaw's on-disk line shape: {"ts": ..., "event": {...}}.
type envelope struct {
	Timestamp int64  `json:"ts"`
	Event     *event `json:"event"`
}

type event struct {
	Actor     string `json:"actor"`
	Text      string `json:"text"`
	Model     string `json:"model"`
	Tool      string `json:"tool"`
	TokensIn  int    `json:"tokens_in"`
	TokensOut int    `json:"tokens_out"`
}

// Parser implements parser.Parser for OpenClaw transcripts.
type Parser struct{}

// New constructs the OpenClaw parser.
func New() *Parser { return &Parser{} }

// Name returns the registry key.
func (p *Parser) Name() string { return Name }

// Parse decodes one JSON envelope per line, continuing sequence numbers
// from resume.MaxSequence. Lines that fail to decode, or whose event is
// absent, are skipped and counted rather than failing the batch.
func (p *Parser) Parse(r io.Reader, resume parser.ResumePoint) (parser.ParseResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	result := parser.ParseResult{}
	seq := resume.MaxSequence
	offset := resume.ByteOffset

	for scanner.Scan() {
		line := scanner.Bytes()
		lineLen := int64(len(line)) + 1
		result.Stats.LinesRead++

		if len(strings.TrimSpace(string(line))) == 0 {
			offset += lineLen
			continue
		}

		var env envelope
		if err := json.Unmarshal(line, &env); err != nil || env.Event == nil {
			result.Stats.LinesSkipped++
			offset += lineLen
			continue
		}

		seq++
		result.Messages = append(result.Messages, toParsedMessage(env, seq, offset, lineLen))
		offset += lineLen
	}

	if err := scanner.Err(); err != nil {
		return result, err
	}

	result.Stats.BytesConsumed = offset - resume.ByteOffset
	return result, nil
}

func toParsedMessage(env envelope, seq int, byteOffset, byteLength int64) parser.ParsedMessage {
	content := env.Event.Text
	return parser.ParsedMessage{
		SequenceNum:    seq,
		Role:           normalizeActor(env.Event.Actor),
		ContentPreview: truncatePreview(content),
		SearchContent:  content,
		HasCode:        fencedCodeBlock.MatchString(content),
		HasError:       containsErrorKeyword(content),
		ToolName:       env.Event.Tool,
		ByteOffset:     byteOffset,
		ByteLength:     byteLength,
		Tokens:         env.Event.TokensIn + env.Event.TokensOut,
		Model:          env.Event.Model,
		TimestampUnix:  normalizeTimestamp(env.Timestamp),
	}
}

func normalizeActor(actor string) string {
	switch strings.ToLower(actor) {
	case "user", "human":
		return "human"
	case "assistant", "agent":
		return "assistant"
	case "tool", "tool_result":
		return "tool"
	default:
		return "assistant"
	}
}

// normalizeTimestamp accepts either Unix seconds or Unix milliseconds,
// since OpenClaw's "ts" field has been observed in both forms depending on
// client version.
func normalizeTimestamp(ts int64) int64 {
	if ts > int64(1e12) {
		return time.UnixMilli(ts).Unix()
	}
	return ts
}

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
