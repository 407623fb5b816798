package aiqueue

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yocore/yocore/internal/eventbus"
	"github.com/yocore/yocore/internal/storage"
)

// TranscriptCharBudget caps the transcript text fed to the AI CLI, with
// tail-preferred truncation so the most recent context survives (spec.md
// §4.6.1: "Cap input at 150,000 characters (tail-preferred truncation to
// retain the latest context)").
const TranscriptCharBudget = 150_000

// taskPayload is the JSON object written to the AI CLI's stdin.
type taskPayload struct {
	Feature    eventbus.AiFeature `json:"feature"`
	ProjectID  string             `json:"project_id"`
	SessionID  string             `json:"session_id"`
	Transcript string             `json:"transcript"`
}

func buildPayload(feature eventbus.AiFeature, projectID, sessionID string, messages []storage.Message) ([]byte, error) {
	transcript := flattenTranscript(messages)
	transcript = truncateTail(transcript, TranscriptCharBudget)

	payload := taskPayload{
		Feature:    feature,
		ProjectID:  projectID,
		SessionID:  sessionID,
		Transcript: transcript,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal task payload: %w", err)
	}
	return data, nil
}

func flattenTranscript(messages []storage.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.SearchContent)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// truncateTail keeps the last maxRunes runes of s, a code-point count per
// spec.md §9's resolution of the 150,000 cap (characters == code points,
// not bytes).
func truncateTail(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[len(runes)-maxRunes:])
}

// parseResponse decodes the AI CLI's stdout as the structured response
// schema. Any failure here is a schema error (spec.md §4.5: "On schema
// violation the task fails (non-fatal)"), never retried.
func parseResponse(data []byte) (response, error) {
	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		return response{}, newSchemaError(err)
	}
	return r, nil
}
