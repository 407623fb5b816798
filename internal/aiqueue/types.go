package aiqueue

import (
	"context"
	"fmt"
)

// MemoryCandidate is one memory extracted from a session transcript by the
// AI CLI, before quality-gating and dedup (spec.md §4.6.1/§4.6.3).
type MemoryCandidate struct {
	MemoryType string   `json:"memory_type"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags"`
	Confidence float64  `json:"confidence"`
}

// SkillCandidate is one skill extracted from a session transcript.
type SkillCandidate struct {
	Title      string   `json:"title"`
	Steps      []string `json:"steps"`
	Context    string   `json:"context"`
	Tags       []string `json:"tags"`
	Confidence float64  `json:"confidence"`
}

// MarkerCandidate is one marker (decision point, blocker, etc.) detected in
// a session transcript.
type MarkerCandidate struct {
	MarkerType  string `json:"marker_type"`
	SequenceNum int    `json:"sequence_num"`
	Note        string `json:"note"`
}

// response is the structured JSON the AI CLI must emit on stdout, one
// object shaped to whichever feature was requested (spec.md §4.5:
// "Parses the AI response as structured JSON").
type response struct {
	Title    string            `json:"title,omitempty"`
	Memories []MemoryCandidate `json:"memories,omitempty"`
	Skills   []SkillCandidate  `json:"skills,omitempty"`
	Markers  []MarkerCandidate `json:"markers,omitempty"`
}

// ResultSink applies AI-extracted candidates to storage, including the
// quality gates and dedup of spec.md §4.6. Implemented by
// internal/knowledge; kept as an interface here so internal/aiqueue does
// not import it back (aiqueue is a lower-level transport concern, per
// spec.md §2's dependency order).
type ResultSink interface {
	ApplyMemories(ctx context.Context, projectID, sessionID string, candidates []MemoryCandidate) (accepted int, err error)
	ApplySkills(ctx context.Context, projectID, sessionID string, candidates []SkillCandidate) (accepted int, err error)
	ApplyMarkers(ctx context.Context, sessionID string, candidates []MarkerCandidate) (accepted int, err error)
}

// schemaError marks a failure as non-retryable per spec.md §4.5 ("Schema
// errors do not retry").
type schemaError struct{ err error }

func (e *schemaError) Error() string { return fmt.Sprintf("schema error: %v", e.err) }
func (e *schemaError) Unwrap() error { return e.err }

func newSchemaError(err error) error { return &schemaError{err: err} }

func isSchemaError(err error) bool {
	_, ok := err.(*schemaError)
	return ok
}
