package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/yocore/yocore/internal/aiqueue"
	"github.com/yocore/yocore/internal/embed"
	"github.com/yocore/yocore/internal/storage"
)

// Sink implements aiqueue.ResultSink, applying quality gates (gate.go) and
// insertion-time dedup (dedup.go) before writing extracted candidates to
// storage, and computing an embedding for every accepted memory/skill so
// the hybrid search's vector half has something to search (spec.md §4.6.1,
// §4.6.3, §4.6.4).
type Sink struct {
	backend storage.Backend
	engine  *embed.Engine
}

// NewSink constructs a Sink. engine may be nil in configurations that
// disable the embedding engine; embeddings are then simply skipped.
func NewSink(backend storage.Backend, engine *embed.Engine) *Sink {
	return &Sink{backend: backend, engine: engine}
}

var _ aiqueue.ResultSink = (*Sink)(nil)

// ApplyMemories gates candidates by confidence, rejects near-duplicates of
// existing memories, and inserts the rest (spec.md §4.6.1 + §4.6.3
// insertion-time rule).
func (s *Sink) ApplyMemories(ctx context.Context, projectID, sessionID string, candidates []aiqueue.MemoryCandidate) (int, error) {
	gated := gateMemories(candidates)
	if len(gated) == 0 {
		return 0, nil
	}

	existing, err := s.backend.ListMemories(ctx, storage.MemoryFilter{
		ProjectID: projectID,
		States:    []storage.EntryState{storage.StateNew, storage.StateLow, storage.StateHigh},
	})
	if err != nil {
		return 0, fmt.Errorf("list existing memories: %w", err)
	}

	now := time.Now()
	accepted := 0
	for _, c := range gated {
		candidate := storage.Memory{
			ProjectID:      projectID,
			SessionID:      sessionID,
			MemoryType:     storage.MemoryType(c.MemoryType),
			Title:          c.Title,
			Content:        c.Content,
			Tags:           c.Tags,
			Confidence:     c.Confidence,
			State:          storage.StateNew,
			ExtractedAt:    now,
			LastAccessedAt: now,
		}
		if isNearDuplicateOfExisting(candidate, existing) {
			continue
		}

		id, err := s.backend.InsertMemory(ctx, candidate)
		if err != nil {
			return accepted, fmt.Errorf("insert memory: %w", err)
		}
		candidate.ID = id
		existing = append(existing, candidate)
		s.embedMemory(ctx, id, candidate)
		accepted++
	}
	return accepted, nil
}

// ApplySkills mirrors ApplyMemories for skill candidates.
func (s *Sink) ApplySkills(ctx context.Context, projectID, sessionID string, candidates []aiqueue.SkillCandidate) (int, error) {
	gated := gateSkills(candidates)
	if len(gated) == 0 {
		return 0, nil
	}

	existing, err := s.backend.ListSkills(ctx, storage.SkillFilter{
		ProjectID: projectID,
		States:    []storage.EntryState{storage.StateNew, storage.StateLow, storage.StateHigh},
	})
	if err != nil {
		return 0, fmt.Errorf("list existing skills: %w", err)
	}

	now := time.Now()
	accepted := 0
	for _, c := range gated {
		candidate := storage.Skill{
			ProjectID:   projectID,
			SessionID:   sessionID,
			Name:        c.Title,
			Description: c.Context,
			Steps:       c.Steps,
			Confidence:  c.Confidence,
			State:       storage.StateNew,
			ExtractedAt: now,
		}
		if isSkillNearDuplicateOfExisting(candidate, existing) {
			continue
		}

		id, err := s.backend.InsertSkill(ctx, candidate)
		if err != nil {
			return accepted, fmt.Errorf("insert skill: %w", err)
		}
		candidate.ID = id
		existing = append(existing, candidate)
		s.embedSkill(ctx, id, candidate)
		accepted++
	}
	return accepted, nil
}

// ApplyMarkers inserts detected markers unconditionally; markers have no
// confidence field and are not deduplicated (spec.md §4.6 scopes dedup and
// gating to memories and skills only).
func (s *Sink) ApplyMarkers(ctx context.Context, sessionID string, candidates []aiqueue.MarkerCandidate) (int, error) {
	accepted := 0
	for _, c := range candidates {
		_, err := s.backend.InsertMarker(ctx, storage.Marker{
			SessionID:   sessionID,
			EventIndex:  c.SequenceNum,
			MarkerType:  storage.MarkerType(c.MarkerType),
			Description: c.Note,
		})
		if err != nil {
			return accepted, fmt.Errorf("insert marker: %w", err)
		}
		accepted++
	}
	return accepted, nil
}

// embedMemory computes and stores a memory's embedding best-effort; a
// failure here does not fail the insert, matching the teacher's pattern of
// treating embedding as an enrichment step separate from the write path
// (internal/memory/learning.go's SetEmbeddingProvider is likewise optional).
func (s *Sink) embedMemory(ctx context.Context, id int64, m storage.Memory) {
	if s.engine == nil {
		return
	}
	vec, err := s.engine.Embed(ctx, m.Title+"\n"+m.Content)
	if err != nil {
		return
	}
	_ = s.backend.SetMemoryEmbedding(ctx, id, vec)
}

func (s *Sink) embedSkill(ctx context.Context, id int64, sk storage.Skill) {
	if s.engine == nil {
		return
	}
	vec, err := s.engine.Embed(ctx, sk.Name+"\n"+sk.Description)
	if err != nil {
		return
	}
	_ = s.backend.SetSkillEmbedding(ctx, id, vec)
}

// BackfillMissingEmbeddings embeds up to limit memories in projectID that
// have no stored embedding yet, for the scheduler's embedding-backfill
// sweep (SPEC_FULL.md §5.10).
func (s *Sink) BackfillMissingEmbeddings(ctx context.Context, projectID string, limit int) (int, error) {
	if s.engine == nil {
		return 0, nil
	}
	mems, err := s.backend.ListMemoriesMissingEmbedding(ctx, projectID, limit)
	if err != nil {
		return 0, fmt.Errorf("list memories missing embedding: %w", err)
	}
	done := 0
	for _, m := range mems {
		vec, err := s.engine.Embed(ctx, m.Title+"\n"+m.Content)
		if err != nil {
			continue
		}
		if err := s.backend.SetMemoryEmbedding(ctx, m.ID, vec); err != nil {
			continue
		}
		done++
	}
	return done, nil
}
