package ephemeral

import (
	"context"

	"github.com/yocore/yocore/internal/storage"
)

// FtsSearchMessages has no full-text index in ephemeral mode (spec.md
// §4.2, §9 Open Questions — this repo signals explicitly rather than
// returning an empty list silently).
func (s *Store) FtsSearchMessages(ctx context.Context, query string, projectID string, limit, offset int) ([]storage.Message, error) {
	return nil, storage.ErrUnsupportedInEphemeralMode
}

// FtsSearchMemories is unsupported in ephemeral mode.
func (s *Store) FtsSearchMemories(ctx context.Context, query string, filter storage.MemoryFilter) ([]storage.ScoredMemory, error) {
	return nil, storage.ErrUnsupportedInEphemeralMode
}

// FtsSearchSkills is unsupported in ephemeral mode.
func (s *Store) FtsSearchSkills(ctx context.Context, query string, filter storage.SkillFilter) ([]storage.ScoredSkill, error) {
	return nil, storage.ErrUnsupportedInEphemeralMode
}

// VectorSearchMemories is unsupported in ephemeral mode.
func (s *Store) VectorSearchMemories(ctx context.Context, query []float32, filter storage.MemoryFilter, topK int) ([]storage.ScoredMemory, error) {
	return nil, storage.ErrUnsupportedInEphemeralMode
}

// VectorSearchSkills is unsupported in ephemeral mode.
func (s *Store) VectorSearchSkills(ctx context.Context, query []float32, filter storage.SkillFilter, topK int) ([]storage.ScoredSkill, error) {
	return nil, storage.ErrUnsupportedInEphemeralMode
}
