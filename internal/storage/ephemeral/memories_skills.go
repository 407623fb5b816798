package ephemeral

import (
	"context"
	"sort"
	"time"

	"github.com/yocore/yocore/internal/storage"
)

// InsertMemory stores a memory in the in-memory map. Basic CRUD is
// supported in ephemeral mode; only the FTS/vector index operations are
// "not supported in this mode" (spec.md §4.2).
func (s *Store) InsertMemory(ctx context.Context, m storage.Memory) (int64, error) {
	s.memMu.Lock()
	defer s.memMu.Unlock()

	s.nextMemID++
	m.ID = s.nextMemID
	now := time.Now()
	if m.ExtractedAt.IsZero() {
		m.ExtractedAt = now
	}
	if m.LastAccessedAt.IsZero() {
		m.LastAccessedAt = now
	}
	if m.State == "" {
		m.State = storage.StateNew
	}
	stored := m
	s.memories[m.ID] = &stored
	return m.ID, nil
}

// UpdateMemoryState applies a ranking-sweep or API state transition.
func (s *Store) UpdateMemoryState(ctx context.Context, id int64, state storage.EntryState) error {
	s.memMu.Lock()
	defer s.memMu.Unlock()

	m, ok := s.memories[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.State = state
	return nil
}

// TouchMemoryAccess increments access_count and bumps last_accessed_at.
func (s *Store) TouchMemoryAccess(ctx context.Context, id int64, when time.Time) error {
	s.memMu.Lock()
	defer s.memMu.Unlock()

	m, ok := s.memories[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.AccessCount++
	m.LastAccessedAt = when
	return nil
}

// GetMemory fetches a memory by ID.
func (s *Store) GetMemory(ctx context.Context, id int64) (storage.Memory, error) {
	s.memMu.RLock()
	defer s.memMu.RUnlock()

	m, ok := s.memories[id]
	if !ok {
		return storage.Memory{}, storage.ErrNotFound
	}
	return *m, nil
}

// ListMemories applies filter.ProjectID / MemoryTypes / Tags / States by
// linear scan — the ephemeral backend has no index, but plain filtering
// doesn't require one. Results are ordered newest-extracted first, as in
// the durable backend.
func (s *Store) ListMemories(ctx context.Context, filter storage.MemoryFilter) ([]storage.Memory, error) {
	s.memMu.RLock()
	defer s.memMu.RUnlock()

	var out []storage.Memory
	for _, m := range s.memories {
		if filter.ProjectID != "" && m.ProjectID != filter.ProjectID {
			continue
		}
		if len(filter.States) > 0 {
			if !stateIn(m.State, filter.States) {
				continue
			}
		} else if m.State == storage.StateRemoved {
			continue
		}
		if len(filter.MemoryTypes) > 0 && !typeIn(m.MemoryType, filter.MemoryTypes) {
			continue
		}
		if !tagsMatch(m.Tags, filter.Tags) {
			continue
		}
		out = append(out, *m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ExtractedAt.After(out[j].ExtractedAt) })
	if filter.Offset > 0 && filter.Offset < len(out) {
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func stateIn(s storage.EntryState, states []storage.EntryState) bool {
	for _, x := range states {
		if x == s {
			return true
		}
	}
	return false
}

func typeIn(t storage.MemoryType, types []storage.MemoryType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func tagsMatch(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

// SetMemoryEmbedding is accepted but unused for retrieval in ephemeral mode
// (vector search itself is unsupported); kept so the embedding backfill
// sweep doesn't need a mode check before writing.
func (s *Store) SetMemoryEmbedding(ctx context.Context, memoryID int64, vector []float32) error {
	s.memMu.Lock()
	defer s.memMu.Unlock()

	if _, ok := s.memories[memoryID]; !ok {
		return storage.ErrNotFound
	}
	if s.memEmbeddings == nil {
		s.memEmbeddings = make(map[int64][]float32)
	}
	cp := make([]float32, len(vector))
	copy(cp, vector)
	s.memEmbeddings[memoryID] = cp
	return nil
}

// GetMemoryEmbedding returns the stored vector, or storage.ErrNotFound.
func (s *Store) GetMemoryEmbedding(ctx context.Context, memoryID int64) ([]float32, error) {
	s.memMu.RLock()
	defer s.memMu.RUnlock()

	v, ok := s.memEmbeddings[memoryID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

// ListMemoriesMissingEmbedding supports the scheduler's backfill sweep even
// in ephemeral mode, since it's plain filtering, not an index query.
func (s *Store) ListMemoriesMissingEmbedding(ctx context.Context, projectID string, limit int) ([]storage.Memory, error) {
	s.memMu.RLock()
	defer s.memMu.RUnlock()

	var out []storage.Memory
	for _, m := range s.memories {
		if m.ProjectID != projectID || m.State == storage.StateRemoved {
			continue
		}
		if _, has := s.memEmbeddings[m.ID]; has {
			continue
		}
		out = append(out, *m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// InsertSkill stores a skill in the in-memory map.
func (s *Store) InsertSkill(ctx context.Context, sk storage.Skill) (int64, error) {
	s.skillMu.Lock()
	defer s.skillMu.Unlock()

	s.nextSkillID++
	sk.ID = s.nextSkillID
	if sk.ExtractedAt.IsZero() {
		sk.ExtractedAt = time.Now()
	}
	if sk.State == "" {
		sk.State = storage.StateNew
	}
	stored := sk
	s.skills[sk.ID] = &stored
	return sk.ID, nil
}

// UpdateSkillState transitions a skill's lifecycle state.
func (s *Store) UpdateSkillState(ctx context.Context, id int64, state storage.EntryState) error {
	s.skillMu.Lock()
	defer s.skillMu.Unlock()

	sk, ok := s.skills[id]
	if !ok {
		return storage.ErrNotFound
	}
	sk.State = state
	return nil
}

// GetSkill fetches a skill by ID.
func (s *Store) GetSkill(ctx context.Context, id int64) (storage.Skill, error) {
	s.skillMu.RLock()
	defer s.skillMu.RUnlock()

	sk, ok := s.skills[id]
	if !ok {
		return storage.Skill{}, storage.ErrNotFound
	}
	return *sk, nil
}

// ListSkills applies filter.ProjectID / States by linear scan.
func (s *Store) ListSkills(ctx context.Context, filter storage.SkillFilter) ([]storage.Skill, error) {
	s.skillMu.RLock()
	defer s.skillMu.RUnlock()

	var out []storage.Skill
	for _, sk := range s.skills {
		if filter.ProjectID != "" && sk.ProjectID != filter.ProjectID {
			continue
		}
		if len(filter.States) > 0 {
			if !stateIn(sk.State, filter.States) {
				continue
			}
		} else if sk.State == storage.StateRemoved {
			continue
		}
		out = append(out, *sk)
	}

	if filter.Offset > 0 && filter.Offset < len(out) {
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// SetSkillEmbedding stores a skill's vector.
func (s *Store) SetSkillEmbedding(ctx context.Context, skillID int64, vector []float32) error {
	s.skillMu.Lock()
	defer s.skillMu.Unlock()

	if _, ok := s.skills[skillID]; !ok {
		return storage.ErrNotFound
	}
	if s.skillEmbeddings == nil {
		s.skillEmbeddings = make(map[int64][]float32)
	}
	cp := make([]float32, len(vector))
	copy(cp, vector)
	s.skillEmbeddings[skillID] = cp
	return nil
}

// GetSkillEmbedding returns the stored vector, or storage.ErrNotFound.
func (s *Store) GetSkillEmbedding(ctx context.Context, skillID int64) ([]float32, error) {
	s.skillMu.RLock()
	defer s.skillMu.RUnlock()

	v, ok := s.skillEmbeddings[skillID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}
