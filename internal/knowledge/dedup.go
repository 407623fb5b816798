package knowledge

import (
	"context"
	"fmt"

	"github.com/yocore/yocore/internal/storage"
)

const (
	// InsertionRejectThreshold is spec.md §4.6.3's insertion-time guard:
	// reject a new memory if it is this similar to an existing one.
	InsertionRejectThreshold = 0.65

	// MemoryCleanupThreshold and SkillCleanupThreshold gate the
	// background batched cleanup sweep.
	MemoryCleanupThreshold = 0.75
	SkillCleanupThreshold  = 0.80

	// DefaultCleanupBatchSize bounds one sweep's pairwise scan (spec.md
	// §4.6.3: "batched and bounded per sweep, batch_size default 500").
	DefaultCleanupBatchSize = 500
)

// memorySimilarity implements spec.md §4.6.3's weighted Jaccard formula:
// sim(A,B) = 0.6*jaccard(title) + 0.4*jaccard(content).
func memorySimilarity(a, b storage.Memory) float64 {
	return 0.6*jaccard(tokenize(a.Title), tokenize(b.Title)) +
		0.4*jaccard(tokenize(a.Content), tokenize(b.Content))
}

func skillSimilarity(a, b storage.Skill) float64 {
	aContent := a.Description
	bContent := b.Description
	return 0.6*jaccard(tokenize(a.Name), tokenize(b.Name)) +
		0.4*jaccard(tokenize(aContent), tokenize(bContent))
}

// isNearDuplicateOfExisting scans existing (already non-removed,
// same-project) memories and reports whether candidate collides with any
// of them at or above InsertionRejectThreshold (spec.md §4.6.3
// insertion-time rule).
func isNearDuplicateOfExisting(candidate storage.Memory, existing []storage.Memory) bool {
	for _, e := range existing {
		if memorySimilarity(candidate, e) >= InsertionRejectThreshold {
			return true
		}
	}
	return false
}

func isSkillNearDuplicateOfExisting(candidate storage.Skill, existing []storage.Skill) bool {
	for _, e := range existing {
		if skillSimilarity(candidate, e) >= InsertionRejectThreshold {
			return true
		}
	}
	return false
}

// CleanupDuplicateMemories runs one batched pairwise scan over a project's
// non-removed memories, soft-removing the newer of any pair at or above
// MemoryCleanupThreshold while keeping the older (spec.md §4.6.3:
// "background cleanup: pairwise scan in batches; keep the older, soft-
// remove the newer"). It returns the number of memories removed.
func CleanupDuplicateMemories(ctx context.Context, backend storage.Backend, projectID string, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultCleanupBatchSize
	}

	mems, err := backend.ListMemories(ctx, storage.MemoryFilter{
		ProjectID: projectID,
		States:    []storage.EntryState{storage.StateNew, storage.StateLow, storage.StateHigh},
		Limit:     batchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("list memories for cleanup: %w", err)
	}

	removed := 0
	removedIDs := make(map[int64]bool, len(mems))
	for i := 0; i < len(mems); i++ {
		if removedIDs[mems[i].ID] {
			continue
		}
		for j := i + 1; j < len(mems); j++ {
			if removedIDs[mems[j].ID] {
				continue
			}
			if memorySimilarity(mems[i], mems[j]) < MemoryCleanupThreshold {
				continue
			}
			older, newer := mems[i], mems[j]
			if newer.ExtractedAt.Before(older.ExtractedAt) {
				older, newer = newer, older
			}
			if err := backend.UpdateMemoryState(ctx, newer.ID, storage.StateRemoved); err != nil {
				return removed, fmt.Errorf("soft-remove duplicate memory %d: %w", newer.ID, err)
			}
			removedIDs[newer.ID] = true
			removed++
		}
	}
	return removed, nil
}

// CleanupDuplicateSkills mirrors CleanupDuplicateMemories at
// SkillCleanupThreshold (spec.md §4.6.3: "skill cleanup uses the same
// algorithm with threshold 0.80").
func CleanupDuplicateSkills(ctx context.Context, backend storage.Backend, projectID string, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultCleanupBatchSize
	}

	skills, err := backend.ListSkills(ctx, storage.SkillFilter{
		ProjectID: projectID,
		States:    []storage.EntryState{storage.StateNew, storage.StateLow, storage.StateHigh},
		Limit:     batchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("list skills for cleanup: %w", err)
	}

	removed := 0
	removedIDs := make(map[int64]bool, len(skills))
	for i := 0; i < len(skills); i++ {
		if removedIDs[skills[i].ID] {
			continue
		}
		for j := i + 1; j < len(skills); j++ {
			if removedIDs[skills[j].ID] {
				continue
			}
			if skillSimilarity(skills[i], skills[j]) < SkillCleanupThreshold {
				continue
			}
			older, newer := skills[i], skills[j]
			if newer.ExtractedAt.Before(older.ExtractedAt) {
				older, newer = newer, older
			}
			if err := backend.UpdateSkillState(ctx, newer.ID, storage.StateRemoved); err != nil {
				return removed, fmt.Errorf("soft-remove duplicate skill %d: %w", newer.ID, err)
			}
			removedIDs[newer.ID] = true
			removed++
		}
	}
	return removed, nil
}
