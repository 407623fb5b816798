package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/yocore/yocore/internal/storage"
)

// Score weights, spec.md §4.6.6.
const (
	weightAccess     = 0.35
	weightConfidence = 0.25
	weightRecency    = 0.25
	weightValidated  = 0.15

	accessCountCeiling = 10
	recencyWindowDays  = 90
)

// Score computes spec.md §4.6.6's [0,1] ranking score for a memory as of
// now:
//
//	score = 0.35*min(access_count/10, 1)
//	      + 0.25*confidence
//	      + 0.25*max(1 - days_since_access/90, 0)
//	      + 0.15*(is_validated ? 1 : 0)
func Score(m storage.Memory, now time.Time) float64 {
	accessTerm := float64(m.AccessCount) / accessCountCeiling
	if accessTerm > 1 {
		accessTerm = 1
	}

	daysSinceAccess := now.Sub(m.LastAccessedAt).Hours() / 24
	recencyTerm := 1 - daysSinceAccess/recencyWindowDays
	if recencyTerm < 0 {
		recencyTerm = 0
	}

	validatedTerm := 0.0
	if m.IsValidated {
		validatedTerm = 1
	}

	return weightAccess*accessTerm + weightConfidence*m.Confidence + weightRecency*recencyTerm + weightValidated*validatedTerm
}

// nextState implements spec.md §4.6.6's transition table. Validated
// memories are immune to demotion and removal; a nil return means no
// transition applies.
func nextState(m storage.Memory, score float64, now time.Time) *storage.EntryState {
	daysSinceExtracted := now.Sub(m.ExtractedAt).Hours() / 24
	daysSinceAccess := now.Sub(m.LastAccessedAt).Hours() / 24

	switch m.State {
	case storage.StateNew:
		if score >= 0.7 && m.AccessCount >= 3 {
			s := storage.StateHigh
			return &s
		}
		if !m.IsValidated && score < 0.3 && daysSinceExtracted >= 30 && m.AccessCount == 0 {
			s := storage.StateRemoved
			return &s
		}
		if !m.IsValidated && score < 0.4 && daysSinceExtracted >= 14 {
			s := storage.StateLow
			return &s
		}
	case storage.StateLow:
		if score >= 0.6 && m.AccessCount >= 5 {
			s := storage.StateHigh
			return &s
		}
	case storage.StateHigh:
		if !m.IsValidated && score < 0.4 && daysSinceAccess >= 90 {
			s := storage.StateLow
			return &s
		}
	}
	return nil
}

// RunRankingSweep re-scores every non-removed memory in a project and
// applies the first matching state transition (spec.md §4.6.6, invoked by
// internal/scheduler's memory-ranking sweep). It returns how many memories
// changed state.
func RunRankingSweep(ctx context.Context, backend storage.Backend, projectID string, batchSize int, now time.Time) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultCleanupBatchSize
	}

	mems, err := backend.ListMemories(ctx, storage.MemoryFilter{
		ProjectID: projectID,
		States:    []storage.EntryState{storage.StateNew, storage.StateLow, storage.StateHigh},
		Limit:     batchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("list memories for ranking sweep: %w", err)
	}

	transitioned := 0
	for _, m := range mems {
		score := Score(m, now)
		next := nextState(m, score, now)
		if next == nil || *next == m.State {
			continue
		}
		if err := backend.UpdateMemoryState(ctx, m.ID, *next); err != nil {
			return transitioned, fmt.Errorf("update memory %d state: %w", m.ID, err)
		}
		transitioned++
	}
	return transitioned, nil
}
