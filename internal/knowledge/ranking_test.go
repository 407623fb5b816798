package knowledge

import (
	"context"
	"testing"
	"time"

	"github.com/yocore/yocore/internal/storage"
	"github.com/yocore/yocore/internal/storage/ephemeral"
)

func TestScoreIsBoundedToUnitInterval(t *testing.T) {
	now := time.Now()
	m := storage.Memory{
		AccessCount:    100,
		Confidence:     1.0,
		IsValidated:    true,
		LastAccessedAt: now,
	}
	if got := Score(m, now); got > 1.0001 {
		t.Fatalf("expected score <= 1, got %v", got)
	}

	stale := storage.Memory{
		AccessCount:    0,
		Confidence:     0,
		IsValidated:    false,
		LastAccessedAt: now.Add(-365 * 24 * time.Hour),
	}
	if got := Score(stale, now); got < 0 {
		t.Fatalf("expected score >= 0, got %v", got)
	}
}

func TestNextStateNewToHigh(t *testing.T) {
	now := time.Now()
	m := storage.Memory{
		State: storage.StateNew, AccessCount: 8, Confidence: 1.0,
		LastAccessedAt: now, ExtractedAt: now,
	}
	score := Score(m, now)
	got := nextState(m, score, now)
	if got == nil || *got != storage.StateHigh {
		t.Fatalf("expected new->high, got %v (score=%v)", got, score)
	}
}

func TestNextStateNewToRemovedRequiresUntouchedAndOld(t *testing.T) {
	now := time.Now()
	m := storage.Memory{
		State: storage.StateNew, AccessCount: 0, Confidence: 0,
		LastAccessedAt: now.Add(-40 * 24 * time.Hour),
		ExtractedAt:    now.Add(-40 * 24 * time.Hour),
	}
	got := nextState(m, Score(m, now), now)
	if got == nil || *got != storage.StateRemoved {
		t.Fatalf("expected new->removed for stale, untouched, low-confidence memory, got %v", got)
	}
}

func TestNextStateValidatedMemoryImmuneToRemoval(t *testing.T) {
	now := time.Now()
	m := storage.Memory{
		State: storage.StateNew, AccessCount: 0, Confidence: 0, IsValidated: true,
		LastAccessedAt: now.Add(-40 * 24 * time.Hour),
		ExtractedAt:    now.Add(-40 * 24 * time.Hour),
	}
	if got := nextState(m, Score(m, now), now); got != nil {
		t.Fatalf("expected validated memory to be immune to removal, got %v", got)
	}
}

func TestNextStateHighToLowRequiresStaleAccessAndNotValidated(t *testing.T) {
	now := time.Now()
	m := storage.Memory{
		State: storage.StateHigh, AccessCount: 1, Confidence: 0,
		LastAccessedAt: now.Add(-100 * 24 * time.Hour),
		ExtractedAt:    now.Add(-200 * 24 * time.Hour),
	}
	got := nextState(m, Score(m, now), now)
	if got == nil || *got != storage.StateLow {
		t.Fatalf("expected high->low for stale unvalidated memory, got %v", got)
	}

	m.IsValidated = true
	if got := nextState(m, Score(m, now), now); got != nil {
		t.Fatalf("expected validated high memory to resist demotion, got %v", got)
	}
}

func TestRunRankingSweepAppliesTransitionsAndCounts(t *testing.T) {
	ctx := context.Background()
	backend := ephemeral.New(ephemeral.Config{MaxSessions: 10, MaxMessagesPerSession: 100})
	proj, err := backend.UpsertProject(ctx, "/repo", "repo")
	if err != nil {
		t.Fatalf("UpsertProject failed: %v", err)
	}

	now := time.Now()
	id, err := backend.InsertMemory(ctx, storage.Memory{
		ProjectID: proj.ID, Title: "m", Content: "c", Confidence: 1.0,
		State: storage.StateNew, AccessCount: 8, ExtractedAt: now, LastAccessedAt: now,
	})
	if err != nil {
		t.Fatalf("InsertMemory failed: %v", err)
	}

	transitioned, err := RunRankingSweep(ctx, backend, proj.ID, 0, now)
	if err != nil {
		t.Fatalf("RunRankingSweep failed: %v", err)
	}
	if transitioned != 1 {
		t.Fatalf("expected exactly 1 transition, got %d", transitioned)
	}

	got, err := backend.GetMemory(ctx, id)
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}
	if got.State != storage.StateHigh {
		t.Fatalf("expected memory to be promoted to high, got %v", got.State)
	}
}
