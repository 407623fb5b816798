package mcp

import (
	"context"
	"testing"

	"github.com/yocore/yocore/internal/api"
	"github.com/yocore/yocore/internal/storage"
	"github.com/yocore/yocore/internal/storage/ephemeral"
)

func newTestToolSet(t *testing.T) (*ToolSet, storage.Backend) {
	t.Helper()
	backend := ephemeral.New(ephemeral.Config{MaxSessions: 10, MaxMessagesPerSession: 100})
	svc := api.NewService(backend, nil)
	return NewToolSet(svc), backend
}

// TestSaveLifeboatThenSessionContextRoundTrips exercises spec.md §8's
// lifeboat round-trip scenario: a save_lifeboat call followed by
// session_context must return exactly what was saved.
func TestSaveLifeboatThenSessionContextRoundTrips(t *testing.T) {
	tools, _ := newTestToolSet(t)
	ctx := context.Background()

	err := tools.SaveLifeboat(ctx, SaveLifeboatArgs{
		SessionID:       "sess1",
		ProjectID:       "proj1",
		ActiveTask:      "implement hybrid search",
		RecentDecisions: []string{"use RRF with k=60"},
		OpenQuestions:   []string{"should markers dedup too?"},
		ResumeContext:   "picking up in internal/knowledge/search.go",
		Source:          "claude_code",
	})
	if err != nil {
		t.Fatalf("SaveLifeboat failed: %v", err)
	}

	got, err := tools.SessionContext(ctx, SessionContextArgs{SessionID: "sess1"})
	if err != nil {
		t.Fatalf("SessionContext failed: %v", err)
	}
	if got.ActiveTask != "implement hybrid search" || got.ResumeContext != "picking up in internal/knowledge/search.go" {
		t.Fatalf("lifeboat did not round-trip: %+v", got)
	}
	if len(got.RecentDecisions) != 1 || got.RecentDecisions[0] != "use RRF with k=60" {
		t.Fatalf("expected recent decisions to round-trip, got %+v", got.RecentDecisions)
	}
}

func TestSessionContextMissingReturnsNotFound(t *testing.T) {
	tools, _ := newTestToolSet(t)
	_, err := tools.SessionContext(context.Background(), SessionContextArgs{SessionID: "does-not-exist"})
	if err == nil {
		t.Fatal("expected an error for a session with no saved lifeboat")
	}
}

func TestProjectContextReturnsMemoriesAndSkills(t *testing.T) {
	tools, backend := newTestToolSet(t)
	ctx := context.Background()

	proj, err := backend.UpsertProject(ctx, "/repo", "repo")
	if err != nil {
		t.Fatalf("UpsertProject failed: %v", err)
	}
	if _, err := backend.InsertMemory(ctx, storage.Memory{ProjectID: proj.ID, Title: "m", Content: "c"}); err != nil {
		t.Fatalf("InsertMemory failed: %v", err)
	}

	pc, err := tools.ProjectContext(ctx, ProjectContextArgs{ProjectID: proj.ID})
	if err != nil {
		t.Fatalf("ProjectContext failed: %v", err)
	}
	if len(pc.Memories) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(pc.Memories))
	}
}

func TestRecentMemoriesDefaultsLimit(t *testing.T) {
	tools, backend := newTestToolSet(t)
	ctx := context.Background()

	proj, err := backend.UpsertProject(ctx, "/repo", "repo")
	if err != nil {
		t.Fatalf("UpsertProject failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := backend.InsertMemory(ctx, storage.Memory{ProjectID: proj.ID, Title: "m", Content: "c"}); err != nil {
			t.Fatalf("InsertMemory failed: %v", err)
		}
	}

	mems, err := tools.RecentMemories(ctx, RecentMemoriesArgs{ProjectID: proj.ID})
	if err != nil {
		t.Fatalf("RecentMemories failed: %v", err)
	}
	if len(mems) != 3 {
		t.Fatalf("expected 3 memories, got %d", len(mems))
	}
}
