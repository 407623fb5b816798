package aiqueue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/yocore/yocore/internal/eventbus"
	"github.com/yocore/yocore/internal/storage"
	"github.com/yocore/yocore/internal/storage/ephemeral"
)

// waitForAiPhase drains sub until it sees an AiEvent matching feature+phase
// or the timeout elapses.
func waitForAiPhase(t *testing.T, sub *eventbus.Subscription, feature eventbus.AiFeature, phase eventbus.AiPhase, timeout time.Duration) eventbus.AiEvent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case data := <-sub.C():
			var ev eventbus.AiEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				continue
			}
			if ev.Feature == feature && ev.Phase == phase {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for AiEvent{feature=%s, phase=%s}", feature, phase)
		}
	}
}

func newTestBackendWithSession(t *testing.T) (storage.Backend, storage.Session) {
	t.Helper()
	backend := ephemeral.New(ephemeral.Config{MaxSessions: 10, MaxMessagesPerSession: 100})
	ctx := context.Background()

	proj, err := backend.UpsertProject(ctx, "/repo", "repo")
	if err != nil {
		t.Fatalf("UpsertProject failed: %v", err)
	}
	sess, err := backend.FindOrCreateSession(ctx, proj.ID, "/repo/a.jsonl", storage.ParserClaudeCode)
	if err != nil {
		t.Fatalf("FindOrCreateSession failed: %v", err)
	}
	msgs := []storage.Message{
		{SessionID: sess.ID, SequenceNum: 1, Role: storage.RoleHuman, SearchContent: "implement auth"},
	}
	if err := backend.ReplaceSessionMessages(ctx, sess.ID, msgs, 100); err != nil {
		t.Fatalf("ReplaceSessionMessages failed: %v", err)
	}
	return backend, sess
}

// fakeTitleCLI is a shell one-liner that ignores stdin and prints a valid
// title response, standing in for a real AI CLI invocation.
var fakeTitleCLI = Config{
	Binary:      "sh",
	Args:        []string{"-c", `echo '{"title":"Implement authentication"}'`},
	Concurrency: 2,
}

// fakeBrokenCLI prints output that fails JSON decoding, exercising the
// non-retrying schema-error path.
var fakeBrokenCLI = Config{
	Binary:      "sh",
	Args:        []string{"-c", `echo 'not json at all'`},
	Concurrency: 2,
}

func TestEnqueueTitleGenerationPersistsTitle(t *testing.T) {
	backend, sess := newTestBackendWithSession(t)
	bus, err := eventbus.New()
	if err != nil {
		t.Fatalf("eventbus.New failed: %v", err)
	}
	defer bus.Close()

	sub, err := bus.SubscribeAi(16)
	if err != nil {
		t.Fatalf("SubscribeAi failed: %v", err)
	}
	defer sub.Close()

	q := New(fakeTitleCLI, backend, bus, nil)
	if err := q.Enqueue(context.Background(), eventbus.FeatureTitle, sess.ProjectID, sess.ID); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	waitForAiPhase(t, sub, eventbus.FeatureTitle, eventbus.PhaseComplete, 5*time.Second)
	q.Stop()

	got, err := backend.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Title != "Implement authentication" {
		t.Fatalf("expected persisted title, got %q", got.Title)
	}
}

func TestEnqueueSchemaErrorDoesNotRetry(t *testing.T) {
	backend, sess := newTestBackendWithSession(t)
	bus, err := eventbus.New()
	if err != nil {
		t.Fatalf("eventbus.New failed: %v", err)
	}
	defer bus.Close()

	sub, err := bus.SubscribeAi(16)
	if err != nil {
		t.Fatalf("SubscribeAi failed: %v", err)
	}
	defer sub.Close()

	q := New(fakeBrokenCLI, backend, bus, nil)
	start := time.Now()
	if err := q.Enqueue(context.Background(), eventbus.FeatureTitle, sess.ProjectID, sess.ID); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	waitForAiPhase(t, sub, eventbus.FeatureTitle, eventbus.PhaseError, 5*time.Second)
	elapsed := time.Since(start)
	q.Stop()

	if elapsed >= InitialBackoff {
		t.Fatalf("expected schema error to skip retry backoff, took %v", elapsed)
	}
}
