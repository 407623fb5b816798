package eventbus

import (
	"encoding/json"
	"testing"
	"time"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func TestPublishSubscribeWatcherEvent(t *testing.T) {
	b := newTestBus(t)

	sub, err := b.SubscribeWatcher(0)
	if err != nil {
		t.Fatalf("SubscribeWatcher failed: %v", err)
	}
	defer sub.Close()

	// give the subscription a moment to register with the embedded server.
	time.Sleep(50 * time.Millisecond)

	b.PublishWatcher(NewSessionNew("proj-1", "/tmp/a.jsonl", "a.jsonl"))

	select {
	case data := <-sub.C():
		var ev WatcherEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		if ev.Kind != WatcherKindSessionNew {
			t.Errorf("expected kind %q, got %q", WatcherKindSessionNew, ev.Kind)
		}
		if ev.ProjectID != "proj-1" {
			t.Errorf("expected project_id proj-1, got %q", ev.ProjectID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watcher event")
	}
}

func TestPublishSubscribeAiEvent(t *testing.T) {
	b := newTestBus(t)

	sub, err := b.SubscribeAi(0)
	if err != nil {
		t.Fatalf("SubscribeAi failed: %v", err)
	}
	defer sub.Close()

	time.Sleep(50 * time.Millisecond)

	ev := NewAiEvent(FeatureMemory, PhaseComplete)
	ev.ProjectID = "proj-2"
	b.PublishAi(ev)

	select {
	case data := <-sub.C():
		var got AiEvent
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		if got.Feature != FeatureMemory || got.Phase != PhaseComplete {
			t.Errorf("unexpected event: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ai event")
	}
}

func TestSubscriptionDropsWhenFull(t *testing.T) {
	b := newTestBus(t)

	sub, err := b.SubscribeWatcher(1)
	if err != nil {
		t.Fatalf("SubscribeWatcher failed: %v", err)
	}
	defer sub.Close()

	time.Sleep(50 * time.Millisecond)

	// Publish faster than the size-1 buffer can drain; some should be dropped
	// rather than blocking the publisher.
	for i := 0; i < 20; i++ {
		b.PublishWatcher(NewSessionParsed("sess-1", i))
	}

	// let the async deliveries settle.
	time.Sleep(200 * time.Millisecond)

	if sub.Dropped() == 0 {
		t.Error("expected at least one dropped event when publishing faster than the buffer drains")
	}
}

func TestNoReplayBeforeSubscribe(t *testing.T) {
	b := newTestBus(t)

	// published with no subscribers yet; must not be buffered anywhere.
	b.PublishWatcher(NewSessionNew("proj-x", "/tmp/x.jsonl", "x.jsonl"))

	sub, err := b.SubscribeWatcher(0)
	if err != nil {
		t.Fatalf("SubscribeWatcher failed: %v", err)
	}
	defer sub.Close()

	select {
	case data := <-sub.C():
		t.Fatalf("expected no replayed event, got %s", data)
	case <-time.After(300 * time.Millisecond):
		// expected: nothing delivered.
	}
}
