package api

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/yocore/yocore/internal/eventbus"
)

func TestWriteSSEEventFramesNameAndJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSSEEvent(&buf, "watcher", map[string]string{"kind": "session_new"}); err != nil {
		t.Fatalf("WriteSSEEvent failed: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "event: watcher\ndata: ") {
		t.Fatalf("unexpected SSE frame: %q", out)
	}
	if !strings.HasSuffix(out, "\n\n") {
		t.Fatalf("expected SSE frame to end with a blank line, got %q", out)
	}
}

func TestWriteSSEHeartbeatIncludesTimestamp(t *testing.T) {
	var buf bytes.Buffer
	now := time.Now()
	if err := WriteSSEHeartbeat(&buf, now); err != nil {
		t.Fatalf("WriteSSEHeartbeat failed: %v", err)
	}
	if !strings.Contains(buf.String(), "event: heartbeat") {
		t.Fatalf("expected heartbeat event name, got %q", buf.String())
	}
}

func TestEventStreamForwardsWatcherEvent(t *testing.T) {
	bus, err := eventbus.New()
	if err != nil {
		t.Fatalf("eventbus.New failed: %v", err)
	}
	defer bus.Close()

	stream, err := NewEventStream(bus, 8)
	if err != nil {
		t.Fatalf("NewEventStream failed: %v", err)
	}
	defer stream.Close()

	bus.PublishWatcher(eventbus.NewSessionNew("proj1", "/repo/a.jsonl", "a.jsonl"))

	done := make(chan struct{})
	frame, ok := stream.Next(done)
	if !ok {
		t.Fatal("expected Next to return a frame")
	}
	if frame.EventName != "watcher" {
		t.Fatalf("expected a watcher frame, got %+v", frame)
	}
}

func TestEventStreamStopsOnDone(t *testing.T) {
	bus, err := eventbus.New()
	if err != nil {
		t.Fatalf("eventbus.New failed: %v", err)
	}
	defer bus.Close()

	stream, err := NewEventStream(bus, 8)
	if err != nil {
		t.Fatalf("NewEventStream failed: %v", err)
	}
	defer stream.Close()

	done := make(chan struct{})
	close(done)
	if _, ok := stream.Next(done); ok {
		t.Fatal("expected Next to report stream closed once done fires")
	}
}
