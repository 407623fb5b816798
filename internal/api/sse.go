package api

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/yocore/yocore/internal/eventbus"
)

// KeepaliveInterval and HeartbeatInterval are spec.md §6's SSE cadence:
// "heartbeat every 30s with event: heartbeat and {timestamp}; keepalive
// whitespace every 15s."
const (
	KeepaliveInterval = 15 * time.Second
	HeartbeatInterval = 30 * time.Second
)

// heartbeatPayload is the body of a heartbeat SSE event.
type heartbeatPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// WriteSSEEvent frames one SSE event as `event: <name>\ndata: <json>\n\n`
// (spec.md §6: "each event has event: <name> and data: <json>").
func WriteSSEEvent(w io.Writer, name string, data any) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal SSE event %q: %w", name, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, encoded)
	return err
}

// WriteSSEKeepalive writes the 15s keepalive whitespace comment line.
func WriteSSEKeepalive(w io.Writer) error {
	_, err := io.WriteString(w, ": keepalive\n\n")
	return err
}

// WriteSSEHeartbeat writes the 30s heartbeat event.
func WriteSSEHeartbeat(w io.Writer, now time.Time) error {
	return WriteSSEEvent(w, "heartbeat", heartbeatPayload{Timestamp: now})
}

// EventStream attaches both event-bus subscriptions and funnels them,
// interleaved with periodic keepalive/heartbeat ticks, to a single
// consumer — the shape an HTTP handler's SSE loop pulls from one
// goroutine at a time (spec.md §4.8: "/api/events is an SSE stream
// attaching both event bus subscriptions").
type EventStream struct {
	watcher   *eventbus.Subscription
	ai        *eventbus.Subscription
	keepalive *time.Ticker
	heartbeat *time.Ticker
}

// Frame is one item the SSE handler writes out: either a named event with
// its JSON body, or a tick signaling a keepalive/heartbeat write.
type Frame struct {
	EventName string
	Data      []byte
	Tick      string // "keepalive" or "heartbeat", set only for synthetic ticks
}

// NewEventStream subscribes to both event-bus trees. The caller is
// responsible for calling Close when the client disconnects.
func NewEventStream(bus *eventbus.Bus, bufSize int) (*EventStream, error) {
	watcherSub, err := bus.SubscribeWatcher(bufSize)
	if err != nil {
		return nil, fmt.Errorf("subscribe watcher events: %w", err)
	}
	aiSub, err := bus.SubscribeAi(bufSize)
	if err != nil {
		watcherSub.Close()
		return nil, fmt.Errorf("subscribe ai events: %w", err)
	}
	return &EventStream{
		watcher:   watcherSub,
		ai:        aiSub,
		keepalive: time.NewTicker(KeepaliveInterval),
		heartbeat: time.NewTicker(HeartbeatInterval),
	}, nil
}

// Close releases both underlying subscriptions and stops both tickers.
func (es *EventStream) Close() {
	es.watcher.Close()
	es.ai.Close()
	es.keepalive.Stop()
	es.heartbeat.Stop()
}

// Next blocks until a watcher event, an AI event, a keepalive tick, or a
// heartbeat tick is ready, or done fires. The caller's HTTP handler loop
// calls Next repeatedly and writes each returned Frame with
// WriteSSEEvent/WriteSSEKeepalive/WriteSSEHeartbeat as appropriate.
func (es *EventStream) Next(done <-chan struct{}) (Frame, bool) {
	select {
	case data := <-es.watcher.C():
		return Frame{EventName: "watcher", Data: data}, true
	case data := <-es.ai.C():
		return Frame{EventName: "ai", Data: data}, true
	case <-es.keepalive.C:
		return Frame{Tick: "keepalive"}, true
	case <-es.heartbeat.C:
		return Frame{Tick: "heartbeat"}, true
	case <-done:
		return Frame{}, false
	}
}
