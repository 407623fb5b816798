// Package eventbus implements the two broadcast channels (WatcherEvent,
// AiEvent) described in spec.md §4.1. It is grounded on the teacher's
// embedded-NATS pattern (cmd/cliairmonitor/main.go's server.NewServer +
// internal/nats.Client) but never listens on a routable interface: the NATS
// server is bound to loopback on an ephemeral port and used purely as an
// in-process pub/sub fabric, which keeps this module's event bus within the
// single-node scope spec.md §1 requires.
//
// Subscribers get a bounded ring buffer (design notes §9): a publish that
// would block a slow subscriber drops the event and increments that
// subscriber's Dropped counter instead of back-pressuring the producer or
// growing without bound.
package eventbus

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	nc "github.com/nats-io/nats.go"
	natsserver "github.com/nats-io/nats-server/v2/server"
)

// DefaultSubscriberBuffer is the default per-subscriber ring buffer capacity.
const DefaultSubscriberBuffer = 256

// Bus publishes WatcherEvent and AiEvent values and hands out bounded
// subscriptions to them.
type Bus struct {
	srv  *natsserver.Server
	conn *nc.Conn
}

// New starts an embedded, loopback-only NATS server and connects a
// publisher client to it, mirroring main.go's
// server.NewServer/natsServer.Start()/ReadyForConnections sequence.
func New() (*Bus, error) {
	opts := &natsserver.Options{
		Host:     "127.0.0.1",
		Port:     natsserver.RANDOM_PORT,
		HTTPPort: -1,
		NoLog:    true,
		NoSigs:   true,
	}

	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded event bus server: %w", err)
	}

	go srv.Start()

	if !srv.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("embedded event bus server failed to start in time")
	}

	conn, err := nc.Connect(srv.ClientURL(), nc.Name("yocore-eventbus"))
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("failed to connect to embedded event bus: %w", err)
	}

	return &Bus{srv: srv, conn: conn}, nil
}

// Close de-advertises the bus and shuts the embedded server down.
func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
	if b.srv != nil {
		b.srv.Shutdown()
	}
}

// PublishWatcher broadcasts a WatcherEvent.
func (b *Bus) PublishWatcher(ev WatcherEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[EVENTBUS] failed to marshal watcher event: %v", err)
		return
	}
	if err := b.conn.Publish(SubjectWatcher+"."+ev.Kind, data); err != nil {
		log.Printf("[EVENTBUS] failed to publish watcher event: %v", err)
	}
}

// PublishAi broadcasts an AiEvent.
func (b *Bus) PublishAi(ev AiEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[EVENTBUS] failed to marshal ai event: %v", err)
		return
	}
	subject := fmt.Sprintf("%s.%s.%s", SubjectAI, ev.Feature, ev.Phase)
	if err := b.conn.Publish(subject, data); err != nil {
		log.Printf("[EVENTBUS] failed to publish ai event: %v", err)
	}
}

// Subscription is a lossy, bounded view onto one subject tree. Events
// published before Subscribe was called are never delivered.
type Subscription struct {
	ch      chan []byte
	dropped int64
	sub     *nc.Subscription
	mu      sync.Mutex
	closed  bool
}

// SubscribeWatcher attaches a new bounded subscription to all WatcherEvents.
func (b *Bus) SubscribeWatcher(bufSize int) (*Subscription, error) {
	return b.subscribe(SubjectWatcher+".>", bufSize)
}

// SubscribeAi attaches a new bounded subscription to all AiEvents.
func (b *Bus) SubscribeAi(bufSize int) (*Subscription, error) {
	return b.subscribe(SubjectAI+".>", bufSize)
}

func (b *Bus) subscribe(subject string, bufSize int) (*Subscription, error) {
	if bufSize <= 0 {
		bufSize = DefaultSubscriberBuffer
	}

	s := &Subscription{ch: make(chan []byte, bufSize)}

	sub, err := b.conn.Subscribe(subject, func(msg *nc.Msg) {
		select {
		case s.ch <- msg.Data:
		default:
			atomic.AddInt64(&s.dropped, 1)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	s.sub = sub
	return s, nil
}

// C returns the channel of raw JSON payloads for this subscription. Decode
// with json.Unmarshal into WatcherEvent or AiEvent as appropriate.
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

// Dropped returns the number of events this subscriber has missed because
// its buffer was full — surfaced so SSE clients (or their proxy) can report
// lag instead of silently losing events.
func (s *Subscription) Dropped() int64 {
	return atomic.LoadInt64(&s.dropped)
}

// Close unsubscribes and releases the underlying channel.
func (s *Subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.sub != nil {
		return s.sub.Unsubscribe()
	}
	return nil
}
