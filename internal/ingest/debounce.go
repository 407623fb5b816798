package ingest

import (
	"sync"
	"time"
)

// coalescingDebouncer collapses bursts of filesystem events for the same
// path into a single dispatch, keyed by absolute path. Generalizes the
// teacher's monitorAgents ticker loop (a timer-driven periodic check) into
// a per-key reset-on-event timer: every new event for a path pushes its
// fire time out by window, so a fast-growing file dispatches once after
// it goes quiet rather than once per OS event.
type coalescingDebouncer struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	window time.Duration
}

func newCoalescingDebouncer(window time.Duration) *coalescingDebouncer {
	return &coalescingDebouncer{
		timers: make(map[string]*time.Timer),
		window: window,
	}
}

// Trigger (re)starts the debounce window for path. fn runs at most once
// per window, on its own goroutine, once no further Trigger calls arrive
// for that path within window.
func (d *coalescingDebouncer) Trigger(path string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[path]; ok {
		t.Stop()
	}
	d.timers[path] = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		delete(d.timers, path)
		d.mu.Unlock()
		fn()
	})
}

// Stop cancels every pending timer, used during shutdown.
func (d *coalescingDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.timers {
		t.Stop()
	}
	d.timers = make(map[string]*time.Timer)
}
