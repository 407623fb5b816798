// Package aiqueue gates outbound AI-CLI subprocess invocations behind a
// bounded-concurrency semaphore (spec.md §4.5). Grounded on the teacher's
// Spawner (internal/aider/spawner.go): SpawnAgent's exec.Command +
// stdin/stdout/stderr pipe setup and StopAgent's graceful→SIGTERM→SIGKILL
// shutdown ladder, generalized from "one long-lived interactive Aider
// process per agent" to "one short-lived batch CLI invocation per task."
package aiqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yocore/yocore/internal/eventbus"
	"github.com/yocore/yocore/internal/storage"
)

// MaxRetries is how many times a transient failure is retried (spec.md
// §4.5: "retries at most twice").
const MaxRetries = 2

// InitialBackoff is the base of the exponential retry backoff (spec.md
// §4.5: "exponential backoff (base 2s)").
const InitialBackoff = 2 * time.Second

var featureTimeout = map[eventbus.AiFeature]time.Duration{
	eventbus.FeatureTitle:   90 * time.Second,
	eventbus.FeatureMemory:  150 * time.Second,
	eventbus.FeatureSkill:   150 * time.Second,
	eventbus.FeatureMarkers: 120 * time.Second,
}

func timeoutFor(feature eventbus.AiFeature) time.Duration {
	if d, ok := featureTimeout[feature]; ok {
		return d
	}
	return 120 * time.Second
}

// Config parameterizes a Queue.
type Config struct {
	Binary      string   // AI CLI executable name or path
	Args        []string // extra arguments passed before stdin is written
	Concurrency int      // permits; default 3 if <= 0
}

// Queue gates AI-CLI subprocess tasks behind cfg.Concurrency permits.
type Queue struct {
	cfg     Config
	backend storage.Backend
	bus     *eventbus.Bus
	sink    ResultSink

	sem    chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Queue. sink may be nil only if memory/skill/marker
// features are never enabled in config.AIConfig.
func New(cfg Config, backend storage.Backend, bus *eventbus.Bus, sink ResultSink) *Queue {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	return &Queue{
		cfg:     cfg,
		backend: backend,
		bus:     bus,
		sink:    sink,
		sem:     make(chan struct{}, cfg.Concurrency),
		stopCh:  make(chan struct{}),
	}
}

// Enqueue schedules a task for sessionID under feature. It returns
// immediately; the task itself blocks on a free permit before running,
// implementing spec.md §4.5's "Acquires a permit (blocking on
// backpressure)" without blocking the ingestion pipeline's caller.
func (q *Queue) Enqueue(ctx context.Context, feature eventbus.AiFeature, projectID, sessionID string) error {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		select {
		case q.sem <- struct{}{}:
		case <-q.stopCh:
			return
		}
		defer func() { <-q.sem }()
		q.runWithRetries(feature, projectID, sessionID)
	}()
	return nil
}

// Stop waits for in-flight tasks to finish (or be killed by their own
// timeouts) and prevents new ones from acquiring a permit.
func (q *Queue) Stop() {
	close(q.stopCh)
	q.wg.Wait()
}

func (q *Queue) runWithRetries(feature eventbus.AiFeature, projectID, sessionID string) {
	backoff := InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}

		err := q.runOnce(context.Background(), feature, projectID, sessionID)
		if err == nil {
			return
		}
		lastErr = err
		if isSchemaError(err) {
			break // spec.md §4.5: schema errors do not retry
		}
	}

	ev := eventbus.NewAiEvent(feature, eventbus.PhaseError)
	ev.ProjectID = projectID
	ev.SessionID = sessionID
	ev.Error = lastErr.Error()
	q.bus.PublishAi(ev)
}

func (q *Queue) runOnce(ctx context.Context, feature eventbus.AiFeature, projectID, sessionID string) error {
	startEv := eventbus.NewAiEvent(feature, eventbus.PhaseStart)
	startEv.ProjectID = projectID
	startEv.SessionID = sessionID
	q.bus.PublishAi(startEv)

	messages, err := q.backend.ListMessages(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}

	payload, err := buildPayload(feature, projectID, sessionID, messages)
	if err != nil {
		return err
	}

	taskCtx, cancel := context.WithTimeout(ctx, timeoutFor(feature))
	defer cancel()

	out, err := runCLI(taskCtx, q.cfg.Binary, q.cfg.Args, payload)
	if err != nil {
		return fmt.Errorf("run AI CLI: %w", err)
	}

	resp, err := parseResponse(out)
	if err != nil {
		return err
	}

	if err := q.persist(ctx, feature, projectID, sessionID, resp); err != nil {
		return fmt.Errorf("persist result: %w", err)
	}

	completeEv := eventbus.NewAiEvent(feature, eventbus.PhaseComplete)
	completeEv.ProjectID = projectID
	completeEv.SessionID = sessionID
	q.bus.PublishAi(completeEv)
	return nil
}

func (q *Queue) persist(ctx context.Context, feature eventbus.AiFeature, projectID, sessionID string, resp response) error {
	switch feature {
	case eventbus.FeatureTitle:
		return q.backend.SetSessionTitle(ctx, sessionID, resp.Title)
	case eventbus.FeatureMemory:
		if q.sink == nil {
			return nil
		}
		if _, err := q.sink.ApplyMemories(ctx, projectID, sessionID, resp.Memories); err != nil {
			return err
		}
		return q.backend.MarkMemoriesExtracted(ctx, sessionID, time.Now())
	case eventbus.FeatureSkill:
		if q.sink == nil {
			return nil
		}
		if _, err := q.sink.ApplySkills(ctx, projectID, sessionID, resp.Skills); err != nil {
			return err
		}
		return q.backend.MarkSkillsExtracted(ctx, sessionID, time.Now())
	case eventbus.FeatureMarkers:
		if q.sink == nil {
			return nil
		}
		_, err := q.sink.ApplyMarkers(ctx, sessionID, resp.Markers)
		return err
	default:
		return fmt.Errorf("unhandled AI feature %q", feature)
	}
}
