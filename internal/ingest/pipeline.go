// Package ingest watches configured filesystem roots for growing JSONL
// transcripts and drives them through the incremental parse algorithm
// (spec.md §4.4): debounce, per-file serialized dispatch, byte-offset
// resume, storage update, eventbus broadcast, conditional AI enqueue.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yocore/yocore/internal/config"
	"github.com/yocore/yocore/internal/eventbus"
	"github.com/yocore/yocore/internal/parser"
	"github.com/yocore/yocore/internal/storage"
)

// DebounceWindow is the default coalescing window for filesystem events
// (spec.md §4.4).
const DebounceWindow = 200 * time.Millisecond

// EphemeralTitleThreshold is the message count an ephemeral session must
// reach before title generation may be enqueued for it (spec.md §4.4 step
// 8: "only after a threshold of messages").
const EphemeralTitleThreshold = 5

// TaskEnqueuer is the AI task queue's inbound contract, satisfied by
// internal/aiqueue.Queue. Kept as an interface here so internal/ingest
// does not need to import internal/aiqueue directly.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, feature eventbus.AiFeature, projectID, sessionID string) error
}

// Pipeline owns the watcher, debouncer, dispatch pool, and parse algorithm.
type Pipeline struct {
	cfg      *config.Config
	registry *parser.Registry
	backend  storage.Backend
	bus      *eventbus.Bus
	enqueuer TaskEnqueuer

	watcher    *fsnotify.Watcher
	debouncer  *coalescingDebouncer
	fileLocks  *fileLockRegistry
	workCh     chan string
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// New constructs a Pipeline. enqueuer may be nil, in which case step 8
// (AI task enqueue) is skipped entirely.
func New(cfg *config.Config, registry *parser.Registry, backend storage.Backend, bus *eventbus.Bus, enqueuer TaskEnqueuer) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		registry:  registry,
		backend:   backend,
		bus:       bus,
		enqueuer:  enqueuer,
		debouncer: newCoalescingDebouncer(DebounceWindow),
		fileLocks: newFileLockRegistry(),
		workCh:    make(chan string, 256),
		stopCh:    make(chan struct{}),
	}
}

// Start begins watching every enabled root in cfg.Watch and launches the
// dispatch worker pool. Calling Start twice is an error.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.watcher != nil {
		return fmt.Errorf("pipeline already started")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	p.watcher = w

	for _, root := range p.cfg.Watch {
		if !root.Enabled {
			continue
		}
		if err := addRecursive(w, root.Path); err != nil {
			return fmt.Errorf("watch root %s: %w", root.Path, err)
		}
	}

	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.dispatchLoop(ctx)
	}

	p.wg.Add(1)
	go p.watchLoop(ctx)

	return nil
}

// Stop shuts down the watcher, debouncer, and dispatch pool.
func (p *Pipeline) Stop() error {
	close(p.stopCh)
	p.debouncer.Stop()
	var err error
	if p.watcher != nil {
		err = p.watcher.Close()
	}
	p.wg.Wait()
	return err
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func (p *Pipeline) watchLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case ev, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if !isRelevant(ev) {
				continue
			}
			path := ev.Name
			p.debouncer.Trigger(path, func() {
				select {
				case p.workCh <- path:
				case <-p.stopCh:
				}
			})
		case watchErr, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.bus.PublishWatcher(eventbus.NewWatcherError("", watchErr))
		}
	}
}

func isRelevant(ev fsnotify.Event) bool {
	return ev.Op&(fsnotify.Write|fsnotify.Create) != 0
}

func (p *Pipeline) dispatchLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case path := <-p.workCh:
			p.processOne(ctx, path)
		}
	}
}

// processOne serializes same-path work via fileLocks, then runs the
// 8-step per-file algorithm.
func (p *Pipeline) processOne(ctx context.Context, path string) {
	release := p.fileLocks.Acquire(path)
	defer release()

	if err := p.processFile(ctx, path); err != nil {
		p.bus.PublishWatcher(eventbus.NewWatcherError(path, err))
	}
}

func (p *Pipeline) processFile(ctx context.Context, path string) error {
	// Step 1: resolve project boundary.
	project, err := resolveProject(ctx, p.backend, p.cfg.Watch, path)
	if err != nil {
		return fmt.Errorf("resolve project: %w", err)
	}

	parserName := parserForPath(p.cfg.Watch, path)
	par, err := p.registry.Get(string(parserName))
	if err != nil {
		return fmt.Errorf("lookup parser: %w", err)
	}

	// Step 2: find or create the session row.
	sess, err := p.backend.FindOrCreateSession(ctx, project.ID, path, toStorageParser(parserName))
	if err != nil {
		return fmt.Errorf("find or create session: %w", err)
	}

	// Step 3: compare sizes.
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	prevSize := sess.FileSize
	size := info.Size()

	switch {
	case size < prevSize:
		if err := p.fullParse(ctx, par, sess, path, size); err != nil {
			return err
		}
	case size > prevSize:
		if err := p.incrementalParse(ctx, par, sess, path, prevSize, size); err != nil {
			return err
		}
	default:
		return nil // step 6: no-op
	}

	// Step 7: broadcast.
	p.bus.PublishWatcher(eventbus.NewSessionChanged(sess.ID, path, prevSize, size))

	updated, err := p.backend.GetSession(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("reload session: %w", err)
	}
	p.bus.PublishWatcher(eventbus.NewSessionParsed(sess.ID, updated.MessageCount))

	// Step 8: conditional AI enqueue.
	p.maybeEnqueueAI(ctx, project.ID, updated)
	return nil
}

// fullParse handles truncation recovery: parse from offset 0 with a zero
// ResumePoint and replace the session's messages wholesale.
func (p *Pipeline) fullParse(ctx context.Context, par parser.Parser, sess storage.Session, path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	section := io.NewSectionReader(f, 0, size)
	result, err := par.Parse(section, parser.ResumePoint{})
	if err != nil {
		return fmt.Errorf("full parse: %w", err)
	}

	msgs := toStorageMessages(sess.ID, result.Messages)
	return p.backend.ReplaceSessionMessages(ctx, sess.ID, msgs, size)
}

// incrementalParse resumes from prevSize and appends only the newly
// written bytes, numbered continuing from the session's max sequence.
func (p *Pipeline) incrementalParse(ctx context.Context, par parser.Parser, sess storage.Session, path string, prevSize, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	section := io.NewSectionReader(f, prevSize, size-prevSize)
	resume := parser.ResumePoint{ByteOffset: prevSize, MaxSequence: sess.MaxSequence}
	result, err := par.Parse(section, resume)
	if err != nil {
		return fmt.Errorf("incremental parse: %w", err)
	}
	if len(result.Messages) == 0 {
		return nil
	}

	msgs := toStorageMessages(sess.ID, result.Messages)
	return p.backend.AppendSessionMessages(ctx, sess.ID, msgs, size)
}

func (p *Pipeline) maybeEnqueueAI(ctx context.Context, projectID string, sess storage.Session) {
	if p.enqueuer == nil {
		return
	}
	ai := p.cfg.AI

	if p.backend.Mode() == "ephemeral" {
		if ai.TitleGeneration && sess.MessageCount >= EphemeralTitleThreshold && sess.Title == "" {
			_ = p.enqueuer.Enqueue(ctx, eventbus.FeatureTitle, projectID, sess.ID)
		}
		return
	}

	if ai.TitleGeneration && sess.Title == "" {
		_ = p.enqueuer.Enqueue(ctx, eventbus.FeatureTitle, projectID, sess.ID)
	}
	if ai.MemoryExtraction && sess.MemoriesExtractedAt == nil {
		_ = p.enqueuer.Enqueue(ctx, eventbus.FeatureMemory, projectID, sess.ID)
	}
	if ai.SkillsDiscovery && sess.SkillsExtractedAt == nil {
		_ = p.enqueuer.Enqueue(ctx, eventbus.FeatureSkill, projectID, sess.ID)
	}
	if ai.MarkerDetection {
		_ = p.enqueuer.Enqueue(ctx, eventbus.FeatureMarkers, projectID, sess.ID)
	}
}

func parserForPath(roots []config.WatchRoot, path string) config.ParserName {
	root := matchingRootConfig(roots, path)
	if root != nil {
		return root.Parser
	}
	return config.ParserClaudeCode
}

func matchingRootConfig(roots []config.WatchRoot, path string) *config.WatchRoot {
	var best *config.WatchRoot
	for i := range roots {
		r := &roots[i]
		if !r.Enabled {
			continue
		}
		rel, err := filepath.Rel(r.Path, path)
		if err != nil || len(rel) >= 2 && rel[:2] == ".." {
			continue
		}
		if best == nil || len(r.Path) > len(best.Path) {
			best = r
		}
	}
	return best
}

func toStorageParser(p config.ParserName) storage.ParserName {
	return storage.ParserName(p)
}

func toStorageMessages(sessionID string, parsed []parser.ParsedMessage) []storage.Message {
	msgs := make([]storage.Message, 0, len(parsed))
	for _, m := range parsed {
		msgs = append(msgs, storage.Message{
			SessionID:      sessionID,
			SequenceNum:    m.SequenceNum,
			Role:           storage.MessageRole(m.Role),
			ContentPreview: m.ContentPreview,
			SearchContent:  m.SearchContent,
			HasCode:        m.HasCode,
			HasError:       m.HasError,
			ToolName:       m.ToolName,
			ByteOffset:     m.ByteOffset,
			ByteLength:     m.ByteLength,
			Tokens:         m.Tokens,
			Model:          m.Model,
			Timestamp:      timestampOrNow(m.TimestampUnix),
		})
	}
	return msgs
}

func timestampOrNow(unix int64) time.Time {
	if unix == 0 {
		return time.Now()
	}
	return time.Unix(unix, 0)
}
