// Package scheduler runs the four periodic maintenance sweeps spec.md §4.7
// requires (memory ranking, memory duplicate cleanup, embedding backfill,
// skill duplicate cleanup), each on its own interval and stagger offset.
// Grounded on the teacher's Spawner.monitorAgents ticker loop
// (internal/aider/spawner.go), generalized from one ad-hoc 10s poll to four
// independently-scheduled cron jobs via github.com/robfig/cron/v3, the same
// library beeper-ai-bridge's pkg/cron wraps for its own interval math.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yocore/yocore/internal/config"
	"github.com/yocore/yocore/internal/eventbus"
	"github.com/yocore/yocore/internal/knowledge"
	"github.com/yocore/yocore/internal/storage"
)

// taskName identifies which of the four sweeps a scheduler:start/complete/
// error AiEvent describes.
const (
	taskRanking          = "memory_ranking"
	taskMemoryDuplicates = "memory_duplicate_cleanup"
	taskEmbeddingRefresh = "embedding_backfill"
	taskSkillDuplicates  = "skill_duplicate_cleanup"
)

// perProjectDeadline bounds each project's slice of a sweep (spec.md §4.7:
// "runs under a deadline (60-120s)").
const perProjectDeadline = 90 * time.Second

// Scheduler owns a cron runner and registers the four sweeps against it at
// construction time.
type Scheduler struct {
	cron    *cron.Cron
	backend storage.Backend
	sink    *knowledge.Sink
	bus     *eventbus.Bus
	cfg     config.SchedulerConfig
	ai      config.AIConfig
}

// New constructs a Scheduler and registers all four sweeps. Call Start to
// begin firing them.
func New(cfg config.SchedulerConfig, ai config.AIConfig, backend storage.Backend, sink *knowledge.Sink, bus *eventbus.Bus) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		backend: backend,
		sink:    sink,
		bus:     bus,
		cfg:     cfg,
		ai:      ai,
	}

	if err := s.register(taskRanking, cfg.Ranking.IntervalHours, 7, s.runRankingSweep); err != nil {
		return nil, err
	}
	if err := s.register(taskMemoryDuplicates, cfg.DuplicateCleanup.IntervalHours, 19, s.runMemoryDuplicateSweep); err != nil {
		return nil, err
	}
	if err := s.register(taskEmbeddingRefresh, cfg.EmbeddingRefresh.IntervalHours, 31, s.runEmbeddingBackfillSweep); err != nil {
		return nil, err
	}
	if err := s.register(taskSkillDuplicates, cfg.SkillCleanup.IntervalHours, 43, s.runSkillDuplicateSweep); err != nil {
		return nil, err
	}
	return s, nil
}

// register builds an hourly-interval cron spec with a fixed minute-of-hour
// stagger offset, so the four sweeps never run in the same tick (spec.md
// §4.7: "fire on a staggered offset to avoid coincident load").
func (s *Scheduler) register(name string, intervalHours, staggerMinute int, fn func(context.Context)) error {
	if intervalHours <= 0 {
		intervalHours = 24
	}
	spec := fmt.Sprintf("%d */%d * * *", staggerMinute%60, intervalHours)
	_, err := s.cron.AddFunc(spec, func() { fn(context.Background()) })
	if err != nil {
		return fmt.Errorf("register sweep %s: %w", name, err)
	}
	return nil
}

// Start begins firing registered sweeps in their own goroutines.
func (s *Scheduler) Start() {
	log.Println("[SCHED] starting scheduler")
	s.cron.Start()
}

// Stop waits for any in-flight sweep invocation to return.
func (s *Scheduler) Stop() {
	log.Println("[SCHED] stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) projects(ctx context.Context) []storage.Project {
	projects, err := s.backend.ListProjects(ctx)
	if err != nil {
		log.Printf("[SCHED] failed to list projects: %v", err)
		return nil
	}
	return projects
}

func (s *Scheduler) emit(taskName string, phase eventbus.AiPhase, projectID string, applyFields func(*eventbus.AiEvent)) {
	ev := eventbus.NewAiEvent(eventbus.FeatureScheduler, phase)
	ev.TaskName = taskName
	ev.ProjectID = projectID
	if applyFields != nil {
		applyFields(&ev)
	}
	s.bus.PublishAi(ev)
}

func (s *Scheduler) runRankingSweep(ctx context.Context) {
	if !s.ai.MemoryExtraction {
		return
	}
	for _, proj := range s.projects(ctx) {
		s.emit(taskRanking, eventbus.PhaseStart, proj.ID, nil)
		pctx, cancel := context.WithTimeout(ctx, perProjectDeadline)
		transitioned, err := knowledge.RunRankingSweep(pctx, s.backend, proj.ID, s.cfg.Ranking.BatchSize, time.Now())
		cancel()
		if err != nil {
			log.Printf("[SCHED] ranking sweep failed for project %s: %v", proj.ID, err)
			s.emit(taskRanking, eventbus.PhaseError, proj.ID, func(ev *eventbus.AiEvent) { ev.Error = err.Error() })
			continue
		}
		s.emit(taskRanking, eventbus.PhaseComplete, proj.ID, func(ev *eventbus.AiEvent) { ev.Promoted = transitioned })
	}
}

func (s *Scheduler) runMemoryDuplicateSweep(ctx context.Context) {
	if !s.ai.MemoryExtraction {
		return
	}
	for _, proj := range s.projects(ctx) {
		s.emit(taskMemoryDuplicates, eventbus.PhaseStart, proj.ID, nil)
		pctx, cancel := context.WithTimeout(ctx, perProjectDeadline)
		removed, err := knowledge.CleanupDuplicateMemories(pctx, s.backend, proj.ID, s.cfg.DuplicateCleanup.BatchSize)
		cancel()
		if err != nil {
			log.Printf("[SCHED] memory duplicate cleanup failed for project %s: %v", proj.ID, err)
			s.emit(taskMemoryDuplicates, eventbus.PhaseError, proj.ID, func(ev *eventbus.AiEvent) { ev.Error = err.Error() })
			continue
		}
		s.emit(taskMemoryDuplicates, eventbus.PhaseComplete, proj.ID, func(ev *eventbus.AiEvent) { ev.Removed = removed })
	}
}

func (s *Scheduler) runSkillDuplicateSweep(ctx context.Context) {
	if !s.ai.SkillsDiscovery {
		return
	}
	for _, proj := range s.projects(ctx) {
		s.emit(taskSkillDuplicates, eventbus.PhaseStart, proj.ID, nil)
		pctx, cancel := context.WithTimeout(ctx, perProjectDeadline)
		removed, err := knowledge.CleanupDuplicateSkills(pctx, s.backend, proj.ID, s.cfg.SkillCleanup.BatchSize)
		cancel()
		if err != nil {
			log.Printf("[SCHED] skill duplicate cleanup failed for project %s: %v", proj.ID, err)
			s.emit(taskSkillDuplicates, eventbus.PhaseError, proj.ID, func(ev *eventbus.AiEvent) { ev.Error = err.Error() })
			continue
		}
		s.emit(taskSkillDuplicates, eventbus.PhaseComplete, proj.ID, func(ev *eventbus.AiEvent) { ev.Removed = removed })
	}
}

func (s *Scheduler) runEmbeddingBackfillSweep(ctx context.Context) {
	if s.sink == nil || !s.ai.MemoryExtraction {
		return
	}
	for _, proj := range s.projects(ctx) {
		s.emit(taskEmbeddingRefresh, eventbus.PhaseStart, proj.ID, nil)
		pctx, cancel := context.WithTimeout(ctx, perProjectDeadline)
		done, err := s.sink.BackfillMissingEmbeddings(pctx, proj.ID, s.cfg.EmbeddingRefresh.BatchSize)
		cancel()
		if err != nil {
			log.Printf("[SCHED] embedding backfill failed for project %s: %v", proj.ID, err)
			s.emit(taskEmbeddingRefresh, eventbus.PhaseError, proj.ID, func(ev *eventbus.AiEvent) { ev.Error = err.Error() })
			continue
		}
		s.emit(taskEmbeddingRefresh, eventbus.PhaseComplete, proj.ID, func(ev *eventbus.AiEvent) { ev.Promoted = done })
	}
}
