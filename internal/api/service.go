package api

import (
	"context"
	"fmt"

	"github.com/yocore/yocore/internal/embed"
	"github.com/yocore/yocore/internal/knowledge"
	"github.com/yocore/yocore/internal/storage"
)

// Service is the single entry point an HTTP router's handlers call into.
// Reads go straight to storage.Backend (backed by the reader connection in
// sqlite mode); mutating knowledge calls — validate, soft-remove — go
// through the same Backend, which in sqlite mode always routes writes
// through its single writer connection (spec.md §4.8: "All mutating
// knowledge operations delegate to the storage writer connection; all
// reads delegate to the reader").
type Service struct {
	Backend storage.Backend
	Embed   *embed.Engine
}

// NewService constructs a Service. Embed may be nil when the embedding
// engine is disabled; SearchMemories then returns an "embedding engine
// disabled" error instead of attempting vector search.
func NewService(backend storage.Backend, engine *embed.Engine) *Service {
	return &Service{Backend: backend, Embed: engine}
}

// SearchMemories runs the hybrid search pipeline (spec.md §4.6.5).
func (s *Service) SearchMemories(ctx context.Context, query string, filter storage.MemoryFilter, limit int) ([]storage.ScoredMemory, error) {
	if s.Embed == nil {
		return nil, fmt.Errorf("search memories: embedding engine disabled")
	}
	return knowledge.SearchMemories(ctx, s.Backend, s.Embed, query, filter, limit)
}

// ListMemories is a plain read, for routes that do not need ranked search.
func (s *Service) ListMemories(ctx context.Context, filter storage.MemoryFilter) ([]storage.Memory, error) {
	return s.Backend.ListMemories(ctx, filter)
}

// GetSessionContext loads a session's lifeboat (spec.md §3's SessionContext
// entity), the counterpart to the MCP session_context tool.
func (s *Service) GetSessionContext(ctx context.Context, sessionID string) (storage.SessionContext, error) {
	return s.Backend.GetSessionContext(ctx, sessionID)
}

// SaveLifeboat persists a SessionContext (spec.md §3's SessionContext /
// "lifeboat" entity), the counterpart to the MCP save_lifeboat tool.
func (s *Service) SaveLifeboat(ctx context.Context, sc storage.SessionContext) error {
	return s.Backend.SaveSessionContext(ctx, sc)
}

// RecentMemories lists the most recently extracted memories for a project,
// newest first, for the MCP recent_memories tool and an equivalent HTTP
// route.
func (s *Service) RecentMemories(ctx context.Context, projectID string, limit int) ([]storage.Memory, error) {
	mems, err := s.Backend.ListMemories(ctx, storage.MemoryFilter{ProjectID: projectID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list recent memories: %w", err)
	}
	return mems, nil
}

// ProjectContext assembles a project's accumulated knowledge: its memories
// and skills, for the MCP project_context tool.
type ProjectContext struct {
	Project  storage.Project
	Memories []storage.Memory
	Skills   []storage.Skill
}

func (s *Service) ProjectContext(ctx context.Context, projectID string) (ProjectContext, error) {
	projects, err := s.Backend.ListProjects(ctx)
	if err != nil {
		return ProjectContext{}, fmt.Errorf("list projects: %w", err)
	}
	var proj storage.Project
	for _, p := range projects {
		if p.ID == projectID {
			proj = p
			break
		}
	}

	mems, err := s.Backend.ListMemories(ctx, storage.MemoryFilter{ProjectID: projectID})
	if err != nil {
		return ProjectContext{}, fmt.Errorf("list project memories: %w", err)
	}
	skills, err := s.Backend.ListSkills(ctx, storage.SkillFilter{ProjectID: projectID})
	if err != nil {
		return ProjectContext{}, fmt.Errorf("list project skills: %w", err)
	}
	return ProjectContext{Project: proj, Memories: mems, Skills: skills}, nil
}
