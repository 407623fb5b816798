// Package mcp defines the stdio JSON-RPC tool set spec.md §4.8 names: a
// small fixed set of tools (search memories, project context, recent
// memories, session context, save lifeboat), each mapping 1:1 to a
// storage/knowledge operation. As with internal/api, this package defines
// the Go function signatures an external JSON-RPC transport calls into; it
// does not implement the JSON-RPC framing itself (spec.md §1's scope
// boundary names "individual REST/MCP endpoint boilerplate" out of scope).
package mcp

import (
	"context"
	"fmt"

	"github.com/yocore/yocore/internal/api"
	"github.com/yocore/yocore/internal/storage"
)

// ToolSet wraps an api.Service with the five MCP tool entry points.
type ToolSet struct {
	svc *api.Service
}

// NewToolSet constructs a ToolSet over the given service.
func NewToolSet(svc *api.Service) *ToolSet {
	return &ToolSet{svc: svc}
}

// SearchMemoriesArgs is the search_memories tool's input.
type SearchMemoriesArgs struct {
	ProjectID   string   `json:"project_id"`
	Query       string   `json:"query"`
	MemoryTypes []string `json:"memory_types,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

// SearchMemories is the search_memories tool: hybrid FTS+vector search
// scoped to a project, filtered by type/tags (spec.md §4.6.5).
func (t *ToolSet) SearchMemories(ctx context.Context, args SearchMemoriesArgs) ([]storage.ScoredMemory, error) {
	filter := storage.MemoryFilter{ProjectID: args.ProjectID, Tags: args.Tags}
	for _, mt := range args.MemoryTypes {
		filter.MemoryTypes = append(filter.MemoryTypes, storage.MemoryType(mt))
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 20
	}
	results, err := t.svc.SearchMemories(ctx, args.Query, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("search_memories: %w", err)
	}
	return results, nil
}

// ProjectContextArgs is the project_context tool's input.
type ProjectContextArgs struct {
	ProjectID string `json:"project_id"`
}

// ProjectContext is the project_context tool: a project's accumulated
// memories and skills.
func (t *ToolSet) ProjectContext(ctx context.Context, args ProjectContextArgs) (api.ProjectContext, error) {
	pc, err := t.svc.ProjectContext(ctx, args.ProjectID)
	if err != nil {
		return api.ProjectContext{}, fmt.Errorf("project_context: %w", err)
	}
	return pc, nil
}

// RecentMemoriesArgs is the recent_memories tool's input.
type RecentMemoriesArgs struct {
	ProjectID string `json:"project_id"`
	Limit     int    `json:"limit,omitempty"`
}

// RecentMemories is the recent_memories tool: a project's most recently
// extracted memories.
func (t *ToolSet) RecentMemories(ctx context.Context, args RecentMemoriesArgs) ([]storage.Memory, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = 20
	}
	mems, err := t.svc.RecentMemories(ctx, args.ProjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent_memories: %w", err)
	}
	return mems, nil
}

// SessionContextArgs is the session_context tool's input.
type SessionContextArgs struct {
	SessionID string `json:"session_id"`
}

// SessionContext is the session_context tool: a session's saved lifeboat,
// if any.
func (t *ToolSet) SessionContext(ctx context.Context, args SessionContextArgs) (storage.SessionContext, error) {
	sc, err := t.svc.GetSessionContext(ctx, args.SessionID)
	if err != nil {
		return storage.SessionContext{}, fmt.Errorf("session_context: %w", err)
	}
	return sc, nil
}

// SaveLifeboatArgs is the save_lifeboat tool's input, mirroring
// storage.SessionContext's fields the caller is expected to supply.
type SaveLifeboatArgs struct {
	SessionID       string   `json:"session_id"`
	ProjectID       string   `json:"project_id"`
	ActiveTask      string   `json:"active_task"`
	RecentDecisions []string `json:"recent_decisions,omitempty"`
	OpenQuestions   []string `json:"open_questions,omitempty"`
	ResumeContext   string   `json:"resume_context"`
	Source          string   `json:"source"`
}

// SaveLifeboat is the save_lifeboat tool: persist a session's resumable
// context (spec.md §3's SessionContext entity).
func (t *ToolSet) SaveLifeboat(ctx context.Context, args SaveLifeboatArgs) error {
	sc := storage.SessionContext{
		SessionID:       args.SessionID,
		ProjectID:       args.ProjectID,
		ActiveTask:      args.ActiveTask,
		RecentDecisions: args.RecentDecisions,
		OpenQuestions:   args.OpenQuestions,
		ResumeContext:   args.ResumeContext,
		Source:          args.Source,
	}
	if err := t.svc.SaveLifeboat(ctx, sc); err != nil {
		return fmt.Errorf("save_lifeboat: %w", err)
	}
	return nil
}
