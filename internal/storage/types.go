// Package storage defines the uniform session-store capability (spec.md
// §4.2) shared by the durable (sqlite) and ephemeral (in-memory) backends.
// It generalizes the teacher's split OperationalDB/LearningDB interfaces
// (internal/memory/interfaces.go) into the single Project/Session/Message/
// Memory/Skill/Marker domain this spec requires, per design notes §9's
// "two-variant sum type; no hidden dynamic dispatch needed."
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupportedInEphemeralMode is returned by operations whose semantics
// require the full-text or vector index when the active backend is the
// ephemeral, in-memory one (spec.md §4.2, §9 Open Questions — this repo
// picks the explicit-signal option over a silent empty-list response).
var ErrUnsupportedInEphemeralMode = errors.New("storage: operation not supported in ephemeral mode")

// ErrNotFound is returned when a lookup by ID or unique key finds nothing.
var ErrNotFound = errors.New("storage: not found")

// MessageRole mirrors spec.md §3's Message.role enum.
type MessageRole string

const (
	RoleHuman     MessageRole = "human"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// MemoryType mirrors spec.md §3's Memory.memory_type enum.
type MemoryType string

const (
	MemoryDecision   MemoryType = "decision"
	MemoryFact       MemoryType = "fact"
	MemoryPreference MemoryType = "preference"
	MemoryContext    MemoryType = "context"
	MemoryTask       MemoryType = "task"
)

// EntryState mirrors spec.md §3's Memory.state (and, per SPEC_FULL.md §4's
// supplemented Skill.state field, Skill's lifecycle too).
type EntryState string

const (
	StateNew     EntryState = "new"
	StateLow     EntryState = "low"
	StateHigh    EntryState = "high"
	StateRemoved EntryState = "removed"
)

// MarkerType mirrors spec.md §3's Marker.marker_type enum.
type MarkerType string

const (
	MarkerBreakthrough MarkerType = "breakthrough"
	MarkerShip         MarkerType = "ship"
	MarkerDecision     MarkerType = "decision"
	MarkerBug          MarkerType = "bug"
	MarkerStuck        MarkerType = "stuck"
)

// ParserName identifies which parser produced a session's messages, kept on
// Session so the ingestion pipeline can re-dispatch on restart without
// re-sniffing the file (SPEC_FULL.md §4 supplemented field).
type ParserName string

const (
	ParserClaudeCode ParserName = "claude_code"
	ParserOpenClaw   ParserName = "openclaw"
)

// Project is spec.md §3's Project entity.
type Project struct {
	ID         string
	Name       string
	FolderPath string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Session is spec.md §3's Session entity, plus the supplemented ParserName
// field.
type Session struct {
	ID                  string
	ProjectID           string
	FilePath            string
	Title               string
	AITool              string
	ParserName          ParserName
	MessageCount        int
	FileSize            int64
	MaxSequence         int
	MemoriesExtractedAt *time.Time
	SkillsExtractedAt   *time.Time
	CreatedAt           time.Time
	IndexedAt           time.Time
}

// Message is spec.md §3's Message entity, keyed by (SessionID, SequenceNum).
type Message struct {
	SessionID     string
	SequenceNum   int
	Role          MessageRole
	ContentPreview string
	SearchContent string
	HasCode       bool
	HasError      bool
	ToolName      string
	ByteOffset    int64
	ByteLength    int64
	Tokens        int
	Model         string
	Timestamp     time.Time
}

// Memory is spec.md §3's Memory entity, plus the supplemented
// LastAccessedAt field the ranking state machine's days_since_access term
// needs (SPEC_FULL.md §4).
type Memory struct {
	ID             int64
	ProjectID      string
	SessionID      string
	MemoryType     MemoryType
	Title          string
	Content        string
	Context        string
	Tags           []string
	Confidence     float64
	IsValidated    bool
	State          EntryState
	AccessCount    int
	ExtractedAt    time.Time
	LastAccessedAt time.Time
}

// Skill is spec.md §3's Skill entity, plus the supplemented State field.
type Skill struct {
	ID          int64
	ProjectID   string
	SessionID   string
	Name        string
	Description string
	Steps       []string
	Confidence  float64
	State       EntryState
	ExtractedAt time.Time
}

// Marker is spec.md §3's Marker entity.
type Marker struct {
	ID          int64
	SessionID   string
	EventIndex  int
	MarkerType  MarkerType
	Label       string
	Description string
}

// SessionContext is spec.md §3's SessionContext (lifeboat) entity.
type SessionContext struct {
	SessionID        string
	ProjectID        string
	ActiveTask       string
	RecentDecisions  []string
	OpenQuestions    []string
	ResumeContext    string
	Source           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// InstanceMetadata is spec.md §3's singleton InstanceMetadata entity.
type InstanceMetadata struct {
	UUID         string
	InstanceName string
	CreatedAt    time.Time
}

// SessionFilter narrows find/list session queries.
type SessionFilter struct {
	ProjectID string
}

// MemoryFilter narrows list_memories / search results, applied before
// fusion per spec.md §4.6.5.
type MemoryFilter struct {
	ProjectID   string
	MemoryTypes []MemoryType
	Tags        []string
	States      []EntryState
	Limit       int
	Offset      int
}

// SkillFilter mirrors MemoryFilter for skills.
type SkillFilter struct {
	ProjectID string
	States    []EntryState
	Limit     int
	Offset    int
}

// ScoredMemory pairs a Memory with a retrieval-engine score (BM25, cosine,
// or RRF depending on call site).
type ScoredMemory struct {
	Memory Memory
	Score  float64
}

// ScoredSkill mirrors ScoredMemory for skills.
type ScoredSkill struct {
	Skill Skill
	Score float64
}

// Backend is the uniform capability surface spec.md §4.2 requires,
// dispatched at startup to exactly one of the sqlite or ephemeral
// implementations. Every method mirrors the teacher's interfaces.go
// OperationalDB/LearningDB shape, generalized onto this spec's domain.
type Backend interface {
	// Lifecycle
	Close() error
	Mode() string // "db" or "ephemeral", for the /health payload

	// Projects & sessions
	UpsertProject(ctx context.Context, folderPath, name string) (Project, error)
	FindOrCreateSession(ctx context.Context, projectID, filePath string, parser ParserName) (Session, error)
	GetSession(ctx context.Context, sessionID string) (Session, error)
	ReplaceSessionMessages(ctx context.Context, sessionID string, messages []Message, fileSize int64) error
	AppendSessionMessages(ctx context.Context, sessionID string, messages []Message, fileSize int64) error
	GetSessionBytesWindow(ctx context.Context, sessionID string, byteOffset, byteLength int64) ([]byte, error)
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)
	SetSessionTitle(ctx context.Context, sessionID, title string) error
	MarkMemoriesExtracted(ctx context.Context, sessionID string, at time.Time) error
	MarkSkillsExtracted(ctx context.Context, sessionID string, at time.Time) error

	// Memories
	InsertMemory(ctx context.Context, m Memory) (int64, error)
	UpdateMemoryState(ctx context.Context, id int64, state EntryState) error
	TouchMemoryAccess(ctx context.Context, id int64, when time.Time) error
	GetMemory(ctx context.Context, id int64) (Memory, error)
	ListMemories(ctx context.Context, filter MemoryFilter) ([]Memory, error)
	SetMemoryEmbedding(ctx context.Context, memoryID int64, vector []float32) error
	GetMemoryEmbedding(ctx context.Context, memoryID int64) ([]float32, error)
	ListMemoriesMissingEmbedding(ctx context.Context, projectID string, limit int) ([]Memory, error)

	// Skills
	InsertSkill(ctx context.Context, s Skill) (int64, error)
	UpdateSkillState(ctx context.Context, id int64, state EntryState) error
	GetSkill(ctx context.Context, id int64) (Skill, error)
	ListSkills(ctx context.Context, filter SkillFilter) ([]Skill, error)
	SetSkillEmbedding(ctx context.Context, skillID int64, vector []float32) error
	GetSkillEmbedding(ctx context.Context, skillID int64) ([]float32, error)

	// Markers
	InsertMarker(ctx context.Context, m Marker) (int64, error)
	DeleteMarker(ctx context.Context, id int64) error
	ListMarkers(ctx context.Context, sessionID string) ([]Marker, error)

	// Search (keyword + vector; see internal/knowledge for RRF fusion)
	FtsSearchMessages(ctx context.Context, query string, projectID string, limit, offset int) ([]Message, error)
	FtsSearchMemories(ctx context.Context, query string, filter MemoryFilter) ([]ScoredMemory, error)
	FtsSearchSkills(ctx context.Context, query string, filter SkillFilter) ([]ScoredSkill, error)
	VectorSearchMemories(ctx context.Context, query []float32, filter MemoryFilter, topK int) ([]ScoredMemory, error)
	VectorSearchSkills(ctx context.Context, query []float32, filter SkillFilter, topK int) ([]ScoredSkill, error)

	// Lifeboat
	SaveSessionContext(ctx context.Context, sc SessionContext) error
	GetSessionContext(ctx context.Context, sessionID string) (SessionContext, error)

	// Instance metadata
	GetOrCreateInstanceMetadata(ctx context.Context, instanceName string) (InstanceMetadata, error)

	// Project enumeration (scheduler sweeps iterate this)
	ListProjects(ctx context.Context) ([]Project, error)
}
