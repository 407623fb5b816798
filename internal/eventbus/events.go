package eventbus

import "time"

// Subject names the two broadcast channels. Every event is published under
// one of these NATS subjects; subscribers attach to the whole tree
// ("watcher.>" or "ai.>") rather than per-leaf subjects.
const (
	SubjectWatcher = "watcher"
	SubjectAI      = "ai"
)

// WatcherEvent is the sum type of everything the ingestion pipeline reports.
type WatcherEvent struct {
	Kind string `json:"kind"`

	// SessionNew
	ProjectID string `json:"project_id,omitempty"`
	FilePath  string `json:"file_path,omitempty"`
	FileName  string `json:"file_name,omitempty"`

	// SessionChanged
	SessionID string `json:"session_id,omitempty"`
	PrevSize  int64  `json:"prev_size,omitempty"`
	NewSize   int64  `json:"new_size,omitempty"`

	// SessionParsed
	MessageCount int `json:"message_count,omitempty"`

	// WatcherError
	Error string `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

const (
	WatcherKindSessionNew     = "session_new"
	WatcherKindSessionChanged = "session_changed"
	WatcherKindSessionParsed  = "session_parsed"
	WatcherKindError          = "watcher_error"
)

// NewSessionNew builds a SessionNew WatcherEvent.
func NewSessionNew(projectID, filePath, fileName string) WatcherEvent {
	return WatcherEvent{Kind: WatcherKindSessionNew, ProjectID: projectID, FilePath: filePath, FileName: fileName, Timestamp: time.Now()}
}

// NewSessionChanged builds a SessionChanged WatcherEvent.
func NewSessionChanged(sessionID, filePath string, prevSize, newSize int64) WatcherEvent {
	return WatcherEvent{Kind: WatcherKindSessionChanged, SessionID: sessionID, FilePath: filePath, PrevSize: prevSize, NewSize: newSize, Timestamp: time.Now()}
}

// NewSessionParsed builds a SessionParsed WatcherEvent.
func NewSessionParsed(sessionID string, messageCount int) WatcherEvent {
	return WatcherEvent{Kind: WatcherKindSessionParsed, SessionID: sessionID, MessageCount: messageCount, Timestamp: time.Now()}
}

// NewWatcherError builds a WatcherError WatcherEvent.
func NewWatcherError(filePath string, err error) WatcherEvent {
	return WatcherEvent{Kind: WatcherKindError, FilePath: filePath, Error: err.Error(), Timestamp: time.Now()}
}

// AiFeature names which AI-backed task a given AiEvent describes.
type AiFeature string

const (
	FeatureTitle     AiFeature = "title"
	FeatureMemory    AiFeature = "memory"
	FeatureSkill     AiFeature = "skill"
	FeatureMarkers   AiFeature = "markers"
	FeatureRanking   AiFeature = "ranking"
	FeatureScheduler AiFeature = "scheduler"
)

// AiPhase names the lifecycle stage of a feature's task.
type AiPhase string

const (
	PhaseStart    AiPhase = "start"
	PhaseComplete AiPhase = "complete"
	PhaseError    AiPhase = "error"
)

// AiEvent is the sum type emitted by the AI task queue, knowledge subsystem
// ranking sweep, and scheduler.
type AiEvent struct {
	Feature AiFeature `json:"feature"`
	Phase   AiPhase   `json:"phase"`

	ProjectID string `json:"project_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// Ranking:Complete payload
	Promoted int `json:"promoted,omitempty"`
	Demoted  int `json:"demoted,omitempty"`
	Removed  int `json:"removed,omitempty"`

	// Scheduler task name, when Feature == FeatureScheduler
	TaskName string `json:"task_name,omitempty"`

	Error string `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NewAiEvent builds an AiEvent with the timestamp stamped at call time.
func NewAiEvent(feature AiFeature, phase AiPhase) AiEvent {
	return AiEvent{Feature: feature, Phase: phase, Timestamp: time.Now()}
}
