// Package ephemeral implements the in-memory storage.Backend variant:
// bounded session windows with LRU eviction, no disk persistence. Grounded
// on the teacher's Spawner (internal/aider/spawner.go): a
// map[string]*Agent guarded by sync.RWMutex, generalized here from
// "agent process" to "session", plus a doubly-linked LRU list (the
// teacher's monitorAgents reaping loop becomes eviction-on-insert instead
// of a periodic sweep, since ephemeral bounds are enforced synchronously).
package ephemeral

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/yocore/yocore/internal/ids"
	"github.com/yocore/yocore/internal/storage"
)

// Config bounds the ephemeral backend, mirroring config.EphemeralConfig.
type Config struct {
	MaxSessions           int
	MaxMessagesPerSession int
}

type sessionEntry struct {
	session    storage.Session
	ring       []storage.Message // fixed-size window from full parses
	ringCount  int
	growthTail []storage.Message // unbounded incremental-append tail
	elem       *list.Element     // LRU list element, value is sessionID
}

// Store implements storage.Backend entirely in memory.
type Store struct {
	cfg Config

	mu             sync.RWMutex
	projectsByID   map[string]*storage.Project
	projectsByPath map[string]*storage.Project

	sessions       map[string]*sessionEntry
	sessionsByPath map[string]string // filePath -> sessionID
	lru            *list.List        // front = most recently used

	memMu         sync.RWMutex
	memories      map[int64]*storage.Memory
	memEmbeddings map[int64][]float32
	nextMemID     int64

	skillMu         sync.RWMutex
	skills          map[int64]*storage.Skill
	skillEmbeddings map[int64][]float32
	nextSkillID     int64

	markerMu    sync.RWMutex
	markers     map[int64]*storage.Marker
	nextMarkerID int64

	ctxMu    sync.RWMutex
	contexts map[string]storage.SessionContext

	metaOnce sync.Once
	meta     storage.InstanceMetadata
}

var _ storage.Backend = (*Store)(nil)

// New constructs an ephemeral backend bounded by cfg.
func New(cfg Config) *Store {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 100
	}
	if cfg.MaxMessagesPerSession <= 0 {
		cfg.MaxMessagesPerSession = 50
	}
	return &Store{
		cfg:            cfg,
		projectsByID:   make(map[string]*storage.Project),
		projectsByPath: make(map[string]*storage.Project),
		sessions:       make(map[string]*sessionEntry),
		sessionsByPath: make(map[string]string),
		lru:            list.New(),
		memories:       make(map[int64]*storage.Memory),
		skills:         make(map[int64]*storage.Skill),
		markers:        make(map[int64]*storage.Marker),
		contexts:       make(map[string]storage.SessionContext),
	}
}

// Close is a no-op: nothing to flush, nothing persisted.
func (s *Store) Close() error { return nil }

// Mode reports the active storage.Backend variant for the /health payload.
func (s *Store) Mode() string { return "ephemeral" }

// UpsertProject creates or returns the in-memory project for folderPath.
func (s *Store) UpsertProject(ctx context.Context, folderPath, name string) (storage.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.projectsByPath[folderPath]; ok {
		return *p, nil
	}

	now := time.Now()
	p := &storage.Project{
		ID:         ids.New(),
		Name:       name,
		FolderPath: folderPath,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.projectsByID[p.ID] = p
	s.projectsByPath[folderPath] = p
	return *p, nil
}

// ListProjects enumerates all projects.
func (s *Store) ListProjects(ctx context.Context) ([]storage.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.Project, 0, len(s.projectsByID))
	for _, p := range s.projectsByID {
		out = append(out, *p)
	}
	return out, nil
}

// FindOrCreateSession finds the session for filePath or creates it,
// evicting the least-recently-used session if this insert would exceed
// MaxSessions (spec.md §4.2's "sessions tracked in an LRU").
func (s *Store) FindOrCreateSession(ctx context.Context, projectID, filePath string, parser storage.ParserName) (storage.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID, ok := s.sessionsByPath[filePath]; ok {
		entry := s.sessions[sessionID]
		s.lru.MoveToFront(entry.elem)
		return entry.session, nil
	}

	if len(s.sessions) >= s.cfg.MaxSessions {
		s.evictLRULocked()
	}

	now := time.Now()
	sess := storage.Session{
		ID:         ids.New(),
		ProjectID:  projectID,
		FilePath:   filePath,
		ParserName: parser,
		CreatedAt:  now,
		IndexedAt:  now,
	}
	entry := &sessionEntry{
		session: sess,
		ring:    make([]storage.Message, s.cfg.MaxMessagesPerSession),
	}
	entry.elem = s.lru.PushFront(sess.ID)
	s.sessions[sess.ID] = entry
	s.sessionsByPath[filePath] = sess.ID
	return sess, nil
}

// evictLRULocked drops the least-recently-used session. Caller must hold s.mu.
func (s *Store) evictLRULocked() {
	back := s.lru.Back()
	if back == nil {
		return
	}
	sessionID := back.Value.(string)
	if entry, ok := s.sessions[sessionID]; ok {
		delete(s.sessionsByPath, entry.session.FilePath)
	}
	delete(s.sessions, sessionID)
	s.lru.Remove(back)
}

func (s *Store) touchLocked(sessionID string) *sessionEntry {
	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	s.lru.MoveToFront(entry.elem)
	return entry
}

// GetSession fetches a session by ID, touching its LRU recency.
func (s *Store) GetSession(ctx context.Context, sessionID string) (storage.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.touchLocked(sessionID)
	if entry == nil {
		return storage.Session{}, storage.ErrNotFound
	}
	return entry.session, nil
}

// ReplaceSessionMessages resets the ring buffer to hold up to
// MaxMessagesPerSession of the most recent messages (full parses populate
// only the ring, per spec.md §4.2), clears the growth tail, and updates
// counters.
func (s *Store) ReplaceSessionMessages(ctx context.Context, sessionID string, messages []storage.Message, fileSize int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.touchLocked(sessionID)
	if entry == nil {
		return storage.ErrNotFound
	}

	cap := s.cfg.MaxMessagesPerSession
	entry.ring = make([]storage.Message, cap)
	entry.ringCount = 0
	entry.growthTail = nil

	start := 0
	if len(messages) > cap {
		start = len(messages) - cap
	}
	maxSeq := 0
	for _, m := range messages[start:] {
		entry.ring[entry.ringCount%cap] = m
		entry.ringCount++
	}
	for _, m := range messages {
		if m.SequenceNum > maxSeq {
			maxSeq = m.SequenceNum
		}
	}
	if entry.ringCount > cap {
		entry.ringCount = cap
	}

	entry.session.MessageCount = len(messages)
	entry.session.FileSize = fileSize
	entry.session.MaxSequence = maxSeq
	entry.session.IndexedAt = time.Now()
	return nil
}

// AppendSessionMessages appends to the unbounded growth tail (spec.md
// §4.2's explicit ephemeral-backend design: "subsequent incremental
// appends are unbounded").
func (s *Store) AppendSessionMessages(ctx context.Context, sessionID string, messages []storage.Message, fileSize int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.touchLocked(sessionID)
	if entry == nil {
		return storage.ErrNotFound
	}

	maxSeq := entry.session.MaxSequence
	for _, m := range messages {
		entry.growthTail = append(entry.growthTail, m)
		if m.SequenceNum > maxSeq {
			maxSeq = m.SequenceNum
		}
	}

	entry.session.MessageCount += len(messages)
	entry.session.FileSize = fileSize
	entry.session.MaxSequence = maxSeq
	entry.session.IndexedAt = time.Now()
	return nil
}

// SetSessionTitle persists an AI-generated title for a still-resident
// session. A session evicted by LRU pressure before its title task
// completes drops the write and returns storage.ErrNotFound.
func (s *Store) SetSessionTitle(ctx context.Context, sessionID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[sessionID]
	if !ok {
		return storage.ErrNotFound
	}
	entry.session.Title = title
	return nil
}

// MarkMemoriesExtracted records the last memory-extraction run for a
// still-resident session.
func (s *Store) MarkMemoriesExtracted(ctx context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[sessionID]
	if !ok {
		return storage.ErrNotFound
	}
	t := at
	entry.session.MemoriesExtractedAt = &t
	return nil
}

// MarkSkillsExtracted records the last skill-discovery run for a
// still-resident session.
func (s *Store) MarkSkillsExtracted(ctx context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[sessionID]
	if !ok {
		return storage.ErrNotFound
	}
	t := at
	entry.session.SkillsExtractedAt = &t
	return nil
}

// GetSessionBytesWindow reads straight from disk, same as the durable
// backend — content outside the in-memory window is "still reachable
// through get_session_bytes_window from the JSONL file on disk" (spec.md
// §4.2).
func (s *Store) GetSessionBytesWindow(ctx context.Context, sessionID string, byteOffset, byteLength int64) ([]byte, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return readFileWindow(sess.FilePath, byteOffset, byteLength)
}

// ListMessages returns the ring window followed by the growth tail, in
// sequence order.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]storage.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	out := make([]storage.Message, 0, entry.ringCount+len(entry.growthTail))
	cap := len(entry.ring)
	for i := 0; i < entry.ringCount; i++ {
		out = append(out, entry.ring[i%cap])
	}
	out = append(out, entry.growthTail...)
	return out, nil
}
