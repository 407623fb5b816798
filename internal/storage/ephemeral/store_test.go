package ephemeral

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yocore/yocore/internal/storage"
)

func TestSessionEvictionBoundsMaxSessions(t *testing.T) {
	s := New(Config{MaxSessions: 2, MaxMessagesPerSession: 10})
	ctx := context.Background()

	s1, _ := s.FindOrCreateSession(ctx, "proj", "/a.jsonl", storage.ParserClaudeCode)
	_, _ = s.FindOrCreateSession(ctx, "proj", "/b.jsonl", storage.ParserClaudeCode)
	_, _ = s.FindOrCreateSession(ctx, "proj", "/c.jsonl", storage.ParserClaudeCode)

	if len(s.sessions) != 2 {
		t.Fatalf("expected ephemeral backend to hold at most 2 sessions, got %d", len(s.sessions))
	}
	if _, err := s.GetSession(ctx, s1.ID); err == nil {
		t.Fatalf("expected least-recently-used session %s to be evicted", s1.ID)
	}
}

func TestRecentlyUsedSessionSurvivesEviction(t *testing.T) {
	s := New(Config{MaxSessions: 2, MaxMessagesPerSession: 10})
	ctx := context.Background()

	s1, _ := s.FindOrCreateSession(ctx, "proj", "/a.jsonl", storage.ParserClaudeCode)
	_, _ = s.FindOrCreateSession(ctx, "proj", "/b.jsonl", storage.ParserClaudeCode)

	// touch s1 so it's most-recently-used before a third session is created.
	if _, err := s.GetSession(ctx, s1.ID); err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	_, _ = s.FindOrCreateSession(ctx, "proj", "/c.jsonl", storage.ParserClaudeCode)

	if _, err := s.GetSession(ctx, s1.ID); err != nil {
		t.Fatalf("expected recently-touched session to survive eviction, got: %v", err)
	}
}

func TestRingBufferBoundedGrowthTailUnbounded(t *testing.T) {
	s := New(Config{MaxSessions: 10, MaxMessagesPerSession: 3})
	ctx := context.Background()

	sess, _ := s.FindOrCreateSession(ctx, "proj", "/a.jsonl", storage.ParserClaudeCode)

	full := make([]storage.Message, 0, 5)
	for i := 1; i <= 5; i++ {
		full = append(full, storage.Message{SessionID: sess.ID, SequenceNum: i, Timestamp: time.Now()})
	}
	if err := s.ReplaceSessionMessages(ctx, sess.ID, full, 500); err != nil {
		t.Fatalf("ReplaceSessionMessages failed: %v", err)
	}

	msgs, err := s.ListMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected ring buffer bounded to MaxMessagesPerSession=3 after full parse, got %d", len(msgs))
	}

	tail := []storage.Message{
		{SessionID: sess.ID, SequenceNum: 6, Timestamp: time.Now()},
		{SessionID: sess.ID, SequenceNum: 7, Timestamp: time.Now()},
		{SessionID: sess.ID, SequenceNum: 8, Timestamp: time.Now()},
		{SessionID: sess.ID, SequenceNum: 9, Timestamp: time.Now()},
	}
	if err := s.AppendSessionMessages(ctx, sess.ID, tail, 900); err != nil {
		t.Fatalf("AppendSessionMessages failed: %v", err)
	}

	msgs, err = s.ListMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	// ring (bounded to 3) + unbounded growth tail (4 more) = 7
	if len(msgs) != 7 {
		t.Fatalf("expected growth tail to be unbounded (3 ring + 4 tail = 7), got %d", len(msgs))
	}
}

func TestSearchOperationsReturnUnsupportedSentinel(t *testing.T) {
	s := New(Config{MaxSessions: 10, MaxMessagesPerSession: 10})
	ctx := context.Background()

	if _, err := s.FtsSearchMemories(ctx, "query", storage.MemoryFilter{}); !errors.Is(err, storage.ErrUnsupportedInEphemeralMode) {
		t.Errorf("expected ErrUnsupportedInEphemeralMode from FtsSearchMemories, got %v", err)
	}
	if _, err := s.VectorSearchMemories(ctx, make([]float32, 384), storage.MemoryFilter{}, 10); !errors.Is(err, storage.ErrUnsupportedInEphemeralMode) {
		t.Errorf("expected ErrUnsupportedInEphemeralMode from VectorSearchMemories, got %v", err)
	}
}

func TestBasicMemoryCRUDWorksWithoutIndex(t *testing.T) {
	s := New(Config{MaxSessions: 10, MaxMessagesPerSession: 10})
	ctx := context.Background()

	id, err := s.InsertMemory(ctx, storage.Memory{ProjectID: "p1", MemoryType: storage.MemoryFact, Title: "t", Content: "c", Confidence: 0.9})
	if err != nil {
		t.Fatalf("InsertMemory failed: %v", err)
	}

	list, err := s.ListMemories(ctx, storage.MemoryFilter{ProjectID: "p1"})
	if err != nil {
		t.Fatalf("ListMemories failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("expected inserted memory to be listed, got %+v", list)
	}

	if err := s.UpdateMemoryState(ctx, id, storage.StateRemoved); err != nil {
		t.Fatalf("UpdateMemoryState failed: %v", err)
	}
	list, err = s.ListMemories(ctx, storage.MemoryFilter{ProjectID: "p1"})
	if err != nil {
		t.Fatalf("ListMemories failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected removed memory to be excluded, got %+v", list)
	}
}
