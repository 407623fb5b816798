package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/yocore/yocore/internal/storage"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertProjectIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p1, err := s.UpsertProject(ctx, "/repo/a", "a")
	if err != nil {
		t.Fatalf("UpsertProject failed: %v", err)
	}
	p2, err := s.UpsertProject(ctx, "/repo/a", "a")
	if err != nil {
		t.Fatalf("UpsertProject (second call) failed: %v", err)
	}
	if p1.ID != p2.ID {
		t.Errorf("expected same project ID on repeat upsert, got %s and %s", p1.ID, p2.ID)
	}
}

func TestReplaceThenAppendSessionMessages(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	proj, err := s.UpsertProject(ctx, "/repo/b", "b")
	if err != nil {
		t.Fatalf("UpsertProject failed: %v", err)
	}
	sess, err := s.FindOrCreateSession(ctx, proj.ID, "/repo/b/s.jsonl", storage.ParserClaudeCode)
	if err != nil {
		t.Fatalf("FindOrCreateSession failed: %v", err)
	}

	msgs := make([]storage.Message, 0, 10)
	for i := 1; i <= 10; i++ {
		msgs = append(msgs, storage.Message{
			SessionID:     sess.ID,
			SequenceNum:   i,
			Role:          storage.RoleHuman,
			SearchContent: "hello world",
			Timestamp:     time.Now(),
		})
	}
	if err := s.ReplaceSessionMessages(ctx, sess.ID, msgs, 2048); err != nil {
		t.Fatalf("ReplaceSessionMessages failed: %v", err)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.MessageCount != 10 || got.FileSize != 2048 || got.MaxSequence != 10 {
		t.Fatalf("unexpected session state after replace: %+v", got)
	}

	more := []storage.Message{
		{SessionID: sess.ID, SequenceNum: 11, Role: storage.RoleAssistant, SearchContent: "more", ByteOffset: 2048, Timestamp: time.Now()},
		{SessionID: sess.ID, SequenceNum: 12, Role: storage.RoleAssistant, SearchContent: "more2", ByteOffset: 2100, Timestamp: time.Now()},
	}
	if err := s.AppendSessionMessages(ctx, sess.ID, more, 3200); err != nil {
		t.Fatalf("AppendSessionMessages failed: %v", err)
	}

	got, err = s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.MessageCount != 12 || got.FileSize != 3200 || got.MaxSequence != 12 {
		t.Fatalf("unexpected session state after append: %+v", got)
	}

	all, err := s.ListMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(all) != 12 {
		t.Fatalf("expected 12 messages, got %d", len(all))
	}
	for i, m := range all {
		if m.SequenceNum != i+1 {
			t.Fatalf("sequence monotonicity violated at index %d: got %d", i, m.SequenceNum)
		}
	}
}

func TestTruncationRecovery(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	proj, _ := s.UpsertProject(ctx, "/repo/c", "c")
	sess, _ := s.FindOrCreateSession(ctx, proj.ID, "/repo/c/s.jsonl", storage.ParserClaudeCode)

	msgs := make([]storage.Message, 0, 10)
	for i := 1; i <= 10; i++ {
		msgs = append(msgs, storage.Message{SessionID: sess.ID, SequenceNum: i, Role: storage.RoleHuman, Timestamp: time.Now()})
	}
	if err := s.ReplaceSessionMessages(ctx, sess.ID, msgs, 2048); err != nil {
		t.Fatalf("initial replace failed: %v", err)
	}

	truncated := make([]storage.Message, 0, 4)
	for i := 1; i <= 4; i++ {
		truncated = append(truncated, storage.Message{SessionID: sess.ID, SequenceNum: i, Role: storage.RoleHuman, Timestamp: time.Now()})
	}
	if err := s.ReplaceSessionMessages(ctx, sess.ID, truncated, 1024); err != nil {
		t.Fatalf("truncation replace failed: %v", err)
	}

	all, err := s.ListMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 messages after truncation, got %d", len(all))
	}
	for _, m := range all {
		if m.SequenceNum > 4 {
			t.Fatalf("found leftover message with sequence_num %d after truncation", m.SequenceNum)
		}
	}
}

func TestMemoryInsertAndListExcludesRemoved(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	proj, _ := s.UpsertProject(ctx, "/repo/d", "d")

	id1, err := s.InsertMemory(ctx, storage.Memory{ProjectID: proj.ID, MemoryType: storage.MemoryFact, Title: "t1", Content: "c1", Confidence: 0.8})
	if err != nil {
		t.Fatalf("InsertMemory failed: %v", err)
	}
	id2, err := s.InsertMemory(ctx, storage.Memory{ProjectID: proj.ID, MemoryType: storage.MemoryFact, Title: "t2", Content: "c2", Confidence: 0.8})
	if err != nil {
		t.Fatalf("InsertMemory failed: %v", err)
	}

	if err := s.UpdateMemoryState(ctx, id2, storage.StateRemoved); err != nil {
		t.Fatalf("UpdateMemoryState failed: %v", err)
	}

	list, err := s.ListMemories(ctx, storage.MemoryFilter{ProjectID: proj.ID})
	if err != nil {
		t.Fatalf("ListMemories failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != id1 {
		t.Fatalf("expected only non-removed memory %d to be listed, got %+v", id1, list)
	}
}

func TestMemoryEmbeddingRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	proj, _ := s.UpsertProject(ctx, "/repo/e", "e")
	id, err := s.InsertMemory(ctx, storage.Memory{ProjectID: proj.ID, MemoryType: storage.MemoryFact, Title: "t", Content: "c", Confidence: 0.9})
	if err != nil {
		t.Fatalf("InsertMemory failed: %v", err)
	}

	vec := make([]float32, 384)
	for i := range vec {
		vec[i] = float32(i) / 384.0
	}
	if err := s.SetMemoryEmbedding(ctx, id, vec); err != nil {
		t.Fatalf("SetMemoryEmbedding failed: %v", err)
	}

	got, err := s.GetMemoryEmbedding(ctx, id)
	if err != nil {
		t.Fatalf("GetMemoryEmbedding failed: %v", err)
	}
	if len(got) != 384 {
		t.Fatalf("expected 384-dim vector, got %d", len(got))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Fatalf("embedding round-trip mismatch at index %d: want %f got %f", i, vec[i], got[i])
		}
	}
}

func TestFtsCoherenceAfterInsertAndRemoval(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	proj, _ := s.UpsertProject(ctx, "/repo/f", "f")
	id, err := s.InsertMemory(ctx, storage.Memory{ProjectID: proj.ID, MemoryType: storage.MemoryFact, Title: "JWT auth", Content: "stateless scales", Confidence: 0.9})
	if err != nil {
		t.Fatalf("InsertMemory failed: %v", err)
	}

	results, err := s.FtsSearchMemories(ctx, "JWT", storage.MemoryFilter{ProjectID: proj.ID})
	if err != nil {
		t.Fatalf("FtsSearchMemories failed: %v", err)
	}
	if len(results) != 1 || results[0].Memory.ID != id {
		t.Fatalf("expected fts hit for inserted memory, got %+v", results)
	}

	if err := s.UpdateMemoryState(ctx, id, storage.StateRemoved); err != nil {
		t.Fatalf("UpdateMemoryState failed: %v", err)
	}

	results, err = s.FtsSearchMemories(ctx, "JWT", storage.MemoryFilter{ProjectID: proj.ID})
	if err != nil {
		t.Fatalf("FtsSearchMemories failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no fts hits for removed memory, got %+v", results)
	}
}

func TestLifeboatRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	proj, _ := s.UpsertProject(ctx, "/repo/g", "g")
	sess, _ := s.FindOrCreateSession(ctx, proj.ID, "/repo/g/s.jsonl", storage.ParserClaudeCode)

	sc := storage.SessionContext{
		SessionID:       sess.ID,
		ProjectID:       proj.ID,
		ActiveTask:      "auth",
		RecentDecisions: []string{"jwt"},
		OpenQuestions:   []string{"refresh"},
	}
	if err := s.SaveSessionContext(ctx, sc); err != nil {
		t.Fatalf("SaveSessionContext failed: %v", err)
	}

	got, err := s.GetSessionContext(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSessionContext failed: %v", err)
	}
	if got.ActiveTask != "auth" || len(got.RecentDecisions) != 1 || got.RecentDecisions[0] != "jwt" {
		t.Fatalf("lifeboat round-trip mismatch: %+v", got)
	}
	if len(got.OpenQuestions) != 1 || got.OpenQuestions[0] != "refresh" {
		t.Fatalf("lifeboat round-trip mismatch: %+v", got)
	}
}

func TestInstanceMetadataStableAcrossCalls(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	m1, err := s.GetOrCreateInstanceMetadata(ctx, "dev-box")
	if err != nil {
		t.Fatalf("GetOrCreateInstanceMetadata failed: %v", err)
	}
	m2, err := s.GetOrCreateInstanceMetadata(ctx, "dev-box")
	if err != nil {
		t.Fatalf("GetOrCreateInstanceMetadata failed: %v", err)
	}
	if m1.UUID != m2.UUID {
		t.Fatalf("expected stable instance UUID, got %s and %s", m1.UUID, m2.UUID)
	}
}
