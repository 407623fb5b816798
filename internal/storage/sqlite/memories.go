package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/yocore/yocore/internal/storage"
)

func encodeTags(tags []string) string {
	return strings.Join(tags, "\x1f")
}

func decodeTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\x1f")
}

// InsertMemory inserts a new memory row. Near-duplicate rejection
// (spec.md §4.6.3) happens one layer up, in internal/knowledge, which
// queries ListMemories before calling this.
func (s *Store) InsertMemory(ctx context.Context, m storage.Memory) (int64, error) {
	now := time.Now()
	if m.ExtractedAt.IsZero() {
		m.ExtractedAt = now
	}
	if m.LastAccessedAt.IsZero() {
		m.LastAccessedAt = now
	}
	if m.State == "" {
		m.State = storage.StateNew
	}

	res, err := s.writer.ExecContext(ctx, `
		INSERT INTO memories (project_id, session_id, memory_type, title, content, context,
			tags, confidence, is_validated, state, access_count, extracted_at, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ProjectID, m.SessionID, m.MemoryType, m.Title, m.Content, m.Context,
		encodeTags(m.Tags), m.Confidence, boolToInt(m.IsValidated), m.State, m.AccessCount,
		iso(m.ExtractedAt), iso(m.LastAccessedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert memory: %w", err)
	}
	return res.LastInsertId()
}

// UpdateMemoryState applies a ranking-sweep or API state transition
// (spec.md §4.6.6).
func (s *Store) UpdateMemoryState(ctx context.Context, id int64, state storage.EntryState) error {
	_, err := s.writer.ExecContext(ctx, `UPDATE memories SET state = ? WHERE id = ?`, state, id)
	if err != nil {
		return fmt.Errorf("failed to update memory state: %w", err)
	}
	return nil
}

// TouchMemoryAccess increments access_count and bumps last_accessed_at,
// feeding the ranking state machine's access_count/days_since_access terms.
func (s *Store) TouchMemoryAccess(ctx context.Context, id int64, when time.Time) error {
	_, err := s.writer.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`,
		iso(when), id)
	if err != nil {
		return fmt.Errorf("failed to touch memory access: %w", err)
	}
	return nil
}

const memorySelectCols = `
	SELECT id, project_id, session_id, memory_type, title, content, context, tags,
		   confidence, is_validated, state, access_count, extracted_at, last_accessed_at
	FROM memories`

func scanMemory(row rowScanner) (storage.Memory, error) {
	var m storage.Memory
	var tags string
	var isValidated int
	var extractedAt, lastAccessedAt string
	err := row.Scan(&m.ID, &m.ProjectID, &m.SessionID, &m.MemoryType, &m.Title, &m.Content, &m.Context,
		&tags, &m.Confidence, &isValidated, &m.State, &m.AccessCount, &extractedAt, &lastAccessedAt)
	if err == sql.ErrNoRows {
		return storage.Memory{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Memory{}, fmt.Errorf("failed to scan memory: %w", err)
	}
	m.Tags = decodeTags(tags)
	m.IsValidated = intToBool(isValidated)
	m.ExtractedAt = parseISO(extractedAt)
	m.LastAccessedAt = parseISO(lastAccessedAt)
	return m, nil
}

// GetMemory fetches a memory by ID.
func (s *Store) GetMemory(ctx context.Context, id int64) (storage.Memory, error) {
	row := s.reader.QueryRowContext(ctx, memorySelectCols+" WHERE id = ?", id)
	return scanMemory(row)
}

// ListMemories applies filter.ProjectID / MemoryTypes / Tags / States
// (spec.md §4.6.5's "filters applied before fusion"). Tag filtering is done
// in Go after the SQL fetch since tags are stored as a delimited string.
func (s *Store) ListMemories(ctx context.Context, filter storage.MemoryFilter) ([]storage.Memory, error) {
	query := memorySelectCols + " WHERE 1=1"
	var args []any

	if filter.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, filter.ProjectID)
	}
	if len(filter.MemoryTypes) > 0 {
		placeholders := make([]string, len(filter.MemoryTypes))
		for i, t := range filter.MemoryTypes {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += " AND memory_type IN (" + strings.Join(placeholders, ",") + ")"
	}
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, st := range filter.States {
			placeholders[i] = "?"
			args = append(args, st)
		}
		query += " AND state IN (" + strings.Join(placeholders, ",") + ")"
	} else {
		query += " AND state != 'removed'"
	}

	query += " ORDER BY extracted_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	rows, err := s.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	var out []storage.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		if !matchesTags(m.Tags, filter.Tags) {
			continue
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func matchesTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

// SetMemoryEmbedding stores the 384-dim L2-normalized vector for a memory,
// encoded as a little-endian float32 blob — grounded directly on the
// teacher's encodeEmbedding/decodeEmbedding (internal/memory/learning.go).
func (s *Store) SetMemoryEmbedding(ctx context.Context, memoryID int64, vector []float32) error {
	_, err := s.writer.ExecContext(ctx, `
		INSERT INTO memory_embeddings (memory_id, vector) VALUES (?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET vector = excluded.vector
	`, memoryID, encodeEmbedding(vector))
	if err != nil {
		return fmt.Errorf("failed to set memory embedding: %w", err)
	}
	return nil
}

// GetMemoryEmbedding returns the stored vector, or storage.ErrNotFound.
func (s *Store) GetMemoryEmbedding(ctx context.Context, memoryID int64) ([]float32, error) {
	var blob []byte
	row := s.reader.QueryRowContext(ctx, `SELECT vector FROM memory_embeddings WHERE memory_id = ?`, memoryID)
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get memory embedding: %w", err)
	}
	return decodeEmbedding(blob), nil
}

// ListMemoriesMissingEmbedding feeds the scheduler's embedding backfill
// sweep (spec.md §4.7).
func (s *Store) ListMemoriesMissingEmbedding(ctx context.Context, projectID string, limit int) ([]storage.Memory, error) {
	rows, err := s.reader.QueryContext(ctx, memorySelectCols+`
		WHERE project_id = ? AND state != 'removed'
		  AND id NOT IN (SELECT memory_id FROM memory_embeddings)
		ORDER BY extracted_at
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories missing embeddings: %w", err)
	}
	defer rows.Close()

	var out []storage.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
