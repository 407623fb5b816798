package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/yocore/yocore/internal/ids"
	"github.com/yocore/yocore/internal/storage"
)

// UpsertProject creates the project row for folderPath if absent, matching
// spec.md §3's "created on first parsed session whose file resolves to a
// folder; never auto-deleted."
func (s *Store) UpsertProject(ctx context.Context, folderPath, name string) (storage.Project, error) {
	var p storage.Project
	row := s.writer.QueryRowContext(ctx, `SELECT id, name, folder_path, created_at, updated_at FROM projects WHERE folder_path = ?`, folderPath)
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Name, &p.FolderPath, &createdAt, &updatedAt)
	if err == nil {
		p.CreatedAt, p.UpdatedAt = parseISO(createdAt), parseISO(updatedAt)
		return p, nil
	}
	if err != sql.ErrNoRows {
		return storage.Project{}, fmt.Errorf("failed to query project: %w", err)
	}

	now := time.Now()
	p = storage.Project{
		ID:         ids.New(),
		Name:       name,
		FolderPath: folderPath,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = s.writer.ExecContext(ctx,
		`INSERT INTO projects (id, name, folder_path, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.FolderPath, iso(p.CreatedAt), iso(p.UpdatedAt))
	if err != nil {
		return storage.Project{}, fmt.Errorf("failed to insert project: %w", err)
	}
	return p, nil
}

// ListProjects enumerates all projects, used by scheduler sweeps.
func (s *Store) ListProjects(ctx context.Context) ([]storage.Project, error) {
	rows, err := s.reader.QueryContext(ctx, `SELECT id, name, folder_path, created_at, updated_at FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var out []storage.Project
	for rows.Next() {
		var p storage.Project
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.FolderPath, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.CreatedAt, p.UpdatedAt = parseISO(createdAt), parseISO(updatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindOrCreateSession implements spec.md §4.2's find_or_create_session.
// Project resolution (walking up from the file path) is the ingestion
// pipeline's job (internal/ingest); it passes the already-resolved
// projectID alongside filePath.
func (s *Store) FindOrCreateSession(ctx context.Context, projectID, filePath string, parser storage.ParserName) (storage.Session, error) {
	if sess, err := s.getSessionByFilePath(ctx, filePath); err == nil {
		return sess, nil
	} else if err != storage.ErrNotFound {
		return storage.Session{}, err
	}

	now := time.Now()
	sess := storage.Session{
		ID:          ids.New(),
		ProjectID:   projectID,
		FilePath:    filePath,
		ParserName:  parser,
		CreatedAt:   now,
		IndexedAt:   now,
	}
	_, err := s.writer.ExecContext(ctx, `
		INSERT INTO sessions (id, project_id, file_path, title, ai_tool, parser_name,
			message_count, file_size, max_sequence, created_at, indexed_at)
		VALUES (?, ?, ?, '', '', ?, 0, 0, 0, ?, ?)
	`, sess.ID, sess.ProjectID, sess.FilePath, sess.ParserName, iso(sess.CreatedAt), iso(sess.IndexedAt))
	if err != nil {
		return storage.Session{}, fmt.Errorf("failed to insert session: %w", err)
	}
	return sess, nil
}

func (s *Store) getSessionByFilePath(ctx context.Context, filePath string) (storage.Session, error) {
	row := s.writer.QueryRowContext(ctx, sessionSelectCols+" WHERE file_path = ?", filePath)
	return scanSession(row)
}

const sessionSelectCols = `
	SELECT id, project_id, file_path, title, ai_tool, parser_name, message_count,
		   file_size, max_sequence, memories_extracted_at, skills_extracted_at,
		   created_at, indexed_at
	FROM sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (storage.Session, error) {
	var sess storage.Session
	var memExtracted, skillExtracted sql.NullString
	var createdAt, indexedAt string
	err := row.Scan(&sess.ID, &sess.ProjectID, &sess.FilePath, &sess.Title, &sess.AITool,
		&sess.ParserName, &sess.MessageCount, &sess.FileSize, &sess.MaxSequence,
		&memExtracted, &skillExtracted, &createdAt, &indexedAt)
	if err == sql.ErrNoRows {
		return storage.Session{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Session{}, fmt.Errorf("failed to scan session: %w", err)
	}
	if memExtracted.Valid {
		t := parseISO(memExtracted.String)
		sess.MemoriesExtractedAt = &t
	}
	if skillExtracted.Valid {
		t := parseISO(skillExtracted.String)
		sess.SkillsExtractedAt = &t
	}
	sess.CreatedAt = parseISO(createdAt)
	sess.IndexedAt = parseISO(indexedAt)
	return sess, nil
}

// GetSession fetches a session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID string) (storage.Session, error) {
	row := s.reader.QueryRowContext(ctx, sessionSelectCols+" WHERE id = ?", sessionID)
	return scanSession(row)
}

// ReplaceSessionMessages implements spec.md §4.2's atomic full replace:
// prior messages removed, new ones inserted, counters updated — all inside
// one transaction, matching the teacher's per-call db.Exec idiom wrapped in
// Begin/Commit/Rollback (SPEC_FULL.md §5.4 — the teacher never needed a
// multi-statement transaction, this spec does).
func (s *Store) ReplaceSessionMessages(ctx context.Context, sessionID string, messages []storage.Message, fileSize int64) error {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear prior messages: %w", err)
	}

	maxSeq := 0
	for _, m := range messages {
		if err := insertMessageTx(ctx, tx, sessionID, m); err != nil {
			return err
		}
		if m.SequenceNum > maxSeq {
			maxSeq = m.SequenceNum
		}
	}

	now := iso(time.Now())
	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET message_count = ?, file_size = ?, max_sequence = ?, indexed_at = ?
		WHERE id = ?
	`, len(messages), fileSize, maxSeq, now, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session counters: %w", err)
	}

	return tx.Commit()
}

// AppendSessionMessages implements spec.md §4.2's append_session_messages:
// appends contiguous sequences starting at max_sequence+1, inside one
// transaction per parse event.
func (s *Store) AppendSessionMessages(ctx context.Context, sessionID string, messages []storage.Message, fileSize int64) error {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin append transaction: %w", err)
	}
	defer tx.Rollback()

	var curCount, curMaxSeq int
	row := tx.QueryRowContext(ctx, `SELECT message_count, max_sequence FROM sessions WHERE id = ?`, sessionID)
	if err := row.Scan(&curCount, &curMaxSeq); err != nil {
		return fmt.Errorf("failed to read session counters: %w", err)
	}

	maxSeq := curMaxSeq
	for _, m := range messages {
		if err := insertMessageTx(ctx, tx, sessionID, m); err != nil {
			return err
		}
		if m.SequenceNum > maxSeq {
			maxSeq = m.SequenceNum
		}
	}

	now := iso(time.Now())
	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET message_count = ?, file_size = ?, max_sequence = ?, indexed_at = ?
		WHERE id = ?
	`, curCount+len(messages), fileSize, maxSeq, now, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session counters: %w", err)
	}

	return tx.Commit()
}

func insertMessageTx(ctx context.Context, tx *sql.Tx, sessionID string, m storage.Message) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO messages (session_id, sequence_num, role, content_preview, search_content,
			has_code, has_error, tool_name, byte_offset, byte_length, tokens, model, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionID, m.SequenceNum, m.Role, m.ContentPreview, m.SearchContent,
		boolToInt(m.HasCode), boolToInt(m.HasError), m.ToolName,
		m.ByteOffset, m.ByteLength, m.Tokens, m.Model, iso(m.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to insert message seq=%d: %w", m.SequenceNum, err)
	}
	return nil
}

// GetSessionBytesWindow reads a byte range from the original JSONL file on
// disk, per spec.md §4.2 — storage itself never caches file bytes.
func (s *Store) GetSessionBytesWindow(ctx context.Context, sessionID string, byteOffset, byteLength int64) ([]byte, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return readFileWindow(sess.FilePath, byteOffset, byteLength)
}

// ListMessages returns every message of a session in sequence order.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]storage.Message, error) {
	rows, err := s.reader.QueryContext(ctx, `
		SELECT session_id, sequence_num, role, content_preview, search_content, has_code,
			   has_error, tool_name, byte_offset, byte_length, tokens, model, timestamp
		FROM messages WHERE session_id = ? ORDER BY sequence_num
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []storage.Message
	for rows.Next() {
		m, err := scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetSessionTitle persists an AI-generated title (internal/aiqueue's
// title-generation feature).
func (s *Store) SetSessionTitle(ctx context.Context, sessionID, title string) error {
	_, err := s.writer.ExecContext(ctx, `UPDATE sessions SET title = ? WHERE id = ?`, title, sessionID)
	if err != nil {
		return fmt.Errorf("failed to set session title: %w", err)
	}
	return nil
}

// MarkMemoriesExtracted records when memory extraction last ran for a
// session, so the ingestion pipeline knows not to re-enqueue it.
func (s *Store) MarkMemoriesExtracted(ctx context.Context, sessionID string, at time.Time) error {
	_, err := s.writer.ExecContext(ctx, `UPDATE sessions SET memories_extracted_at = ? WHERE id = ?`, iso(at), sessionID)
	if err != nil {
		return fmt.Errorf("failed to mark memories extracted: %w", err)
	}
	return nil
}

// MarkSkillsExtracted records when skill discovery last ran for a session.
func (s *Store) MarkSkillsExtracted(ctx context.Context, sessionID string, at time.Time) error {
	_, err := s.writer.ExecContext(ctx, `UPDATE sessions SET skills_extracted_at = ? WHERE id = ?`, iso(at), sessionID)
	if err != nil {
		return fmt.Errorf("failed to mark skills extracted: %w", err)
	}
	return nil
}

func scanMessageRow(rows *sql.Rows) (storage.Message, error) {
	var m storage.Message
	var hasCode, hasError int
	var timestamp string
	err := rows.Scan(&m.SessionID, &m.SequenceNum, &m.Role, &m.ContentPreview, &m.SearchContent,
		&hasCode, &hasError, &m.ToolName, &m.ByteOffset, &m.ByteLength, &m.Tokens, &m.Model, &timestamp)
	if err != nil {
		return storage.Message{}, fmt.Errorf("failed to scan message: %w", err)
	}
	m.HasCode, m.HasError = intToBool(hasCode), intToBool(hasError)
	m.Timestamp = parseISO(timestamp)
	return m, nil
}
