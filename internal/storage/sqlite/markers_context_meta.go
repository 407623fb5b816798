package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/yocore/yocore/internal/ids"
	"github.com/yocore/yocore/internal/storage"
)

// InsertMarker records a detected marker (spec.md §3's Marker entity).
func (s *Store) InsertMarker(ctx context.Context, m storage.Marker) (int64, error) {
	res, err := s.writer.ExecContext(ctx, `
		INSERT INTO markers (session_id, event_index, marker_type, label, description)
		VALUES (?, ?, ?, ?, ?)
	`, m.SessionID, m.EventIndex, m.MarkerType, m.Label, m.Description)
	if err != nil {
		return 0, fmt.Errorf("failed to insert marker: %w", err)
	}
	return res.LastInsertId()
}

// DeleteMarker removes a marker — markers are "deleted explicitly", never
// soft-removed (spec.md §3).
func (s *Store) DeleteMarker(ctx context.Context, id int64) error {
	_, err := s.writer.ExecContext(ctx, `DELETE FROM markers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete marker: %w", err)
	}
	return nil
}

// ListMarkers returns every marker for a session.
func (s *Store) ListMarkers(ctx context.Context, sessionID string) ([]storage.Marker, error) {
	rows, err := s.reader.QueryContext(ctx, `
		SELECT id, session_id, event_index, marker_type, label, description
		FROM markers WHERE session_id = ? ORDER BY event_index
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list markers: %w", err)
	}
	defer rows.Close()

	var out []storage.Marker
	for rows.Next() {
		var m storage.Marker
		if err := rows.Scan(&m.ID, &m.SessionID, &m.EventIndex, &m.MarkerType, &m.Label, &m.Description); err != nil {
			return nil, fmt.Errorf("failed to scan marker: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveSessionContext upserts the lifeboat payload for a session (spec.md
// §3's SessionContext entity, §8 scenario 6's round-trip requirement).
func (s *Store) SaveSessionContext(ctx context.Context, sc storage.SessionContext) error {
	now := time.Now()
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = now
	}
	sc.UpdatedAt = now

	_, err := s.writer.ExecContext(ctx, `
		INSERT INTO session_context (session_id, project_id, active_task, recent_decisions,
			open_questions, resume_context, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			project_id = excluded.project_id,
			active_task = excluded.active_task,
			recent_decisions = excluded.recent_decisions,
			open_questions = excluded.open_questions,
			resume_context = excluded.resume_context,
			source = excluded.source,
			updated_at = excluded.updated_at
	`, sc.SessionID, sc.ProjectID, sc.ActiveTask, encodeTags(sc.RecentDecisions),
		encodeTags(sc.OpenQuestions), sc.ResumeContext, sc.Source, iso(sc.CreatedAt), iso(sc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save session context: %w", err)
	}
	return nil
}

// GetSessionContext retrieves the lifeboat payload, if any.
func (s *Store) GetSessionContext(ctx context.Context, sessionID string) (storage.SessionContext, error) {
	row := s.reader.QueryRowContext(ctx, `
		SELECT session_id, project_id, active_task, recent_decisions, open_questions,
			   resume_context, source, created_at, updated_at
		FROM session_context WHERE session_id = ?
	`, sessionID)

	var sc storage.SessionContext
	var recentDecisions, openQuestions, createdAt, updatedAt string
	err := row.Scan(&sc.SessionID, &sc.ProjectID, &sc.ActiveTask, &recentDecisions, &openQuestions,
		&sc.ResumeContext, &sc.Source, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return storage.SessionContext{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.SessionContext{}, fmt.Errorf("failed to get session context: %w", err)
	}
	sc.RecentDecisions = decodeTags(recentDecisions)
	sc.OpenQuestions = decodeTags(openQuestions)
	sc.CreatedAt = parseISO(createdAt)
	sc.UpdatedAt = parseISO(updatedAt)
	return sc, nil
}

// GetOrCreateInstanceMetadata reads the singleton row, creating it with a
// fresh UUID on first run (spec.md §3's "UUID stable across restarts").
func (s *Store) GetOrCreateInstanceMetadata(ctx context.Context, instanceName string) (storage.InstanceMetadata, error) {
	row := s.writer.QueryRowContext(ctx, `SELECT uuid, instance_name, created_at FROM instance_metadata WHERE id = 1`)

	var meta storage.InstanceMetadata
	var createdAt string
	err := row.Scan(&meta.UUID, &meta.InstanceName, &createdAt)
	if err == nil {
		meta.CreatedAt = parseISO(createdAt)
		return meta, nil
	}
	if err != sql.ErrNoRows {
		return storage.InstanceMetadata{}, fmt.Errorf("failed to query instance metadata: %w", err)
	}

	meta = storage.InstanceMetadata{
		UUID:         ids.New(),
		InstanceName: instanceName,
		CreatedAt:    time.Now(),
	}
	_, err = s.writer.ExecContext(ctx,
		`INSERT INTO instance_metadata (id, uuid, instance_name, created_at) VALUES (1, ?, ?, ?)`,
		meta.UUID, meta.InstanceName, iso(meta.CreatedAt))
	if err != nil {
		return storage.InstanceMetadata{}, fmt.Errorf("failed to create instance metadata: %w", err)
	}
	return meta, nil
}
