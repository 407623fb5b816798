package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/yocore/yocore/internal/storage"
)

func encodeSteps(steps []string) string {
	return strings.Join(steps, "\x1f")
}

func decodeSteps(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\x1f")
}

// InsertSkill inserts a new skill row, the Skill analogue of InsertMemory.
func (s *Store) InsertSkill(ctx context.Context, sk storage.Skill) (int64, error) {
	if sk.ExtractedAt.IsZero() {
		sk.ExtractedAt = time.Now()
	}
	if sk.State == "" {
		sk.State = storage.StateNew
	}

	res, err := s.writer.ExecContext(ctx, `
		INSERT INTO skills (project_id, session_id, name, description, steps, confidence, state, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sk.ProjectID, sk.SessionID, sk.Name, sk.Description, encodeSteps(sk.Steps), sk.Confidence, sk.State, iso(sk.ExtractedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert skill: %w", err)
	}
	return res.LastInsertId()
}

// UpdateSkillState soft-removes or otherwise transitions a skill
// (SPEC_FULL.md §4's supplemented Skill.state field, mirroring Memory.state).
func (s *Store) UpdateSkillState(ctx context.Context, id int64, state storage.EntryState) error {
	_, err := s.writer.ExecContext(ctx, `UPDATE skills SET state = ? WHERE id = ?`, state, id)
	if err != nil {
		return fmt.Errorf("failed to update skill state: %w", err)
	}
	return nil
}

const skillSelectCols = `
	SELECT id, project_id, session_id, name, description, steps, confidence, state, extracted_at
	FROM skills`

func scanSkill(row rowScanner) (storage.Skill, error) {
	var sk storage.Skill
	var steps, extractedAt string
	err := row.Scan(&sk.ID, &sk.ProjectID, &sk.SessionID, &sk.Name, &sk.Description, &steps, &sk.Confidence, &sk.State, &extractedAt)
	if err == sql.ErrNoRows {
		return storage.Skill{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Skill{}, fmt.Errorf("failed to scan skill: %w", err)
	}
	sk.Steps = decodeSteps(steps)
	sk.ExtractedAt = parseISO(extractedAt)
	return sk, nil
}

// GetSkill fetches a skill by ID.
func (s *Store) GetSkill(ctx context.Context, id int64) (storage.Skill, error) {
	row := s.reader.QueryRowContext(ctx, skillSelectCols+" WHERE id = ?", id)
	return scanSkill(row)
}

// ListSkills applies filter.ProjectID / States.
func (s *Store) ListSkills(ctx context.Context, filter storage.SkillFilter) ([]storage.Skill, error) {
	query := skillSelectCols + " WHERE 1=1"
	var args []any

	if filter.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, filter.ProjectID)
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
		return nil, fmt.Errorf("failed to list skills: %w", err)
	}
	defer rows.Close()

	var out []storage.Skill
	for rows.Next() {
		sk, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

// SetSkillEmbedding stores the 384-dim vector for a skill.
func (s *Store) SetSkillEmbedding(ctx context.Context, skillID int64, vector []float32) error {
	_, err := s.writer.ExecContext(ctx, `
		INSERT INTO skill_embeddings (skill_id, vector) VALUES (?, ?)
		ON CONFLICT(skill_id) DO UPDATE SET vector = excluded.vector
	`, skillID, encodeEmbedding(vector))
	if err != nil {
		return fmt.Errorf("failed to set skill embedding: %w", err)
	}
	return nil
}

// GetSkillEmbedding returns the stored vector, or storage.ErrNotFound.
func (s *Store) GetSkillEmbedding(ctx context.Context, skillID int64) ([]float32, error) {
	var blob []byte
	row := s.reader.QueryRowContext(ctx, `SELECT vector FROM skill_embeddings WHERE skill_id = ?`, skillID)
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get skill embedding: %w", err)
	}
	return decodeEmbedding(blob), nil
}
