package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yocore/yocore/internal/storage"
)

// FtsSearchMessages runs a MATCH query against session_messages_fts,
// ranked by bm25(), read through the reader handle (spec.md §4.2).
func (s *Store) FtsSearchMessages(ctx context.Context, query string, projectID string, limit, offset int) ([]storage.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	sqlQuery := `
		SELECT m.session_id, m.sequence_num, m.role, m.content_preview, m.search_content, m.has_code,
			   m.has_error, m.tool_name, m.byte_offset, m.byte_length, m.tokens, m.model, m.timestamp
		FROM session_messages_fts
		JOIN messages m ON m.rowid = session_messages_fts.rowid
	`
	args := []any{}
	if projectID != "" {
		sqlQuery += " JOIN sessions sess ON sess.id = m.session_id"
	}
	sqlQuery += " WHERE session_messages_fts MATCH ?"
	args = append(args, query)
	if projectID != "" {
		sqlQuery += " AND sess.project_id = ?"
		args = append(args, projectID)
	}
	sqlQuery += " ORDER BY bm25(session_messages_fts) LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.reader.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fts-search messages: %w", err)
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

// FtsSearchMemories returns the top results ranked by bm25(), the first
// half of the hybrid-search pipeline (spec.md §4.6.5 step 1). Filters are
// applied in the WHERE clause before ranking, matching "filters apply
// before fusion to both sources."
func (s *Store) FtsSearchMemories(ctx context.Context, query string, filter storage.MemoryFilter) ([]storage.ScoredMemory, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	sqlQuery := `
		SELECT mem.id, bm25(memories_fts) AS rank
		FROM memories_fts
		JOIN memories mem ON mem.id = memories_fts.rowid
		WHERE memories_fts MATCH ? AND mem.state != 'removed'
	`
	args := []any{query}
	if filter.ProjectID != "" {
		sqlQuery += " AND mem.project_id = ?"
		args = append(args, filter.ProjectID)
	}
	if len(filter.MemoryTypes) > 0 {
		placeholders := make([]string, len(filter.MemoryTypes))
		for i, t := range filter.MemoryTypes {
			placeholders[i] = "?"
			args = append(args, t)
		}
		sqlQuery += " AND mem.memory_type IN (" + strings.Join(placeholders, ",") + ")"
	}
	sqlQuery += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.reader.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fts-search memories: %w", err)
	}
	defer rows.Close()

	var results []storage.ScoredMemory
	for rows.Next() {
		var id int64
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan fts memory row: %w", err)
		}
		mem, err := s.GetMemory(ctx, id)
		if err != nil {
			continue
		}
		if !matchesTags(mem.Tags, filter.Tags) {
			continue
		}
		// bm25() returns lower-is-better; invert so Score is higher-is-better,
		// consistent with the vector cosine scores it will be fused against.
		results = append(results, storage.ScoredMemory{Memory: mem, Score: -rank})
	}
	return results, rows.Err()
}

// FtsSearchSkills mirrors FtsSearchMemories for skills.
func (s *Store) FtsSearchSkills(ctx context.Context, query string, filter storage.SkillFilter) ([]storage.ScoredSkill, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	sqlQuery := `
		SELECT sk.id, bm25(skills_fts) AS rank
		FROM skills_fts
		JOIN skills sk ON sk.id = skills_fts.rowid
		WHERE skills_fts MATCH ? AND sk.state != 'removed'
	`
	args := []any{query}
	if filter.ProjectID != "" {
		sqlQuery += " AND sk.project_id = ?"
		args = append(args, filter.ProjectID)
	}
	sqlQuery += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.reader.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fts-search skills: %w", err)
	}
	defer rows.Close()

	var results []storage.ScoredSkill
	for rows.Next() {
		var id int64
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan fts skill row: %w", err)
		}
		sk, err := s.GetSkill(ctx, id)
		if err != nil {
			continue
		}
		results = append(results, storage.ScoredSkill{Skill: sk, Score: -rank})
	}
	return results, rows.Err()
}

// VectorSearchMemories computes cosine similarity against every stored,
// non-removed embedding for the project and returns the top K — a linear
// scan, grounded directly on the teacher's SearchByEmbedding
// (internal/memory/learning.go), same shape, same cosineSimilarity helper.
func (s *Store) VectorSearchMemories(ctx context.Context, query []float32, filter storage.MemoryFilter, topK int) ([]storage.ScoredMemory, error) {
	sqlQuery := `
		SELECT mem.id, me.vector
		FROM memory_embeddings me
		JOIN memories mem ON mem.id = me.memory_id
		WHERE mem.state != 'removed'
	`
	args := []any{}
	if filter.ProjectID != "" {
		sqlQuery += " AND mem.project_id = ?"
		args = append(args, filter.ProjectID)
	}

	rows, err := s.reader.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to vector-search memories: %w", err)
	}
	defer rows.Close()

	var scored []storage.ScoredMemory
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding row: %w", err)
		}
		vec := decodeEmbedding(blob)
		sim := cosineSimilarity(query, vec)

		mem, err := s.GetMemory(ctx, id)
		if err != nil {
			continue
		}
		if len(filter.MemoryTypes) > 0 && !containsType(filter.MemoryTypes, mem.MemoryType) {
			continue
		}
		if !matchesTags(mem.Tags, filter.Tags) {
			continue
		}
		scored = append(scored, storage.ScoredMemory{Memory: mem, Score: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// VectorSearchSkills mirrors VectorSearchMemories for skills.
func (s *Store) VectorSearchSkills(ctx context.Context, query []float32, filter storage.SkillFilter, topK int) ([]storage.ScoredSkill, error) {
	sqlQuery := `
		SELECT sk.id, se.vector
		FROM skill_embeddings se
		JOIN skills sk ON sk.id = se.skill_id
		WHERE sk.state != 'removed'
	`
	args := []any{}
	if filter.ProjectID != "" {
		sqlQuery += " AND sk.project_id = ?"
		args = append(args, filter.ProjectID)
	}

	rows, err := s.reader.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to vector-search skills: %w", err)
	}
	defer rows.Close()

	var scored []storage.ScoredSkill
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding row: %w", err)
		}
		vec := decodeEmbedding(blob)
		sim := cosineSimilarity(query, vec)

		sk, err := s.GetSkill(ctx, id)
		if err != nil {
			continue
		}
		scored = append(scored, storage.ScoredSkill{Skill: sk, Score: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func containsType(types []storage.MemoryType, t storage.MemoryType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}
