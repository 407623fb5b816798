package knowledge

import (
	"context"
	"fmt"
	"sort"

	"github.com/yocore/yocore/internal/embed"
	"github.com/yocore/yocore/internal/storage"
)

// RRFConstant is the k in spec.md §4.6.5's Reciprocal Rank Fusion formula.
const RRFConstant = 60

// DefaultFtsTopK and DefaultVectorTopK are K1/K2 in spec.md §4.6.5.
const (
	DefaultFtsTopK    = 50
	DefaultVectorTopK = 50
)

// SearchMemories implements spec.md §4.6.5's hybrid search: FTS top-K1,
// vector top-K2 (via an embedding of query), fused by Reciprocal Rank
// Fusion, trimmed to limit. Filters are applied before fusion by being
// passed into both storage.Backend calls (storage.Backend.FtsSearchMemories
// and VectorSearchMemories already filter in their WHERE clauses, matching
// "filters apply before fusion to both sources").
func SearchMemories(ctx context.Context, backend storage.Backend, engine *embed.Engine, query string, filter storage.MemoryFilter, limit int) ([]storage.ScoredMemory, error) {
	ftsFilter := filter
	ftsFilter.Limit = DefaultFtsTopK
	ftsResults, err := backend.FtsSearchMemories(ctx, query, ftsFilter)
	if err != nil {
		return nil, fmt.Errorf("fts search memories: %w", err)
	}

	queryVec, err := engine.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vecResults, err := backend.VectorSearchMemories(ctx, queryVec, filter, DefaultVectorTopK)
	if err != nil {
		return nil, fmt.Errorf("vector search memories: %w", err)
	}

	fused := fuseMemories(ftsResults, vecResults)
	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}

// SearchSkills mirrors SearchMemories for skills.
func SearchSkills(ctx context.Context, backend storage.Backend, engine *embed.Engine, query string, filter storage.SkillFilter, limit int) ([]storage.ScoredSkill, error) {
	ftsFilter := filter
	ftsFilter.Limit = DefaultFtsTopK
	ftsResults, err := backend.FtsSearchSkills(ctx, query, ftsFilter)
	if err != nil {
		return nil, fmt.Errorf("fts search skills: %w", err)
	}

	queryVec, err := engine.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vecResults, err := backend.VectorSearchSkills(ctx, queryVec, filter, DefaultVectorTopK)
	if err != nil {
		return nil, fmt.Errorf("vector search skills: %w", err)
	}

	fused := fuseSkills(ftsResults, vecResults)
	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}

// fuseMemories implements RRF(d) = sum over R in {fts,vec} of
// 1/(k+rank_R(d)), with documents present in only one list contributing
// only their term (spec.md §4.6.5 step 3). Rank is 1-based position within
// each already-sorted input list.
func fuseMemories(fts, vec []storage.ScoredMemory) []storage.ScoredMemory {
	rrf := make(map[int64]float64)
	byID := make(map[int64]storage.Memory)

	for rank, sm := range fts {
		rrf[sm.Memory.ID] += 1.0 / float64(RRFConstant+rank+1)
		byID[sm.Memory.ID] = sm.Memory
	}
	for rank, sm := range vec {
		rrf[sm.Memory.ID] += 1.0 / float64(RRFConstant+rank+1)
		byID[sm.Memory.ID] = sm.Memory
	}

	out := make([]storage.ScoredMemory, 0, len(rrf))
	for id, score := range rrf {
		out = append(out, storage.ScoredMemory{Memory: byID[id], Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func fuseSkills(fts, vec []storage.ScoredSkill) []storage.ScoredSkill {
	rrf := make(map[int64]float64)
	byID := make(map[int64]storage.Skill)

	for rank, ss := range fts {
		rrf[ss.Skill.ID] += 1.0 / float64(RRFConstant+rank+1)
		byID[ss.Skill.ID] = ss.Skill
	}
	for rank, ss := range vec {
		rrf[ss.Skill.ID] += 1.0 / float64(RRFConstant+rank+1)
		byID[ss.Skill.ID] = ss.Skill
	}

	out := make([]storage.ScoredSkill, 0, len(rrf))
	for id, score := range rrf {
		out = append(out, storage.ScoredSkill{Skill: byID[id], Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
