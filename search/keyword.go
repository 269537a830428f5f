package search

import (
	"context"
	"maps"
	"slices"

	"github.com/poiesic/memvault/core"
)

// Field weights for keyword hits.
const (
	titleWeight   = 1.0
	summaryWeight = 0.8
	textWeight    = 0.6
)

// Keyword ranks the user's ready memories by query term coverage. A memory
// scores as the fraction of terms it contains times the weight of the best
// field they hit.
func (e *Engine) Keyword(ctx context.Context, userID core.ID, text string, filters Filters, limit int) ([]*Result, error) {
	limit, err := pageLimit(limit, 0)
	if err != nil {
		return nil, err
	}
	terms := tokenizeAndFilter(text)
	if len(terms) == 0 {
		return []*Result{}, nil
	}

	candidates, err := e.candidates(ctx, userID, filters)
	if err != nil {
		return nil, err
	}

	var results []*Result
	for _, memory := range candidates {
		if result := scoreKeywords(memory, terms); result != nil {
			results = append(results, result)
		}
	}
	sortResults(results)
	e.logger.Debug("keyword search", "user", userID, "terms", len(terms), "hits", len(results))
	return page(results, limit, 0), nil
}

func scoreKeywords(memory *core.Memory, terms []string) *Result {
	fields := []struct {
		text   string
		weight float32
	}{
		{memory.TitleOrEmpty(), titleWeight},
		{deref(memory.Summary), summaryWeight},
		{memory.Text(), textWeight},
	}

	matched := make(map[string]bool, len(terms))
	var bestWeight float32
	var chunk string
	for _, field := range fields {
		hits := matchTerms(field.text, terms)
		if len(hits) == 0 {
			continue
		}
		for _, hit := range hits {
			matched[hit] = true
		}
		if field.weight > bestWeight {
			bestWeight = field.weight
			chunk = snippet(field.text, hits[0])
		}
	}
	if len(matched) == 0 {
		return nil
	}

	coverage := float32(len(matched)) / float32(len(terms))
	score := coverage * bestWeight
	return &Result{
		Memory:       memory,
		Score:        score,
		Chunk:        chunk,
		KeywordScore: score,
	}
}

// Hybrid blends semantic and keyword scores. Each mode contributes its
// weighted score; memories found by only one mode get only that part.
func (e *Engine) Hybrid(ctx context.Context, userID core.ID, text string, filters Filters, limit int) ([]*Result, error) {
	limit, err := pageLimit(limit, 0)
	if err != nil {
		return nil, err
	}
	semantic, err := e.SearchText(ctx, userID, text, filters, 2*limit, 0)
	if err != nil {
		return nil, err
	}
	keyword, err := e.Keyword(ctx, userID, text, filters, 2*limit)
	if err != nil {
		return nil, err
	}

	merged := make(map[core.ID]*Result, len(semantic)+len(keyword))
	for _, r := range semantic {
		merged[r.Memory.ID] = &Result{
			Memory:        r.Memory,
			ChunkIndex:    r.ChunkIndex,
			Chunk:         r.Chunk,
			SemanticScore: r.SemanticScore,
		}
	}
	for _, r := range keyword {
		m, ok := merged[r.Memory.ID]
		if !ok {
			m = &Result{Memory: r.Memory, Chunk: r.Chunk}
			merged[r.Memory.ID] = m
		}
		m.KeywordScore = r.KeywordScore
	}

	results := slices.Collect(maps.Values(merged))
	for _, r := range results {
		r.Score = e.semanticWeight*r.SemanticScore + e.keywordWeight*r.KeywordScore
	}
	sortResults(results)
	return page(results, limit, 0), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
