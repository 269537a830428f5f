package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/memvault/ai"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/embedding"
	"github.com/poiesic/memvault/storage"
)

const (
	// DefaultLimit applies when a search is given a limit of 0.
	DefaultLimit = 10

	defaultMinScore       = -1
	defaultSemanticWeight = 0.7
	defaultKeywordWeight  = 0.3
)

// Filters narrows the candidate memories of a search. Zero values mean any.
type Filters struct {
	SpaceID core.ID
	// TagIDs requires every listed tag.
	TagIDs []core.ID
	Type   core.MemoryType
}

// Result is one ranked memory.
type Result struct {
	Memory *core.Memory
	Score  float32
	// ChunkIndex and Chunk locate the best matching passage.
	ChunkIndex int
	Chunk      string

	SemanticScore float32
	KeywordScore  float32
}

// Engine ranks memories for a user.
type Engine struct {
	memories       storage.MemoryRepository
	embeddings     storage.EmbeddingRepository
	embedder       ai.Embedder
	model          string
	minScore       float32
	semanticWeight float32
	keywordWeight  float32
	logger         *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithMinScore drops semantic hits scoring below score. Default -1 keeps all.
func WithMinScore(score float32) Option {
	return func(e *Engine) error {
		if score < -1 || score > 1 {
			return fmt.Errorf("min score %v outside [-1, 1]", score)
		}
		e.minScore = score
		return nil
	}
}

// WithModel selects the embedding generation to search. Defaults to the
// embedder's model.
func WithModel(model string) Option {
	return func(e *Engine) error {
		e.model = model
		return nil
	}
}

// WithHybridWeights sets the semantic and keyword weights of Hybrid. They
// are normalized to sum to one.
func WithHybridWeights(semantic, keyword float32) Option {
	return func(e *Engine) error {
		if semantic < 0 || keyword < 0 || semantic+keyword == 0 {
			return fmt.Errorf("invalid hybrid weights %v/%v", semantic, keyword)
		}
		total := semantic + keyword
		e.semanticWeight = semantic / total
		e.keywordWeight = keyword / total
		return nil
	}
}

// NewEngine creates a retrieval engine.
func NewEngine(
	memories storage.MemoryRepository,
	embeddings storage.EmbeddingRepository,
	embedder ai.Embedder,
	opts ...Option,
) (*Engine, error) {
	if memories == nil {
		return nil, ErrMemoryRepositoryRequired
	}
	if embeddings == nil {
		return nil, ErrEmbeddingRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	e := &Engine{
		memories:       memories,
		embeddings:     embeddings,
		embedder:       embedder,
		model:          embedder.Model(),
		minScore:       defaultMinScore,
		semanticWeight: defaultSemanticWeight,
		keywordWeight:  defaultKeywordWeight,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "search")
	return e, nil
}

// Model returns the embedding model searched.
func (e *Engine) Model() string {
	return e.model
}

// Search ranks the user's ready memories by similarity to query.
func (e *Engine) Search(ctx context.Context, userID core.ID, query []float32, filters Filters, limit, offset int) ([]*Result, error) {
	return e.SearchWithMonitor(ctx, userID, query, filters, limit, offset, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (e *Engine) SearchWithMonitor(ctx context.Context, userID core.ID, query []float32, filters Filters, limit, offset int, monitor SearchMonitor) ([]*Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	limit, err := pageLimit(limit, offset)
	if err != nil {
		return nil, err
	}
	if len(query) == 0 {
		return nil, ErrEmptyQuery
	}
	monitor.Start(userID, query)

	results, err := e.rank(ctx, userID, embedding.NormalizeVector(query), filters, 0, monitor)
	if err != nil {
		return nil, err
	}
	results = page(results, limit, offset)
	monitor.Finish(results)
	return results, nil
}

// SearchText embeds text and searches with the vector.
func (e *Engine) SearchText(ctx context.Context, userID core.ID, text string, filters Filters, limit, offset int) ([]*Result, error) {
	if _, err := pageLimit(limit, offset); err != nil {
		return nil, err
	}
	vector, err := e.embedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return e.Search(ctx, userID, vector, filters, limit, offset)
}

// Related finds the user's memories closest to the mean vector of memoryID,
// excluding memoryID itself.
func (e *Engine) Related(ctx context.Context, userID, memoryID core.ID, limit int) ([]*Result, error) {
	limit, err := pageLimit(limit, 0)
	if err != nil {
		return nil, err
	}
	memory, err := e.memories.GetMemory(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	if memory.UserID != userID {
		return nil, fmt.Errorf("%w: memory %d", storage.ErrNotFound, memoryID)
	}
	chunks, err := e.embeddings.ListEmbeddings(ctx, memoryID, e.model)
	if err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(chunks))
	for i, chunk := range chunks {
		vectors[i] = chunk.Vector
	}
	mean := embedding.Mean(vectors)
	if mean == nil {
		return []*Result{}, nil
	}

	results, err := e.rank(ctx, userID, mean, Filters{}, memoryID, &noopMonitor{})
	if err != nil {
		return nil, err
	}
	return page(results, limit, 0), nil
}

// rank scores every candidate against a unit query vector and sorts them.
func (e *Engine) rank(ctx context.Context, userID core.ID, query []float32, filters Filters, exclude core.ID, monitor SearchMonitor) ([]*Result, error) {
	candidates, err := e.candidates(ctx, userID, filters)
	if err != nil {
		return nil, err
	}
	ids := make([]core.ID, 0, len(candidates))
	byID := make(map[core.ID]*core.Memory, len(candidates))
	for _, memory := range candidates {
		if memory.ID == exclude {
			continue
		}
		ids = append(ids, memory.ID)
		byID[memory.ID] = memory
	}
	monitor.AfterCandidateSelection(ids)
	if len(ids) == 0 {
		return []*Result{}, nil
	}

	chunks, err := e.embeddings.ListEmbeddingsForMemories(ctx, e.model, ids...)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(chunks))
	for id, memoryChunks := range chunks {
		var best *core.Embedding
		var bestScore float32
		for _, chunk := range memoryChunks {
			score, err := embedding.Dot(query, chunk.Vector)
			if err != nil {
				return nil, fmt.Errorf("scoring memory %d chunk %d against model %s: %w",
					id, chunk.ChunkIndex, e.model, err)
			}
			if best == nil || score > bestScore {
				best, bestScore = chunk, score
			}
		}
		if best == nil || bestScore < e.minScore {
			continue
		}
		results = append(results, &Result{
			Memory:        byID[id],
			Score:         bestScore,
			ChunkIndex:    best.ChunkIndex,
			Chunk:         best.ChunkText,
			SemanticScore: bestScore,
		})
	}
	sortResults(results)
	monitor.AfterScoring(results)
	e.logger.Debug("semantic search", "user", userID, "candidates", len(ids), "hits", len(results))
	return results, nil
}

func (e *Engine) candidates(ctx context.Context, userID core.ID, filters Filters) ([]*core.Memory, error) {
	return e.memories.ListMemories(ctx, storage.MemoryFilter{
		UserID:   userID,
		Type:     filters.Type,
		Statuses: []core.Status{core.StatusReady},
		SpaceID:  filters.SpaceID,
		TagIDs:   filters.TagIDs,
	})
}

func (e *Engine) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	vector, err := e.embedder.EmbedText(ctx, text)
	if err != nil {
		e.logger.Error("error generating embedding for query", "err", err)
		return nil, err
	}
	return vector, nil
}

// sortResults orders by score descending, then most recently updated, then
// lowest ID.
func sortResults(results []*Result) {
	slices.SortFunc(results, func(a, b *Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := b.Memory.UpdatedAt.Compare(a.Memory.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Memory.ID, b.Memory.ID)
	})
}

func pageLimit(limit, offset int) (int, error) {
	if limit < 0 || offset < 0 {
		return 0, ErrInvalidPage
	}
	if limit == 0 {
		return DefaultLimit, nil
	}
	return limit, nil
}

func page(results []*Result, limit, offset int) []*Result {
	if offset >= len(results) {
		return []*Result{}
	}
	results = results[offset:]
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
