// Package cache memoizes embeddings of repeated query text.
package cache

import (
	"context"
	"slices"
	"strings"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/poiesic/memvault/ai"
)

// Embedder wraps an ai.Embedder with a ristretto cache keyed by model and
// trimmed text. Each entry costs 1, so capacity is counted in vectors.
type Embedder struct {
	inner ai.Embedder
	cache *ristretto.Cache[string, []float32]
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder returns a caching embedder holding up to maxItems vectors.
func NewEmbedder(inner ai.Embedder, maxItems int64) (*Embedder, error) {
	if maxItems < 1 {
		maxItems = 1
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
		NumCounters:        maxItems * 10,
		MaxCost:            maxItems,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Embedder{inner: inner, cache: cache}, nil
}

func (e *Embedder) Model() string {
	return e.inner.Model()
}

func (e *Embedder) key(text string) string {
	return e.inner.Model() + "\x00" + strings.TrimSpace(text)
}

// EmbedText returns the cached vector for text or computes and stores it.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if vector, ok := e.cache.Get(key); ok {
		return slices.Clone(vector), nil
	}
	vector, err := e.inner.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, slices.Clone(vector), 1)
	return vector, nil
}

// EmbedTexts serves hits from the cache and sends the misses to the inner
// embedder in one batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if vector, ok := e.cache.Get(e.key(text)); ok {
			result[i] = slices.Clone(vector)
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return result, nil
	}

	batch := make([]string, len(missing))
	for j, i := range missing {
		batch[j] = texts[i]
	}
	vectors, err := e.inner.EmbedTexts(ctx, batch)
	if err != nil {
		return nil, err
	}
	for j, i := range missing {
		result[i] = vectors[j]
		e.cache.Set(e.key(texts[i]), slices.Clone(vectors[j]), 1)
	}
	return result, nil
}

// Wait blocks until pending cache writes are visible.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close releases the cache.
func (e *Embedder) Close() {
	e.cache.Close()
}
