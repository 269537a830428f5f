// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package embedding chunks extracted text, embeds the chunks and stores the
// vectors per (memory, model).
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/memvault/ai"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

var (
	ErrMemoryRepositoryRequired    = errors.New("memory repository required")
	ErrEmbeddingRepositoryRequired = errors.New("embedding repository required")
	ErrEmbedderRequired            = errors.New("embedder required")

	// ErrEmbeddingFailed wraps provider failures while embedding chunks.
	ErrEmbeddingFailed = errors.New("embedding failed")
)

// Store generates and persists chunk embeddings.
type Store struct {
	memories    storage.MemoryRepository
	embeddings  storage.EmbeddingRepository
	embedder    ai.Embedder
	chunker     *Chunker
	concurrency int
	logger      *slog.Logger
}

// Option configures a Store.
type Option func(*Store) error

// WithChunker replaces the default chunker. The chunker is validated.
func WithChunker(chunker *Chunker) Option {
	return func(s *Store) error {
		if chunker == nil {
			return ErrInvalidChunker
		}
		if err := chunker.Validate(); err != nil {
			return err
		}
		s.chunker = chunker
		return nil
	}
}

// WithConcurrency bounds the number of chunks embedded at once.
func WithConcurrency(n int) Option {
	return func(s *Store) error {
		if n < 1 {
			return fmt.Errorf("concurrency must be positive, got %d", n)
		}
		s.concurrency = n
		return nil
	}
}

// WithLogger sets the logger. A nil logger selects slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewStore creates an embedding store that chunks text, embeds the chunks
// with embedder and persists them under the embedder's model name.
func NewStore(memories storage.MemoryRepository, embeddings storage.EmbeddingRepository, embedder ai.Embedder, opts ...Option) (*Store, error) {
	if memories == nil {
		return nil, ErrMemoryRepositoryRequired
	}
	if embeddings == nil {
		return nil, ErrEmbeddingRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	s := &Store{
		memories:    memories,
		embeddings:  embeddings,
		embedder:    embedder,
		chunker:     NewChunker(),
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "embedding")
	return s, nil
}

// Model returns the name of the embedder's model.
func (s *Store) Model() string {
	return s.embedder.Model()
}

// Embedder returns the embedder vectors are generated with.
func (s *Store) Embedder() ai.Embedder {
	return s.embedder
}

// Generate chunks text and embeds the chunks concurrently. The returned rows
// are not persisted; their chunk indexes follow chunk order.
func (s *Store) Generate(ctx context.Context, memoryID core.ID, text string) (string, []*core.Embedding, error) {
	model := s.embedder.Model()
	chunks := s.chunker.Split(text)
	if len(chunks) == 0 {
		return model, []*core.Embedding{}, nil
	}

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			vector, err := s.embedder.EmbedText(gctx, chunk)
			if err != nil {
				return fmt.Errorf("%w: chunk %d: %w", ErrEmbeddingFailed, i, err)
			}
			if len(vector) == 0 {
				return fmt.Errorf("%w: chunk %d: %w", ErrEmbeddingFailed, i, core.ErrEmptyVector)
			}
			vectors[i] = NormalizeVector(vector)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model, nil, err
	}

	var modelName *string
	if model != "" {
		modelName = core.Ptr(model)
	}
	now := time.Now().UTC()
	embeddings := make([]*core.Embedding, len(chunks))
	for i, chunk := range chunks {
		if len(vectors[i]) != len(vectors[0]) {
			return model, nil, fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrEmbeddingFailed, i, len(vectors[i]), len(vectors[0]))
		}
		embeddings[i] = &core.Embedding{
			MemoryID:   memoryID,
			ChunkIndex: i,
			ChunkText:  clip(chunk, MaxChunkChars),
			Vector:     vectors[i],
			ModelName:  modelName,
			CreatedAt:  now,
		}
	}
	s.logger.Debug("generated embeddings", "memory", memoryID, "model", model, "chunks", len(embeddings))
	return model, embeddings, nil
}

// Embed regenerates the vectors of a memory's extracted text for the
// embedder's model and replaces that generation. Other models' vectors are
// kept. Returns the number of chunks stored.
func (s *Store) Embed(ctx context.Context, memoryID core.ID) (int, error) {
	memory, err := s.memories.GetMemory(ctx, memoryID)
	if err != nil {
		return 0, err
	}
	model, embeddings, err := s.Generate(ctx, memoryID, memory.Text())
	if err != nil {
		return 0, err
	}
	if err := s.embeddings.ReplaceEmbeddings(ctx, memoryID, model, embeddings); err != nil {
		return 0, err
	}
	s.logger.Info("embedded memory", "memory", memoryID, "model", model, "chunks", len(embeddings))
	return len(embeddings), nil
}

// Purge removes the vectors of one model for a memory.
func (s *Store) Purge(ctx context.Context, memoryID core.ID, model string) error {
	return s.embeddings.PurgeEmbeddings(ctx, memoryID, model)
}

// Models lists the models a memory has vectors for.
func (s *Store) Models(ctx context.Context, memoryID core.ID) ([]string, error) {
	return s.embeddings.ListEmbeddingModels(ctx, memoryID)
}

// Chunks returns the stored chunks of one model for a memory.
func (s *Store) Chunks(ctx context.Context, memoryID core.ID, model string) ([]*core.Embedding, error) {
	return s.embeddings.ListEmbeddings(ctx, memoryID, model)
}
