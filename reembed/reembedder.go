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


package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/embedding"
	"github.com/poiesic/memvault/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of memories to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of memories)
	ReportInterval int

	// MaxAttempts is the maximum number of attempts per memory
	MaxAttempts int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Purge removes vectors of other models after a memory is re-embedded
	Purge bool

	// UserID restricts the run to one owner; 0 means every user
	UserID core.ID
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxAttempts:    3,
		RetryDelay:     1 * time.Second,
	}
}

// Summary reports what a run did.
type Summary struct {
	Model    string
	Memories int
	Chunks   int
	Purged   int
	Elapsed  time.Duration
}

// Reembedder re-embeds all ready memories with the store's current model.
type Reembedder struct {
	memories  storage.MemoryRepository
	store     *embedding.Store
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *MemoryIterator
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(memories storage.MemoryRepository, store *embedding.Store, config *Config, progress io.Writer, logger *slog.Logger) (*Reembedder, error) {
	if memories == nil {
		return nil, ErrMemoryRepositoryRequired
	}
	if store == nil {
		return nil, ErrEmbeddingStoreRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reembed")

	return &Reembedder{
		memories:  memories,
		store:     store,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(store, config.MaxAttempts, config.RetryDelay, config.Purge, logger),
		iterator:  NewMemoryIterator(memories, config.BatchSize, config.UserID),
	}, nil
}

// Run re-embeds every ready memory. Progress is reported to the configured
// writer. A memory that cannot be embedded stops the run; memories already
// processed keep their new vectors.
func (r *Reembedder) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{Model: r.store.Model()}

	total, err := r.iterator.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count memories: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No ready memories found (0 memories)\n")
		return summary, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d memories with %s (batch size: %d)\n",
		total, summary.Model, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, func(batch []*core.Memory) error {
		result, err := r.processor.Process(ctx, batch)
		summary.Memories += result.Memories
		summary.Chunks += result.Chunks
		summary.Purged += result.Purged
		tracker.Add(result.Memories, result.Chunks)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		return nil
	})
	summary.Elapsed = tracker.Elapsed()
	tracker.Finish(err == nil)
	if err != nil {
		return summary, err
	}

	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d memories (%d chunks) in %v\n",
		summary.Memories, summary.Chunks, summary.Elapsed.Round(time.Millisecond))
	return summary, nil
}
