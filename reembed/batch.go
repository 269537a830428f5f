package reembed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/embedding"
	"github.com/poiesic/memvault/retry"
)

// BatchResult counts what one batch produced.
type BatchResult struct {
	Memories int
	Chunks   int
	Purged   int
}

// BatchProcessor re-embeds batches of memories.
type BatchProcessor struct {
	store          *embedding.Store
	maxAttempts    int
	retryBaseDelay time.Duration
	purge          bool
	logger         *slog.Logger
}

// NewBatchProcessor creates a new batch processor.
// maxAttempts: maximum number of attempts per memory
// retryBaseDelay: base delay for exponential backoff
// purge: drop vectors of every other model once a memory is re-embedded
func NewBatchProcessor(store *embedding.Store, maxAttempts int, retryBaseDelay time.Duration, purge bool, logger *slog.Logger) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		store:          store,
		maxAttempts:    maxAttempts,
		retryBaseDelay: retryBaseDelay,
		purge:          purge,
		logger:         logger,
	}
}

// Process re-embeds every memory in the batch with the store's model.
// The first memory that still fails after retries aborts the batch.
func (bp *BatchProcessor) Process(ctx context.Context, memories []*core.Memory) (BatchResult, error) {
	var result BatchResult
	for _, memory := range memories {
		var chunks int
		err := retry.Do(ctx, func() error {
			var err error
			chunks, err = bp.store.Embed(ctx, memory.ID)
			return err
		}, bp.maxAttempts, bp.retryBaseDelay)
		if err != nil {
			return result, fmt.Errorf("memory %d: failed to embed after %d attempts: %w", memory.ID, bp.maxAttempts, err)
		}
		result.Memories++
		result.Chunks += chunks

		if bp.purge {
			purged, err := bp.purgeOthers(ctx, memory.ID)
			if err != nil {
				return result, fmt.Errorf("memory %d: failed to purge old vectors: %w", memory.ID, err)
			}
			result.Purged += purged
		}
	}
	return result, nil
}

func (bp *BatchProcessor) purgeOthers(ctx context.Context, memoryID core.ID) (int, error) {
	models, err := bp.store.Models(ctx, memoryID)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, model := range models {
		if model == bp.store.Model() {
			continue
		}
		if err := bp.store.Purge(ctx, memoryID, model); err != nil {
			return purged, err
		}
		bp.logger.Debug("purged vectors", "memory", memoryID, "model", model)
		purged++
	}
	return purged, nil
}
