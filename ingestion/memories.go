package ingestion

import (
	"context"
	"fmt"

	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
	"github.com/poiesic/memvault/upload"
)

// owned loads a memory and hides it from anyone but its owner.
func (c *Coordinator) owned(ctx context.Context, userID, memoryID core.ID) (*core.Memory, error) {
	memory, err := c.memories.GetMemory(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	if memory.UserID != userID {
		return nil, fmt.Errorf("%w: memory %d", storage.ErrNotFound, memoryID)
	}
	return memory, nil
}

// AttachUploads adds files to an owned file memory and requests
// re-extraction. The content hash is not recomputed.
func (c *Coordinator) AttachUploads(ctx context.Context, userID, memoryID core.ID, files []upload.File) ([]*core.Upload, error) {
	memory, err := c.owned(ctx, userID, memoryID)
	if err != nil {
		return nil, err
	}
	if memory.Type != core.MemoryTypeFile {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, ErrNotFileMemory)
	}

	staged, compensate, err := c.registry.Stage(ctx, files)
	if err != nil {
		return nil, stageError(err)
	}
	added, err := c.registry.Attach(ctx, memoryID, staged)
	if err != nil {
		compensate(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}

	if _, err := c.scheduler.Reextract(ctx, memoryID); err != nil {
		return added, err
	}
	c.logger.Info("uploads attached", "memory", memoryID, "count", len(added))
	return added, nil
}

// Reextract requests a new extraction run for an owned memory.
func (c *Coordinator) Reextract(ctx context.Context, userID, memoryID core.ID) (*core.Memory, error) {
	if _, err := c.owned(ctx, userID, memoryID); err != nil {
		return nil, err
	}
	return c.scheduler.Reextract(ctx, memoryID)
}

// Delete removes an owned memory with everything derived from it, then
// deletes its blobs. Blob failures are logged, not returned.
func (c *Coordinator) Delete(ctx context.Context, userID, memoryID core.ID) error {
	if _, err := c.owned(ctx, userID, memoryID); err != nil {
		return err
	}
	uploads, err := c.memories.DeleteMemory(ctx, memoryID)
	if err != nil {
		return err
	}
	c.registry.Release(context.WithoutCancel(ctx), uploads)
	c.logger.Info("memory deleted", "memory", memoryID, "user", userID, "uploads", len(uploads))
	return nil
}

// Get returns an owned memory with its tags, extractions and uploads.
func (c *Coordinator) Get(ctx context.Context, userID, memoryID core.ID) (*Detail, error) {
	memory, err := c.owned(ctx, userID, memoryID)
	if err != nil {
		return nil, err
	}
	detail := &Detail{Memory: memory}
	if c.tags != nil {
		if detail.Tags, err = c.tags.MemoryTagNames(ctx, memoryID); err != nil {
			return nil, err
		}
	}
	if detail.Extractions, err = c.extractions.ListExtractions(ctx, memoryID); err != nil {
		return nil, err
	}
	if detail.Uploads, err = c.registry.List(ctx, memoryID); err != nil {
		return nil, err
	}
	return detail, nil
}

// List returns the memories of userID that match filter, newest first.
// filter.UserID is overridden.
func (c *Coordinator) List(ctx context.Context, userID core.ID, filter storage.MemoryFilter) ([]*core.Memory, error) {
	if filter.Offset < 0 || filter.Limit < 0 {
		return nil, fmt.Errorf("%w: negative offset or limit", storage.ErrInvalidQuery)
	}
	filter.UserID = userID
	return c.memories.ListMemories(ctx, filter)
}
