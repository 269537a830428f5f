package memvault

import (
	"context"

	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
)

// deferredScheduler is used when extraction is disabled. Memories are left
// in processing and picked up by the next process that opens the store with
// extraction enabled.
type deferredScheduler struct {
	memories storage.MemoryRepository
}

func (s *deferredScheduler) Submit(core.ID) bool { return false }

func (s *deferredScheduler) Reextract(ctx context.Context, memoryID core.ID) (*core.Memory, error) {
	memory, err := s.memories.GetMemory(ctx, memoryID)
	if err != nil || memory.Status == core.StatusProcessing {
		return memory, err
	}
	return s.memories.TransitionStatus(ctx, memoryID, core.StatusProcessing,
		core.StatusReady, core.StatusFailed)
}
