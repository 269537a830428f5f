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

	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
)

const (
	// DefaultBatchSize is the default number of memories to fetch in each batch
	DefaultBatchSize = 100
)

// MemoryIterator pages over ready memories in batches.
type MemoryIterator struct {
	repo      storage.MemoryRepository
	batchSize int
	userID    core.ID
}

// NewMemoryIterator creates a new memory iterator.
// batchSize: number of memories to fetch in each batch (must be > 0)
// userID: restricts iteration to one owner; 0 means all users
func NewMemoryIterator(repo storage.MemoryRepository, batchSize int, userID core.ID) *MemoryIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &MemoryIterator{
		repo:      repo,
		batchSize: batchSize,
		userID:    userID,
	}
}

func (it *MemoryIterator) filter() storage.MemoryFilter {
	return storage.MemoryFilter{
		UserID:   it.userID,
		Statuses: []core.Status{core.StatusReady},
	}
}

// Count returns the number of memories ForEach would visit.
func (it *MemoryIterator) Count(ctx context.Context) (int, error) {
	memories, err := it.repo.ListMemories(ctx, it.filter())
	if err != nil {
		return 0, err
	}
	return len(memories), nil
}

// ForEach fetches ready memories one page at a time and calls fn for each
// page. Iteration stops on the first error from fn or when a short page is
// returned. Context cancellation is checked between batches.
func (it *MemoryIterator) ForEach(ctx context.Context, fn func([]*core.Memory) error) error {
	filter := it.filter()
	filter.Limit = it.batchSize

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := it.repo.ListMemories(ctx, filter)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < it.batchSize {
			return nil
		}
		filter.Offset += len(batch)
	}
}
