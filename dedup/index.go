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


package dedup

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
)

// Index answers "is this content already stored?" by content hash.
//
// The hash is unique across all users, so a hit may belong to someone else.
// The caller receives the existing memory either way; ownership does not
// change and the hit is logged.
type Index struct {
	memories storage.MemoryRepository
	logger   *slog.Logger
}

// NewIndex creates an index over the memory repository.
func NewIndex(memories storage.MemoryRepository, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{memories: memories, logger: logger.With("component", "dedup")}
}

// Lookup returns the memory stored under hash, or nil when there is none.
func (x *Index) Lookup(ctx context.Context, userID core.ID, hash string) (*core.Memory, error) {
	if hash == "" {
		return nil, core.ErrEmptyContentHash
	}
	memory, err := x.memories.FindMemoryByHash(ctx, hash)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if memory.UserID != userID {
		x.logger.Info("content already stored by another user",
			"memory", memory.ID, "owner", memory.UserID, "user", userID)
	}
	return memory, nil
}
