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


// Package storage provides the storage abstraction layer for memvault.
//
// This package defines repository interfaces that decouple the pipeline from
// any particular database. Two engines implement them:
//
//   - storage/badger: embedded key-value store, the default
//   - storage/gorm: relational store (SQLite or PostgreSQL) that reproduces
//     the persisted schema table-for-table
//
// # Architecture
//
// Store aggregates one repository per entity:
//
//   - UserRepository: users, unique by email
//   - MemoryRepository: memories, their status machine and the delete cascade
//   - UploadRepository: raw files attached to a memory
//   - ExtractionRepository: derived artifacts, one row per (memory, type)
//   - EmbeddingRepository: chunk vectors grouped by model
//   - TagRepository: shared tags and memory/tag links
//   - SpaceRepository: user collections and space/memory links
//
// Compound writes that must be atomic (creating a memory with its uploads,
// finishing an extraction, deleting a memory) are single repository methods
// so that every engine can run them inside one transaction.
//
// # Usage
//
//	store, err := badger.Open("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// Use in tests with in-memory storage:
//
//	store, err := badger.NewMemoryStore()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support. Pass context.Background() for operations
// without specific timeout requirements.
package storage
