package badger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
)

// MemoryRepository implements storage.MemoryRepository for BadgerDB.
type MemoryRepository struct {
	backend *Backend
	ids     *sequences
}

var _ storage.MemoryRepository = (*MemoryRepository)(nil)

// CreateMemory stores a memory and its uploads in one transaction.
func (r *MemoryRepository) CreateMemory(ctx context.Context, memory *core.Memory, uploads ...*core.Upload) (*core.Memory, error) {
	memory.Status = core.StatusProcessing
	if err := core.ValidateMemory(memory); err != nil {
		return nil, err
	}
	for _, upload := range uploads {
		if err := core.ValidateUpload(upload); err != nil {
			return nil, err
		}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		user, err := readUser(tx, memory.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("%w: user %d", storage.ErrNotFound, memory.UserID)
		}

		hashKey := makeStringKey(memoryHashPrefix, memory.ContentHash)
		exists, err := keyExists(tx, hashKey)
		if err != nil {
			return err
		}
		if exists {
			return storage.ErrDuplicateKey
		}

		nextID, err := nextID(r.ids.memories)
		if err != nil {
			return err
		}
		memory.ID = core.ID(nextID)
		memory.CreatedAt = createdMicros(time.Now())
		memory.UpdatedAt = memory.CreatedAt

		if err := writeRecord(tx, makeIDKey(memoryPrefix, memory.ID), memory); err != nil {
			return err
		}
		if err := tx.Set(hashKey, storage.MarshalID(memory.ID)); err != nil {
			return err
		}
		if err := tx.Set(makeMemoryUserKey(memory), nil); err != nil {
			return err
		}
		if err := tx.Set(makeMemoryTimeKey(memory), nil); err != nil {
			return err
		}

		for _, upload := range uploads {
			if err := insertUpload(tx, r.ids, memory.ID, upload); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return memory, nil
}

// GetMemory retrieves a memory by ID.
func (r *MemoryRepository) GetMemory(ctx context.Context, id core.ID) (*core.Memory, error) {
	var result *core.Memory
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = mustReadMemory(tx, id)
		return err
	}, false)
	return result, err
}

// GetMemories retrieves multiple memories by their IDs.
func (r *MemoryRepository) GetMemories(ctx context.Context, ids ...core.ID) ([]*core.Memory, error) {
	var result []*core.Memory
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			memory, err := readMemory(tx, id)
			if err != nil {
				return err
			}
			if memory != nil {
				result = append(result, memory)
			}
		}
		return nil
	}, false)
	return result, err
}

// FindMemoryByHash retrieves the memory with the given content hash.
func (r *MemoryRepository) FindMemoryByHash(ctx context.Context, hash string) (*core.Memory, error) {
	var result *core.Memory
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		id, err := readIDValue(tx, makeStringKey(memoryHashPrefix, hash))
		if err != nil {
			return err
		}
		if id == 0 {
			return storage.ErrNotFound
		}
		result, err = mustReadMemory(tx, id)
		return err
	}, false)
	return result, err
}

// ListMemories returns memories matching filter, newest first.
func (r *MemoryRepository) ListMemories(ctx context.Context, filter storage.MemoryFilter) ([]*core.Memory, error) {
	if filter.Offset < 0 || filter.Limit < 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.Memory
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		candidates, err := r.candidateIDs(tx, filter)
		if err != nil {
			return err
		}
		for _, id := range candidates {
			memory, err := readMemory(tx, id)
			if err != nil {
				return err
			}
			if memory == nil {
				continue
			}
			ok, err := matchesFilter(tx, memory, filter)
			if err != nil {
				return err
			}
			if ok {
				results = append(results, memory)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(results, func(a, b *core.Memory) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID > b.ID {
			return -1
		}
		if a.ID < b.ID {
			return 1
		}
		return 0
	})
	return paginate(results, filter.Offset, filter.Limit), nil
}

// candidateIDs picks the narrowest index for filter.
func (r *MemoryRepository) candidateIDs(tx *badger.Txn, filter storage.MemoryFilter) ([]core.ID, error) {
	var prefix []byte
	switch {
	case filter.SpaceID != 0:
		prefix = makeCompositeKey(spaceMemoryPrefix, uint64(filter.SpaceID))
	case len(filter.TagIDs) > 0:
		prefix = makeCompositeKey(tagMemoryPrefix, uint64(filter.TagIDs[0]))
	case filter.UserID != 0:
		prefix = makeCompositeKey(memoryUserPrefix, uint64(filter.UserID))
	default:
		prefix = []byte(memoryTimePrefix + ":")
	}

	var ids []core.ID
	err := scanKeys(tx, prefix, true, func(key []byte) error {
		ids = append(ids, lastID(key))
		return nil
	})
	return ids, err
}

func matchesFilter(tx *badger.Txn, memory *core.Memory, filter storage.MemoryFilter) (bool, error) {
	if filter.UserID != 0 && memory.UserID != filter.UserID {
		return false, nil
	}
	if filter.Type != "" && memory.Type != filter.Type {
		return false, nil
	}
	if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, memory.Status) {
		return false, nil
	}
	if filter.SpaceID != 0 {
		ok, err := keyExists(tx, makeCompositeKey(spaceMemoryPrefix, uint64(filter.SpaceID), uint64(memory.ID)))
		if err != nil || !ok {
			return false, err
		}
	}
	for _, tagID := range filter.TagIDs {
		ok, err := keyExists(tx, makeCompositeKey(memoryTagPrefix, uint64(memory.ID), uint64(tagID)))
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// UpdateMemory stores title, summary and source URL changes.
func (r *MemoryRepository) UpdateMemory(ctx context.Context, memory *core.Memory) (*core.Memory, error) {
	var result *core.Memory
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		current, err := mustReadMemory(tx, memory.ID)
		if err != nil {
			return err
		}
		current.Title = memory.Title
		current.Summary = memory.Summary
		current.SourceURL = memory.SourceURL
		current.UpdatedAt = time.Now().UTC()
		if err := writeRecord(tx, makeIDKey(memoryPrefix, current.ID), current); err != nil {
			return err
		}
		result = current
		return tx.Commit()
	}, true)
	return result, err
}

// TransitionStatus moves a memory to `to` if its status is one of from.
func (r *MemoryRepository) TransitionStatus(ctx context.Context, id core.ID, to core.Status, from ...core.Status) (*core.Memory, error) {
	if err := core.ValidateStatus(to); err != nil {
		return nil, err
	}
	var result *core.Memory
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		memory, err := mustReadMemory(tx, id)
		if err != nil {
			return err
		}
		if !slices.Contains(from, memory.Status) {
			return fmt.Errorf("%w: memory %d is %s", storage.ErrStatusConflict, id, memory.Status)
		}
		memory.Status = to
		memory.UpdatedAt = time.Now().UTC()
		if err := writeRecord(tx, makeIDKey(memoryPrefix, id), memory); err != nil {
			return err
		}
		result = memory
		return tx.Commit()
	}, true)
	return result, err
}

// CompleteExtraction applies an extraction result and marks the memory ready.
func (r *MemoryRepository) CompleteExtraction(ctx context.Context, id core.ID, completion *storage.Completion) (*core.Memory, error) {
	for _, extraction := range completion.Extractions {
		if err := core.ValidateExtraction(extraction); err != nil {
			return nil, err
		}
	}
	for _, embedding := range completion.Embeddings {
		if err := core.ValidateEmbedding(embedding); err != nil {
			return nil, err
		}
	}

	var result *core.Memory
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		memory, err := mustReadMemory(tx, id)
		if err != nil {
			return err
		}
		if memory.Status != core.StatusProcessing {
			return fmt.Errorf("%w: memory %d is %s", storage.ErrStatusConflict, id, memory.Status)
		}

		produced := make(map[core.ExtractionType]bool, len(completion.Extractions))
		for _, extraction := range completion.Extractions {
			if err := upsertExtraction(tx, r.ids, id, extraction); err != nil {
				return err
			}
			produced[extraction.ExtractionType] = true
		}
		if err := pruneExtractions(tx, id, produced); err != nil {
			return err
		}

		for _, tagID := range completion.TagIDs {
			if err := linkMemoryTag(tx, id, tagID); err != nil {
				return err
			}
		}

		if completion.Embeddings != nil {
			if err := replaceEmbeddings(tx, r.ids, id, completion.EmbeddingModel, completion.Embeddings); err != nil {
				return err
			}
		}

		if completion.ExtractedText != nil {
			memory.ExtractedText = completion.ExtractedText
		}
		if completion.Summary != nil {
			memory.Summary = completion.Summary
		}
		memory.Status = core.StatusReady
		memory.UpdatedAt = time.Now().UTC()
		if err := writeRecord(tx, makeIDKey(memoryPrefix, id), memory); err != nil {
			return err
		}
		result = memory
		return tx.Commit()
	}, true)
	return result, err
}

// FailExtraction marks a processing memory failed and records the cause.
func (r *MemoryRepository) FailExtraction(ctx context.Context, id core.ID, cause string) (*core.Memory, error) {
	var result *core.Memory
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		memory, err := mustReadMemory(tx, id)
		if err != nil {
			return err
		}
		if memory.Status != core.StatusProcessing {
			return fmt.Errorf("%w: memory %d is %s", storage.ErrStatusConflict, id, memory.Status)
		}
		errorRow := &core.Extraction{ExtractionType: core.ExtractionError, Content: cause}
		if err := upsertExtraction(tx, r.ids, id, errorRow); err != nil {
			return err
		}
		memory.Status = core.StatusFailed
		memory.UpdatedAt = time.Now().UTC()
		if err := writeRecord(tx, makeIDKey(memoryPrefix, id), memory); err != nil {
			return err
		}
		result = memory
		return tx.Commit()
	}, true)
	return result, err
}

// DeleteMemory removes a memory and every row that references it.
func (r *MemoryRepository) DeleteMemory(ctx context.Context, id core.ID) ([]*core.Upload, error) {
	var removed []*core.Upload
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		memory, err := mustReadMemory(tx, id)
		if err != nil {
			return err
		}

		uploads, err := readUploads(tx, id)
		if err != nil {
			return err
		}
		for _, upload := range uploads {
			if err := tx.Delete(makeIDKey(uploadIDPrefix, upload.ID)); err != nil {
				return err
			}
		}
		removed = uploads

		// Reverse links are keyed from the other side.
		tagIDs, err := collectIDs(tx, makeCompositeKey(memoryTagPrefix, uint64(id)))
		if err != nil {
			return err
		}
		for _, tagID := range tagIDs {
			if err := tx.Delete(makeCompositeKey(tagMemoryPrefix, uint64(tagID), uint64(id))); err != nil {
				return err
			}
		}
		spaceIDs, err := collectIDs(tx, makeCompositeKey(memorySpacePrefix, uint64(id)))
		if err != nil {
			return err
		}
		for _, spaceID := range spaceIDs {
			if err := tx.Delete(makeCompositeKey(spaceMemoryPrefix, uint64(spaceID), uint64(id))); err != nil {
				return err
			}
		}

		for _, prefix := range [][]byte{
			makeCompositeKey(uploadPrefix, uint64(id)),
			makeCompositeKey(extractionPrefix, uint64(id)),
			makeCompositeKey(embeddingPrefix, uint64(id)),
			makeCompositeKey(memoryTagPrefix, uint64(id)),
			makeCompositeKey(memorySpacePrefix, uint64(id)),
		} {
			if err := deletePrefix(tx, prefix); err != nil {
				return err
			}
		}

		for _, key := range [][]byte{
			makeStringKey(memoryHashPrefix, memory.ContentHash),
			makeMemoryUserKey(memory),
			makeMemoryTimeKey(memory),
			makeIDKey(memoryPrefix, id),
		} {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// deletePrefix removes every key under prefix.
func deletePrefix(tx *badger.Txn, prefix []byte) error {
	var keys [][]byte
	err := scanKeys(tx, prefix, false, func(key []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// pruneExtractions deletes the memory's extractions whose type is not in keep.
func pruneExtractions(tx *badger.Txn, memoryID core.ID, keep map[core.ExtractionType]bool) error {
	prefix := makeCompositeKey(extractionPrefix, uint64(memoryID))
	var stale [][]byte
	err := scanKeys(tx, prefix, false, func(key []byte) error {
		if !keep[core.ExtractionType(key[len(prefix):])] {
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range stale {
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// collectIDs returns the trailing IDs of the composite keys under prefix.
func collectIDs(tx *badger.Txn, prefix []byte) ([]core.ID, error) {
	var ids []core.ID
	err := scanKeys(tx, prefix, false, func(key []byte) error {
		ids = append(ids, lastID(key))
		return nil
	})
	return ids, err
}
