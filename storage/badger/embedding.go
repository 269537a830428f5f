package badger

import (
	"bytes"
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
)

// EmbeddingRepository implements storage.EmbeddingRepository for BadgerDB.
type EmbeddingRepository struct {
	backend *Backend
	ids     *sequences
}

var _ storage.EmbeddingRepository = (*EmbeddingRepository)(nil)

// ReplaceEmbeddings swaps the vectors of one (memory, model) generation.
func (r *EmbeddingRepository) ReplaceEmbeddings(ctx context.Context, memoryID core.ID, model string, embeddings []*core.Embedding) error {
	for _, embedding := range embeddings {
		if err := core.ValidateEmbedding(embedding); err != nil {
			return err
		}
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := mustReadMemory(tx, memoryID); err != nil {
			return err
		}
		if err := replaceEmbeddings(tx, r.ids, memoryID, model, embeddings); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListEmbeddings returns one generation ordered by chunk index.
func (r *EmbeddingRepository) ListEmbeddings(ctx context.Context, memoryID core.ID, model string) ([]*core.Embedding, error) {
	var result []*core.Embedding
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readEmbeddings(tx, memoryID, model)
		return err
	}, false)
	return result, err
}

// ListEmbeddingsForMemories returns the given model's chunks keyed by memory.
func (r *EmbeddingRepository) ListEmbeddingsForMemories(ctx context.Context, model string, memoryIDs ...core.ID) (map[core.ID][]*core.Embedding, error) {
	result := make(map[core.ID][]*core.Embedding, len(memoryIDs))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range memoryIDs {
			embeddings, err := readEmbeddings(tx, id, model)
			if err != nil {
				return err
			}
			if len(embeddings) > 0 {
				result[id] = embeddings
			}
		}
		return nil
	}, false)
	return result, err
}

// PurgeEmbeddings removes one generation.
func (r *EmbeddingRepository) PurgeEmbeddings(ctx context.Context, memoryID core.ID, model string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := deletePrefix(tx, makeEmbeddingModelPrefix(memoryID, model)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListEmbeddingModels returns the distinct model names stored for a memory.
func (r *EmbeddingRepository) ListEmbeddingModels(ctx context.Context, memoryID core.ID) ([]string, error) {
	var models []string
	prefix := makeCompositeKey(embeddingPrefix, uint64(memoryID))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanKeys(tx, prefix, false, func(key []byte) error {
			rest := key[len(prefix):]
			end := bytes.IndexByte(rest, modelNameSeparator)
			if end < 0 {
				return nil
			}
			model := string(rest[:end])
			if len(models) == 0 || models[len(models)-1] != model {
				models = append(models, model)
			}
			return nil
		})
	}, false)
	return models, err
}

// replaceEmbeddings deletes the (memoryID, model) generation and writes
// embeddings with contiguous chunk indexes.
func replaceEmbeddings(tx *badger.Txn, ids *sequences, memoryID core.ID, model string, embeddings []*core.Embedding) error {
	if err := deletePrefix(tx, makeEmbeddingModelPrefix(memoryID, model)); err != nil {
		return err
	}
	var modelName *string
	if model != "" {
		modelName = &model
	}
	now := time.Now().UTC()
	for i, embedding := range embeddings {
		next, err := nextID(ids.embeddings)
		if err != nil {
			return err
		}
		embedding.ID = core.ID(next)
		embedding.MemoryID = memoryID
		embedding.ChunkIndex = i
		embedding.ModelName = modelName
		embedding.CreatedAt = now

		value, err := storage.MarshalEmbedding(embedding)
		if err != nil {
			return err
		}
		if err := tx.Set(makeEmbeddingKey(memoryID, model, i), value); err != nil {
			return err
		}
	}
	return nil
}

func readEmbeddings(tx *badger.Txn, memoryID core.ID, model string) ([]*core.Embedding, error) {
	var embeddings []*core.Embedding
	err := scanValues(tx, makeEmbeddingModelPrefix(memoryID, model), func(val []byte) error {
		embedding, err := storage.UnmarshalEmbedding(val)
		if err != nil {
			return err
		}
		embeddings = append(embeddings, embedding)
		return nil
	})
	return embeddings, err
}
