package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
)

// ExtractionRepository implements storage.ExtractionRepository for BadgerDB.
type ExtractionRepository struct {
	backend *Backend
	ids     *sequences
}

var _ storage.ExtractionRepository = (*ExtractionRepository)(nil)

// UpsertExtractions stores extractions keyed by (memory, type).
func (r *ExtractionRepository) UpsertExtractions(ctx context.Context, memoryID core.ID, extractions ...*core.Extraction) error {
	for _, extraction := range extractions {
		if err := core.ValidateExtraction(extraction); err != nil {
			return err
		}
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := mustReadMemory(tx, memoryID); err != nil {
			return err
		}
		for _, extraction := range extractions {
			if err := upsertExtraction(tx, r.ids, memoryID, extraction); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetExtraction retrieves the extraction of one type.
func (r *ExtractionRepository) GetExtraction(ctx context.Context, memoryID core.ID, extractionType core.ExtractionType) (*core.Extraction, error) {
	var result *core.Extraction
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord[core.Extraction](tx, makeExtractionKey(memoryID, extractionType))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// ListExtractions returns all extractions of a memory ordered by type.
func (r *ExtractionRepository) ListExtractions(ctx context.Context, memoryID core.ID) ([]*core.Extraction, error) {
	var result []*core.Extraction
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanValues(tx, makeCompositeKey(extractionPrefix, uint64(memoryID)), func(val []byte) error {
			extraction, err := storage.Unmarshal[core.Extraction](val)
			if err != nil {
				return err
			}
			result = append(result, extraction)
			return nil
		})
	}, false)
	return result, err
}

// upsertExtraction overwrites the row for (memoryID, type), keeping its ID.
func upsertExtraction(tx *badger.Txn, ids *sequences, memoryID core.ID, extraction *core.Extraction) error {
	key := makeExtractionKey(memoryID, extraction.ExtractionType)
	existing, err := readRecord[core.Extraction](tx, key)
	if err != nil {
		return err
	}
	if existing != nil {
		extraction.ID = existing.ID
	} else {
		next, err := nextID(ids.extractions)
		if err != nil {
			return err
		}
		extraction.ID = core.ID(next)
	}
	extraction.MemoryID = memoryID
	extraction.CreatedAt = time.Now().UTC()
	return writeRecord(tx, key, extraction)
}
