package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
)

// UploadRepository implements storage.UploadRepository for BadgerDB.
type UploadRepository struct {
	backend *Backend
	ids     *sequences
}

var _ storage.UploadRepository = (*UploadRepository)(nil)

// AddUploads attaches uploads to an existing memory.
func (r *UploadRepository) AddUploads(ctx context.Context, memoryID core.ID, uploads ...*core.Upload) ([]*core.Upload, error) {
	for _, upload := range uploads {
		if err := core.ValidateUpload(upload); err != nil {
			return nil, err
		}
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := mustReadMemory(tx, memoryID); err != nil {
			return err
		}
		for _, upload := range uploads {
			if err := insertUpload(tx, r.ids, memoryID, upload); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return uploads, nil
}

// GetUpload retrieves an upload by ID.
func (r *UploadRepository) GetUpload(ctx context.Context, id core.ID) (*core.Upload, error) {
	var result *core.Upload
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		memoryID, err := readIDValue(tx, makeIDKey(uploadIDPrefix, id))
		if err != nil {
			return err
		}
		if memoryID == 0 {
			return storage.ErrNotFound
		}
		result, err = readRecord[core.Upload](tx, makeCompositeKey(uploadPrefix, uint64(memoryID), uint64(id)))
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

// ListUploads returns the uploads of a memory in insertion order.
func (r *UploadRepository) ListUploads(ctx context.Context, memoryID core.ID) ([]*core.Upload, error) {
	var result []*core.Upload
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readUploads(tx, memoryID)
		return err
	}, false)
	return result, err
}

// insertUpload assigns an ID and stores an upload under its memory.
func insertUpload(tx *badger.Txn, ids *sequences, memoryID core.ID, upload *core.Upload) error {
	next, err := nextID(ids.uploads)
	if err != nil {
		return err
	}
	upload.ID = core.ID(next)
	upload.MemoryID = memoryID
	upload.CreatedAt = time.Now().UTC()

	if err := writeRecord(tx, makeCompositeKey(uploadPrefix, uint64(memoryID), uint64(upload.ID)), upload); err != nil {
		return fmt.Errorf("storing upload: %w", err)
	}
	return tx.Set(makeIDKey(uploadIDPrefix, upload.ID), storage.MarshalID(memoryID))
}

func readUploads(tx *badger.Txn, memoryID core.ID) ([]*core.Upload, error) {
	var uploads []*core.Upload
	err := scanValues(tx, makeCompositeKey(uploadPrefix, uint64(memoryID)), func(val []byte) error {
		upload, err := storage.Unmarshal[core.Upload](val)
		if err != nil {
			return err
		}
		uploads = append(uploads, upload)
		return nil
	})
	return uploads, err
}
