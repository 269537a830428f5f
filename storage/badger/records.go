package badger

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
)

// readRecord reads and decodes a record from the transaction.
// Returns nil, nil if the key doesn't exist.
func readRecord[T any](tx *badger.Txn, key []byte) (*T, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var record *T
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.Unmarshal[T](val)
		return unmarshalErr
	})
	return record, err
}

// writeRecord encodes and stores a record.
func writeRecord[T any](tx *badger.Txn, key []byte, record *T) error {
	value, err := storage.Marshal(record)
	if err != nil {
		return err
	}
	return tx.Set(key, value)
}

// readIDValue reads an index entry whose value is an ID.
// Returns 0, nil if the key doesn't exist.
func readIDValue(tx *badger.Txn, key []byte) (core.ID, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var id core.ID
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		id, unmarshalErr = storage.UnmarshalID(val)
		return unmarshalErr
	})
	return id, err
}

// keyExists reports whether key is present.
func keyExists(tx *badger.Txn, key []byte) (bool, error) {
	_, err := tx.Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return false, err
}

func readUser(tx *badger.Txn, id core.ID) (*core.User, error) {
	return readRecord[core.User](tx, makeIDKey(userPrefix, id))
}

func readMemory(tx *badger.Txn, id core.ID) (*core.Memory, error) {
	return readRecord[core.Memory](tx, makeIDKey(memoryPrefix, id))
}

func readTag(tx *badger.Txn, id core.ID) (*core.Tag, error) {
	return readRecord[core.Tag](tx, makeIDKey(tagPrefix, id))
}

func readSpace(tx *badger.Txn, id core.ID) (*core.Space, error) {
	return readRecord[core.Space](tx, makeIDKey(spacePrefix, id))
}

// mustReadMemory reads a memory and maps absence to storage.ErrNotFound.
func mustReadMemory(tx *badger.Txn, id core.ID) (*core.Memory, error) {
	memory, err := readMemory(tx, id)
	if err != nil {
		return nil, err
	}
	if memory == nil {
		return nil, storage.ErrNotFound
	}
	return memory, nil
}
