package badger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
)

// SpaceRepository implements storage.SpaceRepository for BadgerDB.
type SpaceRepository struct {
	backend *Backend
	ids     *sequences
}

var _ storage.SpaceRepository = (*SpaceRepository)(nil)

// CreateSpace stores a new space.
func (r *SpaceRepository) CreateSpace(ctx context.Context, space *core.Space) (*core.Space, error) {
	if err := core.ValidateSpace(space); err != nil {
		return nil, err
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		user, err := readUser(tx, space.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("%w: user %d", storage.ErrNotFound, space.UserID)
		}
		next, err := nextID(r.ids.spaces)
		if err != nil {
			return err
		}
		space.ID = core.ID(next)
		space.Name = strings.TrimSpace(space.Name)
		space.CreatedAt = time.Now().UTC()
		if err := writeRecord(tx, makeIDKey(spacePrefix, space.ID), space); err != nil {
			return err
		}
		if err := tx.Set(makeCompositeKey(spaceUserPrefix, uint64(space.UserID), uint64(space.ID)), nil); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return space, nil
}

// GetSpace retrieves a space by ID.
func (r *SpaceRepository) GetSpace(ctx context.Context, id core.ID) (*core.Space, error) {
	var result *core.Space
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readSpace(tx, id)
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

// ListSpaces returns the spaces owned by a user, oldest first.
func (r *SpaceRepository) ListSpaces(ctx context.Context, userID core.ID) ([]*core.Space, error) {
	var result []*core.Space
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := collectIDs(tx, makeCompositeKey(spaceUserPrefix, uint64(userID)))
		if err != nil {
			return err
		}
		for _, id := range ids {
			space, err := readSpace(tx, id)
			if err != nil {
				return err
			}
			if space != nil {
				result = append(result, space)
			}
		}
		return nil
	}, false)
	return result, err
}

// DeleteSpace removes a space that has no members.
func (r *SpaceRepository) DeleteSpace(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		space, err := readSpace(tx, id)
		if err != nil {
			return err
		}
		if space == nil {
			return storage.ErrNotFound
		}
		if hasPrefix(tx, makeCompositeKey(spaceMemoryPrefix, uint64(id))) {
			return storage.ErrRestricted
		}
		if err := tx.Delete(makeCompositeKey(spaceUserPrefix, uint64(space.UserID), uint64(id))); err != nil {
			return err
		}
		if err := tx.Delete(makeIDKey(spacePrefix, id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// AddSpaceMemory adds a memory to a space.
func (r *SpaceRepository) AddSpaceMemory(ctx context.Context, spaceID, memoryID core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		space, err := readSpace(tx, spaceID)
		if err != nil {
			return err
		}
		if space == nil {
			return fmt.Errorf("%w: space %d", storage.ErrNotFound, spaceID)
		}
		if _, err := mustReadMemory(tx, memoryID); err != nil {
			return err
		}
		if err := tx.Set(makeCompositeKey(spaceMemoryPrefix, uint64(spaceID), uint64(memoryID)), nil); err != nil {
			return err
		}
		if err := tx.Set(makeCompositeKey(memorySpacePrefix, uint64(memoryID), uint64(spaceID)), nil); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// RemoveSpaceMemory removes a memory from a space.
func (r *SpaceRepository) RemoveSpaceMemory(ctx context.Context, spaceID, memoryID core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeCompositeKey(spaceMemoryPrefix, uint64(spaceID), uint64(memoryID))); err != nil {
			return err
		}
		if err := tx.Delete(makeCompositeKey(memorySpacePrefix, uint64(memoryID), uint64(spaceID))); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListSpaceMemories returns the IDs of memories in a space.
func (r *SpaceRepository) ListSpaceMemories(ctx context.Context, spaceID core.ID) ([]core.ID, error) {
	var result []core.ID
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = collectIDs(tx, makeCompositeKey(spaceMemoryPrefix, uint64(spaceID)))
		return err
	}, false)
	return result, err
}

// ListMemorySpaces returns the IDs of spaces containing a memory.
func (r *SpaceRepository) ListMemorySpaces(ctx context.Context, memoryID core.ID) ([]core.ID, error) {
	var result []core.ID
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = collectIDs(tx, makeCompositeKey(memorySpacePrefix, uint64(memoryID)))
		return err
	}, false)
	return result, err
}
