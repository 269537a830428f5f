package badger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
)

// TagRepository implements storage.TagRepository for BadgerDB.
type TagRepository struct {
	backend *Backend
	ids     *sequences
}

var _ storage.TagRepository = (*TagRepository)(nil)

// GetOrCreateTag finds or creates a tag by normalized name.
func (r *TagRepository) GetOrCreateTag(ctx context.Context, name string) (*core.Tag, error) {
	if err := core.ValidateTagName(name); err != nil {
		return nil, err
	}

	// Try to find existing tag
	tag, err := r.FindTagByName(ctx, name)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	// Try to add it (may fail due to race condition)
	added, err := r.addTag(core.NormalizeTagName(name))
	if err != nil {
		// If add failed, try to find it again (someone else may have created it)
		tag, findErr := r.FindTagByName(ctx, name)
		if findErr == nil {
			return tag, nil
		}
		return nil, err
	}
	return added, nil
}

func (r *TagRepository) addTag(name string) (*core.Tag, error) {
	tag := &core.Tag{Name: name}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		nameKey := makeStringKey(tagNamePrefix, name)
		exists, err := keyExists(tx, nameKey)
		if err != nil {
			return err
		}
		if exists {
			return storage.ErrDuplicateKey
		}
		next, err := nextID(r.ids.tags)
		if err != nil {
			return err
		}
		tag.ID = core.ID(next)
		if err := writeRecord(tx, makeIDKey(tagPrefix, tag.ID), tag); err != nil {
			return err
		}
		if err := tx.Set(nameKey, storage.MarshalID(tag.ID)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return tag, nil
}

// GetTag retrieves a tag by ID.
func (r *TagRepository) GetTag(ctx context.Context, id core.ID) (*core.Tag, error) {
	var result *core.Tag
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readTag(tx, id)
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

// FindTagByName retrieves a tag by name, case-insensitively.
func (r *TagRepository) FindTagByName(ctx context.Context, name string) (*core.Tag, error) {
	var result *core.Tag
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		id, err := readIDValue(tx, makeStringKey(tagNamePrefix, core.NormalizeTagName(name)))
		if err != nil {
			return err
		}
		if id == 0 {
			return storage.ErrNotFound
		}
		result, err = readTag(tx, id)
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

// ListTags returns all tags ordered by name.
func (r *TagRepository) ListTags(ctx context.Context) ([]*core.Tag, error) {
	var result []*core.Tag
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// The name index iterates in name order.
		return scanValues(tx, []byte(tagNamePrefix+":"), func(val []byte) error {
			id, err := storage.UnmarshalID(val)
			if err != nil {
				return err
			}
			tag, err := readTag(tx, id)
			if err != nil {
				return err
			}
			if tag != nil {
				result = append(result, tag)
			}
			return nil
		})
	}, false)
	return result, err
}

// AddMemoryTag links a memory to a tag.
func (r *TagRepository) AddMemoryTag(ctx context.Context, memoryID, tagID core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := mustReadMemory(tx, memoryID); err != nil {
			return err
		}
		if err := linkMemoryTag(tx, memoryID, tagID); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// RemoveMemoryTag unlinks a memory from a tag.
func (r *TagRepository) RemoveMemoryTag(ctx context.Context, memoryID, tagID core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeCompositeKey(memoryTagPrefix, uint64(memoryID), uint64(tagID))); err != nil {
			return err
		}
		if err := tx.Delete(makeCompositeKey(tagMemoryPrefix, uint64(tagID), uint64(memoryID))); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListMemoryTags returns the tags linked to a memory ordered by name.
func (r *TagRepository) ListMemoryTags(ctx context.Context, memoryID core.ID) ([]*core.Tag, error) {
	var result []*core.Tag
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		tagIDs, err := collectIDs(tx, makeCompositeKey(memoryTagPrefix, uint64(memoryID)))
		if err != nil {
			return err
		}
		for _, id := range tagIDs {
			tag, err := readTag(tx, id)
			if err != nil {
				return err
			}
			if tag != nil {
				result = append(result, tag)
			}
		}
		return nil
	}, false)
	slices.SortFunc(result, func(a, b *core.Tag) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, err
}

// DeleteTag removes a tag that no memory is linked to.
func (r *TagRepository) DeleteTag(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		tag, err := readTag(tx, id)
		if err != nil {
			return err
		}
		if tag == nil {
			return storage.ErrNotFound
		}
		if hasPrefix(tx, makeCompositeKey(tagMemoryPrefix, uint64(id))) {
			return storage.ErrRestricted
		}
		if err := tx.Delete(makeStringKey(tagNamePrefix, tag.Name)); err != nil {
			return err
		}
		if err := tx.Delete(makeIDKey(tagPrefix, id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// linkMemoryTag writes both directions of a memory/tag link.
// Re-writing an existing link leaves the set unchanged.
func linkMemoryTag(tx *badger.Txn, memoryID, tagID core.ID) error {
	tag, err := readTag(tx, tagID)
	if err != nil {
		return err
	}
	if tag == nil {
		return fmt.Errorf("%w: tag %d", storage.ErrNotFound, tagID)
	}
	if err := tx.Set(makeCompositeKey(memoryTagPrefix, uint64(memoryID), uint64(tagID)), nil); err != nil {
		return err
	}
	return tx.Set(makeCompositeKey(tagMemoryPrefix, uint64(tagID), uint64(memoryID)), nil)
}
