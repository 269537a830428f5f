package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
)

// UserRepository implements storage.UserRepository for BadgerDB.
type UserRepository struct {
	backend *Backend
	ids     *sequences
}

var _ storage.UserRepository = (*UserRepository)(nil)

// AddUser stores a new user with a unique email.
func (r *UserRepository) AddUser(ctx context.Context, user *core.User) (*core.User, error) {
	if err := core.ValidateUser(user); err != nil {
		return nil, err
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		user.Email = core.NormalizeEmail(user.Email)
		emailKey := makeStringKey(userEmailPrefix, user.Email)
		exists, err := keyExists(tx, emailKey)
		if err != nil {
			return err
		}
		if exists {
			return storage.ErrDuplicateKey
		}

		nextID, err := nextID(r.ids.users)
		if err != nil {
			return err
		}
		user.ID = core.ID(nextID)
		user.CreatedAt = time.Now().UTC()

		if err := writeRecord(tx, makeIDKey(userPrefix, user.ID), user); err != nil {
			return err
		}
		if err := tx.Set(emailKey, storage.MarshalID(user.ID)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id core.ID) (*core.User, error) {
	var result *core.User
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readUser(tx, id)
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

// FindUserByEmail retrieves a user by email.
func (r *UserRepository) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	var result *core.User
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		id, err := readIDValue(tx, makeStringKey(userEmailPrefix, core.NormalizeEmail(email)))
		if err != nil {
			return err
		}
		if id == 0 {
			return storage.ErrNotFound
		}
		result, err = readUser(tx, id)
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

// DeleteUser removes a user that owns no memories or spaces.
func (r *UserRepository) DeleteUser(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		user, err := readUser(tx, id)
		if err != nil {
			return err
		}
		if user == nil {
			return storage.ErrNotFound
		}
		if hasPrefix(tx, makeCompositeKey(memoryUserPrefix, uint64(id))) ||
			hasPrefix(tx, makeCompositeKey(spaceUserPrefix, uint64(id))) {
			return storage.ErrRestricted
		}
		if err := tx.Delete(makeStringKey(userEmailPrefix, user.Email)); err != nil {
			return err
		}
		if err := tx.Delete(makeIDKey(userPrefix, id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
