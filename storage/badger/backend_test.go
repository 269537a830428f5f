package badger

import (
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/memvault/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	tmpDir := t.TempDir()
	backend, err := OpenBackend(tmpDir+"/nested/db", false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	assert.False(t, backend.IsClosed())
	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())
}

func TestWithTx_MapsConflict(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	key := []byte("k")
	err = backend.WithTx(func(tx *badger.Txn) error {
		// Read the key, then let a concurrent writer change it before commit.
		if _, err := tx.Get(key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		require.NoError(t, backend.WithTx(func(other *badger.Txn) error {
			if err := other.Set(key, []byte("theirs")); err != nil {
				return err
			}
			return other.Commit()
		}, true))
		if err := tx.Set(key, []byte("mine")); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestGetSequence(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	seq, err := backend.GetSequence("testseq")
	require.NoError(t, err)
	defer seq.Release()

	first, err := nextID(seq)
	require.NoError(t, err)
	second, err := nextID(seq)
	require.NoError(t, err)
	assert.NotZero(t, first)
	assert.Greater(t, second, first)
}

func TestScanKeys_Reverse(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	require.NoError(t, backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range []uint64{1, 2, 300} {
			if err := tx.Set(makeCompositeKey("idx", 7, id), nil); err != nil {
				return err
			}
		}
		if err := tx.Set(makeCompositeKey("idx", 8, 1), nil); err != nil {
			return err
		}
		return tx.Commit()
	}, true))

	var forward, reverse []uint64
	require.NoError(t, backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeCompositeKey("idx", 7)
		if err := scanKeys(tx, prefix, false, func(key []byte) error {
			forward = append(forward, uint64(lastID(key)))
			return nil
		}); err != nil {
			return err
		}
		return scanKeys(tx, prefix, true, func(key []byte) error {
			reverse = append(reverse, uint64(lastID(key)))
			return nil
		})
	}, false))

	assert.Equal(t, []uint64{1, 2, 300}, forward)
	assert.Equal(t, []uint64{300, 2, 1}, reverse)
}
