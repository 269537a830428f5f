package badger

import (
	"context"
	"testing"

	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
	"github.com/poiesic/memvault/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		store, err := NewMemoryStore()
		require.NoError(t, err)
		return store
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(dir, false)
	require.NoError(t, err)
	user, err := store.Users().AddUser(ctx, &core.User{Email: "a@example.com"})
	require.NoError(t, err)
	memory, err := store.Memories().CreateMemory(ctx, &core.Memory{
		UserID: user.ID, Type: core.MemoryTypeText, ContentHash: "persist",
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(dir, false)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Memories().FindMemoryByHash(ctx, "persist")
	require.NoError(t, err)
	assert.Equal(t, memory.ID, got.ID)

	// Sequences continue past IDs handed out before the restart.
	next, err := store.Memories().CreateMemory(ctx, &core.Memory{
		UserID: user.ID, Type: core.MemoryTypeText, ContentHash: "persist-2",
	})
	require.NoError(t, err)
	assert.Greater(t, next.ID, memory.ID)
}

func TestStore_CloseTwice(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestStore_ClosedBackend(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Memories().GetMemory(context.Background(), 1)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}
