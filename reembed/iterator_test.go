package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
	"github.com/poiesic/memvault/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*badger.Store, *core.User) {
	t.Helper()
	db, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	user, err := db.Users().AddUser(context.Background(), &core.User{Email: "reembed@example.com"})
	require.NoError(t, err)
	return db, user
}

// addMemories stores n ready text memories owned by userID.
func addMemories(t *testing.T, db *badger.Store, userID core.ID, n int) []*core.Memory {
	t.Helper()
	ctx := context.Background()
	memories := make([]*core.Memory, n)
	for i := range n {
		text := fmt.Sprintf("memory number %d about embeddings", i)
		memory, err := db.Memories().CreateMemory(ctx, &core.Memory{
			UserID:        userID,
			Type:          core.MemoryTypeText,
			ExtractedText: core.Ptr(text),
			ContentHash:   fmt.Sprintf("hash-%d-%d", userID, i),
		})
		require.NoError(t, err)
		memory, err = db.Memories().CompleteExtraction(ctx, memory.ID, &storage.Completion{})
		require.NoError(t, err)
		memories[i] = memory
	}
	return memories
}

func TestMemoryIterator_Basic(t *testing.T) {
	db, user := setupTestDB(t)
	ctx := context.Background()
	addMemories(t, db, user.ID, 3)

	iter := NewMemoryIterator(db.Memories(), 2, 0)
	var ids []core.ID
	err := iter.ForEach(ctx, func(memories []*core.Memory) error {
		for _, m := range memories {
			ids = append(ids, m.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	count, err := iter.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMemoryIterator_BatchSizes(t *testing.T) {
	db, user := setupTestDB(t)
	ctx := context.Background()
	addMemories(t, db, user.ID, 10)

	tests := []struct {
		name          string
		batchSize     int
		expectedBatch int
	}{
		{"batch size 1", 1, 10},
		{"batch size 3", 3, 4}, // 3+3+3+1
		{"batch size 5", 5, 2}, // 5+5
		{"batch size 10", 10, 1},
		{"batch size 100", 100, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iter := NewMemoryIterator(db.Memories(), tt.batchSize, 0)
			batchCount := 0
			seen := make(map[core.ID]bool)

			err := iter.ForEach(ctx, func(memories []*core.Memory) error {
				batchCount++
				assert.LessOrEqual(t, len(memories), tt.batchSize, "batch should not exceed batchSize")
				for _, m := range memories {
					seen[m.ID] = true
				}
				return nil
			})

			require.NoError(t, err)
			assert.Equal(t, tt.expectedBatch, batchCount, "batch count")
			assert.Len(t, seen, 10, "every memory visited once")
		})
	}
}

func TestMemoryIterator_SkipsNotReadyAndOtherUsers(t *testing.T) {
	db, user := setupTestDB(t)
	ctx := context.Background()
	addMemories(t, db, user.ID, 2)

	other, err := db.Users().AddUser(ctx, &core.User{Email: "other@example.com"})
	require.NoError(t, err)
	addMemories(t, db, other.ID, 1)

	_, err = db.Memories().CreateMemory(ctx, &core.Memory{
		UserID:        user.ID,
		Type:          core.MemoryTypeText,
		ExtractedText: core.Ptr("still processing"),
		ContentHash:   "pending",
	})
	require.NoError(t, err)

	count, err := NewMemoryIterator(db.Memories(), 10, user.ID).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = NewMemoryIterator(db.Memories(), 10, 0).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMemoryIterator_EmptyDatabase(t *testing.T) {
	db, _ := setupTestDB(t)

	called := false
	err := NewMemoryIterator(db.Memories(), 10, 0).ForEach(context.Background(), func([]*core.Memory) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called, "callback should not be called for empty database")
}

func TestMemoryIterator_ErrorHandling(t *testing.T) {
	db, user := setupTestDB(t)
	addMemories(t, db, user.ID, 5)

	boom := errors.New("stop")
	calls := 0
	err := NewMemoryIterator(db.Memories(), 2, 0).ForEach(context.Background(), func([]*core.Memory) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestMemoryIterator_ContextCancellation(t *testing.T) {
	db, user := setupTestDB(t)
	addMemories(t, db, user.ID, 5)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewMemoryIterator(db.Memories(), 2, 0).ForEach(ctx, func([]*core.Memory) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
