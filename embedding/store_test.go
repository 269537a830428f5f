package embedding

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/poiesic/memvault/ai"
	"github.com/poiesic/memvault/ai/mock"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T, embedder ai.Embedder, opts ...Option) (*Store, *badger.Store, *core.Memory) {
	t.Helper()
	ctx := context.Background()
	db, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	user, err := db.Users().AddUser(ctx, &core.User{Email: "a@example.com"})
	require.NoError(t, err)
	text := strings.Repeat("Memories are chunked into passages. ", 40)
	memory, err := db.Memories().CreateMemory(ctx, &core.Memory{
		UserID:        user.ID,
		Type:          core.MemoryTypeText,
		ExtractedText: &text,
		ContentHash:   "hash-1",
	})
	require.NoError(t, err)

	store, err := NewStore(db.Memories(), db.Embeddings(), embedder, opts...)
	require.NoError(t, err)
	return store, db, memory
}

func TestNewStore_RequiresCollaborators(t *testing.T) {
	db, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewStore(nil, db.Embeddings(), mock.NewMockEmbedder())
	assert.ErrorIs(t, err, ErrMemoryRepositoryRequired)
	_, err = NewStore(db.Memories(), nil, mock.NewMockEmbedder())
	assert.ErrorIs(t, err, ErrEmbeddingRepositoryRequired)
	_, err = NewStore(db.Memories(), db.Embeddings(), nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
	_, err = NewStore(db.Memories(), db.Embeddings(), mock.NewMockEmbedder(), WithConcurrency(0))
	assert.Error(t, err)
	_, err = NewStore(db.Memories(), db.Embeddings(), mock.NewMockEmbedder(), WithChunker(&Chunker{ChunkSize: 10, Overlap: 10}))
	assert.ErrorIs(t, err, ErrInvalidChunker)
}

func TestGenerate_IndexesFollowChunkOrder(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	store, _, memory := setupStore(t, embedder, WithConcurrency(3))

	model, embeddings, err := store.Generate(context.Background(), memory.ID, memory.Text())
	require.NoError(t, err)
	assert.Equal(t, "mock-embed", model)

	chunks := NewChunker().Split(memory.Text())
	require.Len(t, embeddings, len(chunks))
	require.Greater(t, len(chunks), 1)
	for i, e := range embeddings {
		assert.Equal(t, i, e.ChunkIndex)
		assert.Equal(t, chunks[i], e.ChunkText)
		assert.Equal(t, memory.ID, e.MemoryID)
		norm, err := Dot(e.Vector, e.Vector)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, norm, 1e-5)
	}
	assert.Equal(t, len(chunks), embedder.CallCount())
}

func TestGenerate_NormalizesVectors(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{3, 4}, nil
	}
	store, _, memory := setupStore(t, embedder)

	_, embeddings, err := store.Generate(context.Background(), memory.ID, "short text")
	require.NoError(t, err)
	require.Len(t, embeddings, 1)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, embeddings[0].Vector, 1e-6)
}

func TestGenerate_EmptyText(t *testing.T) {
	store, _, memory := setupStore(t, mock.NewMockEmbedder())
	_, embeddings, err := store.Generate(context.Background(), memory.ID, "  ")
	require.NoError(t, err)
	assert.Empty(t, embeddings)
}

func TestGenerate_CapsChunkText(t *testing.T) {
	store, _, memory := setupStore(t, mock.NewMockEmbedder(), WithChunker(&Chunker{ChunkSize: 6000, Overlap: 0}))
	_, embeddings, err := store.Generate(context.Background(), memory.ID, strings.Repeat("a", 5500))
	require.NoError(t, err)
	require.Len(t, embeddings, 1)
	assert.Len(t, embeddings[0].ChunkText, MaxChunkChars)
}

func TestGenerate_ProviderFailure(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	var calls atomic.Int32
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if calls.Add(1) == 2 {
			return nil, ai.Transient(errors.New("timeout"))
		}
		return mock.Vector(text), nil
	}
	store, _, memory := setupStore(t, embedder, WithConcurrency(1))

	_, _, err := store.Generate(context.Background(), memory.ID, memory.Text())
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.True(t, ai.IsTransient(err))
}

func TestGenerate_DimensionMismatch(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if strings.HasPrefix(text, "Memories") {
			return []float32{1, 0, 0}, nil
		}
		return []float32{1, 0}, nil
	}
	store, _, memory := setupStore(t, embedder)

	_, _, err := store.Generate(context.Background(), memory.ID, memory.Text())
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestEmbed_ReplacesOnlyItsModel(t *testing.T) {
	ctx := context.Background()
	first := mock.NewMockEmbedder()
	store, db, memory := setupStore(t, first)

	count, err := store.Embed(ctx, memory.ID)
	require.NoError(t, err)
	assert.Positive(t, count)

	second := mock.NewMockEmbedder()
	second.ModelName = "mock-embed-v2"
	other, err := NewStore(db.Memories(), db.Embeddings(), second)
	require.NoError(t, err)
	_, err = other.Embed(ctx, memory.ID)
	require.NoError(t, err)

	models, err := store.Models(ctx, memory.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"mock-embed", "mock-embed-v2"}, models)

	// re-embedding replaces instead of appending
	again, err := store.Embed(ctx, memory.ID)
	require.NoError(t, err)
	chunks, err := store.Chunks(ctx, memory.ID, "mock-embed")
	require.NoError(t, err)
	assert.Len(t, chunks, again)

	require.NoError(t, store.Purge(ctx, memory.ID, "mock-embed"))
	models, err = store.Models(ctx, memory.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"mock-embed-v2"}, models)
}

func TestEmbed_MissingMemory(t *testing.T) {
	store, _, _ := setupStore(t, mock.NewMockEmbedder())
	_, err := store.Embed(context.Background(), 9999)
	assert.Error(t, err)
}
