package memvault

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/memvault/ai/mock"
	"github.com/poiesic/memvault/blob"
	"github.com/poiesic/memvault/config"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/ingestion"
	"github.com/poiesic/memvault/reembed"
	"github.com/poiesic/memvault/search"
	"github.com/poiesic/memvault/storage"
	"github.com/poiesic/memvault/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Storage = config.StorageConfig{Driver: config.DriverMemory}
	cfg.Blob.Root = t.TempDir()
	cfg.Extraction.PoolSize = 2
	cfg.Extraction.RetryDelay = config.Duration(time.Millisecond)
	return cfg
}

func openTest(t *testing.T, cfg *config.AppConfig) (*Database, *mock.MockProvider) {
	t.Helper()
	provider := mock.NewMockProvider()
	db, err := Open(cfg, WithProvider(provider), WithSink(blob.NewMemorySink()))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, provider
}

func TestOpen(t *testing.T) {
	t.Run("memory store", func(t *testing.T) {
		db, _ := openTest(t, testConfig(t))
		assert.NotNil(t, db.Store())
		assert.NotNil(t, db.Ingestion())
		assert.NotNil(t, db.Extraction())
		assert.NotNil(t, db.Search())
		assert.NotNil(t, db.Organizer())
		assert.NotNil(t, db.Embeddings())
		assert.NotNil(t, db.Uploads())
		assert.Equal(t, "mock-embed", db.Search().Model())
	})

	t.Run("badger on disk with file sink", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage = config.StorageConfig{Driver: config.DriverBadger, Path: filepath.Join(t.TempDir(), "db")}
		db, err := Open(cfg, WithProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		assert.NoError(t, db.Close())
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage = config.StorageConfig{Driver: config.DriverSQLite, DSN: filepath.Join(t.TempDir(), "memvault.sqlite")}
		db, err := Open(cfg, WithProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		assert.NoError(t, db.Close())
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.Driver = "mongo"
		db, err := Open(cfg)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
		assert.Nil(t, db)
	})

	t.Run("badger path is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(file, []byte("test"), 0o644))

		cfg := testConfig(t)
		cfg.Storage = config.StorageConfig{Driver: config.DriverBadger, Path: file}
		db, err := Open(cfg, WithProvider(mock.NewMockProvider()))
		assert.Error(t, err)
		assert.Nil(t, db)
	})
}

func TestEnsureUser(t *testing.T) {
	db, _ := openTest(t, testConfig(t))
	ctx := context.Background()

	first, err := db.EnsureUser(ctx, "Ada@Example.com")
	require.NoError(t, err)
	second, err := db.EnsureUser(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = db.CreateUser(ctx, "ada@example.com")
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestDatabase_EndToEnd(t *testing.T) {
	db, provider := openTest(t, testConfig(t))
	ctx := context.Background()

	user, err := db.EnsureUser(ctx, "owner@example.com")
	require.NoError(t, err)

	result, err := db.Ingestion().Ingest(ctx, user.ID, ingestion.Submission{
		Title: "Concurrency",
		Text:  "Channels coordinate goroutines in Go programs. Buffered channels decouple senders.",
	})
	require.NoError(t, err)
	require.False(t, result.Duplicate)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	memory, err := db.WaitForMemory(waitCtx, result.Memory.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusReady, memory.Status)
	require.NotNil(t, memory.Summary)
	assert.Equal(t, "Channels coordinate goroutines in Go programs.", *memory.Summary)
	assert.Positive(t, provider.GetMockExtractor().CallCount(), "extractor should be called")

	detail, err := db.Ingestion().Get(ctx, user.ID, memory.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"channels", "coordinate", "goroutines"}, detail.Tags)

	results, err := db.Search().SearchText(ctx, user.ID, "goroutines channels", search.Filters{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, memory.ID, results[0].Memory.ID)

	tag, err := db.Organizer().FindTag(ctx, "goroutines")
	require.NoError(t, err)
	results, err = db.Search().Hybrid(ctx, user.ID, "buffered senders", search.Filters{TagIDs: []core.ID{tag.ID}}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	dup, err := db.Ingestion().Ingest(ctx, user.ID, ingestion.Submission{
		Text: "Channels coordinate goroutines in Go programs. Buffered channels decouple senders.\n",
	})
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)

	require.NoError(t, db.Ingestion().Delete(ctx, user.ID, memory.ID))
	results, err = db.Search().SearchText(ctx, user.ID, "goroutines channels", search.Filters{}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDatabase_FileMemory(t *testing.T) {
	db, _ := openTest(t, testConfig(t))
	ctx := context.Background()

	user, err := db.EnsureUser(ctx, "files@example.com")
	require.NoError(t, err)

	result, err := db.Ingestion().Ingest(ctx, user.ID, ingestion.Submission{Files: []upload.File{
		{Name: "notes.txt", MimeType: "text/plain", Data: []byte("Badger stores keys in sorted order.")},
	}})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	memory, err := db.WaitForMemory(waitCtx, result.Memory.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusReady, memory.Status)
	assert.Equal(t, "Badger stores keys in sorted order.", memory.Text())
}

func TestDatabase_ProcessingDisabledResumesOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	cfg := testConfig(t)
	cfg.Storage = config.StorageConfig{Driver: config.DriverBadger, Path: path}
	cfg.Extraction.Enabled = false
	ctx := context.Background()

	db, err := Open(cfg, WithProvider(mock.NewMockProvider()), WithSink(blob.NewMemorySink()))
	require.NoError(t, err)
	user, err := db.EnsureUser(ctx, "later@example.com")
	require.NoError(t, err)
	result, err := db.Ingestion().Ingest(ctx, user.ID, ingestion.Submission{Text: "Process me later."})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	memory, err := db.Store().Memories().GetMemory(ctx, result.Memory.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, memory.Status)
	require.NoError(t, db.Close())

	cfg.Extraction.Enabled = true
	db, err = Open(cfg, WithProvider(mock.NewMockProvider()), WithSink(blob.NewMemorySink()))
	require.NoError(t, err)
	defer db.Close()

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	memory, err = db.WaitForMemory(waitCtx, result.Memory.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, memory.Status)
}

func TestDatabase_NewReembedder(t *testing.T) {
	db, _ := openTest(t, testConfig(t))
	ctx := context.Background()

	user, err := db.EnsureUser(ctx, "reembed@example.com")
	require.NoError(t, err)
	result, err := db.Ingestion().Ingest(ctx, user.ID, ingestion.Submission{Text: "Vectors age as models improve."})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = db.WaitForMemory(waitCtx, result.Memory.ID)
	require.NoError(t, err)

	next := mock.NewMockEmbedder()
	next.ModelName = "next-embed"
	reembedder, err := db.NewReembedder(next, &reembed.Config{
		BatchSize: 10, ReportInterval: 10, MaxAttempts: 1, RetryDelay: time.Millisecond,
	}, nil)
	require.NoError(t, err)

	summary, err := reembedder.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Memories)

	models, err := db.Embeddings().Models(ctx, result.Memory.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"mock-embed", "next-embed"}, models)
}
