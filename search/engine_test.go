package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/poiesic/memvault/ai/mock"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/embedding"
	"github.com/poiesic/memvault/storage"
	"github.com/poiesic/memvault/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db     *badger.Store
	engine *Engine
	alice  *core.User
	bob    *core.User
}

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	alice, err := db.Users().AddUser(ctx, &core.User{Email: "alice@example.com"})
	require.NoError(t, err)
	bob, err := db.Users().AddUser(ctx, &core.User{Email: "bob@example.com"})
	require.NoError(t, err)

	engine, err := NewEngine(db.Memories(), db.Embeddings(), mock.NewMockEmbedder(), opts...)
	require.NoError(t, err)
	return &fixture{db: db, engine: engine, alice: alice, bob: bob}
}

// add creates a memory and, unless status is processing, finishes it with
// one chunk embedding of text.
func (f *fixture) add(t *testing.T, owner *core.User, title, text string, status core.Status, tagIDs ...core.ID) *core.Memory {
	t.Helper()
	ctx := context.Background()
	memory, err := f.db.Memories().CreateMemory(ctx, &core.Memory{
		UserID:        owner.ID,
		Type:          core.MemoryTypeText,
		Title:         core.Ptr(title),
		ExtractedText: core.Ptr(text),
		ContentHash:   title + "|" + text,
	})
	require.NoError(t, err)

	switch status {
	case core.StatusReady:
		memory, err = f.db.Memories().CompleteExtraction(ctx, memory.ID, &storage.Completion{
			Summary:        core.Ptr("about " + title),
			TagIDs:         tagIDs,
			EmbeddingModel: "mock-embed",
			Embeddings: []*core.Embedding{
				{ChunkText: text, Vector: mock.Vector(text)},
			},
		})
		require.NoError(t, err)
	case core.StatusFailed:
		memory, err = f.db.Memories().FailExtraction(ctx, memory.ID, "boom")
		require.NoError(t, err)
	}
	// keep UpdatedAt distinct for tie-break assertions
	time.Sleep(2 * time.Millisecond)
	return memory
}

func ids(results []*Result) []core.ID {
	out := make([]core.ID, len(results))
	for i, r := range results {
		out[i] = r.Memory.ID
	}
	return out
}

func TestNewEngine(t *testing.T) {
	db, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer db.Close()
	embedder := mock.NewMockEmbedder()

	t.Run("valid configuration", func(t *testing.T) {
		engine, err := NewEngine(db.Memories(), db.Embeddings(), embedder, WithLogger(slog.Default()))
		require.NoError(t, err)
		assert.Equal(t, "mock-embed", engine.Model())
	})

	t.Run("model override", func(t *testing.T) {
		engine, err := NewEngine(db.Memories(), db.Embeddings(), embedder, WithModel("other"))
		require.NoError(t, err)
		assert.Equal(t, "other", engine.Model())
	})

	t.Run("nil collaborators", func(t *testing.T) {
		_, err := NewEngine(nil, db.Embeddings(), embedder)
		assert.Equal(t, ErrMemoryRepositoryRequired, err)
		_, err = NewEngine(db.Memories(), nil, embedder)
		assert.Equal(t, ErrEmbeddingRepositoryRequired, err)
		_, err = NewEngine(db.Memories(), db.Embeddings(), nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := NewEngine(db.Memories(), db.Embeddings(), embedder, WithMinScore(2))
		assert.Error(t, err)
		_, err = NewEngine(db.Memories(), db.Embeddings(), embedder, WithHybridWeights(0, 0))
		assert.Error(t, err)
	})
}

func TestSearch_EmptyDatabase(t *testing.T) {
	f := setup(t)
	results, err := f.engine.SearchText(context.Background(), f.alice.ID, "anything", Filters{}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_RanksAndExcludesNonReady(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	golang := f.add(t, f.alice, "go", "golang concurrency channels goroutines", core.StatusReady)
	bread := f.add(t, f.alice, "bread", "baking sourdough bread at home", core.StatusReady)
	mixed := f.add(t, f.alice, "mixed", "golang bread", core.StatusReady)
	f.add(t, f.alice, "pending", "golang concurrency channels goroutines pending", core.StatusProcessing)
	f.add(t, f.alice, "broken", "golang concurrency channels goroutines broken", core.StatusFailed)
	f.add(t, f.bob, "bob", "golang concurrency channels goroutines", core.StatusReady)

	results, err := f.engine.SearchText(ctx, f.alice.ID, "golang concurrency channels", Filters{}, 10, 0)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, []core.ID{golang.ID, mixed.ID, bread.ID}, ids(results))
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	assert.Equal(t, "golang concurrency channels goroutines", results[0].Chunk)
	assert.Equal(t, 0, results[0].ChunkIndex)
	for _, r := range results {
		assert.Equal(t, core.StatusReady, r.Memory.Status)
		assert.Equal(t, f.alice.ID, r.Memory.UserID)
	}
}

func TestSearch_TieBreakNewestThenID(t *testing.T) {
	f := setup(t)
	older := f.add(t, f.alice, "a", "identical words here", core.StatusReady)
	newer := f.add(t, f.alice, "b", "identical words here", core.StatusReady)

	results, err := f.engine.SearchText(context.Background(), f.alice.ID, "identical words here", Filters{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{newer.ID, older.ID}, ids(results))
}

func TestSearch_Filters(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	red, err := f.db.Tags().GetOrCreateTag(ctx, "red")
	require.NoError(t, err)
	blue, err := f.db.Tags().GetOrCreateTag(ctx, "blue")
	require.NoError(t, err)

	both := f.add(t, f.alice, "both", "paint colors", core.StatusReady, red.ID, blue.ID)
	onlyRed := f.add(t, f.alice, "red", "paint colors red", core.StatusReady, red.ID)
	f.add(t, f.alice, "none", "paint colors plain", core.StatusReady)

	results, err := f.engine.SearchText(ctx, f.alice.ID, "paint", Filters{TagIDs: []core.ID{red.ID, blue.ID}}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{both.ID}, ids(results), "every tag must match")

	results, err = f.engine.SearchText(ctx, f.alice.ID, "paint", Filters{TagIDs: []core.ID{red.ID}}, 10, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []core.ID{both.ID, onlyRed.ID}, ids(results))

	space, err := f.db.Spaces().CreateSpace(ctx, &core.Space{UserID: f.alice.ID, Name: "art"})
	require.NoError(t, err)
	require.NoError(t, f.db.Spaces().AddSpaceMemory(ctx, space.ID, onlyRed.ID))
	results, err = f.engine.SearchText(ctx, f.alice.ID, "paint", Filters{SpaceID: space.ID}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{onlyRed.ID}, ids(results))

	results, err = f.engine.SearchText(ctx, f.alice.ID, "paint", Filters{Type: core.MemoryTypeURL}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_Pagination(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for _, text := range []string{"alpha one", "alpha two", "alpha three", "alpha four"} {
		f.add(t, f.alice, text, text, core.StatusReady)
	}

	all, err := f.engine.SearchText(ctx, f.alice.ID, "alpha", Filters{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)

	pageTwo, err := f.engine.SearchText(ctx, f.alice.ID, "alpha", Filters{}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, ids(all[2:]), ids(pageTwo))

	beyond, err := f.engine.SearchText(ctx, f.alice.ID, "alpha", Filters{}, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, beyond)

	_, err = f.engine.SearchText(ctx, f.alice.ID, "alpha", Filters{}, -1, 0)
	assert.ErrorIs(t, err, ErrInvalidPage)
	_, err = f.engine.Search(ctx, f.alice.ID, nil, Filters{}, 10, 0)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = f.engine.SearchText(ctx, f.alice.ID, "   ", Filters{}, 10, 0)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearch_MinScore(t *testing.T) {
	f := setup(t, WithMinScore(0.5))
	ctx := context.Background()
	match := f.add(t, f.alice, "m", "zebra giraffe", core.StatusReady)
	f.add(t, f.alice, "o", "spreadsheet formulas", core.StatusReady)

	results, err := f.engine.SearchText(ctx, f.alice.ID, "zebra giraffe", Filters{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{match.ID}, ids(results))
}

func TestSearch_DimensionMismatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.add(t, f.alice, "go", "golang channels", core.StatusReady)

	short := mock.Vector("golang channels")[:3]
	_, err := f.engine.Search(ctx, f.alice.ID, short, Filters{}, 10, 0)
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)

	long := append(mock.Vector("golang channels"), 1)
	_, err = f.engine.Search(ctx, f.alice.ID, long, Filters{}, 10, 0)
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)

	results, err := f.engine.Search(ctx, f.alice.ID, mock.Vector("golang channels"), Filters{}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRelated(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	source := f.add(t, f.alice, "src", "rust ownership borrowing lifetimes", core.StatusReady)
	near := f.add(t, f.alice, "near", "rust ownership borrowing", core.StatusReady)
	far := f.add(t, f.alice, "far", "knitting patterns wool", core.StatusReady)
	f.add(t, f.bob, "bob", "rust ownership borrowing lifetimes", core.StatusReady)

	results, err := f.engine.Related(ctx, f.alice.ID, source.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{near.ID, far.ID}, ids(results))

	_, err = f.engine.Related(ctx, f.bob.ID, source.ID, 5)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	pending := f.add(t, f.alice, "p", "no vectors yet", core.StatusProcessing)
	results, err = f.engine.Related(ctx, f.alice.ID, pending.ID, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestKeyword(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	inTitle := f.add(t, f.alice, "Kubernetes networking", "cluster setup notes", core.StatusReady)
	inText := f.add(t, f.alice, "misc", "some text about kubernetes networking and more", core.StatusReady)
	partial := f.add(t, f.alice, "other", "kubernetes only", core.StatusReady)
	f.add(t, f.alice, "pending", "kubernetes networking", core.StatusProcessing)

	results, err := f.engine.Keyword(ctx, f.alice.ID, "the Kubernetes networking", Filters{}, 10)
	require.NoError(t, err)
	require.Equal(t, []core.ID{inTitle.ID, inText.ID, partial.ID}, ids(results))

	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.InDelta(t, 0.6, results[1].Score, 1e-6)
	assert.InDelta(t, 0.3, results[2].Score, 1e-6)
	assert.Contains(t, results[1].Chunk, "kubernetes networking")

	results, err = f.engine.Keyword(ctx, f.alice.ID, "the and of", Filters{}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHybrid(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	both := f.add(t, f.alice, "postgres indexing", "postgres indexing btree", core.StatusReady)
	semanticOnly := f.add(t, f.alice, "misc", "btree", core.StatusReady)

	results, err := f.engine.Hybrid(ctx, f.alice.ID, "postgres indexing", Filters{}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, both.ID, results[0].Memory.ID)
	assert.InDelta(t, 0.7*results[0].SemanticScore+0.3*results[0].KeywordScore, results[0].Score, 1e-6)
	assert.InDelta(t, 1.0, results[0].KeywordScore, 1e-6)

	for _, r := range results {
		if r.Memory.ID == semanticOnly.ID {
			assert.Zero(t, r.KeywordScore)
		}
	}
}

type testMonitor struct {
	started    int
	candidates []core.ID
	scored     int
	finished   []*Result
}

func (m *testMonitor) Start(userID core.ID, query []float32) { m.started++ }
func (m *testMonitor) AfterCandidateSelection(ids []core.ID) { m.candidates = ids }
func (m *testMonitor) AfterScoring(results []*Result)        { m.scored = len(results) }
func (m *testMonitor) Finish(results []*Result)              { m.finished = results }

func TestSearchWithMonitor(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.add(t, f.alice, "a", "monitor me", core.StatusReady)
	b := f.add(t, f.alice, "b", "monitor you", core.StatusReady)

	monitor := &testMonitor{}
	results, err := f.engine.SearchWithMonitor(ctx, f.alice.ID, mock.Vector("monitor"), Filters{}, 1, 0, monitor)
	require.NoError(t, err)

	assert.Equal(t, 1, monitor.started)
	assert.ElementsMatch(t, []core.ID{a.ID, b.ID}, monitor.candidates)
	assert.Equal(t, 2, monitor.scored)
	assert.Equal(t, results, monitor.finished)
	assert.Len(t, results, 1)
}
