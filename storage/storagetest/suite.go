// Package storagetest holds the behavioral tests every storage engine must pass.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Opener returns a fresh, empty store. The suite closes it.
type Opener func(t *testing.T) storage.Store

// Run executes the conformance suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"Users", testUsers},
		{"CreateMemory", testCreateMemory},
		{"CreateMemoryDuplicateHash", testCreateMemoryDuplicateHash},
		{"CreateMemoryUnknownUser", testCreateMemoryUnknownUser},
		{"ListMemories", testListMemories},
		{"ListMemoriesFilters", testListMemoriesFilters},
		{"TransitionStatus", testTransitionStatus},
		{"CompleteExtraction", testCompleteExtraction},
		{"CompleteExtractionIdempotent", testCompleteExtractionIdempotent},
		{"CompleteExtractionDropsStaleTypes", testCompleteExtractionDropsStaleTypes},
		{"FailExtraction", testFailExtraction},
		{"DeleteMemoryCascade", testDeleteMemoryCascade},
		{"DeleteRestricted", testDeleteRestricted},
		{"Uploads", testUploads},
		{"Embeddings", testEmbeddings},
		{"Tags", testTags},
		{"ConcurrentGetOrCreateTag", testConcurrentGetOrCreateTag},
		{"Spaces", testSpaces},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

func addUser(t *testing.T, s storage.Store, email string) *core.User {
	t.Helper()
	user, err := s.Users().AddUser(context.Background(), &core.User{Email: email})
	require.NoError(t, err)
	return user
}

func addMemory(t *testing.T, s storage.Store, userID core.ID, hash string, uploads ...*core.Upload) *core.Memory {
	t.Helper()
	memory, err := s.Memories().CreateMemory(context.Background(), &core.Memory{
		UserID:        userID,
		Type:          core.MemoryTypeText,
		Title:         core.Ptr("title " + hash),
		ExtractedText: core.Ptr("text " + hash),
		ContentHash:   hash,
	}, uploads...)
	require.NoError(t, err)
	return memory
}

func vec(v ...float32) []float32 { return v }

func testUsers(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := addUser(t, s, "Ada@Example.com")
	assert.NotZero(t, user.ID)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.False(t, user.CreatedAt.IsZero())

	found, err := s.Users().FindUserByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = s.Users().AddUser(ctx, &core.User{Email: "ada@example.com"})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = s.Users().GetUser(ctx, 9999)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.Users().AddUser(ctx, &core.User{Email: ""})
	assert.ErrorIs(t, err, core.ErrValidation)

	require.NoError(t, s.Users().DeleteUser(ctx, user.ID))
	_, err = s.Users().GetUser(ctx, user.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testCreateMemory(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := addUser(t, s, "a@example.com")
	upload := &core.Upload{FileURL: "/files/a.pdf", FileType: core.FileTypePDF, MimeType: core.Ptr("application/pdf"), FileSize: 42}
	memory := addMemory(t, s, user.ID, "h1", upload)

	assert.NotZero(t, memory.ID)
	assert.Equal(t, core.StatusProcessing, memory.Status)
	assert.False(t, memory.CreatedAt.IsZero())
	assert.Equal(t, memory.ID, upload.MemoryID)
	assert.NotZero(t, upload.ID)

	got, err := s.Memories().GetMemory(ctx, memory.ID)
	require.NoError(t, err)
	assert.Equal(t, "h1", got.ContentHash)
	assert.Equal(t, "title h1", got.TitleOrEmpty())

	byHash, err := s.Memories().FindMemoryByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, memory.ID, byHash.ID)

	_, err = s.Memories().FindMemoryByHash(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	uploads, err := s.Uploads().ListUploads(ctx, memory.ID)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, int64(42), uploads[0].FileSize)
	assert.Equal(t, "application/pdf", *uploads[0].MimeType)

	many, err := s.Memories().GetMemories(ctx, memory.ID, 9999)
	require.NoError(t, err)
	assert.Len(t, many, 1)
}

func testCreateMemoryDuplicateHash(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := addUser(t, s, "a@example.com")
	b := addUser(t, s, "b@example.com")
	first := addMemory(t, s, a.ID, "same")

	upload := &core.Upload{FileURL: "/files/x", FileType: core.FileTypeText}
	_, err := s.Memories().CreateMemory(ctx, &core.Memory{
		UserID: b.ID, Type: core.MemoryTypeText, ContentHash: "same",
	}, upload)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// The failed create must not leave its upload behind.
	uploads, err := s.Uploads().ListUploads(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, uploads)

	all, err := s.Memories().ListMemories(ctx, storage.MemoryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testCreateMemoryUnknownUser(t *testing.T, s storage.Store) {
	_, err := s.Memories().CreateMemory(context.Background(), &core.Memory{
		UserID: 424242, Type: core.MemoryTypeText, ContentHash: "x",
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testListMemories(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := addUser(t, s, "a@example.com")
	b := addUser(t, s, "b@example.com")
	var ids []core.ID
	for i := range 5 {
		ids = append(ids, addMemory(t, s, a.ID, fmt.Sprintf("a%d", i)).ID)
	}
	addMemory(t, s, b.ID, "b0")

	list, err := s.Memories().ListMemories(ctx, storage.MemoryFilter{UserID: a.ID})
	require.NoError(t, err)
	require.Len(t, list, 5)
	// Newest first.
	for i, m := range list {
		assert.Equal(t, ids[len(ids)-1-i], m.ID)
	}

	page, err := s.Memories().ListMemories(ctx, storage.MemoryFilter{UserID: a.ID, Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)

	past, err := s.Memories().ListMemories(ctx, storage.MemoryFilter{UserID: a.ID, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past)

	all, err := s.Memories().ListMemories(ctx, storage.MemoryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 6)

	_, err = s.Memories().ListMemories(ctx, storage.MemoryFilter{Offset: -1})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func testListMemoriesFilters(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := addUser(t, s, "a@example.com")
	m1 := addMemory(t, s, user.ID, "m1")
	m2 := addMemory(t, s, user.ID, "m2")
	m3 := addMemory(t, s, user.ID, "m3")

	_, err := s.Memories().TransitionStatus(ctx, m1.ID, core.StatusReady, core.StatusProcessing)
	require.NoError(t, err)
	_, err = s.Memories().TransitionStatus(ctx, m2.ID, core.StatusReady, core.StatusProcessing)
	require.NoError(t, err)

	ready, err := s.Memories().ListMemories(ctx, storage.MemoryFilter{UserID: user.ID, Statuses: []core.Status{core.StatusReady}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []core.ID{m1.ID, m2.ID}, memoryIDs(ready))

	red, err := s.Tags().GetOrCreateTag(ctx, "red")
	require.NoError(t, err)
	blue, err := s.Tags().GetOrCreateTag(ctx, "blue")
	require.NoError(t, err)
	require.NoError(t, s.Tags().AddMemoryTag(ctx, m1.ID, red.ID))
	require.NoError(t, s.Tags().AddMemoryTag(ctx, m1.ID, blue.ID))
	require.NoError(t, s.Tags().AddMemoryTag(ctx, m2.ID, red.ID))
	require.NoError(t, s.Tags().AddMemoryTag(ctx, m3.ID, blue.ID))

	both, err := s.Memories().ListMemories(ctx, storage.MemoryFilter{UserID: user.ID, TagIDs: []core.ID{red.ID, blue.ID}})
	require.NoError(t, err)
	assert.Equal(t, []core.ID{m1.ID}, memoryIDs(both))

	redOnly, err := s.Memories().ListMemories(ctx, storage.MemoryFilter{UserID: user.ID, TagIDs: []core.ID{red.ID}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []core.ID{m1.ID, m2.ID}, memoryIDs(redOnly))

	space, err := s.Spaces().CreateSpace(ctx, &core.Space{UserID: user.ID, Name: "work"})
	require.NoError(t, err)
	require.NoError(t, s.Spaces().AddSpaceMemory(ctx, space.ID, m2.ID))
	require.NoError(t, s.Spaces().AddSpaceMemory(ctx, space.ID, m3.ID))

	inSpace, err := s.Memories().ListMemories(ctx, storage.MemoryFilter{UserID: user.ID, SpaceID: space.ID})
	require.NoError(t, err)
	assert.Equal(t, []core.ID{m3.ID, m2.ID}, memoryIDs(inSpace))

	combined, err := s.Memories().ListMemories(ctx, storage.MemoryFilter{
		UserID:   user.ID,
		SpaceID:  space.ID,
		TagIDs:   []core.ID{red.ID},
		Statuses: []core.Status{core.StatusReady},
	})
	require.NoError(t, err)
	assert.Equal(t, []core.ID{m2.ID}, memoryIDs(combined))

	byType, err := s.Memories().ListMemories(ctx, storage.MemoryFilter{UserID: user.ID, Type: core.MemoryTypeURL})
	require.NoError(t, err)
	assert.Empty(t, byType)
}

func memoryIDs(memories []*core.Memory) []core.ID {
	ids := make([]core.ID, 0, len(memories))
	for _, m := range memories {
		ids = append(ids, m.ID)
	}
	return ids
}

func testTransitionStatus(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := addUser(t, s, "a@example.com")
	memory := addMemory(t, s, user.ID, "h")

	_, err := s.Memories().TransitionStatus(ctx, memory.ID, core.StatusProcessing, core.StatusReady, core.StatusFailed)
	assert.ErrorIs(t, err, storage.ErrStatusConflict)

	updated, err := s.Memories().TransitionStatus(ctx, memory.ID, core.StatusFailed, core.StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, updated.Status)

	updated, err = s.Memories().TransitionStatus(ctx, memory.ID, core.StatusProcessing, core.StatusReady, core.StatusFailed)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, updated.Status)

	_, err = s.Memories().TransitionStatus(ctx, 9999, core.StatusReady, core.StatusProcessing)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.Memories().TransitionStatus(ctx, memory.ID, core.Status("bogus"), core.StatusProcessing)
	assert.ErrorIs(t, err, core.ErrInvalidStatus)
}

func testCompleteExtraction(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := addUser(t, s, "a@example.com")
	memory := addMemory(t, s, user.ID, "h")
	userTag, err := s.Tags().GetOrCreateTag(ctx, "mine")
	require.NoError(t, err)
	require.NoError(t, s.Tags().AddMemoryTag(ctx, memory.ID, userTag.ID))
	suggested, err := s.Tags().GetOrCreateTag(ctx, "go")
	require.NoError(t, err)

	confidence := 0.9
	done, err := s.Memories().CompleteExtraction(ctx, memory.ID, &storage.Completion{
		ExtractedText: core.Ptr("full text"),
		Summary:       core.Ptr("short"),
		Extractions: []*core.Extraction{
			{ExtractionType: core.ExtractionSummary, Content: "short", Confidence: &confidence},
			{ExtractionType: core.ExtractionTags, Content: `["go"]`},
		},
		TagIDs:         []core.ID{suggested.ID},
		EmbeddingModel: "m1",
		Embeddings: []*core.Embedding{
			{ChunkText: "full", Vector: vec(1, 0)},
			{ChunkText: "text", Vector: vec(0, 1)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, done.Status)
	assert.Equal(t, "full text", done.Text())
	assert.Equal(t, "short", *done.Summary)

	got, err := s.Memories().GetMemory(ctx, memory.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, got.Status)

	extractions, err := s.Extractions().ListExtractions(ctx, memory.ID)
	require.NoError(t, err)
	assert.Len(t, extractions, 2)

	summary, err := s.Extractions().GetExtraction(ctx, memory.ID, core.ExtractionSummary)
	require.NoError(t, err)
	require.NotNil(t, summary.Confidence)
	assert.InDelta(t, 0.9, *summary.Confidence, 1e-9)

	tags, err := s.Tags().ListMemoryTags(ctx, memory.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "mine"}, tagNames(tags))

	embeddings, err := s.Embeddings().ListEmbeddings(ctx, memory.ID, "m1")
	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	assert.Equal(t, 0, embeddings[0].ChunkIndex)
	assert.Equal(t, 1, embeddings[1].ChunkIndex)
	assert.Equal(t, vec(0, 1), embeddings[1].Vector)

	// A ready memory cannot be completed again without re-extraction.
	_, err = s.Memories().CompleteExtraction(ctx, memory.ID, &storage.Completion{})
	assert.ErrorIs(t, err, storage.ErrStatusConflict)

	_, err = s.Memories().CompleteExtraction(ctx, 9999, &storage.Completion{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func tagNames(tags []*core.Tag) []string {
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	return names
}

func testCompleteExtractionIdempotent(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := addUser(t, s, "a@example.com")
	memory := addMemory(t, s, user.ID, "h")
	tag, err := s.Tags().GetOrCreateTag(ctx, "go")
	require.NoError(t, err)

	for i := range 3 {
		if i > 0 {
			_, err := s.Memories().TransitionStatus(ctx, memory.ID, core.StatusProcessing, core.StatusReady, core.StatusFailed)
			require.NoError(t, err)
		}
		_, err := s.Memories().CompleteExtraction(ctx, memory.ID, &storage.Completion{
			Summary: core.Ptr(fmt.Sprintf("summary %d", i)),
			Extractions: []*core.Extraction{
				{ExtractionType: core.ExtractionSummary, Content: fmt.Sprintf("summary %d", i)},
			},
			TagIDs:         []core.ID{tag.ID},
			EmbeddingModel: "m1",
			Embeddings:     []*core.Embedding{{ChunkText: "a", Vector: vec(1)}},
		})
		require.NoError(t, err)
	}

	extractions, err := s.Extractions().ListExtractions(ctx, memory.ID)
	require.NoError(t, err)
	require.Len(t, extractions, 1)
	assert.Equal(t, "summary 2", extractions[0].Content)

	embeddings, err := s.Embeddings().ListEmbeddings(ctx, memory.ID, "m1")
	require.NoError(t, err)
	assert.Len(t, embeddings, 1)

	tags, err := s.Tags().ListMemoryTags(ctx, memory.ID)
	require.NoError(t, err)
	assert.Len(t, tags, 1)
}

func testCompleteExtractionDropsStaleTypes(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := addUser(t, s, "a@example.com")
	memory := addMemory(t, s, user.ID, "h")

	_, err := s.Memories().CompleteExtraction(ctx, memory.ID, &storage.Completion{
		Extractions: []*core.Extraction{
			{ExtractionType: core.ExtractionSummary, Content: "old summary"},
			{ExtractionType: core.ExtractionTags, Content: "go, storage"},
			{ExtractionType: core.ExtractionTranscription, Content: "old transcript"},
		},
	})
	require.NoError(t, err)
	first, err := s.Extractions().GetExtraction(ctx, memory.ID, core.ExtractionSummary)
	require.NoError(t, err)

	_, err = s.Memories().TransitionStatus(ctx, memory.ID, core.StatusProcessing, core.StatusReady)
	require.NoError(t, err)
	_, err = s.Memories().CompleteExtraction(ctx, memory.ID, &storage.Completion{
		Extractions: []*core.Extraction{
			{ExtractionType: core.ExtractionSummary, Content: "new summary"},
		},
	})
	require.NoError(t, err)

	extractions, err := s.Extractions().ListExtractions(ctx, memory.ID)
	require.NoError(t, err)
	require.Len(t, extractions, 1)
	assert.Equal(t, core.ExtractionSummary, extractions[0].ExtractionType)
	assert.Equal(t, "new summary", extractions[0].Content)
	assert.Equal(t, first.ID, extractions[0].ID, "surviving types keep their row")

	for _, stale := range []core.ExtractionType{core.ExtractionTags, core.ExtractionTranscription} {
		_, err = s.Extractions().GetExtraction(ctx, memory.ID, stale)
		assert.ErrorIs(t, err, storage.ErrNotFound, stale)
	}

	// A run that produces nothing leaves no extractions behind.
	_, err = s.Memories().TransitionStatus(ctx, memory.ID, core.StatusProcessing, core.StatusReady)
	require.NoError(t, err)
	_, err = s.Memories().CompleteExtraction(ctx, memory.ID, &storage.Completion{})
	require.NoError(t, err)
	extractions, err = s.Extractions().ListExtractions(ctx, memory.ID)
	require.NoError(t, err)
	assert.Empty(t, extractions)
}

func testFailExtraction(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := addUser(t, s, "a@example.com")
	memory := addMemory(t, s, user.ID, "h")

	failed, err := s.Memories().FailExtraction(ctx, memory.ID, "provider said no")
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, failed.Status)

	cause, err := s.Extractions().GetExtraction(ctx, memory.ID, core.ExtractionError)
	require.NoError(t, err)
	assert.Equal(t, "provider said no", cause.Content)

	_, err = s.Memories().FailExtraction(ctx, memory.ID, "again")
	assert.ErrorIs(t, err, storage.ErrStatusConflict)

	// A later success clears the recorded cause.
	_, err = s.Memories().TransitionStatus(ctx, memory.ID, core.StatusProcessing, core.StatusFailed)
	require.NoError(t, err)
	_, err = s.Memories().CompleteExtraction(ctx, memory.ID, &storage.Completion{})
	require.NoError(t, err)
	_, err = s.Extractions().GetExtraction(ctx, memory.ID, core.ExtractionError)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testDeleteMemoryCascade(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := addUser(t, s, "a@example.com")
	upload := &core.Upload{FileURL: "/files/a.txt", FileType: core.FileTypeText, FileSize: 3}
	memory := addMemory(t, s, user.ID, "h", upload)
	other := addMemory(t, s, user.ID, "other")

	tag, err := s.Tags().GetOrCreateTag(ctx, "go")
	require.NoError(t, err)
	space, err := s.Spaces().CreateSpace(ctx, &core.Space{UserID: user.ID, Name: "s"})
	require.NoError(t, err)
	require.NoError(t, s.Spaces().AddSpaceMemory(ctx, space.ID, memory.ID))
	require.NoError(t, s.Spaces().AddSpaceMemory(ctx, space.ID, other.ID))
	require.NoError(t, s.Tags().AddMemoryTag(ctx, other.ID, tag.ID))
	_, err = s.Memories().CompleteExtraction(ctx, memory.ID, &storage.Completion{
		Extractions:    []*core.Extraction{{ExtractionType: core.ExtractionSummary, Content: "s"}},
		TagIDs:         []core.ID{tag.ID},
		EmbeddingModel: "m1",
		Embeddings:     []*core.Embedding{{ChunkText: "a", Vector: vec(1)}},
	})
	require.NoError(t, err)
	require.NoError(t, s.Embeddings().ReplaceEmbeddings(ctx, memory.ID, "m2", []*core.Embedding{{ChunkText: "a", Vector: vec(1)}}))

	removed, err := s.Memories().DeleteMemory(ctx, memory.ID)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "/files/a.txt", removed[0].FileURL)

	_, err = s.Memories().GetMemory(ctx, memory.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.Memories().FindMemoryByHash(ctx, "h")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.Uploads().GetUpload(ctx, upload.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	uploads, err := s.Uploads().ListUploads(ctx, memory.ID)
	require.NoError(t, err)
	assert.Empty(t, uploads)
	extractions, err := s.Extractions().ListExtractions(ctx, memory.ID)
	require.NoError(t, err)
	assert.Empty(t, extractions)
	models, err := s.Embeddings().ListEmbeddingModels(ctx, memory.ID)
	require.NoError(t, err)
	assert.Empty(t, models)
	tags, err := s.Tags().ListMemoryTags(ctx, memory.ID)
	require.NoError(t, err)
	assert.Empty(t, tags)
	spaces, err := s.Spaces().ListMemorySpaces(ctx, memory.ID)
	require.NoError(t, err)
	assert.Empty(t, spaces)
	members, err := s.Spaces().ListSpaceMemories(ctx, space.ID)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{other.ID}, members)

	// The hash is free again.
	again := addMemory(t, s, user.ID, "h")
	assert.NotEqual(t, memory.ID, again.ID)

	_, err = s.Memories().DeleteMemory(ctx, memory.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testDeleteRestricted(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := addUser(t, s, "a@example.com")
	memory := addMemory(t, s, user.ID, "h")
	tag, err := s.Tags().GetOrCreateTag(ctx, "go")
	require.NoError(t, err)
	require.NoError(t, s.Tags().AddMemoryTag(ctx, memory.ID, tag.ID))
	space, err := s.Spaces().CreateSpace(ctx, &core.Space{UserID: user.ID, Name: "s"})
	require.NoError(t, err)
	require.NoError(t, s.Spaces().AddSpaceMemory(ctx, space.ID, memory.ID))

	assert.ErrorIs(t, s.Users().DeleteUser(ctx, user.ID), storage.ErrRestricted)
	assert.ErrorIs(t, s.Spaces().DeleteSpace(ctx, space.ID), storage.ErrRestricted)
	assert.ErrorIs(t, s.Tags().DeleteTag(ctx, tag.ID), storage.ErrRestricted)

	_, err = s.Memories().DeleteMemory(ctx, memory.ID)
	require.NoError(t, err)

	// The space still blocks the user.
	assert.ErrorIs(t, s.Users().DeleteUser(ctx, user.ID), storage.ErrRestricted)
	require.NoError(t, s.Spaces().DeleteSpace(ctx, space.ID))
	require.NoError(t, s.Tags().DeleteTag(ctx, tag.ID))
	require.NoError(t, s.Users().DeleteUser(ctx, user.ID))

	assert.ErrorIs(t, s.Spaces().DeleteSpace(ctx, space.ID), storage.ErrNotFound)
	assert.ErrorIs(t, s.Tags().DeleteTag(ctx, tag.ID), storage.ErrNotFound)
}

func testUploads(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := addUser(t, s, "a@example.com")
	memory := addMemory(t, s, user.ID, "h")

	added, err := s.Uploads().AddUploads(ctx, memory.ID,
		&core.Upload{FileURL: "/files/1", FileType: core.FileTypeImage, FileSize: 1},
		&core.Upload{FileURL: "/files/2", FileType: core.FileTypeVideo, FileSize: 2},
	)
	require.NoError(t, err)
	require.Len(t, added, 2)

	got, err := s.Uploads().GetUpload(ctx, added[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "/files/2", got.FileURL)
	assert.Equal(t, memory.ID, got.MemoryID)

	list, err := s.Uploads().ListUploads(ctx, memory.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = s.Uploads().AddUploads(ctx, 9999, &core.Upload{FileURL: "/f", FileType: core.FileTypeText})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.Uploads().AddUploads(ctx, memory.ID, &core.Upload{FileType: core.FileTypeText})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func testEmbeddings(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := addUser(t, s, "a@example.com")
	memory := addMemory(t, s, user.ID, "h")
	other := addMemory(t, s, user.ID, "o")

	chunks := func(n int) []*core.Embedding {
		out := make([]*core.Embedding, n)
		for i := range out {
			out[i] = &core.Embedding{ChunkIndex: 100 + i, ChunkText: fmt.Sprint(i), Vector: vec(float32(i), 1)}
		}
		return out
	}

	require.NoError(t, s.Embeddings().ReplaceEmbeddings(ctx, memory.ID, "old", chunks(3)))
	require.NoError(t, s.Embeddings().ReplaceEmbeddings(ctx, memory.ID, "new", chunks(2)))
	require.NoError(t, s.Embeddings().ReplaceEmbeddings(ctx, other.ID, "new", chunks(1)))

	old, err := s.Embeddings().ListEmbeddings(ctx, memory.ID, "old")
	require.NoError(t, err)
	require.Len(t, old, 3)
	for i, e := range old {
		assert.Equal(t, i, e.ChunkIndex, "chunk indexes are contiguous from 0")
		assert.Equal(t, "old", e.Model())
	}

	models, err := s.Embeddings().ListEmbeddingModels(ctx, memory.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"old", "new"}, models)

	// Replacing shrinks the generation without touching the other model.
	require.NoError(t, s.Embeddings().ReplaceEmbeddings(ctx, memory.ID, "old", chunks(1)))
	old, err = s.Embeddings().ListEmbeddings(ctx, memory.ID, "old")
	require.NoError(t, err)
	assert.Len(t, old, 1)
	fresh, err := s.Embeddings().ListEmbeddings(ctx, memory.ID, "new")
	require.NoError(t, err)
	assert.Len(t, fresh, 2)

	byMemory, err := s.Embeddings().ListEmbeddingsForMemories(ctx, "new", memory.ID, other.ID, 9999)
	require.NoError(t, err)
	assert.Len(t, byMemory, 2)
	assert.Len(t, byMemory[memory.ID], 2)
	assert.Len(t, byMemory[other.ID], 1)

	require.NoError(t, s.Embeddings().PurgeEmbeddings(ctx, memory.ID, "old"))
	models, err = s.Embeddings().ListEmbeddingModels(ctx, memory.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, models)

	err = s.Embeddings().ReplaceEmbeddings(ctx, 9999, "new", chunks(1))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testTags(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := addUser(t, s, "a@example.com")
	memory := addMemory(t, s, user.ID, "h")

	foo, err := s.Tags().GetOrCreateTag(ctx, "Foo")
	require.NoError(t, err)
	lower, err := s.Tags().GetOrCreateTag(ctx, "foo")
	require.NoError(t, err)
	spaced, err := s.Tags().GetOrCreateTag(ctx, "  FOO ")
	require.NoError(t, err)
	assert.Equal(t, foo.ID, lower.ID)
	assert.Equal(t, foo.ID, spaced.ID)
	assert.Equal(t, "foo", foo.Name)

	_, err = s.Tags().GetOrCreateTag(ctx, "   ")
	assert.ErrorIs(t, err, core.ErrEmptyTagName)

	found, err := s.Tags().FindTagByName(ctx, "FOO")
	require.NoError(t, err)
	assert.Equal(t, foo.ID, found.ID)
	_, err = s.Tags().FindTagByName(ctx, "bar")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	bar, err := s.Tags().GetOrCreateTag(ctx, "bar")
	require.NoError(t, err)
	all, err := s.Tags().ListTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bar", "foo"}, tagNames(all))

	require.NoError(t, s.Tags().AddMemoryTag(ctx, memory.ID, foo.ID))
	require.NoError(t, s.Tags().AddMemoryTag(ctx, memory.ID, foo.ID))
	tags, err := s.Tags().ListMemoryTags(ctx, memory.ID)
	require.NoError(t, err)
	assert.Len(t, tags, 1)

	require.NoError(t, s.Tags().RemoveMemoryTag(ctx, memory.ID, bar.ID))
	require.NoError(t, s.Tags().RemoveMemoryTag(ctx, memory.ID, foo.ID))
	require.NoError(t, s.Tags().RemoveMemoryTag(ctx, memory.ID, foo.ID))
	tags, err = s.Tags().ListMemoryTags(ctx, memory.ID)
	require.NoError(t, err)
	assert.Empty(t, tags)

	assert.ErrorIs(t, s.Tags().AddMemoryTag(ctx, memory.ID, 9999), storage.ErrNotFound)
	assert.ErrorIs(t, s.Tags().AddMemoryTag(ctx, 9999, foo.ID), storage.ErrNotFound)
}

func testConcurrentGetOrCreateTag(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const workers = 8
	ids := make([]core.ID, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := "Shared"
			if i%2 == 0 {
				name = "shared"
			}
			tag, err := s.Tags().GetOrCreateTag(ctx, name)
			if assert.NoError(t, err) {
				ids[i] = tag.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
	all, err := s.Tags().ListTags(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testSpaces(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := addUser(t, s, "a@example.com")
	other := addUser(t, s, "b@example.com")
	memory := addMemory(t, s, user.ID, "h")

	first, err := s.Spaces().CreateSpace(ctx, &core.Space{UserID: user.ID, Name: " Reading ", Description: core.Ptr("books")})
	require.NoError(t, err)
	assert.Equal(t, "Reading", first.Name)
	second, err := s.Spaces().CreateSpace(ctx, &core.Space{UserID: user.ID, Name: "Work"})
	require.NoError(t, err)
	_, err = s.Spaces().CreateSpace(ctx, &core.Space{UserID: other.ID, Name: "Theirs"})
	require.NoError(t, err)

	_, err = s.Spaces().CreateSpace(ctx, &core.Space{UserID: 9999, Name: "x"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.Spaces().CreateSpace(ctx, &core.Space{UserID: user.ID, Name: ""})
	assert.ErrorIs(t, err, core.ErrEmptySpaceName)

	spaces, err := s.Spaces().ListSpaces(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, spaces, 2)
	assert.Equal(t, first.ID, spaces[0].ID)
	assert.Equal(t, second.ID, spaces[1].ID)

	got, err := s.Spaces().GetSpace(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "books", *got.Description)

	require.NoError(t, s.Spaces().AddSpaceMemory(ctx, first.ID, memory.ID))
	require.NoError(t, s.Spaces().AddSpaceMemory(ctx, first.ID, memory.ID))
	members, err := s.Spaces().ListSpaceMemories(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{memory.ID}, members)

	require.NoError(t, s.Spaces().RemoveSpaceMemory(ctx, second.ID, memory.ID))
	require.NoError(t, s.Spaces().RemoveSpaceMemory(ctx, first.ID, memory.ID))
	require.NoError(t, s.Spaces().RemoveSpaceMemory(ctx, first.ID, memory.ID))
	members, err = s.Spaces().ListSpaceMemories(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, members)

	assert.ErrorIs(t, s.Spaces().AddSpaceMemory(ctx, 9999, memory.ID), storage.ErrNotFound)
	assert.ErrorIs(t, s.Spaces().AddSpaceMemory(ctx, first.ID, 9999), storage.ErrNotFound)
}
