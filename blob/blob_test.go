package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSink_RoundTrip(t *testing.T) {
	ctx := context.Background()
	sink, err := NewFileSink(t.TempDir(), "")
	require.NoError(t, err)

	url, err := sink.Store(ctx, []byte("%PDF-1.7"), "application/pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/files/"))
	assert.True(t, strings.HasSuffix(url, ".pdf"))

	data, err := sink.Fetch(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), data)

	require.NoError(t, sink.Delete(ctx, url))
	_, err = sink.Fetch(ctx, url)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, sink.Delete(ctx, url), "deleting twice is a no-op")

	entries, err := os.ReadDir(sink.Root())
	require.NoError(t, err)
	assert.Empty(t, entries, "no temp files left behind")
}

func TestFileSink_BaseURL(t *testing.T) {
	sink, err := NewFileSink(t.TempDir(), "https://cdn.example.com/blobs/")
	require.NoError(t, err)

	url, err := sink.Store(context.Background(), []byte("hi"), "text/plain; charset=utf-8")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://cdn.example.com/blobs/"))
	assert.True(t, strings.HasSuffix(url, ".txt"))

	data, err := sink.Fetch(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestFileSink_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0o600))

	sink, err := NewFileSink(filepath.Join(dir, "blobs"), "")
	require.NoError(t, err)

	for _, url := range []string{
		"/files/../secret.txt",
		"/files/..",
		"/files/a/b.txt",
		`/files/..\secret.txt`,
		"/files/",
		"/elsewhere/key.txt",
		"/files/.upload-123",
	} {
		t.Run(url, func(t *testing.T) {
			_, err := sink.Fetch(context.Background(), url)
			assert.ErrorIs(t, err, ErrInvalidKey)
			assert.ErrorIs(t, sink.Delete(context.Background(), url), ErrInvalidKey)
		})
	}
	_, err = os.Stat(secret)
	assert.NoError(t, err)
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"application/pdf":           ".pdf",
		"IMAGE/JPEG":                ".jpg",
		"text/plain; charset=utf-8": ".txt",
		"audio/mpeg":                ".mp3",
		"application/x-unknown-xyz": "",
		"":                          "",
	}
	for mimeType, want := range tests {
		assert.Equal(t, want, Extension(mimeType), mimeType)
	}
}

func TestMemorySink_FailureInjection(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink()
	sink.FailStoreAfter = 1

	url, err := sink.Store(ctx, []byte("a"), "text/plain")
	require.NoError(t, err)
	_, err = sink.Store(ctx, []byte("b"), "text/plain")
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 1, sink.Len())

	sink.DeleteErr = ErrInjected
	assert.ErrorIs(t, sink.Delete(ctx, url), ErrInjected)
	sink.DeleteErr = nil
	require.NoError(t, sink.Delete(ctx, url))
	assert.False(t, sink.Has(url))
}
