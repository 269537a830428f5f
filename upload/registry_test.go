package upload

import (
	"context"
	"testing"

	"github.com/poiesic/memvault/blob"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		mimeType string
		want     core.FileType
		wantMime string
	}{
		{"pdf by mime", "doc", "application/pdf", core.FileTypePDF, "application/pdf"},
		{"mime with params", "notes", "text/plain; charset=utf-8", core.FileTypeText, "text/plain"},
		{"image by extension", "cat.JPG", "", core.FileTypeImage, "image/jpeg"},
		{"unknown mime falls back to extension", "song.mp3", "application/octet-stream", core.FileTypeAudio, "audio/mpeg"},
		{"json is text", "data.json", "", core.FileTypeText, "application/json"},
		{"video", "clip.mov", "", core.FileTypeVideo, "video/quicktime"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fileType, mimeType, err := DetectFileType(tt.filename, tt.mimeType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, fileType)
			assert.Equal(t, tt.wantMime, mimeType)
		})
	}

	_, _, err := DetectFileType("setup.exe", "application/x-msdownload")
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
	_, _, err = DetectFileType("README", "")
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
}

func TestLimits_Check(t *testing.T) {
	limits := DefaultLimits()
	assert.NoError(t, limits.Check(core.FileTypePDF, 20*mb))
	assert.ErrorIs(t, limits.Check(core.FileTypePDF, 20*mb+1), ErrFileTooLarge)
	assert.ErrorIs(t, limits.Check(core.FileTypeText, 1*mb+1), ErrFileTooLarge)
	assert.NoError(t, limits.Check(core.FileTypeVideo, 50*mb))
	assert.ErrorIs(t, limits.Check(core.FileTypeAudio, 25*mb+1), ErrFileTooLarge)
}

func newRegistry(t *testing.T, sink blob.Sink, opts ...Option) *Registry {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	r, err := NewRegistry(sink, store.Uploads(), opts...)
	require.NoError(t, err)
	return r
}

func TestStage(t *testing.T) {
	sink := blob.NewMemorySink()
	r := newRegistry(t, sink)

	uploads, compensate, err := r.Stage(context.Background(), []File{
		{Name: "a.txt", Data: []byte("alpha")},
		{Name: "b.pdf", MimeType: "application/pdf", Data: []byte("%PDF")},
	})
	require.NoError(t, err)
	require.Len(t, uploads, 2)
	assert.Equal(t, core.FileTypeText, uploads[0].FileType)
	assert.Equal(t, int64(5), uploads[0].FileSize)
	assert.Equal(t, "application/pdf", *uploads[1].MimeType)
	assert.Equal(t, 2, sink.Len())

	data, err := r.Fetch(context.Background(), uploads[0])
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))

	compensate(context.Background())
	assert.Zero(t, sink.Len())
}

func TestStage_ValidatesBeforeStoring(t *testing.T) {
	sink := blob.NewMemorySink()
	r := newRegistry(t, sink, WithLimits(Limits{core.FileTypeText: 4}))

	_, _, err := r.Stage(context.Background(), []File{
		{Name: "ok.pdf", Data: []byte("%PDF")},
		{Name: "big.txt", Data: []byte("too long")},
	})
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Zero(t, sink.Len(), "nothing stored when any file is invalid")

	_, _, err = r.Stage(context.Background(), []File{{Name: "x.exe", Data: []byte("MZ")}})
	assert.ErrorIs(t, err, ErrUnsupportedFileType)

	_, _, err = r.Stage(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestStage_SinkFailureCompensates(t *testing.T) {
	sink := blob.NewMemorySink()
	sink.FailStoreAfter = 1
	r := newRegistry(t, sink)

	_, _, err := r.Stage(context.Background(), []File{
		{Name: "a.txt", Data: []byte("a")},
		{Name: "b.txt", Data: []byte("b")},
	})
	assert.ErrorIs(t, err, ErrSinkFailure)
	assert.ErrorIs(t, err, blob.ErrInjected)
	assert.Zero(t, sink.Len(), "first blob removed after second failed")
}

func TestWithLimits_RejectsUnknownType(t *testing.T) {
	_, err := NewRegistry(blob.NewMemorySink(), nil, WithLimits(Limits{"archive": 1}))
	assert.ErrorIs(t, err, core.ErrInvalidFileType)
}
