package openai

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/poiesic/memvault/ai"
	"github.com/poiesic/memvault/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel replays canned responses and records what it was sent.
type fakeModel struct {
	responses []string
	errs      []error
	calls     int
	messages  [][]llms.MessageContent
	options   []llms.CallOptions
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	i := m.calls
	m.calls++
	m.messages = append(m.messages, messages)
	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}
	m.options = append(m.options, opts)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i >= len(m.responses) {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.responses[i]}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func newTestExtractor(model *fakeModel) *Extractor {
	return &Extractor{client: model, summaryMaxChars: 20, logger: slog.Default()}
}

func textOf(t *testing.T, message llms.MessageContent) string {
	t.Helper()
	require.NotEmpty(t, message.Parts)
	text, ok := message.Parts[0].(llms.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestExtract_Summary(t *testing.T) {
	model := &fakeModel{responses: []string{"  A short summary.  "}}
	e := newTestExtractor(model)

	result, err := e.Extract(context.Background(), ai.ExtractionRequest{
		Type:  core.ExtractionSummary,
		Title: "Notes",
		Text:  "0123456789012345678901234567890",
	})
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", result.Summary)

	require.Len(t, model.messages, 1)
	assert.Equal(t, summaryPrompt, textOf(t, model.messages[0][0]))
	user := textOf(t, model.messages[0][1])
	assert.Contains(t, user, "Title: Notes")
	assert.Contains(t, user, "[Truncated...]")
}

func TestExtract_TagsRetriesMalformedJSON(t *testing.T) {
	model := &fakeModel{responses: []string{"not json at all", `{"tags": ["go", "databases"]}`}}
	e := newTestExtractor(model)

	result, err := e.Extract(context.Background(), ai.ExtractionRequest{Type: core.ExtractionTags, Text: "go and databases"})
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "databases"}, result.Tags)
	assert.Equal(t, 2, model.calls)
	assert.True(t, model.options[0].JSONMode)
}

func TestExtract_TagsGivesUpAfterThreeAttempts(t *testing.T) {
	model := &fakeModel{responses: []string{"x", "y", "z"}}
	e := newTestExtractor(model)

	_, err := e.Extract(context.Background(), ai.ExtractionRequest{Type: core.ExtractionTags, Text: "text"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrPermanent)
	assert.Equal(t, parseAttempts, model.calls)
}

func TestExtract_TranscribeFile(t *testing.T) {
	model := &fakeModel{responses: []string{"hello from the recording"}}
	e := newTestExtractor(model)

	result, err := e.Extract(context.Background(), ai.ExtractionRequest{
		Type: core.ExtractionTranscription,
		File: &ai.File{Data: []byte{1, 2, 3}, MimeType: "audio/mpeg"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello from the recording", result.Transcription)

	parts := model.messages[0][0].Parts
	require.Len(t, parts, 2)
	binary, ok := parts[1].(llms.BinaryContent)
	require.True(t, ok)
	assert.Equal(t, "audio/mpeg", binary.MIMEType)
	assert.Equal(t, []byte{1, 2, 3}, binary.Data)
}

func TestExtract_TranscribeNothing(t *testing.T) {
	e := newTestExtractor(&fakeModel{})
	_, err := e.Extract(context.Background(), ai.ExtractionRequest{Type: core.ExtractionTranscription})
	assert.ErrorIs(t, err, ai.ErrPermanent)
}

func TestExtract_UnsupportedType(t *testing.T) {
	e := newTestExtractor(&fakeModel{})
	_, err := e.Extract(context.Background(), ai.ExtractionRequest{Type: core.ExtractionError})
	assert.ErrorIs(t, err, ai.ErrUnsupportedExtraction)
	assert.False(t, ai.IsTransient(err))
}

func TestExtract_ClassifiesProviderErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"rate limit", errors.New("429 Too Many Requests"), true},
		{"unavailable", errors.New("503 service unavailable"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"auth", errors.New("incorrect api key provided"), false},
		{"bad request", errors.New("400 invalid request"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExtractor(&fakeModel{errs: []error{tt.err}})
			_, err := e.Extract(context.Background(), ai.ExtractionRequest{Type: core.ExtractionSummary, Text: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.transient, ai.IsTransient(err))
		})
	}
}

func TestExtract_EmptyChoicesIsTransient(t *testing.T) {
	e := newTestExtractor(&fakeModel{})
	_, err := e.Extract(context.Background(), ai.ExtractionRequest{Type: core.ExtractionSummary, Text: "x"})
	assert.True(t, ai.IsTransient(err))
}
