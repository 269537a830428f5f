package mock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/poiesic/memvault/ai"
	"github.com/poiesic/memvault/core"
)

type MockExtractor struct {
	// ExtractFunc is called by Extract if set.
	// If nil, uses default deterministic behavior.
	ExtractFunc func(ctx context.Context, req ai.ExtractionRequest) (*ai.ExtractionResult, error)

	mu    sync.Mutex
	calls map[core.ExtractionType]int
}

func NewMockExtractor() *MockExtractor {
	return &MockExtractor{calls: make(map[core.ExtractionType]int)}
}

func (m *MockExtractor) Extract(ctx context.Context, req ai.ExtractionRequest) (*ai.ExtractionResult, error) {
	m.mu.Lock()
	m.calls[req.Type]++
	m.mu.Unlock()

	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, req)
	}

	switch req.Type {
	case core.ExtractionSummary:
		return &ai.ExtractionResult{Summary: firstSentence(req.Text)}, nil
	case core.ExtractionTags:
		return &ai.ExtractionResult{Tags: leadingWords(req.Text, 3)}, nil
	case core.ExtractionTranscription:
		if req.File == nil {
			return nil, ai.Permanent(errors.New("transcription needs a file"))
		}
		return &ai.ExtractionResult{
			Transcription: fmt.Sprintf("transcript of %s (%d bytes)", req.File.MimeType, len(req.File.Data)),
		}, nil
	}
	return nil, ai.Permanent(fmt.Errorf("%w: %q", ai.ErrUnsupportedExtraction, req.Type))
}

// CallCount returns the number of Extract calls, optionally limited to types.
func (m *MockExtractor) CallCount(types ...core.ExtractionType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for t, n := range m.calls {
		if len(types) == 0 {
			total += n
			continue
		}
		for _, want := range types {
			if t == want {
				total += n
			}
		}
	}
	return total
}

func (m *MockExtractor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[core.ExtractionType]int)
	m.ExtractFunc = nil
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		text = text[:i+1]
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

// leadingWords picks up to n distinct words longer than three letters.
func leadingWords(text string, n int) []string {
	seen := make(map[string]bool)
	var words []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if len(word) <= 3 || seen[word] {
			continue
		}
		seen[word] = true
		words = append(words, word)
		if len(words) == n {
			break
		}
	}
	return words
}
