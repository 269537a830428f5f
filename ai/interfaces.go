package ai

import (
	"context"

	"github.com/poiesic/memvault/core"
)

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// Model names the embedding model. Vectors from different models are
	// never compared with each other.
	Model() string

	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Extractor derives one artifact (summary, tags or transcription) from
// content. Implementations must be thread-safe for concurrent use.
type Extractor interface {
	// Extract runs the extraction named by req.Type. Failures are classified
	// with Transient or Permanent so callers can decide whether to retry.
	Extract(ctx context.Context, req ExtractionRequest) (*ExtractionResult, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Extractor returns the content extraction service.
	Extractor() Extractor

	// Close releases resources held by the provider and its services.
	Close() error
}

// ExtractionRequest is the input to one Extract call.
type ExtractionRequest struct {
	// Type is summary, tags or transcription.
	Type core.ExtractionType

	Title string

	// Text is the gathered content for summary and tags.
	Text string

	// File is a raw upload to transcribe.
	File *File
}

// File is a fetched upload handed to the provider.
type File struct {
	Data     []byte
	MimeType string
}

// ExtractionResult carries the field matching the request type.
type ExtractionResult struct {
	Summary       string
	Tags          []string
	Transcription string
	Confidence    *float64
}
