package reembed

import "errors"

var (
	// ErrMemoryRepositoryRequired is returned when a memory repository is not provided.
	ErrMemoryRepositoryRequired = errors.New("memory repository required")

	// ErrEmbeddingStoreRequired is returned when an embedding store is not provided.
	ErrEmbeddingStoreRequired = errors.New("embedding store required")
)
