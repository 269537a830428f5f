package ingestion

import "errors"

var (
	// ErrUserRepositoryRequired is returned when a user repository is not provided.
	ErrUserRepositoryRequired = errors.New("user repository required")

	// ErrMemoryRepositoryRequired is returned when a memory repository is not provided.
	ErrMemoryRepositoryRequired = errors.New("memory repository required")

	// ErrExtractionRepositoryRequired is returned when an extraction repository is not provided.
	ErrExtractionRepositoryRequired = errors.New("extraction repository required")

	// ErrRegistryRequired is returned when an upload registry is not provided.
	ErrRegistryRequired = errors.New("upload registry required")

	// ErrSchedulerRequired is returned when an extraction scheduler is not provided.
	ErrSchedulerRequired = errors.New("extraction scheduler required")

	// ErrStorageFailure wraps blob sink and database failures during ingestion.
	ErrStorageFailure = errors.New("storage failure")

	// ErrDuplicateContent marks a submission whose content is already stored.
	// Ingest never fails with it; see IngestResult.Err.
	ErrDuplicateContent = errors.New("duplicate content")

	ErrUnknownUser   = errors.New("unknown user")
	ErrTypeMismatch  = errors.New("memory type does not match content")
	ErrInvalidURL    = errors.New("invalid source url")
	ErrNotFileMemory = errors.New("uploads can only be attached to file memories")
)
