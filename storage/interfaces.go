package storage

import (
	"context"

	"github.com/poiesic/memvault/core"
)

// Store groups the repositories of one storage engine.
// Implementations must be thread-safe and support concurrent access.
type Store interface {
	Users() UserRepository
	Memories() MemoryRepository
	Uploads() UploadRepository
	Extractions() ExtractionRepository
	Embeddings() EmbeddingRepository
	Tags() TagRepository
	Spaces() SpaceRepository

	// Close closes the storage engine and releases resources.
	Close() error
}

// UserRepository provides operations for managing users.
type UserRepository interface {
	// AddUser stores a new user. The email is normalized before storage.
	// Returns ErrDuplicateKey if the email is already registered.
	AddUser(ctx context.Context, user *core.User) (*core.User, error)

	// GetUser retrieves a user by ID.
	// Returns ErrNotFound if the user doesn't exist.
	GetUser(ctx context.Context, id core.ID) (*core.User, error)

	// FindUserByEmail retrieves a user by email, case-insensitively.
	// Returns ErrNotFound if no user has that email.
	FindUserByEmail(ctx context.Context, email string) (*core.User, error)

	// DeleteUser removes a user.
	// Returns ErrRestricted while the user owns memories or spaces.
	DeleteUser(ctx context.Context, id core.ID) error
}

// MemoryFilter selects memories for ListMemories. Zero values mean "any".
type MemoryFilter struct {
	UserID   core.ID
	Type     core.MemoryType
	Statuses []core.Status
	SpaceID  core.ID
	// TagIDs requires every listed tag to be linked to the memory.
	TagIDs []core.ID
	Offset int
	// Limit of 0 means no limit.
	Limit int
}

// Completion is the result of one successful extraction run, applied
// atomically by CompleteExtraction.
type Completion struct {
	ExtractedText *string
	Summary       *string
	// Extractions replace the memory's extractions. Types not listed,
	// including a previous error, are removed.
	Extractions []*core.Extraction
	// TagIDs are unioned with the memory's existing tags.
	TagIDs []core.ID
	// EmbeddingModel and Embeddings replace the vectors for that model.
	// A nil Embeddings slice leaves stored vectors untouched.
	EmbeddingModel string
	Embeddings     []*core.Embedding
}

// MemoryRepository provides operations for managing memories.
type MemoryRepository interface {
	// CreateMemory stores a memory and its uploads in one transaction.
	// Sets Status to processing and the timestamps.
	// Returns ErrDuplicateKey if a memory with the same ContentHash exists
	// and ErrNotFound if the owning user doesn't exist.
	CreateMemory(ctx context.Context, memory *core.Memory, uploads ...*core.Upload) (*core.Memory, error)

	// GetMemory retrieves a memory by ID.
	// Returns ErrNotFound if the memory doesn't exist.
	GetMemory(ctx context.Context, id core.ID) (*core.Memory, error)

	// GetMemories retrieves multiple memories by ID.
	// Returns only the memories that exist, in the order requested.
	GetMemories(ctx context.Context, ids ...core.ID) ([]*core.Memory, error)

	// FindMemoryByHash retrieves the memory with the given content hash.
	// Returns ErrNotFound if no memory has that hash.
	FindMemoryByHash(ctx context.Context, hash string) (*core.Memory, error)

	// ListMemories returns memories matching filter, newest first
	// (CreatedAt descending, then ID descending).
	ListMemories(ctx context.Context, filter MemoryFilter) ([]*core.Memory, error)

	// UpdateMemory stores title, summary and source URL changes and bumps
	// UpdatedAt. Status and content hash are not changed by this method.
	UpdateMemory(ctx context.Context, memory *core.Memory) (*core.Memory, error)

	// TransitionStatus moves a memory to status `to` if its current status is
	// one of from. Returns ErrStatusConflict otherwise.
	TransitionStatus(ctx context.Context, id core.ID, to core.Status, from ...core.Status) (*core.Memory, error)

	// CompleteExtraction applies an extraction result and marks the memory
	// ready in one transaction. The memory must be in processing.
	CompleteExtraction(ctx context.Context, id core.ID, completion *Completion) (*core.Memory, error)

	// FailExtraction marks a processing memory failed and records cause as
	// its error extraction, in one transaction.
	FailExtraction(ctx context.Context, id core.ID, cause string) (*core.Memory, error)

	// DeleteMemory removes a memory with all its uploads, extractions,
	// embeddings, tag links and space links in one transaction.
	// Returns the removed uploads so their blobs can be released.
	DeleteMemory(ctx context.Context, id core.ID) ([]*core.Upload, error)
}

// UploadRepository provides operations for managing uploads.
type UploadRepository interface {
	// AddUploads attaches uploads to an existing memory.
	// Returns ErrNotFound if the memory doesn't exist.
	AddUploads(ctx context.Context, memoryID core.ID, uploads ...*core.Upload) ([]*core.Upload, error)

	// GetUpload retrieves an upload by ID.
	// Returns ErrNotFound if the upload doesn't exist.
	GetUpload(ctx context.Context, id core.ID) (*core.Upload, error)

	// ListUploads returns the uploads of a memory in insertion order.
	ListUploads(ctx context.Context, memoryID core.ID) ([]*core.Upload, error)
}

// ExtractionRepository provides operations for managing extractions.
type ExtractionRepository interface {
	// UpsertExtractions stores extractions keyed by (memory, type),
	// overwriting content and confidence of existing rows.
	UpsertExtractions(ctx context.Context, memoryID core.ID, extractions ...*core.Extraction) error

	// GetExtraction retrieves the extraction of one type.
	// Returns ErrNotFound if none exists.
	GetExtraction(ctx context.Context, memoryID core.ID, extractionType core.ExtractionType) (*core.Extraction, error)

	// ListExtractions returns all extractions of a memory ordered by type.
	ListExtractions(ctx context.Context, memoryID core.ID) ([]*core.Extraction, error)
}

// EmbeddingRepository provides operations for managing chunk embeddings.
type EmbeddingRepository interface {
	// ReplaceEmbeddings swaps the vectors of one (memory, model) generation.
	// Chunk indexes are rewritten to be contiguous from 0 in slice order.
	// Vectors of other models are left untouched.
	ReplaceEmbeddings(ctx context.Context, memoryID core.ID, model string, embeddings []*core.Embedding) error

	// ListEmbeddings returns one generation ordered by chunk index.
	ListEmbeddings(ctx context.Context, memoryID core.ID, model string) ([]*core.Embedding, error)

	// ListEmbeddingsForMemories returns the given model's chunks keyed by memory.
	ListEmbeddingsForMemories(ctx context.Context, model string, memoryIDs ...core.ID) (map[core.ID][]*core.Embedding, error)

	// PurgeEmbeddings removes one generation.
	PurgeEmbeddings(ctx context.Context, memoryID core.ID, model string) error

	// ListEmbeddingModels returns the distinct model names stored for a memory.
	ListEmbeddingModels(ctx context.Context, memoryID core.ID) ([]string, error)
}

// TagRepository provides operations for managing tags and memory/tag links.
type TagRepository interface {
	// GetOrCreateTag finds or creates a tag by normalized name.
	// Thread-safe: handles concurrent creation attempts.
	GetOrCreateTag(ctx context.Context, name string) (*core.Tag, error)

	// GetTag retrieves a tag by ID.
	// Returns ErrNotFound if the tag doesn't exist.
	GetTag(ctx context.Context, id core.ID) (*core.Tag, error)

	// FindTagByName retrieves a tag by name, case-insensitively.
	// Returns ErrNotFound if no tag has that name.
	FindTagByName(ctx context.Context, name string) (*core.Tag, error)

	// ListTags returns all tags ordered by name.
	ListTags(ctx context.Context) ([]*core.Tag, error)

	// AddMemoryTag links a memory to a tag. Linking twice is a no-op.
	// Returns ErrNotFound if either side doesn't exist.
	AddMemoryTag(ctx context.Context, memoryID, tagID core.ID) error

	// RemoveMemoryTag unlinks a memory from a tag. Missing links are a no-op.
	RemoveMemoryTag(ctx context.Context, memoryID, tagID core.ID) error

	// ListMemoryTags returns the tags linked to a memory ordered by name.
	ListMemoryTags(ctx context.Context, memoryID core.ID) ([]*core.Tag, error)

	// DeleteTag removes a tag.
	// Returns ErrRestricted while memories are linked to it.
	DeleteTag(ctx context.Context, id core.ID) error
}

// SpaceRepository provides operations for managing spaces and their members.
type SpaceRepository interface {
	// CreateSpace stores a new space.
	// Returns ErrNotFound if the owning user doesn't exist.
	CreateSpace(ctx context.Context, space *core.Space) (*core.Space, error)

	// GetSpace retrieves a space by ID.
	// Returns ErrNotFound if the space doesn't exist.
	GetSpace(ctx context.Context, id core.ID) (*core.Space, error)

	// ListSpaces returns the spaces owned by a user, oldest first.
	ListSpaces(ctx context.Context, userID core.ID) ([]*core.Space, error)

	// DeleteSpace removes a space.
	// Returns ErrRestricted while memories are members of it.
	DeleteSpace(ctx context.Context, id core.ID) error

	// AddSpaceMemory adds a memory to a space. Adding twice is a no-op.
	// Returns ErrNotFound if either side doesn't exist.
	AddSpaceMemory(ctx context.Context, spaceID, memoryID core.ID) error

	// RemoveSpaceMemory removes a memory from a space. Missing links are a no-op.
	RemoveSpaceMemory(ctx context.Context, spaceID, memoryID core.ID) error

	// ListSpaceMemories returns the IDs of memories in a space.
	ListSpaceMemories(ctx context.Context, spaceID core.ID) ([]core.ID, error)

	// ListMemorySpaces returns the IDs of spaces containing a memory.
	ListMemorySpaces(ctx context.Context, memoryID core.ID) ([]core.ID, error)
}
