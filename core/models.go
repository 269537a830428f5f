package core

import (
	"strings"
	"time"
)

// ID is a unique identifier for domain entities, generated from storage sequences.
type ID uint64

// Status is the lifecycle state of a Memory.
type Status string

const (
	// StatusProcessing is the initial state; extraction has not finished.
	StatusProcessing Status = "processing"
	// StatusReady means extraction committed and the memory is searchable.
	StatusReady Status = "ready"
	// StatusFailed means extraction ended with a permanent error.
	StatusFailed Status = "failed"
)

// MemoryType identifies the kind of content a Memory was created from.
type MemoryType string

const (
	MemoryTypeText MemoryType = "text"
	MemoryTypeFile MemoryType = "file"
	MemoryTypeURL  MemoryType = "url"
)

// ExtractionType identifies a derived artifact produced for a Memory.
type ExtractionType string

const (
	ExtractionSummary       ExtractionType = "summary"
	ExtractionTags          ExtractionType = "tags"
	ExtractionTranscription ExtractionType = "transcription"
	// ExtractionError holds the cause of the last failed extraction run.
	ExtractionError ExtractionType = "error"
)

// FileType is the coarse classification of an Upload.
type FileType string

const (
	FileTypePDF   FileType = "pdf"
	FileTypeImage FileType = "image"
	FileTypeVideo FileType = "video"
	FileTypeAudio FileType = "audio"
	FileTypeText  FileType = "text"
)

// User owns memories and spaces.
type User struct {
	ID        ID
	Email     string
	Name      *string
	CreatedAt time.Time
}

// Memory is the canonical deduplicated record for one piece of submitted content.
type Memory struct {
	ID            ID
	UserID        ID
	Type          MemoryType
	Title         *string
	Summary       *string
	ExtractedText *string
	SourceURL     *string
	ContentHash   string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Text returns the extracted text or "" when none has been stored.
func (m *Memory) Text() string {
	if m.ExtractedText == nil {
		return ""
	}
	return *m.ExtractedText
}

// TitleOrEmpty returns the title or "".
func (m *Memory) TitleOrEmpty() string {
	if m.Title == nil {
		return ""
	}
	return *m.Title
}

// Upload is a raw file attached to a Memory.
type Upload struct {
	ID        ID
	MemoryID  ID
	FileURL   string
	FileType  FileType
	MimeType  *string
	FileSize  int64
	CreatedAt time.Time
}

// Extraction is one derived artifact for a Memory. There is at most one per
// (MemoryID, ExtractionType).
type Extraction struct {
	ID             ID
	MemoryID       ID
	ExtractionType ExtractionType
	Content        string
	Confidence     *float64
	CreatedAt      time.Time
}

// Embedding is the vector for one chunk of a Memory's extracted text.
type Embedding struct {
	ID         ID
	MemoryID   ID
	ChunkIndex int
	ChunkText  string
	Vector     []float32
	ModelName  *string
	CreatedAt  time.Time
}

// Model returns the model name or "" when unset.
func (e *Embedding) Model() string {
	if e.ModelName == nil {
		return ""
	}
	return *e.ModelName
}

// Tag is a shared, case-insensitive label.
type Tag struct {
	ID   ID
	Name string
}

// MemoryTag links a Memory to a Tag.
type MemoryTag struct {
	MemoryID ID
	TagID    ID
}

// Space is a user-owned named collection of memories.
type Space struct {
	ID          ID
	UserID      ID
	Name        string
	Description *string
	CreatedAt   time.Time
}

// SpaceMemory links a Space to a Memory.
type SpaceMemory struct {
	SpaceID  ID
	MemoryID ID
}

// NormalizeTagName lowercases and trims a tag name so case variants resolve
// to one tag.
func NormalizeTagName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeEmail trims and lowercases an email address for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
