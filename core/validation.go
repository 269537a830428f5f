// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// MaxSpaceNameLength bounds Space names in runes.
const MaxSpaceNameLength = 128

// MaxTagNameLength bounds normalized tag names in runes.
const MaxTagNameLength = 64

func invalid(kind error, cause error) error {
	return fmt.Errorf("%w: %w: %w", ErrValidation, kind, cause)
}

// ValidateUser validates a User according to domain rules.
//
// Validation rules:
//   - Email must not be empty
//   - Email must parse as an address
func ValidateUser(user *User) error {
	if user == nil {
		return fmt.Errorf("%w: %w: user is nil", ErrValidation, ErrInvalidUser)
	}
	if strings.TrimSpace(user.Email) == "" {
		return invalid(ErrInvalidUser, ErrEmptyEmail)
	}
	if _, err := mail.ParseAddress(user.Email); err != nil {
		return invalid(ErrInvalidUser, fmt.Errorf("%w: %q", ErrInvalidEmail, user.Email))
	}
	return nil
}

// ValidateMemory validates a Memory before it is persisted.
//
// Validation rules:
//   - UserID must be set
//   - ContentHash must not be empty
//   - Type and Status must be known values
//
// NOT validated (populated by extraction):
//   - Summary, ExtractedText
//   - ID (0 is valid before the sequence assigns one)
func ValidateMemory(memory *Memory) error {
	if memory == nil {
		return fmt.Errorf("%w: %w: memory is nil", ErrValidation, ErrInvalidMemory)
	}
	if memory.UserID == 0 {
		return invalid(ErrInvalidMemory, ErrMissingOwner)
	}
	if memory.ContentHash == "" {
		return invalid(ErrInvalidMemory, ErrEmptyContentHash)
	}
	if err := ValidateMemoryType(memory.Type); err != nil {
		return invalid(ErrInvalidMemory, err)
	}
	if err := ValidateStatus(memory.Status); err != nil {
		return invalid(ErrInvalidMemory, err)
	}
	return nil
}

// ValidateUpload validates an Upload row. MemoryID may be zero when the
// upload is staged before its memory exists.
func ValidateUpload(upload *Upload) error {
	if upload == nil {
		return fmt.Errorf("%w: %w: upload is nil", ErrValidation, ErrInvalidUpload)
	}
	if upload.FileURL == "" {
		return invalid(ErrInvalidUpload, ErrEmptyFileURL)
	}
	if err := ValidateFileType(upload.FileType); err != nil {
		return invalid(ErrInvalidUpload, err)
	}
	if upload.FileSize < 0 {
		return invalid(ErrInvalidUpload, ErrNegativeFileSize)
	}
	return nil
}

// ValidateExtraction validates an Extraction row.
func ValidateExtraction(extraction *Extraction) error {
	if extraction == nil {
		return fmt.Errorf("%w: %w: extraction is nil", ErrValidation, ErrInvalidExtraction)
	}
	if err := ValidateExtractionType(extraction.ExtractionType); err != nil {
		return invalid(ErrInvalidExtraction, err)
	}
	if c := extraction.Confidence; c != nil && (*c < 0 || *c > 1) {
		return invalid(ErrInvalidExtraction, fmt.Errorf("%w: %v", ErrInvalidConfidence, *c))
	}
	return nil
}

// ValidateEmbedding validates an Embedding row.
func ValidateEmbedding(embedding *Embedding) error {
	if embedding == nil {
		return fmt.Errorf("%w: %w: embedding is nil", ErrValidation, ErrInvalidEmbedding)
	}
	if len(embedding.Vector) == 0 {
		return invalid(ErrInvalidEmbedding, ErrEmptyVector)
	}
	if embedding.ChunkIndex < 0 {
		return invalid(ErrInvalidEmbedding, ErrNegativeChunkIndex)
	}
	return nil
}

// ValidateSpace validates a Space.
func ValidateSpace(space *Space) error {
	if space == nil {
		return fmt.Errorf("%w: %w: space is nil", ErrValidation, ErrInvalidSpace)
	}
	if space.UserID == 0 {
		return invalid(ErrInvalidSpace, ErrMissingOwner)
	}
	name := strings.TrimSpace(space.Name)
	if name == "" {
		return invalid(ErrInvalidSpace, ErrEmptySpaceName)
	}
	if utf8.RuneCountInString(name) > MaxSpaceNameLength {
		return invalid(ErrInvalidSpace, ErrSpaceNameTooLong)
	}
	return nil
}

// ValidateTagName checks a tag name after normalization.
func ValidateTagName(name string) error {
	if NormalizeTagName(name) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyTagName)
	}
	return nil
}

// ValidateStatus validates that a Status has a known value.
func ValidateStatus(status Status) error {
	switch status {
	case StatusProcessing, StatusReady, StatusFailed:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
}

// ValidateMemoryType validates that a MemoryType has a known value.
func ValidateMemoryType(t MemoryType) error {
	switch t {
	case MemoryTypeText, MemoryTypeFile, MemoryTypeURL:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidMemoryType, t)
}

// ValidateExtractionType validates that an ExtractionType has a known value.
func ValidateExtractionType(t ExtractionType) error {
	switch t {
	case ExtractionSummary, ExtractionTags, ExtractionTranscription, ExtractionError:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidExtractionType, t)
}

// ValidateFileType validates that a FileType has a known value.
func ValidateFileType(t FileType) error {
	switch t {
	case FileTypePDF, FileTypeImage, FileTypeVideo, FileTypeAudio, FileTypeText:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidFileType, t)
}

// ParseStatus converts a persisted string into a Status.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	return status, ValidateStatus(status)
}

// ParseMemoryType converts a persisted string into a MemoryType.
func ParseMemoryType(s string) (MemoryType, error) {
	t := MemoryType(s)
	return t, ValidateMemoryType(t)
}

// ParseExtractionType converts a persisted string into an ExtractionType.
func ParseExtractionType(s string) (ExtractionType, error) {
	t := ExtractionType(s)
	return t, ValidateExtractionType(t)
}

// ParseFileType converts a persisted string into a FileType.
func ParseFileType(s string) (FileType, error) {
	t := FileType(s)
	return t, ValidateFileType(t)
}
