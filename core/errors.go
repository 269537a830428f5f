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

import "errors"

// Domain validation errors
var (
	// ErrValidation is the parent of every validation failure. Callers test
	// for it to distinguish malformed input from storage errors.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidUser indicates a User failed validation.
	ErrInvalidUser = errors.New("invalid user")

	// ErrInvalidMemory indicates a Memory failed validation.
	ErrInvalidMemory = errors.New("invalid memory")

	// ErrInvalidUpload indicates an Upload failed validation.
	ErrInvalidUpload = errors.New("invalid upload")

	// ErrInvalidExtraction indicates an Extraction failed validation.
	ErrInvalidExtraction = errors.New("invalid extraction")

	// ErrInvalidEmbedding indicates an Embedding failed validation.
	ErrInvalidEmbedding = errors.New("invalid embedding")

	// ErrInvalidSpace indicates a Space failed validation.
	ErrInvalidSpace = errors.New("invalid space")

	// ErrEmptyEmail indicates the Email field is empty.
	ErrEmptyEmail = errors.New("email cannot be empty")

	// ErrInvalidEmail indicates a malformed email address.
	ErrInvalidEmail = errors.New("malformed email")

	// ErrEmptyContent indicates there is nothing to ingest.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyContentHash indicates a Memory without a fingerprint.
	ErrEmptyContentHash = errors.New("content hash cannot be empty")

	// ErrMissingOwner indicates a record without an owning user or memory.
	ErrMissingOwner = errors.New("owner id cannot be zero")

	// ErrInvalidStatus indicates an unknown Status value.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidMemoryType indicates an unknown MemoryType value.
	ErrInvalidMemoryType = errors.New("invalid memory type")

	// ErrInvalidExtractionType indicates an unknown ExtractionType value.
	ErrInvalidExtractionType = errors.New("invalid extraction type")

	// ErrInvalidFileType indicates an unknown FileType value.
	ErrInvalidFileType = errors.New("invalid file type")

	// ErrEmptyFileURL indicates an Upload without a sink URL.
	ErrEmptyFileURL = errors.New("file url cannot be empty")

	// ErrNegativeFileSize indicates an Upload with a negative size.
	ErrNegativeFileSize = errors.New("file size cannot be negative")

	// ErrInvalidConfidence indicates a confidence outside [0, 1].
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")

	// ErrEmptyVector indicates an Embedding without a vector.
	ErrEmptyVector = errors.New("vector cannot be empty")

	// ErrNegativeChunkIndex indicates an Embedding with a negative chunk index.
	ErrNegativeChunkIndex = errors.New("chunk index cannot be negative")

	// ErrEmptyTagName indicates a tag name that is empty after normalization.
	ErrEmptyTagName = errors.New("tag name cannot be empty")

	// ErrEmptySpaceName indicates a Space without a name.
	ErrEmptySpaceName = errors.New("space name cannot be empty")

	// ErrSpaceNameTooLong indicates a Space name over MaxSpaceNameLength.
	ErrSpaceNameTooLong = errors.New("space name too long")
)
