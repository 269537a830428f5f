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


// Package blob stores the raw bytes of uploads outside the database.
//
// A Sink hands back an opaque URL for every stored object; the URL is what
// Upload.FileURL records and what Fetch and Delete accept.
package blob

import (
	"context"
	"errors"
	"mime"
	"strings"
)

var (
	// ErrNotFound is returned when no object is stored under a URL.
	ErrNotFound = errors.New("blob not found")

	// ErrInvalidKey is returned for URLs that do not name an object of this
	// sink, including any attempt at path traversal.
	ErrInvalidKey = errors.New("invalid blob key")
)

// Sink is blob storage for upload bytes. Implementations must be safe for
// concurrent use.
type Sink interface {
	// Store saves data and returns the URL that references it.
	Store(ctx context.Context, data []byte, mimeType string) (string, error)

	// Fetch returns the bytes stored under url.
	Fetch(ctx context.Context, url string) ([]byte, error)

	// Delete removes the object under url. Deleting a missing object is not
	// an error.
	Delete(ctx context.Context, url string) error
}

var knownExtensions = map[string]string{
	"application/pdf":  ".pdf",
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
	"image/gif":        ".gif",
	"image/webp":       ".webp",
	"image/heic":       ".heic",
	"video/mp4":        ".mp4",
	"video/webm":       ".webm",
	"video/quicktime":  ".mov",
	"video/x-msvideo":  ".avi",
	"audio/mpeg":       ".mp3",
	"audio/wav":        ".wav",
	"audio/x-wav":      ".wav",
	"audio/mp4":        ".m4a",
	"audio/x-m4a":      ".m4a",
	"audio/ogg":        ".ogg",
	"text/plain":       ".txt",
	"text/markdown":    ".md",
	"text/csv":         ".csv",
	"application/json": ".json",
}

// Extension returns the file extension for a MIME type, or "" when none is known.
func Extension(mimeType string) string {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(mimeType))
	}
	if ext, ok := knownExtensions[base]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
