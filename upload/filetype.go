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


// Package upload validates incoming files and stages them in blob storage
// before the memory that owns them is committed.
package upload

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/poiesic/memvault/core"
)

var (
	// ErrUnsupportedFileType is returned for files that are not PDF, image,
	// video, audio or text.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrFileTooLarge is returned when a file exceeds its type's limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrSinkFailure wraps blob storage errors during staging.
	ErrSinkFailure = errors.New("blob storage failure")

	// ErrNoFiles is returned when Stage is called without files.
	ErrNoFiles = errors.New("no files")
)

const mb = 1024 * 1024

var mimeTypes = map[string]core.FileType{
	"application/pdf":  core.FileTypePDF,
	"image/jpeg":       core.FileTypeImage,
	"image/png":        core.FileTypeImage,
	"image/gif":        core.FileTypeImage,
	"image/webp":       core.FileTypeImage,
	"image/heic":       core.FileTypeImage,
	"video/mp4":        core.FileTypeVideo,
	"video/webm":       core.FileTypeVideo,
	"video/quicktime":  core.FileTypeVideo,
	"video/x-msvideo":  core.FileTypeVideo,
	"audio/mpeg":       core.FileTypeAudio,
	"audio/wav":        core.FileTypeAudio,
	"audio/x-wav":      core.FileTypeAudio,
	"audio/mp4":        core.FileTypeAudio,
	"audio/x-m4a":      core.FileTypeAudio,
	"audio/ogg":        core.FileTypeAudio,
	"text/plain":       core.FileTypeText,
	"text/markdown":    core.FileTypeText,
	"text/csv":         core.FileTypeText,
	"application/json": core.FileTypeText,
}

var extensions = map[string]struct {
	fileType core.FileType
	mimeType string
}{
	".pdf":  {core.FileTypePDF, "application/pdf"},
	".jpg":  {core.FileTypeImage, "image/jpeg"},
	".jpeg": {core.FileTypeImage, "image/jpeg"},
	".png":  {core.FileTypeImage, "image/png"},
	".gif":  {core.FileTypeImage, "image/gif"},
	".webp": {core.FileTypeImage, "image/webp"},
	".heic": {core.FileTypeImage, "image/heic"},
	".mp4":  {core.FileTypeVideo, "video/mp4"},
	".webm": {core.FileTypeVideo, "video/webm"},
	".mov":  {core.FileTypeVideo, "video/quicktime"},
	".avi":  {core.FileTypeVideo, "video/x-msvideo"},
	".mp3":  {core.FileTypeAudio, "audio/mpeg"},
	".wav":  {core.FileTypeAudio, "audio/wav"},
	".m4a":  {core.FileTypeAudio, "audio/mp4"},
	".ogg":  {core.FileTypeAudio, "audio/ogg"},
	".txt":  {core.FileTypeText, "text/plain"},
	".md":   {core.FileTypeText, "text/markdown"},
	".csv":  {core.FileTypeText, "text/csv"},
	".json": {core.FileTypeText, "application/json"},
}

// DetectFileType classifies a file by its MIME type, falling back to the
// filename extension. It also returns the MIME type to record.
func DetectFileType(filename, mimeType string) (core.FileType, string, error) {
	if mimeType != "" {
		base, _, err := mime.ParseMediaType(mimeType)
		if err == nil {
			if fileType, ok := mimeTypes[base]; ok {
				return fileType, base, nil
			}
		}
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if known, ok := extensions[ext]; ok {
		return known.fileType, known.mimeType, nil
	}
	return "", "", fmt.Errorf("%w: %q (%s)", ErrUnsupportedFileType, filename, mimeType)
}

// Limits maps each file type to its maximum size in bytes.
type Limits map[core.FileType]int64

// DefaultLimits returns the standard per-type size limits.
func DefaultLimits() Limits {
	return Limits{
		core.FileTypePDF:   20 * mb,
		core.FileTypeImage: 10 * mb,
		core.FileTypeVideo: 50 * mb,
		core.FileTypeAudio: 25 * mb,
		core.FileTypeText:  1 * mb,
	}
}

// Check returns ErrFileTooLarge when size exceeds the limit for fileType.
// Types without a limit use the text limit.
func (l Limits) Check(fileType core.FileType, size int64) error {
	limit, ok := l[fileType]
	if !ok {
		limit = l[core.FileTypeText]
	}
	if size > limit {
		return fmt.Errorf("%w: %s of %d bytes exceeds %d MB", ErrFileTooLarge, fileType, size, limit/mb)
	}
	return nil
}
