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


package upload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/memvault/blob"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/storage"
)

// File is an incoming file before it is staged.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Compensate removes blobs staged for a memory that was never committed.
type Compensate func(ctx context.Context)

// Registry validates files, stages their bytes in a blob sink and reads
// back the upload rows of committed memories.
type Registry struct {
	sink    blob.Sink
	uploads storage.UploadRepository
	limits  Limits
	logger  *slog.Logger
}

type Option func(*Registry) error

// WithLimits replaces the per-type size limits. Types missing from limits
// keep their default.
func WithLimits(limits Limits) Option {
	return func(r *Registry) error {
		for fileType, limit := range limits {
			if err := core.ValidateFileType(fileType); err != nil {
				return err
			}
			if limit > 0 {
				r.limits[fileType] = limit
			}
		}
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRegistry creates a registry over a blob sink and the upload repository.
func NewRegistry(sink blob.Sink, uploads storage.UploadRepository, opts ...Option) (*Registry, error) {
	r := &Registry{
		sink:    sink,
		uploads: uploads,
		limits:  DefaultLimits(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "upload")
	return r, nil
}

// Validate checks type and size of every file without storing anything.
func (r *Registry) Validate(files []File) ([]*core.Upload, error) {
	uploads := make([]*core.Upload, len(files))
	for i, file := range files {
		fileType, mimeType, err := DetectFileType(file.Name, file.MimeType)
		if err != nil {
			return nil, err
		}
		if err := r.limits.Check(fileType, int64(len(file.Data))); err != nil {
			return nil, fmt.Errorf("%q: %w", file.Name, err)
		}
		uploads[i] = &core.Upload{
			FileType: fileType,
			MimeType: core.Ptr(mimeType),
			FileSize: int64(len(file.Data)),
		}
	}
	return uploads, nil
}

// Stage validates all files and then stores each one in the sink. The
// returned uploads are not yet persisted. If any store fails, the blobs
// already written are deleted and the error wraps ErrSinkFailure.
func (r *Registry) Stage(ctx context.Context, files []File) ([]*core.Upload, Compensate, error) {
	if len(files) == 0 {
		return nil, nil, ErrNoFiles
	}
	uploads, err := r.Validate(files)
	if err != nil {
		return nil, nil, err
	}

	stored := make([]*core.Upload, 0, len(uploads))
	compensate := func(ctx context.Context) {
		r.Release(ctx, stored)
	}
	for i, file := range files {
		url, err := r.sink.Store(ctx, file.Data, *uploads[i].MimeType)
		if err != nil {
			compensate(ctx)
			return nil, nil, fmt.Errorf("%w: storing %q: %w", ErrSinkFailure, file.Name, err)
		}
		uploads[i].FileURL = url
		stored = append(stored, uploads[i])
	}
	return uploads, compensate, nil
}

// Release deletes the blobs behind uploads. Failures are logged and do not
// stop the remaining deletes.
func (r *Registry) Release(ctx context.Context, uploads []*core.Upload) {
	for _, upload := range uploads {
		if err := r.sink.Delete(ctx, upload.FileURL); err != nil {
			r.logger.Warn("failed to delete blob", "url", upload.FileURL, "err", err)
		}
	}
}

// Fetch returns the bytes of a stored upload.
func (r *Registry) Fetch(ctx context.Context, upload *core.Upload) ([]byte, error) {
	return r.sink.Fetch(ctx, upload.FileURL)
}

// Attach persists staged uploads on an existing memory.
func (r *Registry) Attach(ctx context.Context, memoryID core.ID, uploads []*core.Upload) ([]*core.Upload, error) {
	return r.uploads.AddUploads(ctx, memoryID, uploads...)
}

// List returns the uploads of a memory in insertion order.
func (r *Registry) List(ctx context.Context, memoryID core.ID) ([]*core.Upload, error) {
	return r.uploads.ListUploads(ctx, memoryID)
}

// Get returns one upload.
func (r *Registry) Get(ctx context.Context, id core.ID) (*core.Upload, error) {
	return r.uploads.GetUpload(ctx, id)
}
