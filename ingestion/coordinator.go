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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/dedup"
	"github.com/poiesic/memvault/storage"
	"github.com/poiesic/memvault/upload"
)

// Scheduler queues extraction runs. The extraction orchestrator implements it.
type Scheduler interface {
	// Submit queues a run for a memory in the processing state.
	Submit(memoryID core.ID) bool

	// Reextract moves a memory back to processing and queues a run.
	Reextract(ctx context.Context, memoryID core.ID) (*core.Memory, error)
}

// TagNamer resolves the tag names linked to a memory.
type TagNamer interface {
	MemoryTagNames(ctx context.Context, memoryID core.ID) ([]string, error)
}

// Submission is new content offered by a user.
type Submission struct {
	// Type may be left empty; it is then inferred from the content.
	Type      core.MemoryType
	Title     string
	Text      string
	SourceURL string
	Files     []upload.File
}

// IngestResult is the outcome of Ingest.
type IngestResult struct {
	Memory *core.Memory
	// Duplicate is set when the content was already stored. Memory is then
	// the existing memory, which may belong to another user.
	Duplicate bool
}

// Err returns ErrDuplicateContent for duplicate results and nil otherwise.
func (r *IngestResult) Err() error {
	if r.Duplicate {
		return ErrDuplicateContent
	}
	return nil
}

// Detail is a memory together with its derived data.
type Detail struct {
	Memory      *core.Memory
	Tags        []string
	Extractions []*core.Extraction
	Uploads     []*core.Upload
}

// Coordinator creates, reads and deletes memories on behalf of their owners.
type Coordinator struct {
	users       storage.UserRepository
	memories    storage.MemoryRepository
	extractions storage.ExtractionRepository
	registry    *upload.Registry
	scheduler   Scheduler
	tags        TagNamer
	index       *dedup.Index
	logger      *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewCoordinator creates a coordinator. tags may be nil, in which case Get
// reports no tag names.
func NewCoordinator(
	users storage.UserRepository,
	memories storage.MemoryRepository,
	extractions storage.ExtractionRepository,
	registry *upload.Registry,
	scheduler Scheduler,
	tags TagNamer,
	opts ...Option,
) (*Coordinator, error) {
	if users == nil {
		return nil, ErrUserRepositoryRequired
	}
	if memories == nil {
		return nil, ErrMemoryRepositoryRequired
	}
	if extractions == nil {
		return nil, ErrExtractionRepositoryRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if scheduler == nil {
		return nil, ErrSchedulerRequired
	}

	c := &Coordinator{
		users:       users,
		memories:    memories,
		extractions: extractions,
		registry:    registry,
		scheduler:   scheduler,
		tags:        tags,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "ingestion")
	c.index = dedup.NewIndex(memories, c.logger)
	return c, nil
}

// Ingest validates sub and stores it as a new memory owned by userID, or
// returns the memory that already holds the same content.
func (c *Coordinator) Ingest(ctx context.Context, userID core.ID, sub Submission) (*IngestResult, error) {
	memory, err := c.prepare(ctx, userID, &sub)
	if err != nil {
		return nil, err
	}

	existing, err := c.index.Lookup(ctx, userID, memory.ContentHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	if existing != nil {
		c.logger.Debug("duplicate submission", "memory", existing.ID, "user", userID)
		return &IngestResult{Memory: existing, Duplicate: true}, nil
	}

	var uploads []*core.Upload
	compensate := upload.Compensate(func(context.Context) {})
	if len(sub.Files) > 0 {
		uploads, compensate, err = c.registry.Stage(ctx, sub.Files)
		if err != nil {
			return nil, stageError(err)
		}
	}

	created, err := c.memories.CreateMemory(ctx, memory, uploads...)
	if err != nil {
		compensate(context.WithoutCancel(ctx))
		if errors.Is(err, storage.ErrDuplicateKey) || errors.Is(err, storage.ErrConflict) {
			winner, findErr := c.memories.FindMemoryByHash(ctx, memory.ContentHash)
			if findErr == nil {
				c.logger.Debug("lost ingestion race", "memory", winner.ID, "user", userID)
				return &IngestResult{Memory: winner, Duplicate: true}, nil
			}
			err = errors.Join(err, findErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}

	c.logger.Info("memory created", "memory", created.ID, "user", userID,
		"type", created.Type, "uploads", len(uploads))
	c.scheduler.Submit(created.ID)
	return &IngestResult{Memory: created}, nil
}

// prepare validates sub and builds the memory to insert, content hash
// included. Nothing is written.
func (c *Coordinator) prepare(ctx context.Context, userID core.ID, sub *Submission) (*core.Memory, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, core.ErrMissingOwner)
	}
	if _, err := c.users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w: %d", core.ErrValidation, ErrUnknownUser, userID)
		}
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}

	kind := sub.Type
	if kind == "" {
		kind = inferType(sub)
	}
	if err := core.ValidateMemoryType(kind); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, err)
	}

	text := dedup.NormalizeText(sub.Text)
	source := strings.TrimSpace(sub.SourceURL)
	if text == "" && source == "" && len(sub.Files) == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, core.ErrEmptyContent)
	}

	memory := &core.Memory{UserID: userID, Type: kind}
	if title := strings.TrimSpace(sub.Title); title != "" {
		memory.Title = core.Ptr(title)
	}
	content := dedup.Content{Kind: kind}

	switch kind {
	case core.MemoryTypeText:
		if text == "" || source != "" || len(sub.Files) > 0 {
			return nil, mismatch(kind)
		}
		memory.ExtractedText = core.Ptr(text)
		content.Text = text
	case core.MemoryTypeURL:
		if source == "" || text != "" || len(sub.Files) > 0 {
			return nil, mismatch(kind)
		}
		if err := validateURL(source); err != nil {
			return nil, err
		}
		memory.SourceURL = core.Ptr(source)
		content.URL = source
	case core.MemoryTypeFile:
		if len(sub.Files) == 0 || text != "" || source != "" {
			return nil, mismatch(kind)
		}
		if _, err := c.registry.Validate(sub.Files); err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrValidation, err)
		}
		for _, file := range sub.Files {
			content.Files = append(content.Files, file.Data)
		}
	}

	memory.ContentHash = dedup.Fingerprint(content)
	return memory, nil
}

func inferType(sub *Submission) core.MemoryType {
	switch {
	case len(sub.Files) > 0:
		return core.MemoryTypeFile
	case strings.TrimSpace(sub.SourceURL) != "":
		return core.MemoryTypeURL
	default:
		return core.MemoryTypeText
	}
}

func mismatch(kind core.MemoryType) error {
	return fmt.Errorf("%w: %w: %s", core.ErrValidation, ErrTypeMismatch, kind)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w: %w", core.ErrValidation, ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %w: %q", core.ErrValidation, ErrInvalidURL, raw)
	}
	return nil
}

func stageError(err error) error {
	if errors.Is(err, upload.ErrSinkFailure) {
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	return fmt.Errorf("%w: %w", core.ErrValidation, err)
}
