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


// Package memvault wires storage, blob storage, AI providers and the
// ingestion, extraction and retrieval components into one Database.
package memvault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/poiesic/memvault/ai"
	"github.com/poiesic/memvault/ai/cache"
	"github.com/poiesic/memvault/ai/openai"
	"github.com/poiesic/memvault/blob"
	"github.com/poiesic/memvault/config"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/embedding"
	"github.com/poiesic/memvault/extraction"
	"github.com/poiesic/memvault/ingestion"
	"github.com/poiesic/memvault/organize"
	"github.com/poiesic/memvault/reembed"
	"github.com/poiesic/memvault/search"
	"github.com/poiesic/memvault/storage"
	"github.com/poiesic/memvault/storage/badger"
	"github.com/poiesic/memvault/storage/gorm"
	"github.com/poiesic/memvault/upload"
)

// Database is an open memvault instance.
type Database struct {
	cfg          *config.AppConfig
	store        storage.Store
	sink         blob.Sink
	provider     ai.AIProvider
	ownsProvider bool
	queryCache   *cache.Embedder
	registry     *upload.Registry
	embeddings   *embedding.Store
	graph        *organize.Graph
	orchestrator *extraction.Orchestrator
	coordinator  *ingestion.Coordinator
	engine       *search.Engine
	logger       *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	provider ai.AIProvider
	sink     blob.Sink
	logger   *slog.Logger
}

// WithProvider replaces the OpenAI-compatible provider built from the
// configuration. The caller keeps ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithSink replaces the file blob sink built from the configuration.
func WithSink(sink blob.Sink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open validates cfg, opens the configured storage engine and wires every
// component. A nil cfg means config.Default(). When extraction is enabled,
// memories left in processing by a previous process are queued again.
func Open(cfg *config.AppConfig, opts ...Option) (*Database, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	db := &Database{cfg: cfg, logger: o.logger.With("component", "memvault")}
	if err := db.wire(o); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.Extraction.Enabled {
		queued, err := db.orchestrator.ResumePending(context.Background())
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("resuming pending extractions: %w", err)
		}
		if queued > 0 {
			db.logger.Info("resumed pending extractions", "count", queued)
		}
	}
	return db, nil
}

func (db *Database) wire(o *options) error {
	cfg := db.cfg
	var err error

	if db.store, err = openStore(cfg.Storage); err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	db.sink = o.sink
	if db.sink == nil {
		if db.sink, err = blob.NewFileSink(cfg.Blob.Root, cfg.Blob.BaseURL); err != nil {
			return fmt.Errorf("failed to open blob sink: %w", err)
		}
	}

	db.provider = o.provider
	if db.provider == nil {
		if db.provider, err = openai.NewProvider(cfg.AIConfig()); err != nil {
			return fmt.Errorf("failed to create AI provider: %w", err)
		}
		db.ownsProvider = true
	}

	limits, err := cfg.UploadLimits()
	if err != nil {
		return err
	}
	if db.registry, err = upload.NewRegistry(db.sink, db.store.Uploads(),
		upload.WithLimits(limits), upload.WithLogger(o.logger)); err != nil {
		return err
	}

	if db.embeddings, err = db.newEmbeddingStore(db.provider.Embedder(), o.logger); err != nil {
		return err
	}
	db.graph = organize.NewGraph(db.store.Memories(), db.store.Tags(), db.store.Spaces(), o.logger)

	if db.orchestrator, err = extraction.NewOrchestrator(
		db.store.Memories(), db.store.Uploads(), db.sink, db.provider.Extractor(), db.graph, db.embeddings,
		extraction.WithPoolSize(cfg.Extraction.PoolSize),
		extraction.WithEmbeddingRetryPool(cfg.Extraction.EmbeddingRetryPool),
		extraction.WithMaxAttempts(cfg.Extraction.MaxAttempts),
		extraction.WithRetryDelay(cfg.Extraction.RetryDelay.Std()),
		extraction.WithSummaryMaxChars(cfg.AI.SummaryMaxChars),
		extraction.WithPageReader(extraction.NewWebPageReader(&http.Client{Timeout: cfg.Extraction.PageTimeout.Std()})),
		extraction.WithLogger(o.logger),
	); err != nil {
		return err
	}

	var scheduler ingestion.Scheduler = db.orchestrator
	if !cfg.Extraction.Enabled {
		scheduler = &deferredScheduler{memories: db.store.Memories()}
	}
	if db.coordinator, err = ingestion.NewCoordinator(
		db.store.Users(), db.store.Memories(), db.store.Extractions(),
		db.registry, scheduler, db.graph, ingestion.WithLogger(o.logger),
	); err != nil {
		return err
	}

	queryEmbedder := db.provider.Embedder()
	if cfg.Search.CacheSize > 0 {
		if db.queryCache, err = cache.NewEmbedder(queryEmbedder, cfg.Search.CacheSize); err != nil {
			return err
		}
		queryEmbedder = db.queryCache
	}
	db.engine, err = search.NewEngine(db.store.Memories(), db.store.Embeddings(), queryEmbedder,
		search.WithMinScore(float32(cfg.Search.MinScore)),
		search.WithHybridWeights(float32(cfg.Search.SemanticWeight), float32(cfg.Search.KeywordWeight)),
		search.WithLogger(o.logger),
	)
	return err
}

func openStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverBadger, config.DriverMemory:
		store, err := badger.Open(cfg.Path, cfg.Driver == config.DriverMemory)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverSQLite, config.DriverPostgres:
		store, err := gorm.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("%w: unknown storage driver %q", config.ErrInvalidConfig, cfg.Driver)
}

func (db *Database) newEmbeddingStore(embedder ai.Embedder, logger *slog.Logger) (*embedding.Store, error) {
	chunker, err := db.cfg.Chunker()
	if err != nil {
		return nil, err
	}
	return embedding.NewStore(db.store.Memories(), db.store.Embeddings(), embedder,
		embedding.WithChunker(chunker),
		embedding.WithConcurrency(db.cfg.Embedding.Concurrency),
		embedding.WithLogger(logger),
	)
}

// Close stops background work and releases every resource. Extraction runs
// still queued are abandoned; their memories stay in processing and are
// resumed by the next Open.
func (db *Database) Close() error {
	var errs []error
	if db.orchestrator != nil {
		db.orchestrator.Release()
	}
	if db.queryCache != nil {
		db.queryCache.Close()
	}
	if db.ownsProvider && db.provider != nil {
		if err := db.provider.Close(); err != nil {
			db.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if db.store != nil {
		if err := db.store.Close(); err != nil {
			db.logger.Error("error closing storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (db *Database) Config() *config.AppConfig { return db.cfg }

func (db *Database) Store() storage.Store { return db.store }

func (db *Database) Ingestion() *ingestion.Coordinator { return db.coordinator }

func (db *Database) Extraction() *extraction.Orchestrator { return db.orchestrator }

func (db *Database) Search() *search.Engine { return db.engine }

func (db *Database) Organizer() *organize.Graph { return db.graph }

func (db *Database) Embeddings() *embedding.Store { return db.embeddings }

func (db *Database) Uploads() *upload.Registry { return db.registry }

// CreateUser registers a new user. Fails with storage.ErrDuplicateKey if the
// email is taken.
func (db *Database) CreateUser(ctx context.Context, email string) (*core.User, error) {
	return db.store.Users().AddUser(ctx, &core.User{Email: email})
}

// EnsureUser returns the user registered under email, creating it if needed.
func (db *Database) EnsureUser(ctx context.Context, email string) (*core.User, error) {
	user, err := db.store.Users().FindUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	user, err = db.CreateUser(ctx, email)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return db.store.Users().FindUserByEmail(ctx, email)
	}
	return user, err
}

// WaitForMemory polls until the memory leaves the processing state or ctx
// is done.
func (db *Database) WaitForMemory(ctx context.Context, memoryID core.ID) (*core.Memory, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		memory, err := db.store.Memories().GetMemory(ctx, memoryID)
		if err != nil {
			return nil, err
		}
		if memory.Status != core.StatusProcessing {
			return memory, nil
		}
		select {
		case <-ctx.Done():
			return memory, ctx.Err()
		case <-ticker.C:
		}
	}
}

// NewReembedder returns a reembedder that writes vectors for embedder's
// model using the configured chunker.
func (db *Database) NewReembedder(embedder ai.Embedder, cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	store, err := db.newEmbeddingStore(embedder, db.logger)
	if err != nil {
		return nil, err
	}
	return reembed.NewReembedder(db.store.Memories(), store, cfg, progress, db.logger)
}
