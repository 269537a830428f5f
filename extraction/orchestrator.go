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


// Package extraction drives memories from processing to ready or failed by
// gathering their text, asking the AI provider for derived artifacts and
// committing the results in one transaction.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/memvault/ai"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/retry"
	"github.com/poiesic/memvault/storage"
)

const (
	defaultMaxAttempts     = 3
	defaultRetryDelay      = time.Second
	defaultSummaryMaxChars = 12000
)

// Fetcher reads stored upload bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// TagResolver turns tag names into tag IDs, creating tags as needed.
type TagResolver interface {
	ResolveTags(ctx context.Context, names []string) ([]core.ID, error)
}

// Embeddings generates chunk vectors for text and persists them for a
// memory's stored text.
type Embeddings interface {
	Generate(ctx context.Context, memoryID core.ID, text string) (string, []*core.Embedding, error)
	Embed(ctx context.Context, memoryID core.ID) (int, error)
}

// runState tracks one memory in the in-flight set.
type runState struct {
	queued  bool
	running bool
	// again requests another run once the current one finishes.
	again bool
}

// Orchestrator schedules and executes extraction runs.
type Orchestrator struct {
	memories   storage.MemoryRepository
	uploads    storage.UploadRepository
	fetcher    Fetcher
	pages      PageReader
	extractor  ai.Extractor
	tags       TagResolver
	embeddings Embeddings

	pool            *ants.Pool
	embeddingPool   *ants.Pool
	maxAttempts     int
	retryDelay      time.Duration
	summaryMaxChars int
	logger          *slog.Logger

	mu       sync.Mutex
	inflight map[core.ID]*runState
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithPoolSize sets the number of concurrent extraction runs.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(o *Orchestrator) error {
		pool, err := ants.NewPool(max(size, 1))
		if err != nil {
			return err
		}
		if o.pool != nil {
			o.pool.Release()
		}
		o.pool = pool
		return nil
	}
}

// WithEmbeddingRetryPool sets the number of concurrent background embedding
// retries. Default is 1.
func WithEmbeddingRetryPool(size int) Option {
	return func(o *Orchestrator) error {
		pool, err := ants.NewPool(max(size, 1))
		if err != nil {
			return err
		}
		if o.embeddingPool != nil {
			o.embeddingPool.Release()
		}
		o.embeddingPool = pool
		return nil
	}
}

// WithMaxAttempts sets how often a transient provider failure is tried.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) error {
		if n < 1 {
			return retry.ErrInvalidMaxAttempts
		}
		o.maxAttempts = n
		return nil
	}
}

// WithRetryDelay sets the base backoff delay between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) error {
		if d < 0 {
			return fmt.Errorf("retry delay cannot be negative")
		}
		o.retryDelay = d
		return nil
	}
}

// WithSummaryMaxChars bounds the text sent for summary and tags.
func WithSummaryMaxChars(n int) Option {
	return func(o *Orchestrator) error {
		if n < 1 {
			return fmt.Errorf("summary max chars must be positive, got %d", n)
		}
		o.summaryMaxChars = n
		return nil
	}
}

// WithPageReader sets how URL memories are downloaded.
// Default is a WebPageReader with a 30s timeout.
func WithPageReader(pages PageReader) Option {
	return func(o *Orchestrator) error {
		if pages == nil {
			return fmt.Errorf("page reader cannot be nil")
		}
		o.pages = pages
		return nil
	}
}

// WithLogger sets the logger. A nil logger selects slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// NewOrchestrator creates an orchestrator. Call Release when done.
func NewOrchestrator(
	memories storage.MemoryRepository,
	uploads storage.UploadRepository,
	fetcher Fetcher,
	extractor ai.Extractor,
	tags TagResolver,
	embeddings Embeddings,
	opts ...Option,
) (*Orchestrator, error) {
	switch {
	case memories == nil:
		return nil, ErrMemoryRepositoryRequired
	case uploads == nil:
		return nil, ErrUploadRepositoryRequired
	case fetcher == nil:
		return nil, ErrFetcherRequired
	case extractor == nil:
		return nil, ErrExtractorRequired
	case tags == nil:
		return nil, ErrTagResolverRequired
	case embeddings == nil:
		return nil, ErrEmbeddingsRequired
	}

	pool, err := ants.NewPool(max(runtime.NumCPU()/2, 1))
	if err != nil {
		return nil, err
	}
	embeddingPool, err := ants.NewPool(1)
	if err != nil {
		pool.Release()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		memories:        memories,
		uploads:         uploads,
		fetcher:         fetcher,
		pages:           NewWebPageReader(nil),
		extractor:       extractor,
		tags:            tags,
		embeddings:      embeddings,
		pool:            pool,
		embeddingPool:   embeddingPool,
		maxAttempts:     defaultMaxAttempts,
		retryDelay:      defaultRetryDelay,
		summaryMaxChars: defaultSummaryMaxChars,
		logger:          slog.Default(),
		inflight:        make(map[core.ID]*runState),
		ctx:             ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		if optErr := opt(o); optErr != nil {
			o.Release()
			return nil, optErr
		}
	}
	o.logger = o.logger.With("component", "extraction")
	return o, nil
}

// Submit queues an extraction run for memoryID. It reports false when a run
// for the memory is already queued. If a run is in flight, another run is
// scheduled after it finishes.
func (o *Orchestrator) Submit(memoryID core.ID) bool {
	o.mu.Lock()
	if state, ok := o.inflight[memoryID]; ok {
		if state.running && !state.queued {
			state.again = true
		}
		o.mu.Unlock()
		return false
	}
	o.inflight[memoryID] = &runState{queued: true}
	o.wg.Add(1)
	o.mu.Unlock()

	err := o.pool.Submit(func() {
		defer o.wg.Done()
		o.runQueued(memoryID)
	})
	if err != nil {
		o.mu.Lock()
		delete(o.inflight, memoryID)
		o.mu.Unlock()
		o.wg.Done()
		o.logger.Error("failed to queue extraction", "memory", memoryID, "err", err)
		return false
	}
	return true
}

func (o *Orchestrator) runQueued(memoryID core.ID) {
	o.mu.Lock()
	state := o.inflight[memoryID]
	state.queued = false
	state.running = true
	o.mu.Unlock()

	err := o.process(o.ctx, memoryID)
	o.finish(memoryID)

	switch {
	case err == nil:
	case errors.Is(err, ErrMemoryDeleted), errors.Is(err, ErrNotProcessing):
		o.logger.Info("extraction skipped", "memory", memoryID, "reason", err)
	default:
		o.logger.Error("extraction run failed", "memory", memoryID, "err", err)
	}
}

// Run executes one extraction run synchronously.
func (o *Orchestrator) Run(ctx context.Context, memoryID core.ID) error {
	o.mu.Lock()
	if _, ok := o.inflight[memoryID]; ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: memory %d", ErrRunInProgress, memoryID)
	}
	o.inflight[memoryID] = &runState{running: true}
	o.mu.Unlock()

	defer o.finish(memoryID)
	return o.process(ctx, memoryID)
}

// finish removes memoryID from the in-flight set, resubmitting it when a
// request arrived during the run.
func (o *Orchestrator) finish(memoryID core.ID) {
	o.mu.Lock()
	state := o.inflight[memoryID]
	delete(o.inflight, memoryID)
	o.mu.Unlock()

	if state != nil && state.again {
		// Submitting from a worker could block on a saturated pool.
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.Submit(memoryID)
		}()
	}
}

// InFlight reports whether memoryID has a run queued or executing.
func (o *Orchestrator) InFlight(memoryID core.ID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inflight[memoryID]
	return ok
}

// Reextract moves a ready or failed memory back to processing and queues a
// run. A memory already processing is simply queued again.
func (o *Orchestrator) Reextract(ctx context.Context, memoryID core.ID) (*core.Memory, error) {
	memory, err := o.memories.GetMemory(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	if memory.Status != core.StatusProcessing {
		memory, err = o.memories.TransitionStatus(ctx, memoryID, core.StatusProcessing,
			core.StatusReady, core.StatusFailed)
		if err != nil {
			return nil, err
		}
	}
	o.Submit(memoryID)
	return memory, nil
}

// ResumePending queues every memory left in processing, for instance by a
// restart. Returns the number of memories queued.
func (o *Orchestrator) ResumePending(ctx context.Context) (int, error) {
	pending, err := o.memories.ListMemories(ctx, storage.MemoryFilter{
		Statuses: []core.Status{core.StatusProcessing},
	})
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, memory := range pending {
		if o.Submit(memory.ID) {
			queued++
		}
	}
	if queued > 0 {
		o.logger.Info("resumed pending extractions", "count", queued)
	}
	return queued, nil
}

// Wait blocks until all queued runs and embedding retries are done.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Release cancels background work, waits for running tasks to return and
// frees the worker pools. Interrupted runs leave their memory in processing.
// The orchestrator must not be used afterwards.
func (o *Orchestrator) Release() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
	if o.pool != nil {
		o.pool.Release()
	}
	if o.embeddingPool != nil {
		o.embeddingPool.Release()
	}
}

// scheduleEmbeddingRetry regenerates a memory's vectors in the background
// after they failed during its run.
func (o *Orchestrator) scheduleEmbeddingRetry(memoryID core.ID) {
	o.wg.Add(1)
	err := o.embeddingPool.Submit(func() {
		defer o.wg.Done()
		err := retry.DoIf(o.ctx, func() error {
			_, err := o.embeddings.Embed(o.ctx, memoryID)
			return err
		}, ai.IsTransient, o.maxAttempts, o.retryDelay)
		if err != nil {
			o.logger.Error("embedding retry failed", "memory", memoryID, "err", err)
			return
		}
		o.logger.Info("embedding retry succeeded", "memory", memoryID)
	})
	if err != nil {
		o.wg.Done()
		o.logger.Error("failed to queue embedding retry", "memory", memoryID, "err", err)
	}
}
