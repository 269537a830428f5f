package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/poiesic/memvault/ai"
	"github.com/poiesic/memvault/blob"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/retry"
	"github.com/poiesic/memvault/storage"
)

// run holds the state of one extraction run.
type run struct {
	o               *Orchestrator
	memory          *core.Memory
	embeddingFailed bool
}

func (o *Orchestrator) process(ctx context.Context, memoryID core.ID) error {
	memory, err := o.memories.GetMemory(ctx, memoryID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: memory %d", ErrMemoryDeleted, memoryID)
	}
	if err != nil {
		return err
	}
	if memory.Status != core.StatusProcessing {
		return fmt.Errorf("%w: memory %d is %s", ErrNotProcessing, memoryID, memory.Status)
	}

	o.logger.Debug("extraction started", "memory", memoryID, "type", memory.Type)
	r := &run{o: o, memory: memory}
	completion, err := r.execute(ctx)
	if err != nil {
		if errors.Is(err, ErrMemoryDeleted) || ctx.Err() != nil {
			return err
		}
		return o.fail(ctx, memoryID, err)
	}

	updated, err := o.memories.CompleteExtraction(ctx, memoryID, completion)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: memory %d", ErrMemoryDeleted, memoryID)
	case errors.Is(err, storage.ErrStatusConflict):
		return fmt.Errorf("%w: %w", ErrNotProcessing, err)
	case err != nil:
		return err
	}

	if r.embeddingFailed {
		o.scheduleEmbeddingRetry(memoryID)
	}
	o.logger.Info("extraction complete", "memory", memoryID, "status", updated.Status,
		"tags", len(completion.TagIDs), "chunks", len(completion.Embeddings))
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, memoryID core.ID, cause error) error {
	_, err := o.memories.FailExtraction(ctx, memoryID, cause.Error())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: memory %d", ErrMemoryDeleted, memoryID)
	case errors.Is(err, storage.ErrStatusConflict):
		return fmt.Errorf("%w: %w", ErrNotProcessing, err)
	case err != nil:
		return errors.Join(cause, err)
	}
	o.logger.Warn("extraction failed", "memory", memoryID, "err", cause)
	return fmt.Errorf("%w: %w", ErrExtractionFailed, cause)
}

func (r *run) execute(ctx context.Context) (*storage.Completion, error) {
	parts, transcripts, err := r.gather(ctx)
	if err != nil {
		return nil, err
	}
	text := capChars(strings.TrimSpace(strings.Join(parts, partSeparator)), maxTextChars)

	completion := &storage.Completion{}
	if len(transcripts) > 0 {
		completion.Extractions = append(completion.Extractions, &core.Extraction{
			ExtractionType: core.ExtractionTranscription,
			Content:        capChars(strings.Join(transcripts, partSeparator), maxPartChars),
		})
	}
	if text == "" {
		r.o.logger.Info("no text to extract", "memory", r.memory.ID)
		return completion, nil
	}
	completion.ExtractedText = &text

	prompt := truncate(text, r.o.summaryMaxChars)
	summary, err := r.extract(ctx, ai.ExtractionRequest{
		Type:  core.ExtractionSummary,
		Title: r.memory.TitleOrEmpty(),
		Text:  prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	summaryText := strings.TrimSpace(summary.Summary)
	if summaryText == "" {
		summaryText = fallbackSummary(text)
	}
	completion.Summary = &summaryText
	completion.Extractions = append(completion.Extractions, &core.Extraction{
		ExtractionType: core.ExtractionSummary,
		Content:        summaryText,
		Confidence:     summary.Confidence,
	})

	tagged, err := r.extract(ctx, ai.ExtractionRequest{
		Type:  core.ExtractionTags,
		Title: r.memory.TitleOrEmpty(),
		Text:  prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("tags: %w", err)
	}
	tags := normalizeTags(tagged.Tags)
	if len(tags) > 0 {
		completion.Extractions = append(completion.Extractions, &core.Extraction{
			ExtractionType: core.ExtractionTags,
			Content:        strings.Join(tags, ", "),
			Confidence:     tagged.Confidence,
		})
		completion.TagIDs, err = r.o.tags.ResolveTags(ctx, tags)
		if err != nil {
			return nil, fmt.Errorf("resolving tags: %w", err)
		}
	}

	if err := r.ensureExists(ctx); err != nil {
		return nil, err
	}
	model, embeddings, err := r.o.embeddings.Generate(ctx, r.memory.ID, text)
	if err != nil {
		r.o.logger.Warn("embedding generation failed, committing without vectors",
			"memory", r.memory.ID, "err", err)
		embeddings = []*core.Embedding{}
		r.embeddingFailed = true
	}
	completion.EmbeddingModel = model
	completion.Embeddings = embeddings
	return completion, nil
}

// gather collects the text parts of the memory and, separately, the parts
// that came from transcription.
func (r *run) gather(ctx context.Context) (parts, transcripts []string, err error) {
	add := func(text string, transcribed bool) {
		text = capChars(strings.TrimSpace(text), maxPartChars)
		if text == "" {
			return
		}
		parts = append(parts, text)
		if transcribed {
			transcripts = append(transcripts, text)
		}
	}

	switch r.memory.Type {
	case core.MemoryTypeText:
		add(r.memory.Text(), false)

	case core.MemoryTypeURL:
		if r.memory.SourceURL == nil {
			return nil, nil, ai.Permanent(errors.New("url memory without source url"))
		}
		text, err := r.readPage(ctx, *r.memory.SourceURL)
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", *r.memory.SourceURL, err)
		}
		add(text, false)

	case core.MemoryTypeFile:
		uploads, err := r.o.uploads.ListUploads(ctx, r.memory.ID)
		if err != nil {
			return nil, nil, err
		}
		for _, upload := range uploads {
			text, transcribed, err := r.uploadText(ctx, upload)
			if err != nil {
				return nil, nil, err
			}
			add(text, transcribed)
		}
	}
	return parts, transcripts, nil
}

// uploadText decodes text uploads and transcribes everything else.
func (r *run) uploadText(ctx context.Context, upload *core.Upload) (string, bool, error) {
	var data []byte
	err := retry.DoIf(ctx, func() error {
		var err error
		data, err = r.o.fetcher.Fetch(ctx, upload.FileURL)
		return err
	}, func(err error) bool {
		return !errors.Is(err, blob.ErrNotFound) && !errors.Is(err, blob.ErrInvalidKey)
	}, r.o.maxAttempts, r.o.retryDelay)
	if errors.Is(err, blob.ErrNotFound) {
		r.o.logger.Warn("upload blob missing, skipping", "memory", r.memory.ID, "upload", upload.ID)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("fetching upload %d: %w", upload.ID, err)
	}

	if upload.FileType == core.FileTypeText {
		return strings.ToValidUTF8(string(data), "\uFFFD"), false, nil
	}

	mimeType := ""
	if upload.MimeType != nil {
		mimeType = *upload.MimeType
	}
	result, err := r.extract(ctx, ai.ExtractionRequest{
		Type:  core.ExtractionTranscription,
		Title: r.memory.TitleOrEmpty(),
		File:  &ai.File{Data: data, MimeType: mimeType},
	})
	if errors.Is(err, ai.ErrUnsupportedExtraction) {
		r.o.logger.Warn("provider cannot transcribe upload, skipping",
			"memory", r.memory.ID, "upload", upload.ID, "type", upload.FileType)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("transcribing upload %d: %w", upload.ID, err)
	}
	return result.Transcription, true, nil
}

// readPage downloads the memory's source page, retrying transient failures.
func (r *run) readPage(ctx context.Context, rawURL string) (string, error) {
	var text string
	err := retry.DoIf(ctx, func() error {
		if err := r.ensureExists(ctx); err != nil {
			return err
		}
		var err error
		text, err = r.o.pages.ReadPage(ctx, rawURL)
		if err != nil {
			r.o.logger.Debug("page fetch failed", "memory", r.memory.ID, "err", err)
		}
		return err
	}, func(err error) bool {
		return !errors.Is(err, ErrMemoryDeleted) && ai.IsTransient(err)
	}, r.o.maxAttempts, r.o.retryDelay)
	return text, err
}

// extract calls the provider with retries on transient errors. Before
// every attempt it checks that the memory still exists.
func (r *run) extract(ctx context.Context, req ai.ExtractionRequest) (*ai.ExtractionResult, error) {
	var result *ai.ExtractionResult
	err := retry.DoIf(ctx, func() error {
		if err := r.ensureExists(ctx); err != nil {
			return err
		}
		var err error
		result, err = r.o.extractor.Extract(ctx, req)
		if err == nil && result == nil {
			err = ai.Permanent(errors.New("provider returned no result"))
		}
		if err != nil {
			r.o.logger.Debug("provider call failed", "memory", r.memory.ID, "type", req.Type, "err", err)
		}
		return err
	}, func(err error) bool {
		return !errors.Is(err, ErrMemoryDeleted) && ai.IsTransient(err)
	}, r.o.maxAttempts, r.o.retryDelay)
	return result, err
}

func (r *run) ensureExists(ctx context.Context) error {
	_, err := r.o.memories.GetMemory(ctx, r.memory.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: memory %d", ErrMemoryDeleted, r.memory.ID)
	}
	return err
}
