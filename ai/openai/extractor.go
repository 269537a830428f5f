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


package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
	"github.com/poiesic/memvault/ai"
	"github.com/poiesic/memvault/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// parseAttempts bounds how often a malformed tags response is re-requested.
const parseAttempts = 3

// Extractor implements ai.Extractor using OpenAI-compatible chat APIs.
type Extractor struct {
	client          llms.Model
	summaryMaxChars int
	logger          *slog.Logger
}

var _ ai.Extractor = (*Extractor)(nil)

// tagsResponse is the JSON document requested from the model.
type tagsResponse struct {
	Tags []string `json:"tags"`
}

// newExtractor is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newExtractor(config *ai.Config) (*Extractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ExtractionHost),
		openai.WithToken(config.Token),
		openai.WithModel(config.ExtractionModel),
	)
	if err != nil {
		return nil, err
	}

	return &Extractor{
		client:          client,
		summaryMaxChars: config.SummaryMaxChars,
		logger:          slog.Default().With("component", "openai-extractor", "model", config.ExtractionModel),
	}, nil
}

// NewExtractor creates a new extractor using the provided configuration.
//
// Returns ai.Extractor interface to enforce abstraction.
func NewExtractor(config *ai.Config) (ai.Extractor, error) {
	return newExtractor(config)
}

// Extract runs one extraction against the chat model.
func (e *Extractor) Extract(ctx context.Context, req ai.ExtractionRequest) (*ai.ExtractionResult, error) {
	switch req.Type {
	case core.ExtractionSummary:
		summary, err := e.summarize(ctx, req)
		if err != nil {
			return nil, err
		}
		return &ai.ExtractionResult{Summary: summary}, nil
	case core.ExtractionTags:
		tags, err := e.tag(ctx, req)
		if err != nil {
			return nil, err
		}
		return &ai.ExtractionResult{Tags: tags}, nil
	case core.ExtractionTranscription:
		text, err := e.transcribe(ctx, req)
		if err != nil {
			return nil, err
		}
		return &ai.ExtractionResult{Transcription: text}, nil
	}
	return nil, ai.Permanent(fmt.Errorf("%w: %q", ai.ErrUnsupportedExtraction, req.Type))
}

func (e *Extractor) summarize(ctx context.Context, req ai.ExtractionRequest) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, summaryPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, buildContentMessage(req.Title, req.Text, e.summaryMaxChars)),
	}
	return e.generate(ctx, content, llms.WithTemperature(0.2))
}

func (e *Extractor) tag(ctx context.Context, req ai.ExtractionRequest) ([]string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, buildTagsPrompt()),
		llms.TextParts(llms.ChatMessageTypeHuman, buildContentMessage(req.Title, req.Text, e.summaryMaxChars)),
	}

	// Small local models produce broken JSON now and then; ask again.
	var lastErr error
	for attempt := 1; attempt <= parseAttempts; attempt++ {
		raw, err := e.generate(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			return nil, err
		}
		tags, err := parseTags(raw)
		if err == nil {
			return tags, nil
		}
		lastErr = err
		e.logger.Warn("error parsing tags response", "attempt", attempt, "response", raw, "err", err)
	}
	e.logger.Error("failed to parse tags response after retries", "err", lastErr)
	return nil, ai.Permanent(lastErr)
}

func (e *Extractor) transcribe(ctx context.Context, req ai.ExtractionRequest) (string, error) {
	if req.File == nil {
		return "", ai.Permanent(errNoFile)
	}
	message := llms.MessageContent{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.TextPart(transcribeFilePrompt),
			llms.BinaryPart(req.File.MimeType, req.File.Data),
		},
	}
	return e.generate(ctx, []llms.MessageContent{message}, llms.WithTemperature(0.0))
}

// generate sends content and returns the trimmed text of the first choice.
func (e *Extractor) generate(ctx context.Context, content []llms.MessageContent, opts ...llms.CallOption) (string, error) {
	response, err := e.client.GenerateContent(ctx, content, opts...)
	if err != nil {
		err = classify(err)
		e.logger.Error("failed to generate content", "err", err)
		return "", err
	}
	if len(response.Choices) < 1 {
		return "", ai.Transient(errEmptyResponse)
	}
	return strings.TrimSpace(response.Choices[0].Content), nil
}

// parseTags decodes a tags document, tolerating code fences and unquoted keys.
func parseTags(raw string) ([]string, error) {
	text := strings.TrimPrefix(raw, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = repairJSON(strings.TrimSpace(text))

	var result tagsResponse
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, err
	}
	return result.Tags, nil
}
