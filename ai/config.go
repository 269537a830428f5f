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


package ai

import (
	"fmt"
	"strings"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// ExtractionHost is the base URL for the summary, tag and transcription
	// chat API.
	ExtractionHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// ExtractionModel is the chat model used for extraction. Transcription of
	// images and audio needs a multimodal model.
	// Example: "qwen2.5vl:7b", "gpt-4o-mini"
	ExtractionModel string

	// Token is the API token. Local OpenAI-compatible services accept any value.
	Token string

	// SummaryMaxChars caps the text sent for summary and tag extraction.
	// Default: 12000
	SummaryMaxChars int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithExtractionHost sets the extraction service host URL.
func WithExtractionHost(host string) ConfigOption {
	return func(c *Config) {
		c.ExtractionHost = host
	}
}

// WithHost sets both embedding and extraction hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.ExtractionHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithExtractionModel sets the extraction model identifier.
func WithExtractionModel(model string) ConfigOption {
	return func(c *Config) {
		c.ExtractionModel = model
	}
}

// WithToken sets the API token.
func WithToken(token string) ConfigOption {
	return func(c *Config) {
		c.Token = token
	}
}

// WithSummaryMaxChars sets the input cap for summary and tag extraction.
func WithSummaryMaxChars(n int) ConfigOption {
	return func(c *Config) {
		c.SummaryMaxChars = n
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingHost:   defaultHost,
		ExtractionHost:  defaultHost,
		EmbeddingModel:  "embeddinggemma",
		ExtractionModel: "qwen2.5vl:7b",
		Token:           "none",
		SummaryMaxChars: 12000,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithEmbeddingModel("text-embedding-3-small"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize adds the /v1 suffix OpenAI-compatible APIs expect to both hosts
// and fills in an empty token.
func (c *Config) Normalize() {
	c.EmbeddingHost = withAPIVersion(c.EmbeddingHost)
	c.ExtractionHost = withAPIVersion(c.ExtractionHost)
	if c.Token == "" {
		c.Token = "none"
	}
}

func withAPIVersion(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	switch {
	case c.EmbeddingHost == "":
		return fmt.Errorf("%w: EmbeddingHost is required", ErrInvalidConfig)
	case c.ExtractionHost == "":
		return fmt.Errorf("%w: ExtractionHost is required", ErrInvalidConfig)
	case c.EmbeddingModel == "":
		return fmt.Errorf("%w: EmbeddingModel is required", ErrInvalidConfig)
	case c.ExtractionModel == "":
		return fmt.Errorf("%w: ExtractionModel is required", ErrInvalidConfig)
	case c.SummaryMaxChars < 1:
		return fmt.Errorf("%w: SummaryMaxChars must be positive", ErrInvalidConfig)
	}
	return nil
}
