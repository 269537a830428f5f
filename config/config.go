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


// Package config loads the application configuration from a YAML file,
// a .env file and the process environment, in that order of precedence
// from lowest to highest.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/memvault/ai"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/embedding"
	"github.com/poiesic/memvault/upload"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverBadger   = "badger"
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// StorageConfig selects the storage engine.
type StorageConfig struct {
	// Driver is one of badger, memory, sqlite or postgres.
	Driver string `yaml:"driver"`
	// Path is the badger data directory.
	Path string `yaml:"path"`
	// DSN is the sqlite file or postgres connection string.
	DSN string `yaml:"dsn"`
}

// BlobConfig configures the file blob sink.
type BlobConfig struct {
	Root    string `yaml:"root"`
	BaseURL string `yaml:"base_url"`
}

// AIConfig configures the OpenAI-compatible provider.
type AIConfig struct {
	EmbeddingHost   string `yaml:"embedding_host"`
	EmbeddingModel  string `yaml:"embedding_model"`
	ExtractionHost  string `yaml:"extraction_host"`
	ExtractionModel string `yaml:"extraction_model"`
	Token           string `yaml:"token"`
	SummaryMaxChars int    `yaml:"summary_max_chars"`
}

// ExtractionConfig configures the background extraction workers.
type ExtractionConfig struct {
	// Enabled turns background processing on. When off, memories stay in
	// processing until a process with extraction enabled opens the store.
	Enabled            bool     `yaml:"enabled"`
	PoolSize           int      `yaml:"pool_size"`
	EmbeddingRetryPool int      `yaml:"embedding_retry_pool"`
	MaxAttempts        int      `yaml:"max_attempts"`
	RetryDelay         Duration `yaml:"retry_delay"`
	// PageTimeout bounds one download of a URL memory's page.
	PageTimeout        Duration `yaml:"page_timeout"`
}

// EmbeddingConfig configures chunking and embedding concurrency.
type EmbeddingConfig struct {
	ChunkSize   int `yaml:"chunk_size"`
	Overlap     int `yaml:"overlap"`
	MinChunk    int `yaml:"min_chunk"`
	Concurrency int `yaml:"concurrency"`
}

// UploadConfig overrides per-type size limits in bytes, keyed by file type
// (pdf, image, video, audio, text).
type UploadConfig struct {
	Limits map[string]int64 `yaml:"limits"`
}

// SearchConfig configures retrieval.
type SearchConfig struct {
	MinScore       float64 `yaml:"min_score"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	// CacheSize bounds the query embedding cache; 0 disables it.
	CacheSize int64 `yaml:"cache_size"`
}

// Duration is a time.Duration written to YAML as "1.5s" rather than
// nanoseconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// AppConfig is the root application configuration.
type AppConfig struct {
	Storage    StorageConfig    `yaml:"storage"`
	Blob       BlobConfig       `yaml:"blob"`
	AI         AIConfig         `yaml:"ai"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Uploads    UploadConfig     `yaml:"uploads"`
	Search     SearchConfig     `yaml:"search"`
}

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	aiDefaults := ai.DefaultConfig()
	return &AppConfig{
		Storage: StorageConfig{Driver: DriverBadger, Path: filepath.Join("data", "db")},
		Blob:    BlobConfig{Root: filepath.Join("data", "blobs")},
		AI: AIConfig{
			EmbeddingHost:   aiDefaults.EmbeddingHost,
			EmbeddingModel:  aiDefaults.EmbeddingModel,
			ExtractionHost:  aiDefaults.ExtractionHost,
			ExtractionModel: aiDefaults.ExtractionModel,
			Token:           aiDefaults.Token,
			SummaryMaxChars: aiDefaults.SummaryMaxChars,
		},
		Extraction: ExtractionConfig{
			Enabled:            true,
			PoolSize:           4,
			EmbeddingRetryPool: 1,
			MaxAttempts:        3,
			RetryDelay:         Duration(time.Second),
			PageTimeout:        Duration(30 * time.Second),
		},
		Embedding: EmbeddingConfig{
			ChunkSize:   embedding.DefaultChunkSize,
			Overlap:     embedding.DefaultOverlap,
			MinChunk:    embedding.DefaultMinChunk,
			Concurrency: 4,
		},
		Search: SearchConfig{
			MinScore:       -1,
			SemanticWeight: 0.7,
			KeywordWeight:  0.3,
			CacheSize:      1024,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies the
// environment. A missing file or an empty path yields the defaults. A .env
// file in the working directory is loaded first when present; variables
// already set in the environment win over it.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	if err := LoadEnvFile(".env"); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads variables from a dotenv file without overriding ones
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Save writes cfg as YAML, creating parent directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the configuration is complete and consistent.
func (c *AppConfig) Validate() error {
	switch c.Storage.Driver {
	case DriverBadger:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for badger", ErrInvalidConfig)
		}
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("%w: storage.dsn is required for %s", ErrInvalidConfig, c.Storage.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}

	if c.Blob.Root == "" {
		return fmt.Errorf("%w: blob.root is required", ErrInvalidConfig)
	}
	if err := c.AIConfig().Validate(); err != nil {
		return err
	}

	switch {
	case c.Extraction.PoolSize < 1:
		return fmt.Errorf("%w: extraction.pool_size must be positive", ErrInvalidConfig)
	case c.Extraction.EmbeddingRetryPool < 1:
		return fmt.Errorf("%w: extraction.embedding_retry_pool must be positive", ErrInvalidConfig)
	case c.Extraction.MaxAttempts < 1:
		return fmt.Errorf("%w: extraction.max_attempts must be positive", ErrInvalidConfig)
	case c.Extraction.RetryDelay < 0:
		return fmt.Errorf("%w: extraction.retry_delay cannot be negative", ErrInvalidConfig)
	case c.Extraction.PageTimeout <= 0:
		return fmt.Errorf("%w: extraction.page_timeout must be positive", ErrInvalidConfig)
	case c.Embedding.Concurrency < 1:
		return fmt.Errorf("%w: embedding.concurrency must be positive", ErrInvalidConfig)
	case c.Search.MinScore < -1 || c.Search.MinScore > 1:
		return fmt.Errorf("%w: search.min_score must be within [-1, 1]", ErrInvalidConfig)
	case c.Search.SemanticWeight < 0 || c.Search.KeywordWeight < 0 ||
		c.Search.SemanticWeight+c.Search.KeywordWeight == 0:
		return fmt.Errorf("%w: search weights must be non-negative and not both zero", ErrInvalidConfig)
	case c.Search.CacheSize < 0:
		return fmt.Errorf("%w: search.cache_size cannot be negative", ErrInvalidConfig)
	}

	if _, err := c.Chunker(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.UploadLimits(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// AIConfig converts the ai section for the provider.
func (c *AppConfig) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithExtractionHost(c.AI.ExtractionHost),
		ai.WithExtractionModel(c.AI.ExtractionModel),
		ai.WithToken(c.AI.Token),
		ai.WithSummaryMaxChars(c.AI.SummaryMaxChars),
	)
}

// Chunker builds the chunker described by the embedding section.
func (c *AppConfig) Chunker() (*embedding.Chunker, error) {
	chunker := &embedding.Chunker{
		ChunkSize: c.Embedding.ChunkSize,
		Overlap:   c.Embedding.Overlap,
		MinChunk:  c.Embedding.MinChunk,
	}
	if err := chunker.Validate(); err != nil {
		return nil, err
	}
	return chunker, nil
}

// UploadLimits returns the per-type limit overrides.
func (c *AppConfig) UploadLimits() (upload.Limits, error) {
	limits := make(upload.Limits, len(c.Uploads.Limits))
	for name, size := range c.Uploads.Limits {
		fileType, err := core.ParseFileType(name)
		if err != nil {
			return nil, err
		}
		if size < 1 {
			return nil, fmt.Errorf("upload limit for %s must be positive", name)
		}
		limits[fileType] = size
	}
	return limits, nil
}
