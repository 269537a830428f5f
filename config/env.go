package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "MEMVAULT_"

// ApplyEnv overrides fields from MEMVAULT_* environment variables.
// Unset variables leave the field alone.
func (c *AppConfig) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *AppConfig) applyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.str("STORAGE_DRIVER", &c.Storage.Driver)
	e.str("STORAGE_PATH", &c.Storage.Path)
	e.str("STORAGE_DSN", &c.Storage.DSN)
	e.str("BLOB_ROOT", &c.Blob.Root)
	e.str("BLOB_BASE_URL", &c.Blob.BaseURL)

	e.str("EMBEDDING_HOST", &c.AI.EmbeddingHost)
	e.str("EMBEDDING_MODEL", &c.AI.EmbeddingModel)
	e.str("EXTRACTION_HOST", &c.AI.ExtractionHost)
	e.str("EXTRACTION_MODEL", &c.AI.ExtractionModel)
	e.str("API_TOKEN", &c.AI.Token)
	e.integer("SUMMARY_MAX_CHARS", &c.AI.SummaryMaxChars)

	e.boolean("PROCESSING_ENABLED", &c.Extraction.Enabled)
	e.integer("EXTRACTION_POOL_SIZE", &c.Extraction.PoolSize)
	e.integer("EXTRACTION_MAX_ATTEMPTS", &c.Extraction.MaxAttempts)
	e.duration("EXTRACTION_RETRY_DELAY", &c.Extraction.RetryDelay)
	e.duration("EXTRACTION_PAGE_TIMEOUT", &c.Extraction.PageTimeout)

	e.integer("EMBEDDING_CHUNK_SIZE", &c.Embedding.ChunkSize)
	e.integer("EMBEDDING_OVERLAP", &c.Embedding.Overlap)
	e.integer("EMBEDDING_CONCURRENCY", &c.Embedding.Concurrency)

	e.float("SEARCH_MIN_SCORE", &c.Search.MinScore)
	e.integer64("SEARCH_CACHE_SIZE", &c.Search.CacheSize)

	return e.err
}

// envReader keeps the first parse error so callers can read every
// variable and check once.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) get(name string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	return e.lookup(EnvPrefix + name)
}

func (e *envReader) fail(name string, err error) {
	e.err = fmt.Errorf("%w: %s%s: %w", ErrInvalidConfig, EnvPrefix, name, err)
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) integer(name string, dst *int) {
	if v, ok := e.get(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) integer64(name string, dst *int64) {
	if v, ok := e.get(name); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) float(name string, dst *float64) {
	if v, ok := e.get(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) boolean(name string, dst *bool) {
	if v, ok := e.get(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(name string, dst *Duration) {
	if v, ok := e.get(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = Duration(d)
	}
}
