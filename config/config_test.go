package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/memvault/ai"
	"github.com/poiesic/memvault/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DriverBadger, cfg.Storage.Driver)
	assert.True(t, cfg.Extraction.Enabled)
	assert.Equal(t, -1.0, cfg.Search.MinScore)
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "memvault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: sqlite
  dsn: /tmp/memvault.sqlite
extraction:
  pool_size: 8
  retry_delay: 250ms
uploads:
  limits:
    image: 2048
search:
  min_score: 0.2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "/tmp/memvault.sqlite", cfg.Storage.DSN)
	assert.Equal(t, 8, cfg.Extraction.PoolSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Extraction.RetryDelay.Std())
	assert.True(t, cfg.Extraction.Enabled, "unset keys keep their defaults")
	assert.Equal(t, 0.2, cfg.Search.MinScore)

	limits, err := cfg.UploadLimits()
	require.NoError(t, err)
	assert.Equal(t, int64(2048), limits[core.FileTypeImage])
}

func TestLoad_BadYAML(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_DotEnvAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("MEMVAULT_EMBEDDING_MODEL=from-dotenv\nMEMVAULT_EXTRACTION_MODEL=from-dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("MEMVAULT_EMBEDDING_MODEL") })
	t.Setenv("MEMVAULT_EXTRACTION_MODEL", "from-env")
	t.Setenv("MEMVAULT_PROCESSING_ENABLED", "false")
	t.Setenv("MEMVAULT_EXTRACTION_RETRY_DELAY", "5s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.AI.EmbeddingModel)
	assert.Equal(t, "from-env", cfg.AI.ExtractionModel)
	assert.False(t, cfg.Extraction.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Extraction.RetryDelay.Std())
}

func TestApplyEnv_BadValue(t *testing.T) {
	t.Setenv("MEMVAULT_EXTRACTION_POOL_SIZE", "many")

	err := Default().ApplyEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MEMVAULT_EXTRACTION_POOL_SIZE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		want   error
	}{
		{"unknown driver", func(c *AppConfig) { c.Storage.Driver = "mongo" }, ErrInvalidConfig},
		{"badger without path", func(c *AppConfig) { c.Storage.Path = "" }, ErrInvalidConfig},
		{"postgres without dsn", func(c *AppConfig) { c.Storage.Driver = DriverPostgres }, ErrInvalidConfig},
		{"no blob root", func(c *AppConfig) { c.Blob.Root = "" }, ErrInvalidConfig},
		{"no embedding model", func(c *AppConfig) { c.AI.EmbeddingModel = "" }, ai.ErrInvalidConfig},
		{"zero pool", func(c *AppConfig) { c.Extraction.PoolSize = 0 }, ErrInvalidConfig},
		{"zero page timeout", func(c *AppConfig) { c.Extraction.PageTimeout = 0 }, ErrInvalidConfig},
		{"min score out of range", func(c *AppConfig) { c.Search.MinScore = 1.5 }, ErrInvalidConfig},
		{"zero weights", func(c *AppConfig) { c.Search.SemanticWeight, c.Search.KeywordWeight = 0, 0 }, ErrInvalidConfig},
		{"overlap too large", func(c *AppConfig) { c.Embedding.Overlap = c.Embedding.ChunkSize }, ErrInvalidConfig},
		{"unknown upload type", func(c *AppConfig) { c.Uploads.Limits = map[string]int64{"zip": 10} }, core.ErrInvalidFileType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}

func TestValidate_MemoryDriverNeedsNothing(t *testing.T) {
	cfg := Default()
	cfg.Storage = StorageConfig{Driver: DriverMemory}
	assert.NoError(t, cfg.Validate())
}

func TestSave_RoundTrip(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "memvault.yaml")

	cfg := Default()
	cfg.Storage.Path = "/var/lib/memvault"
	cfg.Search.CacheSize = 10
	cfg.Extraction.RetryDelay = Duration(1500 * time.Millisecond)
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/memvault", loaded.Storage.Path)
	assert.Equal(t, int64(10), loaded.Search.CacheSize)
	assert.Equal(t, 1500*time.Millisecond, loaded.Extraction.RetryDelay.Std())
}

func TestAIConfig(t *testing.T) {
	cfg := Default()
	cfg.AI.EmbeddingHost = "http://gpu-box:11434"

	aiCfg := cfg.AIConfig()
	require.NoError(t, aiCfg.Validate())
	assert.Equal(t, "http://gpu-box:11434/v1", aiCfg.EmbeddingHost)
	assert.Equal(t, cfg.AI.EmbeddingModel, aiCfg.EmbeddingModel)
}
