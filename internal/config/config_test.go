package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "nonexistent.env")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.Equal(t, "volatile", cfg.Jobs.Mode)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "cli", cfg.Whisper.Backend)
	assert.Equal(t, "tiny", cfg.Whisper.Model)
	assert.Equal(t, "en", cfg.Whisper.Language)
	assert.Equal(t, 1, cfg.Workers.Count)
	assert.Equal(t, 0, cfg.Workers.QueueSize)
	assert.Equal(t, 501*1024*1024, cfg.BodyLimit())
	assert.Equal(t, 600*time.Second, cfg.WhisperTimeout())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 9000
jobs:
  mode: durable
storage:
  backend: sqlite
  database: /var/lib/jobs.db
workers:
  count: 3
  queue_size: 50
whisper:
  model: base
`)
	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "durable", cfg.Jobs.Mode)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/jobs.db", cfg.Storage.Database)
	assert.Equal(t, 3, cfg.Workers.Count)
	assert.Equal(t, 50, cfg.Workers.QueueSize)
	assert.Equal(t, "base", cfg.Whisper.Model)
	// Untouched keys keep their defaults
	assert.Equal(t, "en", cfg.Whisper.Language)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", "server:\n  port: 9000\n")
	t.Setenv("PORT", "9100")
	t.Setenv("JOB_MODE", "durable")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://app:pw@db/jobs")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("WORKERS", "2")

	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "postgres://app:pw@db/jobs", cfg.Storage.DatabaseURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 2, cfg.Workers.Count)
}

func TestLoad_DotEnvFile(t *testing.T) {
	envFile := writeFile(t, "test.env", "WHISPER_MODEL=small\nLOG_LEVEL=debug\n")
	t.Cleanup(func() {
		os.Unsetenv("WHISPER_MODEL")
		os.Unsetenv("LOG_LEVEL")
	})

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "small", cfg.Whisper.Model)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MalformedDotEnv(t *testing.T) {
	envFile := writeFile(t, "broken.env", "BAD-KEY=1\n")
	_, err := Load("", envFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.env")
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", "server: [unclosed\n")
	_, err := Load(path, noEnvFile(t))
	assert.Error(t, err)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("PORT", "eighty")
	_, err := Load("", noEnvFile(t))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"volatile_with_sqlite", func(c *Config) { c.Storage.Backend = "sqlite" }, "volatile requires"},
		{"durable_with_memory", func(c *Config) { c.Jobs.Mode = "durable" }, "durable requires"},
		{"durable_sqlite", func(c *Config) {
			c.Jobs.Mode = "durable"
			c.Storage.Backend = "sqlite"
		}, ""},
		{"durable_sqlite_no_path", func(c *Config) {
			c.Jobs.Mode = "durable"
			c.Storage.Backend = "sqlite"
			c.Storage.Database = ""
		}, "storage.database"},
		{"durable_postgres_no_url", func(c *Config) {
			c.Jobs.Mode = "durable"
			c.Storage.Backend = "postgres"
		}, "database_url"},
		{"unknown_mode", func(c *Config) { c.Jobs.Mode = "hybrid" }, "jobs.mode"},
		{"unknown_whisper_backend", func(c *Config) { c.Whisper.Backend = "grpc" }, "whisper.backend"},
		{"api_without_url", func(c *Config) {
			c.Whisper.Backend = "api"
			c.Whisper.URL = ""
		}, "whisper.url"},
		{"zero_workers", func(c *Config) { c.Workers.Count = 0 }, "workers.count"},
		{"negative_queue", func(c *Config) { c.Workers.QueueSize = -1 }, "queue_size"},
		{"zero_size_limit", func(c *Config) { c.Limits.MaxFileSizeMB = 0 }, "max_file_size_mb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
