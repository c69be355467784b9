package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port        int      `yaml:"port" env:"PORT"`
		Host        string   `yaml:"host" env:"HOST"`
		CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
	} `yaml:"server"`

	Whisper struct {
		Backend        string `yaml:"backend" env:"WHISPER_BACKEND"` // "cli" or "api"
		Model          string `yaml:"model" env:"WHISPER_MODEL"`
		Python         string `yaml:"python" env:"WHISPER_PYTHON"`
		Threads        int    `yaml:"threads" env:"WHISPER_THREADS"`
		Device         string `yaml:"device" env:"WHISPER_DEVICE"`
		URL            string `yaml:"url" env:"WHISPER_URL"`
		APIKey         string `yaml:"api_key" env:"WHISPER_API_KEY"`
		TimeoutSeconds int    `yaml:"timeout_seconds" env:"WHISPER_TIMEOUT_SECONDS"`
		Language       string `yaml:"language" env:"WHISPER_LANGUAGE"`
		Normalize      bool   `yaml:"normalize" env:"WHISPER_NORMALIZE"`
	} `yaml:"whisper"`

	Workers struct {
		Count     int `yaml:"count" env:"WORKERS"`
		QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	} `yaml:"workers"`

	Jobs struct {
		Mode string `yaml:"mode" env:"JOB_MODE"` // "volatile" or "durable"
	} `yaml:"jobs"`

	Storage struct {
		Backend     string `yaml:"backend" env:"STORE_BACKEND"` // "memory", "sqlite" or "postgres"
		TempDir     string `yaml:"temp_dir" env:"TEMP_DIR"`
		Database    string `yaml:"database" env:"SQLITE_PATH"`
		DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
		Table       string `yaml:"table" env:"JOB_TABLE"`
	} `yaml:"storage"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes" env:"CLEANUP_INTERVAL_MINUTES"`
		MaxAgeHours     int `yaml:"max_age_hours" env:"CLEANUP_MAX_AGE_HOURS"`
	} `yaml:"cleanup"`

	Limits struct {
		MaxFileSizeMB int  `yaml:"max_file_size_mb" env:"MAX_FILE_SIZE_MB"`
		StrictFormats bool `yaml:"strict_formats" env:"STRICT_FORMATS"`
	} `yaml:"limits"`

	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL"`
	} `yaml:"log"`
}

// Default returns the configuration used when neither the file nor the
// environment set a value.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8000
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

	cfg.Whisper.Backend = "cli"
	cfg.Whisper.Model = "tiny"
	cfg.Whisper.Python = "python"
	cfg.Whisper.Device = "cpu"
	cfg.Whisper.URL = "https://api.openai.com/v1/audio/transcriptions"
	cfg.Whisper.TimeoutSeconds = 600
	cfg.Whisper.Language = "en"

	cfg.Workers.Count = 1

	cfg.Jobs.Mode = "volatile"

	cfg.Storage.Backend = "memory"
	cfg.Storage.TempDir = "temp"
	cfg.Storage.Database = "data/jobs.db"

	cfg.Cleanup.IntervalMinutes = 60
	cfg.Cleanup.MaxAgeHours = 24

	cfg.Limits.MaxFileSizeMB = 500

	cfg.Log.Level = "info"
	return cfg
}

// Load builds the configuration. Priority: environment variables > .env file >
// YAML file at path > defaults. A missing YAML file is not an error.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	// Load .env file (silent if missing)
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations that would silently mix the volatile and
// durable job semantics.
func (c *Config) Validate() error {
	switch c.Jobs.Mode {
	case "volatile":
		if c.Storage.Backend != "memory" {
			return fmt.Errorf("jobs.mode volatile requires storage.backend memory, got %q", c.Storage.Backend)
		}
	case "durable":
		switch c.Storage.Backend {
		case "sqlite":
			if c.Storage.Database == "" {
				return errors.New("storage.database is required for the sqlite backend")
			}
		case "postgres":
			if c.Storage.DatabaseURL == "" {
				return errors.New("storage.database_url (DATABASE_URL) is required for the postgres backend")
			}
		default:
			return fmt.Errorf("jobs.mode durable requires storage.backend sqlite or postgres, got %q", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("jobs.mode must be volatile or durable, got %q", c.Jobs.Mode)
	}

	switch c.Whisper.Backend {
	case "cli":
	case "api":
		if c.Whisper.URL == "" {
			return errors.New("whisper.url is required for the api backend")
		}
	default:
		return fmt.Errorf("whisper.backend must be cli or api, got %q", c.Whisper.Backend)
	}

	if c.Workers.Count < 1 {
		return fmt.Errorf("workers.count must be at least 1, got %d", c.Workers.Count)
	}
	if c.Workers.QueueSize < 0 {
		return fmt.Errorf("workers.queue_size must not be negative, got %d", c.Workers.QueueSize)
	}
	if c.Limits.MaxFileSizeMB < 1 {
		return fmt.Errorf("limits.max_file_size_mb must be positive, got %d", c.Limits.MaxFileSizeMB)
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// WhisperTimeout is the per-request timeout of the API engine.
func (c *Config) WhisperTimeout() time.Duration {
	return time.Duration(c.Whisper.TimeoutSeconds) * time.Second
}

// bodyOverheadMB leaves room for multipart framing around a file at the size
// cap, so the upload handler rather than the server rejects oversize files.
const bodyOverheadMB = 1

// BodyLimit is the maximum request body size in bytes.
func (c *Config) BodyLimit() int {
	return (c.Limits.MaxFileSizeMB + bodyOverheadMB) * 1024 * 1024
}
