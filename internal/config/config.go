// Package config provides unified configuration loading for convertd.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for convertd services.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Blob          BlobConfig          `yaml:"blob"`
	Queue         QueueConfig         `yaml:"queue"`
	Worker        WorkerConfig        `yaml:"worker"`
	Sweep         SweepConfig         `yaml:"sweep"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// DatabaseConfig holds job record store settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// BlobConfig holds object store settings.
type BlobConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	AccessKey    string        `yaml:"access_key"`
	SecretKey    string        `yaml:"secret_key"`
	UseSSL       bool          `yaml:"use_ssl"`
	Region       string        `yaml:"region"`
	Bucket       string        `yaml:"bucket"`
	UploadExpiry time.Duration `yaml:"upload_expiry"`
	ResultExpiry time.Duration `yaml:"result_expiry"`
}

// QueueConfig holds conversion trigger queue settings.
type QueueConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	Key         string        `yaml:"key"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

// WorkerConfig holds conversion worker settings.
type WorkerConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	TempDir        string        `yaml:"temp_dir"`
	PdftotextPath  string        `yaml:"pdftotext_path"`
	TesseractPath  string        `yaml:"tesseract_path"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	MaxPages       int           `yaml:"max_pages"`
}

// SweepConfig holds stuck-job reclaim settings.
type SweepConfig struct {
	Interval           time.Duration `yaml:"interval"`
	UploadDeadline     time.Duration `yaml:"upload_deadline"`
	ProcessingDeadline time.Duration `yaml:"processing_deadline"`
	BatchLimit         int           `yaml:"batch_limit"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8082,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/convertd.db",
				MaxOpenConns: 1,
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Blob: BlobConfig{
			Endpoint:     "localhost:9000",
			AccessKey:    "minio",
			SecretKey:    "minio123",
			Bucket:       "convertd",
			UploadExpiry: time.Hour,
			ResultExpiry: 48 * time.Hour,
		},
		Queue: QueueConfig{
			Addr:        "localhost:6379",
			Key:         "convertd:jobs",
			PollTimeout: 5 * time.Second,
		},
		Worker: WorkerConfig{
			Concurrency:    2,
			TempDir:        os.TempDir(),
			PdftotextPath:  "pdftotext",
			TesseractPath:  "tesseract",
			CommandTimeout: 60 * time.Second,
			MaxPages:       10,
		},
		Sweep: SweepConfig{
			Interval:           time.Minute,
			UploadDeadline:     30 * time.Minute,
			ProcessingDeadline: 15 * time.Minute,
			BatchLimit:         100,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "convertd",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Blob.Bucket == "" {
		return fmt.Errorf("blob bucket must be set")
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be at least 1")
	}

	if c.Sweep.UploadDeadline <= 0 || c.Sweep.ProcessingDeadline <= 0 {
		return fmt.Errorf("sweep deadlines must be positive")
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Queue.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Queue.Password = v
	}

	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.Blob.Endpoint = v
	}

	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.Blob.AccessKey = v
	}

	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.Blob.SecretKey = v
	}

	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		cfg.Blob.UseSSL = strings.EqualFold(v, "true")
	}

	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.Blob.Bucket = v
	}

	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Worker.Concurrency = n
		}
	}

	if v := os.Getenv("WORKER_TMP_DIR"); v != "" {
		cfg.Worker.TempDir = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
