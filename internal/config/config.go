// Package config loads GrepWise's configuration from environment variables,
// an optional .env file, and an optional YAML override file, following the
// teacher's section-struct-plus-envdecode pattern.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST"`
	Port int    `yaml:"port" env:"SERVER_PORT"`

	CORSOrigins        string `yaml:"cors_origins" env:"CORS_ORIGINS"`
	MaxBodyBytes       int64  `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	RateLimitPerSecond int    `yaml:"rate_limit_per_second" env:"RATE_LIMIT_PER_SECOND"`
	RateLimitBurst     int    `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// CORSOriginList splits the comma-separated CORSOrigins value into trimmed,
// non-empty entries.
func (c ServerConfig) CORSOriginList() []string {
	if strings.TrimSpace(c.CORSOrigins) == "" {
		return nil
	}
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IngestConfig controls the initial file-scanner and syslog sources started
// at boot, plus the shared ingestion buffer.
type IngestConfig struct {
	LogDirs            string `yaml:"log_dirs" env:"LOG_DIRS"`
	SyslogPort         int    `yaml:"syslog_port" env:"SYSLOG_PORT"`
	SyslogProto        string `yaml:"syslog_proto" env:"SYSLOG_PROTO"`
	SyslogFormat       string `yaml:"syslog_format" env:"SYSLOG_FORMAT"`
	BufferCapacity     int    `yaml:"buffer_capacity" env:"BUFFER_CAPACITY"`
	BufferDrainMillis  int    `yaml:"buffer_drain_millis" env:"BUFFER_DRAIN_MILLIS"`
	BufferBatchThresh  int    `yaml:"buffer_batch_threshold" env:"BUFFER_BATCH_THRESHOLD"`
}

// IndexConfig controls the index engine's storage root.
type IndexConfig struct {
	Dir string `yaml:"dir" env:"INDEX_DIR"`
}

// ArchiveConfig controls the archive engine's storage root.
type ArchiveConfig struct {
	Dir string `yaml:"dir" env:"ARCHIVE_DIR"`
}

// CacheConfig controls the search cache.
type CacheConfig struct {
	Enabled   bool   `yaml:"enabled" env:"CACHE_ENABLED"`
	MaxSize   int    `yaml:"max_size" env:"CACHE_MAX_SIZE"`
	TTLMillis int    `yaml:"ttl_ms" env:"CACHE_TTL_MS"`
	RedisAddr string `yaml:"redis_addr" env:"REDIS_ADDR"`
}

// RedactionConfig controls the field redactor.
type RedactionConfig struct {
	Enabled    bool   `yaml:"enabled" env:"REDACTION_ENABLED"`
	ConfigPath string `yaml:"config_path" env:"REDACTION_CONFIG"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// DatabaseConfig controls the optional Postgres-backed metadata store; an
// empty DSN keeps GrepWise running purely in-memory/on-disk.
type DatabaseConfig struct {
	DSN            string `yaml:"dsn" env:"DATABASE_DSN"`
	MigrateOnStart bool   `yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Index     IndexConfig     `yaml:"index"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Cache     CacheConfig     `yaml:"cache"`
	Redaction RedactionConfig `yaml:"redaction"`
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
}

// New returns a Config populated with the defaults documented in spec.md §6.
func New() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, MaxBodyBytes: 10 << 20, RateLimitBurst: 20},
		Ingest: IngestConfig{
			BufferCapacity:    10000,
			BufferDrainMillis: 250,
			BufferBatchThresh: 1024,
		},
		Index:   IndexConfig{Dir: "data/index"},
		Archive: ArchiveConfig{Dir: "data/archives"},
		Cache: CacheConfig{
			Enabled:   true,
			MaxSize:   1024,
			TTLMillis: 60000,
		},
		Redaction: RedactionConfig{Enabled: false},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Database:  DatabaseConfig{MigrateOnStart: true},
	}
}

// LogDirList splits the comma-separated LOG_DIRS value into trimmed, non-empty entries.
func (c IngestConfig) LogDirList() []string {
	if strings.TrimSpace(c.LogDirs) == "" {
		return nil
	}
	parts := strings.Split(c.LogDirs, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load loads configuration from .env, an optional YAML file (CONFIG_FILE, or
// configs/config.yaml if present), and then environment variable overrides,
// in that precedence order (env wins).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else if err := loadFromFile("configs/config.yaml", cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
