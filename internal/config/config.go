// Package config loads storefront configuration from YAML, an optional .env
// file and STOREFRONT_* environment variables, in that order of precedence.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Commerce backends.
const (
	CommerceRemote = "remote"
	CommerceMemory = "memory"
)

// Config is the full storefront configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Commerce CommerceConfig `yaml:"commerce"`
	Storage  StorageConfig  `yaml:"storage"`
	Session  SessionConfig  `yaml:"session"`
	Address  AddressConfig  `yaml:"address"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr           string        `yaml:"addr" env:"STOREFRONT_ADDR"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"STOREFRONT_ALLOWED_ORIGINS"`
	RateLimit      int           `yaml:"rate_limit" env:"STOREFRONT_RATE_LIMIT"`
	RateBurst      int           `yaml:"rate_burst" env:"STOREFRONT_RATE_BURST"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace" env:"STOREFRONT_SHUTDOWN_GRACE"`
}

// CommerceConfig configures the remote commerce API client.
type CommerceConfig struct {
	Backend       string        `yaml:"backend" env:"STOREFRONT_COMMERCE_BACKEND"`
	BaseURL       string        `yaml:"base_url" env:"STOREFRONT_COMMERCE_URL"`
	SessionHeader string        `yaml:"session_header" env:"STOREFRONT_SESSION_HEADER"`
	Timeout       time.Duration `yaml:"timeout" env:"STOREFRONT_COMMERCE_TIMEOUT"`
	MaxRetries    int           `yaml:"max_retries" env:"STOREFRONT_COMMERCE_MAX_RETRIES"`
}

// StorageConfig configures the durable local storage collaborator.
type StorageConfig struct {
	Backend       string `yaml:"backend" env:"STOREFRONT_STORAGE_BACKEND"`
	Dir           string `yaml:"dir" env:"STOREFRONT_STORAGE_DIR"`
	RedisAddr     string `yaml:"redis_addr" env:"STOREFRONT_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"STOREFRONT_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"STOREFRONT_REDIS_DB"`
	KeyPrefix     string `yaml:"key_prefix" env:"STOREFRONT_KEY_PREFIX"`
	PostgresDSN   string `yaml:"postgres_dsn" env:"STOREFRONT_POSTGRES_DSN"`
}

// SessionConfig configures how the session identity is persisted.
type SessionConfig struct {
	// Secret is a hex encoded 32 byte key. When set, the persisted session
	// record is sealed with it.
	Secret string `yaml:"secret" env:"STOREFRONT_SESSION_SECRET"`
}

// AddressConfig configures the address manager.
type AddressConfig struct {
	// RefreshSchedule is a cron spec for the passive address refresh. Empty
	// disables it.
	RefreshSchedule string `yaml:"refresh_schedule" env:"STOREFRONT_ADDRESS_REFRESH"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"STOREFRONT_LOG_LEVEL"`
	Format string `yaml:"format" env:"STOREFRONT_LOG_FORMAT"`
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
			RateLimit:      20,
			RateBurst:      40,
			ShutdownGrace:  10 * time.Second,
		},
		Commerce: CommerceConfig{
			Backend:       CommerceMemory,
			SessionHeader: "X-Session-Key",
			Timeout:       30 * time.Second,
			MaxRetries:    2,
		},
		Storage: StorageConfig{
			Backend:   StorageFile,
			Dir:       filepath.Join(".storefront", "state"),
			KeyPrefix: "storefront:",
		},
		Address: AddressConfig{
			RefreshSchedule: "@every 5m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads config/storefront.yaml if it exists and applies overrides.
func Load() (*Config, error) {
	path := filepath.Join("config", "storefront.yaml")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		path = ""
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the YAML file at path (skipped when empty), then a .env
// file from the working directory when present, then environment overrides.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to decode environment: %w", err)
	}
	return nil
}

// Validate rejects configurations the application cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("server rate limits must not be negative")
	}

	switch c.Commerce.Backend {
	case CommerceRemote:
		if strings.TrimSpace(c.Commerce.BaseURL) == "" {
			return fmt.Errorf("commerce.base_url is required for the remote backend")
		}
	case CommerceMemory:
	default:
		return fmt.Errorf("unknown commerce backend %q", c.Commerce.Backend)
	}
	if c.Commerce.MaxRetries < 0 {
		return fmt.Errorf("commerce.max_retries must not be negative")
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageFile:
		if strings.TrimSpace(c.Storage.Dir) == "" {
			return fmt.Errorf("storage.dir is required for the file backend")
		}
	case StorageRedis:
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			return fmt.Errorf("storage.redis_addr is required for the redis backend")
		}
	case StoragePostgres:
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Session.Secret != "" {
		if _, err := c.SessionKey(); err != nil {
			return err
		}
	}
	return nil
}

// SessionKey decodes the configured session secret. It returns nil when no
// secret is configured.
func (c *Config) SessionKey() (*[32]byte, error) {
	if c.Session.Secret == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(c.Session.Secret)
	if err != nil {
		return nil, fmt.Errorf("session.secret must be hex encoded: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("session.secret must decode to 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}
