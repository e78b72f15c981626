// Package config provides configuration management for the marketplace server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultAdminSecret is the placeholder secret shipped with the defaults. The
// server still starts with it but warns loudly.
const DefaultAdminSecret = "change-me"

// Config represents the marketplace server configuration.
type Config struct {
	Listen         string         `yaml:"listen"`
	WhatsAppNumber string         `yaml:"whatsapp_number"`
	Storage        StorageConfig  `yaml:"storage"`
	Admin          AdminConfig    `yaml:"admin"`
	Sessions       SessionConfig  `yaml:"sessions"`
	Passwords      PasswordConfig `yaml:"passwords"`
	HTTP           HTTPConfig     `yaml:"http"`
	Seed           SeedConfig     `yaml:"seed"`
}

// StorageConfig selects and locates the backing store.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // "sqlite" or "postgres"
	SQLitePath  string `yaml:"sqlite_path"`
	DatabaseURL string `yaml:"database_url"`
}

// AdminConfig holds the shared moderation secret.
type AdminConfig struct {
	Secret string `yaml:"secret"`
	Header string `yaml:"header"`
}

// SessionConfig controls farmer session lifetime. A zero TTL never expires.
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// PasswordConfig selects the key-derivation function for new password hashes.
type PasswordConfig struct {
	Algorithm string `yaml:"algorithm"`
}

// HTTPConfig contains HTTP server limits.
type HTTPConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

// SeedConfig points at an optional catalog seed file imported on startup.
type SeedConfig struct {
	Path string `yaml:"path"`
}

// DefaultPath is where "souqmarket config init" writes when --config is unset.
const DefaultPath = "souqmarket.yaml"

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen:         ":3000",
		WhatsAppNumber: "212600000000",
		Storage: StorageConfig{
			Driver:     DriverSQLite,
			SQLitePath: "database.sqlite",
		},
		Admin: AdminConfig{
			Secret: DefaultAdminSecret,
			Header: "X-Admin-Password",
		},
		Sessions: SessionConfig{
			TTL: 30 * 24 * time.Hour,
		},
		Passwords: PasswordConfig{
			Algorithm: "scrypt",
		},
		HTTP: HTTPConfig{
			RequestTimeout: 15 * time.Second,
			MaxBodyBytes:   800 << 10,
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies a
// .env file (if present) and environment overrides. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	// .env never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		if strings.Contains(v, ":") {
			c.Listen = v
		} else {
			c.Listen = ":" + v
		}
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.DatabaseURL = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		c.Admin.Secret = v
	}
	if v := os.Getenv("WHATSAPP_NUMBER"); v != "" {
		c.WhatsAppNumber = v
	}
	if v := os.Getenv("PASSWORD_ALGORITHM"); v != "" {
		c.Passwords.Algorithm = v
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: SESSION_TTL: %w", err)
		}
		c.Sessions.TTL = ttl
	}
	return nil
}

// Validate reports configuration that cannot be served.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("config: storage.sqlite_path required for sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("config: storage.database_url required for postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Admin.Secret) == "" {
		return fmt.Errorf("config: admin.secret must not be empty")
	}
	if c.Admin.Header == "" {
		return fmt.Errorf("config: admin.header must not be empty")
	}
	switch c.Passwords.Algorithm {
	case "scrypt", "argon2id":
	default:
		return fmt.Errorf("config: unknown password algorithm %q", c.Passwords.Algorithm)
	}
	if c.Sessions.TTL < 0 {
		return fmt.Errorf("config: sessions.ttl must not be negative")
	}
	return nil
}

// Save writes cfg to path as YAML, creating the parent directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
