package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, ":3000", cfg.Listen)
	require.Equal(t, DriverSQLite, cfg.Storage.Driver)
	require.Equal(t, "X-Admin-Password", cfg.Admin.Header)
	require.Equal(t, 30*24*time.Hour, cfg.Sessions.TTL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileThenEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
listen: ":8080"
storage:
  driver: postgres
  database_url: postgres://file/db
sessions:
  ttl: 2h
http:
  request_timeout: 5s
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv("PORT", "9090")
	t.Setenv("ADMIN_PASSWORD", "s3cret")
	t.Setenv("SESSION_TTL", "0s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Listen)
	require.Equal(t, DriverPostgres, cfg.Storage.Driver)
	require.Equal(t, "postgres://file/db", cfg.Storage.DatabaseURL)
	require.Equal(t, "s3cret", cfg.Admin.Secret)
	require.Equal(t, time.Duration(0), cfg.Sessions.TTL)
	require.Equal(t, 5*time.Second, cfg.HTTP.RequestTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadSessionTTL(t *testing.T) {
	t.Setenv("SESSION_TTL", "forever")
	_, err := Load("")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"unknown driver":       func(c *Config) { c.Storage.Driver = "mysql" },
		"postgres without url": func(c *Config) { c.Storage.Driver = DriverPostgres },
		"empty admin secret":   func(c *Config) { c.Admin.Secret = "  " },
		"unknown algorithm":    func(c *Config) { c.Passwords.Algorithm = "md5" },
		"negative ttl":         func(c *Config) { c.Sessions.TTL = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.WhatsAppNumber = "212611111111"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "212611111111", loaded.WhatsAppNumber)
	require.Equal(t, cfg.Sessions.TTL, loaded.Sessions.TTL)
}
