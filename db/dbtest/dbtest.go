// Package dbtest provides throwaway stores for repository tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"souqmarket/config"
	"souqmarket/db"
)

// SQLite opens a migrated SQLite backend in a per-test temp directory.
func SQLite(t testing.TB) *db.Backend {
	t.Helper()
	b, err := db.Open(context.Background(), config.StorageConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "market.sqlite"),
	})
	if err != nil {
		t.Fatalf("open sqlite backend: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

// RawSQLite returns the database handle behind a SQLite backend for tests
// that need to shape rows directly.
func RawSQLite(t testing.TB, b *db.Backend) *sql.DB {
	t.Helper()
	conn := b.SQLite()
	if conn == nil {
		t.Fatalf("backend %q is not sqlite", b.Driver)
	}
	return conn
}
