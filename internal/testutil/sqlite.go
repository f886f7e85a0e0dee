// Package testutil provides database setup shared by package tests.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/hello-counter/internal/config"
	"github.com/iliyamo/hello-counter/internal/database"
)

// SQLiteConfig returns a DatabaseConfig for a SQLite file at path with
// settings suitable for concurrent tests.
func SQLiteConfig(path string) config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver:          database.DriverSQLite,
		Path:            path,
		BusyTimeout:     10 * time.Second,
		JournalMode:     "DELETE",
		MaxOpenConns:    8,
		MaxIdleConns:    8,
		ConnMaxLifetime: time.Minute,
	}
}

// TempDBPath returns a fresh database file path inside t's temp dir.
func TempDBPath(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "counter.db")
}

// OpenSQLite opens path and closes the handle when the test ends. Opening
// the same path twice gives two independent pools, which is how tests
// stand in for two replicas sharing one file.
func OpenSQLite(t testing.TB, path string) *sql.DB {
	t.Helper()
	db, err := database.Open(context.Background(), SQLiteConfig(path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
