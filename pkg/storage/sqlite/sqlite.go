// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/saamerm/particle/pkg/storage/sqldb"
)

var dialect = sqldb.Dialect{
	Migrations: []string{
		`CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			device_id TEXT NOT NULL,
			name TEXT NOT NULL,
			data TEXT NOT NULL,
			ttl INTEGER NOT NULL,
			published_at INTEGER NOT NULL,
			received_at INTEGER NOT NULL,
			stream_url TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS events_device_id_idx ON events (device_id)`,
		`CREATE INDEX IF NOT EXISTS events_name_idx ON events (name)`,
	},
	// LIKE is case-insensitive in SQLite, so compare the leading substring.
	NamePrefix: "substr(name, 1, length(?)) = ?",
}

// SQLiteDriver implements storage.Driver using SQLite.
type SQLiteDriver struct {
	*sqldb.Driver
}

// NewSQLiteDriver creates a new SQLite-backed storer.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDriver(dbPath string) (*SQLiteDriver, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	drv, err := sqldb.New(context.Background(), db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteDriver{Driver: drv}, nil
}
