// Package sqlite implements repository.DocumentStore on SQLite.
//
// DOCUMENTS ON A RELATIONAL ENGINE:
// Every collection shares one `documents` table. A row is keyed by
// (project, collection, id) and carries its fields as a JSON object in the
// `data` column. Filters use SQLite's built-in json_extract(), and
// uniqueness constraints are partial expression indexes over json_extract()
// scoped to one collection.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary needs
// no C toolchain. ":memory:" gives a throwaway database for tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements repository.DocumentStore.
// project partitions all rows, so several tenants can share one file.
type DB struct {
	conn    *sql.DB
	project string
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/tokens.db"  → file-based database (persistent)
//   - ":memory:"        → in-memory database (tests)
func New(dbPath, project string) (*DB, error) {
	if project == "" {
		return nil, fmt.Errorf("sqlite: project id is required")
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each pooled connection to ":memory:" would see its own empty database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in flight.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Concurrent writers wait for the lock instead of failing with SQLITE_BUSY.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn, project: project}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the documents table. CREATE ... IF NOT EXISTS keeps it
// idempotent across restarts.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			project     TEXT NOT NULL,
			collection  TEXT NOT NULL,
			id          TEXT NOT NULL,
			data        TEXT NOT NULL DEFAULT '{}',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (project, collection, id)
		);
		CREATE INDEX IF NOT EXISTS idx_documents_created_at
			ON documents(project, collection, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}

	return nil
}
