// Package store manages the SQLite database (WAL mode) for Holvi.
// It holds the shared key-value entries plus the worklet invocation
// and beacon audit trails.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DB wraps *sql.DB with domain helpers.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the SQLite file at path with WAL journal mode.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000", path)
	raw, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := raw.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	// Limit writer concurrency to 1; SQLite WAL allows concurrent readers.
	raw.SetMaxOpenConns(1)
	return &DB{raw}, nil
}

// Migrate applies the embedded DDL schema to the database.
// It is idempotent (IF NOT EXISTS everywhere).
func Migrate(db *DB) error {
	ddl := []string{
		ddlEntries,
		ddlInvocations,
		ddlBeacons,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// ── DDL statements ────────────────────────────────────────────────────────

const ddlEntries = `
CREATE TABLE IF NOT EXISTS entries (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    key        TEXT    NOT NULL UNIQUE,
    value      TEXT    NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL           -- Unix milliseconds
);
CREATE INDEX IF NOT EXISTS idx_entries_key ON entries (key);
`

const ddlInvocations = `
CREATE TABLE IF NOT EXISTS invocations (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    invocation   TEXT    NOT NULL UNIQUE,  -- UUID assigned per run
    operation    TEXT    NOT NULL,
    key          TEXT    NOT NULL,
    char_index   INTEGER NOT NULL DEFAULT 0,
    matched      INTEGER NOT NULL DEFAULT 0, -- bool: 0 = absent, 1 = matched
    selected_url TEXT    NOT NULL DEFAULT '',
    ran_at       INTEGER NOT NULL          -- Unix milliseconds
);
CREATE INDEX IF NOT EXISTS idx_invocations_ran_at ON invocations (ran_at DESC);
`

const ddlBeacons = `
CREATE TABLE IF NOT EXISTS beacons (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    char        TEXT    NOT NULL,
    char_index  INTEGER NOT NULL DEFAULT 0,
    remote_addr TEXT    NOT NULL DEFAULT '',
    received_at INTEGER NOT NULL           -- Unix milliseconds
);
CREATE INDEX IF NOT EXISTS idx_beacons_received_at ON beacons (received_at DESC);
`
