// Package db provides the SQLite connection and schema migration.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store errors.
var (
	// ErrActionNotFound is returned when an action id does not exist.
	ErrActionNotFound = errors.New("action not found")
	// ErrInvalidTransition is returned when a status transition violates the
	// state machine (the row's current status did not match the precondition).
	ErrInvalidTransition = errors.New("invalid status transition")
)

// DB wraps the sql.DB connection to the action store.
type DB struct {
	*sql.DB
	path string
}

// Open opens (or creates) the SQLite database at path without migrating.
// Use ":memory:" for an in-memory store.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return nil, fmt.Errorf("creating database dir: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Serialized access keeps the CAS transition discipline simple; contention
	// on a single approval store is expected to be low.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON; PRAGMA busy_timeout=5000;`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	return &DB{DB: conn, path: path}, nil
}

// OpenAndMigrate opens the database and applies the schema.
func OpenAndMigrate(path string) (*DB, error) {
	database, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return database, nil
}

// Migrate creates the schema if it does not exist.
func (db *DB) Migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS actions (
			id                  TEXT PRIMARY KEY,
			action_type         TEXT NOT NULL,
			status              TEXT NOT NULL,
			command             TEXT NOT NULL,
			description         TEXT NOT NULL DEFAULT '',
			risk_level          TEXT NOT NULL,
			requested_by        TEXT NOT NULL,
			requested_at        TEXT NOT NULL,
			approved_by         TEXT,
			approved_at         TEXT,
			rejected_by         TEXT,
			rejected_at         TEXT,
			rejection_reason    TEXT,
			executed_at         TEXT,
			execution_result    TEXT,
			metadata            TEXT,
			checkpoint_data     TEXT,
			rollback_command    TEXT,
			expires_at          TEXT NOT NULL,
			requires_checkpoint INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_actions_status ON actions(status);
		CREATE INDEX IF NOT EXISTS idx_actions_type_status ON actions(action_type, status);
		CREATE INDEX IF NOT EXISTS idx_actions_requested_at ON actions(requested_at);
	`)
	if err != nil {
		return fmt.Errorf("creating actions schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}
