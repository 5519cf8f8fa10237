package testutil

import (
	"path/filepath"
	"testing"

	"github.com/ScarletRedJoker/jarvis-safety/internal/db"
)

// NewTestDB returns a temporary, migrated SQLite action store for tests.
//
// The caller does not need to close it; cleanup is registered on t.Cleanup.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "actions.db")
	return NewTestDBAtPath(t, path)
}

// NewTestDBAtPath creates a migrated SQLite action store at a specific path.
func NewTestDBAtPath(t *testing.T, path string) *db.DB {
	t.Helper()

	if path == "" {
		t.Fatalf("NewTestDBAtPath: path is required")
	}

	store, err := db.OpenAndMigrate(path)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

// WithTestDB runs fn with a temporary test action store.
func WithTestDB(t *testing.T, fn func(store *db.DB)) {
	t.Helper()
	if fn == nil {
		t.Fatalf("WithTestDB: fn is required")
	}
	fn(NewTestDB(t))
}
