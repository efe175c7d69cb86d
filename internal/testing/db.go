// Package testing provides testing utilities and helpers for the vault project.
package testing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/sentinel-vault/internal/database"
)

// NewTestDB creates a file-backed SQLite database in a temp dir with the named
// schema applied ("vault" applies vault_schema.sql; unknown names stay empty).
// The returned cleanup func closes the connection and is safe to call twice.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	path := filepath.Join(t.TempDir(), name+".db")
	db, err := database.New(database.Config{
		Path:    path,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	closed := false
	return db, func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		_ = os.Remove(path)
	}
}
