package testing

import (
	"database/sql"
	"testing"

	"github.com/innoscope/innoscope/storage"
)

// CreateTestDB creates an in-memory SQLite test database with the full
// schema applied. Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := storage.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	// In-memory databases vanish per connection; keep exactly one open.
	db.SetMaxOpenConns(1)

	if err := storage.Migrate(db, nil); err != nil {
		db.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
