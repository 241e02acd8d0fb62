package store

import (
	"database/sql"
	"testing"
)

// setupTestDB opens a fresh in-memory database with migrations applied,
// returning a cleanup func to close it.
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	db, err := InitDBWithPath(":memory:")
	if err != nil {
		t.Fatalf("setupTestDB: %v", err)
	}
	return db, func() { _ = db.Close() }
}
