package db

import (
	"path/filepath"
	"testing"
)

func TestNewDBAppliesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")
	schema := []string{
		`CREATE TABLE IF NOT EXISTS notes (id INTEGER PRIMARY KEY AUTOINCREMENT, body TEXT NOT NULL)`,
	}

	database, err := NewDB(path, schema)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	if _, err := database.Exec(`INSERT INTO notes (body) VALUES (?)`, "hello"); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	database.Close()

	// reopening must not fail on the existing table
	database, err = NewDB(path, schema)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer database.Close()

	var body string
	if err := database.Get(&body, `SELECT body FROM notes WHERE id = 1`); err != nil {
		t.Fatalf("Failed to read back: %v", err)
	}
	if body != "hello" {
		t.Errorf("expected %q, got %q", "hello", body)
	}
}

func TestNewDBInMemory(t *testing.T) {
	database, err := NewDB(":memory:", []string{`CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT)`})
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	defer database.Close()

	if _, err := database.Exec(`INSERT INTO kv (k, v) VALUES ('a', 'b')`); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	var n int
	if err := database.Get(&n, `SELECT COUNT(*) FROM kv`); err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row, got %d", n)
	}
}
