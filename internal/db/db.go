package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sqlx.DB
}

// NewDB opens (creating if needed) the SQLite database at dbPath and applies
// schema. Every statement in schema must be idempotent.
func NewDB(dbPath string, schema []string) (*DB, error) {
	if dbPath != ":memory:" {
		dbDir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// SQLite serializes writers anyway, and a single connection keeps
	// :memory: databases from splitting into one database per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	if err := initSchema(db, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	return &DB{db}, nil
}

func dsn(dbPath string) string {
	if dbPath == ":memory:" {
		return "file::memory:?_foreign_keys=1"
	}
	return dbPath + "?_foreign_keys=1&_journal_mode=WAL"
}

func initSchema(db *sqlx.DB, schema []string) error {
	for _, query := range schema {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}
