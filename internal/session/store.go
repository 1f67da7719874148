package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/db"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

// Schema holds the tables used by SQLiteStore.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		slot TEXT PRIMARY KEY,
		token BLOB NOT NULL,
		salt BLOB,
		user_json TEXT NOT NULL,
		saved_at DATETIME NOT NULL
	)`,
}

const defaultSlot = "default"

type sessionRow struct {
	Slot     string    `db:"slot"`
	Token    []byte    `db:"token"`
	Salt     []byte    `db:"salt"`
	UserJSON string    `db:"user_json"`
	SavedAt  time.Time `db:"saved_at"`
}

// SQLiteStore keeps a single session in a local SQLite database. With a
// passphrase the token is sealed at rest.
type SQLiteStore struct {
	db         *db.DB
	slot       string
	passphrase []byte
}

func OpenSQLiteStore(path, passphrase string) (*SQLiteStore, error) {
	database, err := db.NewDB(path, Schema)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(database, passphrase), nil
}

func NewSQLiteStore(database *db.DB, passphrase string) *SQLiteStore {
	return &SQLiteStore{db: database, slot: defaultSlot, passphrase: []byte(passphrase)}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (*models.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT slot, token, salt, user_json, saved_at
		FROM sessions
		WHERE slot = ?
	`, s.slot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	token, err := openToken(s.passphrase, row.Token, row.Salt)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := json.Unmarshal([]byte(row.UserJSON), &user); err != nil {
		return nil, fmt.Errorf("failed to decode stored user: %w", err)
	}
	return &models.Session{Token: string(token), User: user}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, sess models.Session) error {
	userJSON, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	sealed, salt, err := sealToken(s.passphrase, []byte(sess.Token))
	if err != nil {
		return err
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (slot, token, salt, user_json, saved_at)
		VALUES (:slot, :token, :salt, :user_json, :saved_at)
	`, sessionRow{
		Slot:     s.slot,
		Token:    sealed,
		Salt:     salt,
		UserJSON: string(userJSON),
		SavedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE slot = ?`, s.slot); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// MemoryStore keeps the session for the lifetime of the process only.
type MemoryStore struct {
	mu   sync.Mutex
	sess *models.Session
}

func (m *MemoryStore) Load(context.Context) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil, nil
	}
	s := *m.sess
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = &s
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = nil
	return nil
}
