package session

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

func setupStore(t *testing.T, passphrase string) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.db")
	store, err := OpenSQLiteStore(path, passphrase)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, _ := setupStore(t, "")
	ctx := context.Background()

	s, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Failed to load empty store: %v", err)
	}
	if s != nil {
		t.Fatalf("expected no session, got %+v", s)
	}

	want := models.Session{
		Token: "tok",
		User:  models.User{ID: "12", Username: "alice", FirstName: "Alice", Group: "CS-101"},
	}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	// a second save replaces the row
	want.User.Bio = "hello"
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if got.Token != want.Token || got.User.Username != "alice" || got.User.Bio != "hello" {
		t.Errorf("expected %+v, got %+v", want, *got)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}
	if got, _ := store.Load(ctx); got != nil {
		t.Errorf("expected cleared store, got %+v", got)
	}
}

func TestSQLiteStoreSealsToken(t *testing.T) {
	store, path := setupStore(t, "correct horse")
	ctx := context.Background()

	if err := store.Save(ctx, models.Session{Token: "secret-token", User: models.User{ID: "1"}}); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	var raw []byte
	if err := store.db.Get(&raw, `SELECT token FROM sessions`); err != nil {
		t.Fatalf("Failed to read raw row: %v", err)
	}
	if bytes.Contains(raw, []byte("secret-token")) {
		t.Error("expected token to be sealed at rest")
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if got.Token != "secret-token" {
		t.Errorf("expected %q, got %q", "secret-token", got.Token)
	}
	store.Close()

	wrong, err := OpenSQLiteStore(path, "wrong")
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer wrong.Close()
	if _, err := wrong.Load(ctx); !errors.Is(err, ErrWrongKey) {
		t.Errorf("expected ErrWrongKey, got %v", err)
	}

	none := NewSQLiteStore(wrong.db, "")
	if _, err := none.Load(ctx); !errors.Is(err, ErrSealed) {
		t.Errorf("expected ErrSealed, got %v", err)
	}
}
