package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

type failingStore struct {
	MemoryStore
	loadErr error
	saveErr error
}

func (f *failingStore) Load(ctx context.Context) (*models.Session, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.MemoryStore.Load(ctx)
}

func (f *failingStore) Save(ctx context.Context, s models.Session) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryStore.Save(ctx, s)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 7,
		"exp":     exp.Unix(),
	})
	s, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return s
}

func TestRestoreStartsUnknown(t *testing.T) {
	h := NewHolder(&MemoryStore{}, nil)
	if got := h.Current().State; got != StateUnknown {
		t.Fatalf("expected %v, got %v", StateUnknown, got)
	}
	if _, ok := h.Token(); ok {
		t.Error("expected no token before restore")
	}

	if err := h.Restore(context.Background()); err != nil {
		t.Fatalf("Failed to restore: %v", err)
	}
	if got := h.Current().State; got != StateUnauthenticated {
		t.Errorf("expected %v, got %v", StateUnauthenticated, got)
	}
}

func TestRestoreLoadsStoredSession(t *testing.T) {
	store := &MemoryStore{}
	user := models.User{ID: "7", Username: "alice"}
	store.Save(context.Background(), models.Session{Token: "opaque-token", User: user})

	h := NewHolder(store, nil)
	if err := h.Restore(context.Background()); err != nil {
		t.Fatalf("Failed to restore: %v", err)
	}
	snap := h.Current()
	if !snap.Authenticated() {
		t.Fatalf("expected authenticated, got %v", snap.State)
	}
	if snap.Session.UserID() != "7" {
		t.Errorf("expected user 7, got %q", snap.Session.UserID())
	}
	token, ok := h.Token()
	if !ok || token != "opaque-token" {
		t.Errorf("expected %q, got %q", "opaque-token", token)
	}
}

func TestRestoreDiscardsExpiredJWT(t *testing.T) {
	store := &MemoryStore{}
	expired := signedToken(t, time.Now().Add(-time.Hour))
	store.Save(context.Background(), models.Session{Token: expired, User: models.User{ID: "7"}})

	h := NewHolder(store, nil)
	if err := h.Restore(context.Background()); err != nil {
		t.Fatalf("Failed to restore: %v", err)
	}
	if got := h.Current().State; got != StateUnauthenticated {
		t.Errorf("expected %v, got %v", StateUnauthenticated, got)
	}
	if s, _ := store.Load(context.Background()); s != nil {
		t.Error("expected expired session to be cleared from the store")
	}

	fresh := signedToken(t, time.Now().Add(time.Hour))
	store.Save(context.Background(), models.Session{Token: fresh, User: models.User{ID: "7"}})
	h = NewHolder(store, nil)
	h.Restore(context.Background())
	if !h.Current().Authenticated() {
		t.Error("expected unexpired token to be restored")
	}
}

func TestRestoreFailureIsUnauthenticated(t *testing.T) {
	h := NewHolder(&failingStore{loadErr: errors.New("disk gone")}, nil)
	if err := h.Restore(context.Background()); err == nil {
		t.Fatal("expected restore error")
	}
	if got := h.Current().State; got != StateUnauthenticated {
		t.Errorf("expected %v, got %v", StateUnauthenticated, got)
	}
}

func TestLoginBeforeRestoreWins(t *testing.T) {
	store := &MemoryStore{}
	h := NewHolder(store, nil)
	if err := h.Login(context.Background(), "tok", models.User{ID: "1"}); err != nil {
		t.Fatalf("Failed to login: %v", err)
	}
	if err := h.Restore(context.Background()); err != nil {
		t.Fatalf("Failed to restore: %v", err)
	}
	if token, _ := h.Token(); token != "tok" {
		t.Errorf("expected %q, got %q", "tok", token)
	}
}

func TestLoginLogout(t *testing.T) {
	store := &MemoryStore{}
	h := NewHolder(store, nil)
	ctx := context.Background()

	if err := h.Login(ctx, "", models.User{}); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
	if err := h.Login(ctx, "tok", models.User{ID: "1", Username: "bob"}); err != nil {
		t.Fatalf("Failed to login: %v", err)
	}
	if s, _ := store.Load(ctx); s == nil || s.Token != "tok" {
		t.Fatalf("expected session to be persisted, got %+v", s)
	}

	if err := h.Logout(ctx); err != nil {
		t.Fatalf("Failed to logout: %v", err)
	}
	if _, ok := h.Token(); ok {
		t.Error("expected token to be gone after logout")
	}
	if s, _ := store.Load(ctx); s != nil {
		t.Error("expected persisted session to be cleared")
	}
}

func TestLoginPersistFailureKeepsState(t *testing.T) {
	h := NewHolder(&failingStore{saveErr: errors.New("read-only")}, nil)
	h.Restore(context.Background())
	if err := h.Login(context.Background(), "tok", models.User{ID: "1"}); err == nil {
		t.Fatal("expected login to fail")
	}
	if h.Current().Authenticated() {
		t.Error("expected holder to stay unauthenticated")
	}
}

func TestUpdateUserKeepsToken(t *testing.T) {
	h := NewHolder(&MemoryStore{}, nil)
	ctx := context.Background()

	if err := h.UpdateUser(ctx, models.User{ID: "1"}); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}

	h.Login(ctx, "tok", models.User{ID: "1", Bio: "old"})
	if err := h.UpdateUser(ctx, models.User{ID: "1", Bio: "new"}); err != nil {
		t.Fatalf("Failed to update user: %v", err)
	}
	snap := h.Current()
	if snap.Session.Token != "tok" {
		t.Errorf("expected token to be kept, got %q", snap.Session.Token)
	}
	if snap.Session.User.Bio != "new" {
		t.Errorf("expected %q, got %q", "new", snap.Session.User.Bio)
	}
}

func TestSubscribeDeliversLatest(t *testing.T) {
	h := NewHolder(&MemoryStore{}, nil)
	ch, cancel := h.Subscribe()
	defer cancel()

	snap := <-ch
	if snap.State != StateUnknown {
		t.Fatalf("expected initial %v, got %v", StateUnknown, snap.State)
	}

	ctx := context.Background()
	h.Restore(ctx)
	h.Login(ctx, "tok", models.User{ID: "1"})

	// the intermediate Unauthenticated snapshot is overwritten
	snap = <-ch
	if !snap.Authenticated() {
		t.Fatalf("expected latest snapshot to be authenticated, got %v", snap.State)
	}

	h.ForceLogout("401 from gateway")
	snap = <-ch
	if snap.State != StateUnauthenticated {
		t.Errorf("expected %v, got %v", StateUnauthenticated, snap.State)
	}

	cancel()
	h.Login(ctx, "tok2", models.User{ID: "1"})
	select {
	case s := <-ch:
		t.Errorf("expected no delivery after cancel, got %v", s.State)
	default:
	}
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"opaque", "not-a-jwt", false},
		{"expired", signedToken(t, now.Add(-time.Minute)), true},
		{"valid", signedToken(t, now.Add(time.Minute)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tokenExpired(tt.token, now); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
