package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

// State is the session lifecycle. Unknown lasts until Restore completes, so
// consumers can tell "not yet known" apart from "logged out".
type State int

const (
	StateUnknown State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrEmptyToken       = errors.New("empty token")
)

type Snapshot struct {
	State   State
	Session models.Session
}

func (s Snapshot) Authenticated() bool { return s.State == StateAuthenticated }

// Store persists the session between process runs. Load returns nil, nil
// when nothing is stored.
type Store interface {
	Load(ctx context.Context) (*models.Session, error)
	Save(ctx context.Context, s models.Session) error
	Clear(ctx context.Context) error
}

type Holder struct {
	mu      sync.RWMutex
	state   State
	current models.Session
	store   Store
	logger  *log.Logger
	subs    map[int]chan Snapshot
	nextSub int
	now     func() time.Time
}

func NewHolder(store Store, logger *log.Logger) *Holder {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Holder{
		store:  store,
		logger: logger,
		subs:   make(map[int]chan Snapshot),
		now:    time.Now,
	}
}

// Restore loads the persisted session. It only has an effect while the state
// is still Unknown; a Login that raced ahead of it wins.
func (h *Holder) Restore(ctx context.Context) error {
	stored, err := h.store.Load(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateUnknown {
		return nil
	}

	if err != nil {
		h.setLocked(StateUnauthenticated, models.Session{})
		return fmt.Errorf("failed to restore session: %w", err)
	}
	if stored == nil || !stored.Valid() {
		h.setLocked(StateUnauthenticated, models.Session{})
		return nil
	}
	if tokenExpired(stored.Token, h.now()) {
		h.logger.Printf("Stored token for user %s has expired, discarding", stored.UserID())
		if err := h.store.Clear(ctx); err != nil {
			h.logger.Printf("Failed to clear expired session: %v", err)
		}
		h.setLocked(StateUnauthenticated, models.Session{})
		return nil
	}

	h.logger.Printf("Restored session for user %s", stored.UserID())
	h.setLocked(StateAuthenticated, *stored)
	return nil
}

func (h *Holder) Login(ctx context.Context, token string, user models.User) error {
	if token == "" {
		return ErrEmptyToken
	}
	s := models.Session{Token: token, User: user}
	if err := h.store.Save(ctx, s); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.setLocked(StateAuthenticated, s)
	h.logger.Printf("User %s logged in", user.ID)
	return nil
}

// Logout drops the in-memory session first so nothing keeps using the token
// even if clearing the store fails.
func (h *Holder) Logout(ctx context.Context) error {
	h.mu.Lock()
	h.setLocked(StateUnauthenticated, models.Session{})
	h.mu.Unlock()

	if err := h.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear persisted session: %w", err)
	}
	return nil
}

// ForceLogout ends the session after the server rejected the token.
func (h *Holder) ForceLogout(reason string) {
	h.logger.Printf("Forcing logout: %s", reason)
	if err := h.Logout(context.Background()); err != nil {
		h.logger.Printf("Forced logout: %v", err)
	}
}

// UpdateUser replaces the cached profile and keeps the token.
func (h *Holder) UpdateUser(ctx context.Context, user models.User) error {
	h.mu.RLock()
	if h.state != StateAuthenticated {
		h.mu.RUnlock()
		return ErrNotAuthenticated
	}
	s := models.Session{Token: h.current.Token, User: user}
	h.mu.RUnlock()

	if err := h.store.Save(ctx, s); err != nil {
		return fmt.Errorf("failed to persist profile: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateAuthenticated || h.current.Token != s.Token {
		return ErrNotAuthenticated
	}
	h.setLocked(StateAuthenticated, s)
	return nil
}

func (h *Holder) Current() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Snapshot{State: h.state, Session: h.current}
}

// Token returns the current token, or false when not authenticated.
func (h *Holder) Token() (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.state != StateAuthenticated {
		return "", false
	}
	return h.current.Token, true
}

// Subscribe delivers the current snapshot immediately and then the latest one
// after every change. Slow readers only ever see the newest snapshot.
func (h *Holder) Subscribe() (<-chan Snapshot, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextSub
	h.nextSub++
	ch := make(chan Snapshot, 1)
	ch <- Snapshot{State: h.state, Session: h.current}
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *Holder) setLocked(state State, s models.Session) {
	h.state = state
	h.current = s
	snap := Snapshot{State: state, Session: s}
	for _, ch := range h.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// tokenExpired reports whether token is a JWT whose exp claim has passed.
// Tokens that are not JWTs never expire client-side.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return false
	}
	return int64(exp) < now.Unix()
}
