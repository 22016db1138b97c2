package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/store"
)

// ErrSessionExpired is returned for a token whose session is gone or stale.
var ErrSessionExpired = errors.New("session expired")

// Sessions issues tokens backed by stored sessions, so that deleting the
// stored session revokes the token.
type Sessions struct {
	store  store.SessionStore
	issuer *TokenIssuer
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(s store.SessionStore, issuer *TokenIssuer, ttl time.Duration) *Sessions {
	return &Sessions{store: s, issuer: issuer, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source, used by tests.
func (m *Sessions) WithClock(now func() time.Time) *Sessions {
	m.now = now
	return m
}

// Start persists a new session for u and returns its signed token.
func (m *Sessions) Start(ctx context.Context, u core.User) (string, core.Session, error) {
	s := u.Session(uuid.NewString(), m.now().UTC(), m.ttl)
	if err := m.store.PutSession(ctx, s); err != nil {
		return "", core.Session{}, fmt.Errorf("store session: %w", err)
	}
	token, err := m.issuer.Issue(s)
	if err != nil {
		_ = m.store.DeleteSession(ctx, s.ID)
		return "", core.Session{}, err
	}
	return token, s, nil
}

// Resolve verifies token and loads its live session.
func (m *Sessions) Resolve(ctx context.Context, token string) (*core.Session, error) {
	now := m.now()
	id, err := m.issuer.Parse(token, now)
	if err != nil {
		return nil, err
	}
	s, err := m.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s.Expired(now) {
		return nil, ErrSessionExpired
	}
	return &s, nil
}

// End revokes the session behind token. Invalid tokens are ignored.
func (m *Sessions) End(ctx context.Context, token string) error {
	id, err := m.issuer.Parse(token, m.now())
	if err != nil {
		return nil
	}
	return m.store.DeleteSession(ctx, id)
}

// TTL is the lifetime of new sessions.
func (m *Sessions) TTL() time.Duration {
	return m.ttl
}
