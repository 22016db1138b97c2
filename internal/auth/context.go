package auth

import (
	"context"

	"ledger/internal/core"
)

type sessionKey struct{}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *core.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the attached session, or nil.
func SessionFromContext(ctx context.Context) *core.Session {
	s, _ := ctx.Value(sessionKey{}).(*core.Session)
	return s
}
