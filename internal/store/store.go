// Package store persists the ledger's three collections: projects, users
// and sessions.
package store

import (
	"context"
	"errors"
	"time"

	"ledger/internal/core"
)

var (
	// ErrNotFound is returned when a lookup by id or username matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when saving a username that already exists in any case.
	ErrDuplicate = errors.New("duplicate")
)

// ProjectStore holds projects in insertion order.
type ProjectStore interface {
	ListProjects(ctx context.Context) ([]core.Project, error)
	GetProject(ctx context.Context, id string) (core.Project, error)
	// UpsertProject replaces the project with the same id in place, or
	// appends it when the id is new.
	UpsertProject(ctx context.Context, p core.Project) error
	// DeleteProject removes every project with id. A missing id is not an error.
	DeleteProject(ctx context.Context, id string) error
}

// UserStore holds accounts. Accounts are never updated or deleted.
type UserStore interface {
	ListUsers(ctx context.Context) ([]core.User, error)
	SaveUser(ctx context.Context, u core.User) error
	FindUserByUsername(ctx context.Context, username string) (core.User, error)
}

// SessionStore holds live sessions keyed by id.
type SessionStore interface {
	PutSession(ctx context.Context, s core.Session) error
	GetSession(ctx context.Context, id string) (core.Session, error)
	DeleteSession(ctx context.Context, id string) error
	// PurgeSessions removes sessions expired at now and reports how many.
	PurgeSessions(ctx context.Context, now time.Time) (int, error)
}

// Store is the full record store.
type Store interface {
	ProjectStore
	UserStore
	SessionStore
	Ping(ctx context.Context) error
	Close() error
}
