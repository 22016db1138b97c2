// Package auth decides who may sign in and what a signed-in session may do.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ledger/internal/core"
	"ledger/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("Invalid corporate credentials.")
	ErrDuplicateUsername  = errors.New("Username already registered in ledger.")
	ErrInvalidInput       = errors.New("username, password and role are required")
	ErrUnauthorized       = errors.New("unauthorized action")
)

// Action is something a session may attempt.
type Action string

const (
	ActionView          Action = "view"
	ActionCreateProject Action = "create_project"
	ActionEditProject   Action = "edit_project"
	ActionDeleteProject Action = "delete_project"
	ActionPrintReport   Action = "print_report"
)

// Gate authenticates against the user store.
type Gate struct {
	users  store.UserStore
	hasher Hasher
}

// NewGate uses bcrypt when hasher is nil.
func NewGate(users store.UserStore, hasher Hasher) *Gate {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	return &Gate{users: users, hasher: hasher}
}

// Authenticate returns the stored user when the password matches. Unknown
// users and wrong passwords are indistinguishable to the caller.
func (g *Gate) Authenticate(ctx context.Context, username, password string) (core.User, error) {
	u, err := g.users.FindUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, store.ErrNotFound) {
		return core.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, fmt.Errorf("find user: %w", err)
	}
	if !g.hasher.Verify(u.Password, password) {
		return core.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Register creates an account. The existing record is untouched on a duplicate.
func (g *Gate) Register(ctx context.Context, username, password string, role core.Role) (core.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" || !role.Valid() {
		return core.User{}, ErrInvalidInput
	}

	_, err := g.users.FindUserByUsername(ctx, username)
	switch {
	case err == nil:
		return core.User{}, ErrDuplicateUsername
	case !errors.Is(err, store.ErrNotFound):
		return core.User{}, fmt.Errorf("find user: %w", err)
	}

	hashed, err := g.hasher.Hash(password)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := core.User{Username: username, Password: hashed, Role: role}
	if err := g.users.SaveUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return core.User{}, ErrDuplicateUsername
		}
		return core.User{}, fmt.Errorf("save user: %w", err)
	}
	return u, nil
}

// Authorize reports whether s may perform action. A nil session never may.
func Authorize(s *core.Session, action Action) bool {
	if s == nil || s.Username == "" {
		return false
	}
	switch action {
	case ActionView:
		return true
	case ActionCreateProject, ActionEditProject, ActionDeleteProject, ActionPrintReport:
		return s.IsAdmin()
	}
	return false
}

// Require returns ErrUnauthorized when s may not perform action.
func Require(s *core.Session, action Action) error {
	if !Authorize(s, action) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, action)
	}
	return nil
}
