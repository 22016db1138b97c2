package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/log"
)

// Keys of the three persisted collections.
const (
	KeyProjects = "akij_ledger_projects"
	KeyUsers    = "akij_ledger_users"
	KeySessions = "akij_ledger_sessions"
)

// KV is a byte-blob key-value backend. Get returns nil, nil for a missing key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
	Close() error
}

// Collections implements Store over a KV backend by reading and replacing
// each collection as a whole JSON array. A blob that does not decode is
// treated as an empty collection.
//
// Read-modify-write cycles are serialised within one process only. Two
// processes sharing a backend can lose each other's updates; the last
// writer of a collection wins.
type Collections struct {
	kv     KV
	logger *log.Logger
	mu     sync.Mutex
}

// NewCollections wraps kv. A nil logger uses the process default.
func NewCollections(kv KV, logger *log.Logger) *Collections {
	return &Collections{kv: kv, logger: log.OrDefault(logger, log.ComponentStorage)}
}

func readCollection[T any](ctx context.Context, c *Collections, key string) ([]T, error) {
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if len(raw) == 0 {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		c.logger.WarnContext(ctx, "Corrupt collection treated as empty",
			"key", key,
			"bytes", len(raw),
			log.FieldError, err)
		return []T{}, nil
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func writeCollection[T any](ctx context.Context, c *Collections, key string, items []T) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (c *Collections) ListProjects(ctx context.Context) ([]core.Project, error) {
	return readCollection[core.Project](ctx, c, KeyProjects)
}

func (c *Collections) GetProject(ctx context.Context, id string) (core.Project, error) {
	projects, err := c.ListProjects(ctx)
	if err != nil {
		return core.Project{}, err
	}
	for _, p := range projects {
		if p.ID == id {
			return p, nil
		}
	}
	return core.Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
}

func (c *Collections) UpsertProject(ctx context.Context, p core.Project) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	projects, err := readCollection[core.Project](ctx, c, KeyProjects)
	if err != nil {
		return err
	}
	replaced := false
	for i := range projects {
		if projects[i].ID == p.ID {
			projects[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		projects = append(projects, p)
	}
	return writeCollection(ctx, c, KeyProjects, projects)
}

func (c *Collections) DeleteProject(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	projects, err := readCollection[core.Project](ctx, c, KeyProjects)
	if err != nil {
		return err
	}
	kept := projects[:0]
	for _, p := range projects {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	return writeCollection(ctx, c, KeyProjects, kept)
}

func (c *Collections) ListUsers(ctx context.Context) ([]core.User, error) {
	return readCollection[core.User](ctx, c, KeyUsers)
}

func (c *Collections) SaveUser(ctx context.Context, u core.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	users, err := readCollection[core.User](ctx, c, KeyUsers)
	if err != nil {
		return err
	}
	for _, existing := range users {
		if core.SameUsername(existing.Username, u.Username) {
			return fmt.Errorf("user %s: %w", u.Username, ErrDuplicate)
		}
	}
	return writeCollection(ctx, c, KeyUsers, append(users, u))
}

func (c *Collections) FindUserByUsername(ctx context.Context, username string) (core.User, error) {
	users, err := c.ListUsers(ctx)
	if err != nil {
		return core.User{}, err
	}
	for _, u := range users {
		if core.SameUsername(u.Username, username) {
			return u, nil
		}
	}
	return core.User{}, fmt.Errorf("user %s: %w", username, ErrNotFound)
}

func (c *Collections) PutSession(ctx context.Context, s core.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sessions, err := readCollection[core.Session](ctx, c, KeySessions)
	if err != nil {
		return err
	}
	replaced := false
	for i := range sessions {
		if sessions[i].ID == s.ID {
			sessions[i] = s
			replaced = true
			break
		}
	}
	if !replaced {
		sessions = append(sessions, s)
	}
	return writeCollection(ctx, c, KeySessions, sessions)
}

func (c *Collections) GetSession(ctx context.Context, id string) (core.Session, error) {
	sessions, err := readCollection[core.Session](ctx, c, KeySessions)
	if err != nil {
		return core.Session{}, err
	}
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return core.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
}

func (c *Collections) DeleteSession(ctx context.Context, id string) error {
	_, err := c.removeSessions(ctx, func(s core.Session) bool { return s.ID == id })
	return err
}

func (c *Collections) PurgeSessions(ctx context.Context, now time.Time) (int, error) {
	return c.removeSessions(ctx, func(s core.Session) bool { return s.Expired(now) })
}

func (c *Collections) removeSessions(ctx context.Context, match func(core.Session) bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sessions, err := readCollection[core.Session](ctx, c, KeySessions)
	if err != nil {
		return 0, err
	}
	kept := sessions[:0]
	for _, s := range sessions {
		if !match(s) {
			kept = append(kept, s)
		}
	}
	removed := len(sessions) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, writeCollection(ctx, c, KeySessions, kept)
}

func (c *Collections) Ping(ctx context.Context) error {
	return c.kv.Ping(ctx)
}

func (c *Collections) Close() error {
	return c.kv.Close()
}
