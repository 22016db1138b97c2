package metrics

import (
	"context"
	"errors"
	"time"

	"ledger/internal/core"
	"ledger/internal/store"
)

// Outcome labels for store operations.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, store.ErrNotFound):
		return OutcomeNotFound
	}
	return OutcomeError
}

type instrumentedStore struct {
	next store.Store
	m    *Metrics
}

// InstrumentStore counts every operation on s by name and outcome.
func (m *Metrics) InstrumentStore(s store.Store) store.Store {
	return &instrumentedStore{next: s, m: m}
}

func (s *instrumentedStore) ListProjects(ctx context.Context) ([]core.Project, error) {
	out, err := s.next.ListProjects(ctx)
	s.m.observeStore("list_projects", err)
	return out, err
}

func (s *instrumentedStore) GetProject(ctx context.Context, id string) (core.Project, error) {
	p, err := s.next.GetProject(ctx, id)
	s.m.observeStore("get_project", err)
	return p, err
}

func (s *instrumentedStore) UpsertProject(ctx context.Context, p core.Project) error {
	err := s.next.UpsertProject(ctx, p)
	s.m.observeStore("upsert_project", err)
	return err
}

func (s *instrumentedStore) DeleteProject(ctx context.Context, id string) error {
	err := s.next.DeleteProject(ctx, id)
	s.m.observeStore("delete_project", err)
	return err
}

func (s *instrumentedStore) ListUsers(ctx context.Context) ([]core.User, error) {
	out, err := s.next.ListUsers(ctx)
	s.m.observeStore("list_users", err)
	return out, err
}

func (s *instrumentedStore) SaveUser(ctx context.Context, u core.User) error {
	err := s.next.SaveUser(ctx, u)
	s.m.observeStore("save_user", err)
	return err
}

func (s *instrumentedStore) FindUserByUsername(ctx context.Context, username string) (core.User, error) {
	u, err := s.next.FindUserByUsername(ctx, username)
	s.m.observeStore("find_user", err)
	return u, err
}

func (s *instrumentedStore) PutSession(ctx context.Context, sess core.Session) error {
	err := s.next.PutSession(ctx, sess)
	s.m.observeStore("put_session", err)
	return err
}

func (s *instrumentedStore) GetSession(ctx context.Context, id string) (core.Session, error) {
	sess, err := s.next.GetSession(ctx, id)
	s.m.observeStore("get_session", err)
	return sess, err
}

func (s *instrumentedStore) DeleteSession(ctx context.Context, id string) error {
	err := s.next.DeleteSession(ctx, id)
	s.m.observeStore("delete_session", err)
	return err
}

func (s *instrumentedStore) PurgeSessions(ctx context.Context, now time.Time) (int, error) {
	n, err := s.next.PurgeSessions(ctx, now)
	s.m.observeStore("purge_sessions", err)
	return n, err
}

func (s *instrumentedStore) Ping(ctx context.Context) error {
	err := s.next.Ping(ctx)
	s.m.observeStore("ping", err)
	return err
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}
