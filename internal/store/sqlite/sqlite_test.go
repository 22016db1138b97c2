package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/store"
	"ledger/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.UpsertProject(ctx, core.Project{ID: "p1", Name: "Persisted", StartDate: core.NewDate(2024, 1, 2)}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	p, err := s.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Persisted", p.Name)
	assert.Equal(t, "2024-01-02", p.StartDate.String())
	assert.True(t, p.EndDate.IsEmpty())
}

func TestRunMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	require.NoError(t, RunMigrations(path))
	require.NoError(t, RunMigrations(path))
}
