// Package storetest runs the same behavioural checks against every Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/store"
)

// Factory returns an empty store. Cleanup is registered on t by the factory.
type Factory func(t *testing.T) store.Store

func project(id, name string, budget int64) core.Project {
	return core.NewProject(core.ProjectInput{
		Name:      name,
		StartDate: core.NewDate(2024, 5, 1),
		EndDate:   core.NewDate(2024, 5, 31),
		Budget:    core.MoneyFromUnits(budget),
		Advance:   core.MoneyFromUnits(budget / 2),
	}, id, time.Date(2024, 4, 20, 9, 30, 0, 0, time.UTC))
}

// Run exercises the full Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("projects keep insertion order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		list, err := s.ListProjects(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)

		for _, p := range []core.Project{project("b", "Beta", 100), project("a", "Alpha", 200), project("c", "Gamma", 300)} {
			require.NoError(t, s.UpsertProject(ctx, p))
		}
		list, err = s.ListProjects(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []string{"b", "a", "c"}, []string{list[0].ID, list[1].ID, list[2].ID})
	})

	t.Run("upsert replaces in place", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.UpsertProject(ctx, project("1", "One", 100)))
		require.NoError(t, s.UpsertProject(ctx, project("2", "Two", 100)))

		updated := project("1", "One renamed", 500)
		updated.IsSettled = true
		updated.BillSubmissionDate = core.NewDate(2024, 6, 2)
		require.NoError(t, s.UpsertProject(ctx, updated))

		list, err := s.ListProjects(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "1", list[0].ID)
		assert.Equal(t, "One renamed", list[0].Name)
		assert.True(t, list[0].IsSettled)
		assert.Equal(t, "2024-06-02", list[0].BillSubmissionDate.String())
		assert.Equal(t, int64(25000), list[0].BalanceAmount.Cents)

		got, err := s.GetProject(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, "One renamed", got.Name)
		assert.True(t, got.CreatedAt.Equal(updated.CreatedAt))
	})

	t.Run("round trips every field", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := project("full", "Full record", 1000)
		p.ExpenseAmount = core.Money{Cents: 12345}
		p.Recompute()
		p.SOPROIEmailSubmissionDate = core.NewDate(2024, 6, 10)
		p.BillTopSheetImage = &core.Attachment{Kind: core.AttachmentImage, Type: "image/png", Size: 3, Data: []byte{1, 2, 3}}
		p.BudgetCopyAttachment = &core.Attachment{Kind: core.AttachmentDocument, Type: "application/pdf", Size: 10, Key: "attachments/full/budget-copy"}
		require.NoError(t, s.UpsertProject(ctx, p))

		got, err := s.GetProject(ctx, "full")
		require.NoError(t, err)
		assert.Equal(t, p.Name, got.Name)
		assert.Equal(t, p.StartDate.String(), got.StartDate.String())
		assert.Equal(t, p.EndDate.String(), got.EndDate.String())
		assert.Equal(t, p.BudgetAmount, got.BudgetAmount)
		assert.Equal(t, p.AdvanceAmount, got.AdvanceAmount)
		assert.Equal(t, p.ExpenseAmount, got.ExpenseAmount)
		assert.Equal(t, p.BalanceAmount, got.BalanceAmount)
		assert.True(t, got.BillSubmissionDate.IsEmpty())
		assert.Equal(t, "2024-06-10", got.SOPROIEmailSubmissionDate.String())
		require.NotNil(t, got.BillTopSheetImage)
		assert.Equal(t, []byte{1, 2, 3}, got.BillTopSheetImage.Data)
		require.NotNil(t, got.BudgetCopyAttachment)
		assert.True(t, got.BudgetCopyAttachment.Offloaded())
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.UpsertProject(ctx, project("1", "One", 100)))
		require.NoError(t, s.UpsertProject(ctx, project("2", "Two", 100)))

		require.NoError(t, s.DeleteProject(ctx, "1"))
		require.NoError(t, s.DeleteProject(ctx, "missing"))

		list, err := s.ListProjects(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "2", list[0].ID)

		_, err = s.GetProject(ctx, "1")
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("users are unique ignoring case", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveUser(ctx, core.User{Username: "Admin", Password: "x", Role: core.RoleAdmin}))

		err := s.SaveUser(ctx, core.User{Username: "admin", Password: "y", Role: core.RoleViewer})
		assert.True(t, errors.Is(err, store.ErrDuplicate))

		u, err := s.FindUserByUsername(ctx, "ADMIN")
		require.NoError(t, err)
		assert.Equal(t, "Admin", u.Username)
		assert.Equal(t, core.RoleAdmin, u.Role)

		_, err = s.FindUserByUsername(ctx, "nobody")
		assert.True(t, errors.Is(err, store.ErrNotFound))

		users, err := s.ListUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("usernames fold beyond ASCII", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveUser(ctx, core.User{Username: "kosmoς", Password: "x", Role: core.RoleViewer}))
		require.NoError(t, s.SaveUser(ctx, core.User{Username: "ſam", Password: "x", Role: core.RoleViewer}))

		assert.True(t, errors.Is(s.SaveUser(ctx, core.User{Username: "KOSMOΣ", Password: "y", Role: core.RoleAdmin}), store.ErrDuplicate))
		assert.True(t, errors.Is(s.SaveUser(ctx, core.User{Username: "Sam", Password: "y", Role: core.RoleAdmin}), store.ErrDuplicate))

		u, err := s.FindUserByUsername(ctx, "kosmoσ")
		require.NoError(t, err)
		assert.Equal(t, "kosmoς", u.Username)
		_, err = s.FindUserByUsername(ctx, "SAM")
		require.NoError(t, err)
	})

	t.Run("sessions", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		user := core.User{Username: "viewer", Role: core.RoleViewer}

		live := user.Session("live", now, time.Hour)
		stale := user.Session("stale", now.Add(-2*time.Hour), time.Hour)
		require.NoError(t, s.PutSession(ctx, live))
		require.NoError(t, s.PutSession(ctx, stale))

		got, err := s.GetSession(ctx, "live")
		require.NoError(t, err)
		assert.Equal(t, "viewer", got.Username)
		assert.True(t, got.ExpiresAt.Equal(live.ExpiresAt))

		n, err := s.PurgeSessions(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = s.GetSession(ctx, "stale")
		assert.True(t, errors.Is(err, store.ErrNotFound))

		require.NoError(t, s.DeleteSession(ctx, "live"))
		_, err = s.GetSession(ctx, "live")
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
