package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/store/memory"
)

type countingSummarizer struct {
	mu  sync.Mutex
	ids []string
}

func (s *countingSummarizer) Summarize(_ context.Context, p core.Project) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, p.ID)
	return "ok"
}

func (s *countingSummarizer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

func TestSummaryWorker_Handle(t *testing.T) {
	ctx := context.Background()
	st := memory.New(nil)
	if err := st.UpsertProject(ctx, core.Project{ID: "p1", Name: "Stored"}); err != nil {
		t.Fatal(err)
	}
	sum := &countingSummarizer{}
	w := NewSummaryWorker(st, sum, 2, nil)
	now := time.Now()

	tests := []struct {
		name      string
		event     amqp.ProjectEvent
		wantErr   bool
		wantCalls int
	}{
		{"saved project is summarized", amqp.NewProjectEvent(amqp.EventProjectSaved, "p1", now), false, 1},
		{"missing project is skipped", amqp.NewProjectEvent(amqp.EventProjectSaved, "gone", now), false, 1},
		{"delete is acknowledged", amqp.NewProjectEvent(amqp.EventProjectDeleted, "p1", now), false, 1},
		{"unknown type fails", amqp.ProjectEvent{Type: "project.archived", ProjectID: "p1"}, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.Handle(ctx, tt.event)
			if (err != nil) != tt.wantErr {
				t.Errorf("Handle() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := sum.count(); got != tt.wantCalls {
				t.Errorf("summarizer calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestSummaryWorker_WarmAll(t *testing.T) {
	ctx := context.Background()
	st := memory.New(nil)
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := st.UpsertProject(ctx, core.Project{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	sum := &countingSummarizer{}
	n, err := NewSummaryWorker(st, sum, 2, nil).WarmAll(ctx)
	if err != nil {
		t.Fatalf("WarmAll() error = %v", err)
	}
	if n != 4 || sum.count() != 4 {
		t.Errorf("WarmAll() = %d, summarized %d, want 4", n, sum.count())
	}
}

func TestSessionJanitor_Run(t *testing.T) {
	ctx := context.Background()
	st := memory.New(nil)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	u := core.User{Username: "admin", Role: core.RoleAdmin}
	for _, s := range []core.Session{
		u.Session("old", now.Add(-3*time.Hour), time.Hour),
		u.Session("edge", now.Add(-time.Hour), time.Hour),
		u.Session("live", now, time.Hour),
	} {
		if err := st.PutSession(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	j := NewSessionJanitor(st, nil)
	j.now = func() time.Time { return now }
	n, err := j.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Run() purged %d, want 2", n)
	}
	if _, err := st.GetSession(ctx, "live"); err != nil {
		t.Errorf("live session purged: %v", err)
	}
}

func TestSessionJanitor_ScheduleRejectsBadSpec(t *testing.T) {
	j := NewSessionJanitor(memory.New(nil), nil)
	if _, err := j.Schedule(context.Background(), "every hour"); err == nil {
		t.Error("expected error for invalid cron spec")
	}
}
