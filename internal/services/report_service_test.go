package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"ledger/internal/core"
	"ledger/internal/store"
	"ledger/internal/summary"
)

type recordingGenerator struct {
	mu     sync.Mutex
	prompt string
}

func (g *recordingGenerator) Generate(_ context.Context, _, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompt = prompt
	return "Recorded.", nil
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, string, string) (string, error) {
	return "", errors.New("model offline")
}

func TestReportService_Build(t *testing.T) {
	svc, _ := newService(t, nil, nil)
	ctx := context.Background()
	p, err := svc.Create(ctx, admin, input("Road Show", 1000, 1000, 0))
	if err != nil {
		t.Fatal(err)
	}

	reports := NewReportService(svc, summary.New(failingGenerator{}, summary.Options{}))
	r, err := reports.Build(ctx, p.ID, now)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if r.Summary != summary.UnavailableFallback {
		t.Errorf("Summary = %q, want fallback", r.Summary)
	}
	if r.Status != core.StatusOngoing {
		t.Errorf("Status = %s", r.Status)
	}
	if r.BillSubmission != core.NotRecorded {
		t.Errorf("BillSubmission = %q", r.BillSubmission)
	}
	if r.PrintTitle != "AuditReport_Road_Show_2024-05-15" {
		t.Errorf("PrintTitle = %q", r.PrintTitle)
	}

	if _, err := reports.Build(ctx, "missing", now); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Build(missing) error = %v", err)
	}
}

func TestReportService_PromptUsesReportClock(t *testing.T) {
	svc, _ := newService(t, nil, nil)
	ctx := context.Background()
	in := input("Depot Fit-out", 1000, 0, 0)
	in.StartDate = core.NewDate(2024, 5, 15)
	p, err := svc.Create(ctx, admin, in)
	if err != nil {
		t.Fatal(err)
	}

	// 02:00 in Dhaka on the start day is still the previous day in UTC.
	dhaka := time.FixedZone("Asia/Dhaka", 6*3600)
	reportNow := time.Date(2024, 5, 15, 2, 0, 0, 0, dhaka)
	gen := &recordingGenerator{}
	summarizer := summary.New(gen, summary.Options{
		Now: func() time.Time { return reportNow.UTC() },
	})

	r, err := NewReportService(svc, summarizer).Build(ctx, p.ID, reportNow)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != core.StatusOngoing {
		t.Fatalf("report status = %s, want %s", r.Status, core.StatusOngoing)
	}
	want := fmt.Sprintf("Current Status: %s\n", core.StatusOngoing)
	if !strings.Contains(gen.prompt, want) {
		t.Errorf("prompt disagrees with the report page:\n%s", gen.prompt)
	}
}
