// Package worker runs the background side of the ledger: summary warming on
// project events and session housekeeping.
package worker

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/store"
)

// Summarizer is the part of the summary adapter the worker needs.
type Summarizer interface {
	Summarize(ctx context.Context, p core.Project) string
}

// SummaryWorker precomputes audit summaries so report pages hit the cache.
type SummaryWorker struct {
	projects    store.ProjectStore
	summarizer  Summarizer
	logger      *log.Logger
	concurrency int
}

func NewSummaryWorker(projects store.ProjectStore, summarizer Summarizer, concurrency int, logger *log.Logger) *SummaryWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SummaryWorker{
		projects:    projects,
		summarizer:  summarizer,
		logger:      log.OrDefault(logger, log.ComponentWorker),
		concurrency: concurrency,
	}
}

// Handle processes one project event. A project deleted before its event
// arrives is skipped, not retried.
func (w *SummaryWorker) Handle(ctx context.Context, e amqp.ProjectEvent) error {
	switch e.Type {
	case amqp.EventProjectDeleted:
		w.logger.InfoContext(ctx, "Project deleted",
			log.FieldProjectID, e.ProjectID,
			log.FieldEventType, e.Type)
		return nil
	case amqp.EventProjectSaved:
	default:
		return fmt.Errorf("unexpected event type %q", e.Type)
	}

	p, err := w.projects.GetProject(ctx, e.ProjectID)
	if errors.Is(err, store.ErrNotFound) {
		w.logger.WarnContext(ctx, "Project gone before summary warm-up",
			log.FieldProjectID, e.ProjectID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}

	w.summarizer.Summarize(ctx, p)
	w.logger.InfoContext(ctx, "Summary warmed",
		log.FieldProjectID, p.ID,
		log.FieldEventType, e.Type)
	return nil
}

// WarmAll summarizes every stored project, a few at a time. It recovers
// from events missed while the worker was down.
func (w *SummaryWorker) WarmAll(ctx context.Context) (int, error) {
	projects, err := w.projects.ListProjects(ctx)
	if err != nil {
		return 0, fmt.Errorf("list projects: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, p := range projects {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			w.summarizer.Summarize(ctx, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	w.logger.InfoContext(ctx, "Startup summary warm-up complete", "count", len(projects))
	return len(projects), nil
}
