package services

import (
	"context"
	"time"

	"ledger/internal/core"
)

// Summarizer produces the narrative part of an audit report. It never fails.
type Summarizer interface {
	SummarizeAt(ctx context.Context, p core.Project, now time.Time) string
}

// ReportService assembles audit reports.
type ReportService struct {
	projects   *ProjectService
	summarizer Summarizer
}

func NewReportService(projects *ProjectService, summarizer Summarizer) *ReportService {
	return &ReportService{projects: projects, summarizer: summarizer}
}

// Build loads project id and pairs it with its summary. The page and the
// prompt classify status at the same now.
func (s *ReportService) Build(ctx context.Context, id string, now time.Time) (core.AuditReport, error) {
	p, err := s.projects.Get(ctx, id)
	if err != nil {
		return core.AuditReport{}, err
	}
	return core.NewAuditReport(p, s.summarizer.SummarizeAt(ctx, p, now), now), nil
}
