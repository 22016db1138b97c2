package core

import (
	"regexp"
	"time"
)

// NotRecorded replaces an absent date in reports.
const NotRecorded = "NOT RECORDED"

// ReportDateLayout renders dates in audit reports.
const ReportDateLayout = "2 January 2006"

var unsafeTitleChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// AttachmentView is an attachment as shown in an audit report.
type AttachmentView struct {
	Slot   AttachmentSlot
	Label  string
	Kind   AttachmentKind
	Type   string
	Inline bool
	Notice string
}

// AuditReport is the printable view of one project.
type AuditReport struct {
	Project        Project
	Status         Status
	Summary        string
	SettlementNote string
	StartDate      string
	EndDate        string
	BillSubmission string
	SOPSubmission  string
	Attachments    []AttachmentView
	GeneratedAt    time.Time
	PrintTitle     string
}

// NewAuditReport assembles the report for p at now around an already
// produced summary text.
func NewAuditReport(p Project, summary string, now time.Time) AuditReport {
	r := AuditReport{
		Project:        p,
		Status:         p.Status(now),
		Summary:        summary,
		SettlementNote: p.SettlementNote(),
		StartDate:      DisplayDate(p.StartDate),
		EndDate:        DisplayDate(p.EndDate),
		BillSubmission: DisplayDate(p.BillSubmissionDate),
		SOPSubmission:  DisplayDate(p.SOPROIEmailSubmissionDate),
		GeneratedAt:    now,
		PrintTitle:     PrintTitle(p.Name, now),
	}
	for _, slot := range Slots() {
		a := p.Attachment(slot)
		if a == nil {
			continue
		}
		r.Attachments = append(r.Attachments, AttachmentView{
			Slot:   slot,
			Label:  slot.Label(),
			Kind:   a.Kind,
			Type:   a.Type,
			Inline: a.Kind == AttachmentImage,
			Notice: a.Notice(),
		})
	}
	return r
}

// DisplayDate renders d for reports, NotRecorded when empty.
func DisplayDate(d Date) string {
	if d.IsZero() {
		return NotRecorded
	}
	return d.Format(ReportDateLayout)
}

// PrintTitle names a printed report: AuditReport_<name>_<YYYY-MM-DD>, with
// every non-alphanumeric character of the name replaced by "_" and the name
// cut to 30 characters.
func PrintTitle(name string, now time.Time) string {
	safe := unsafeTitleChars.ReplaceAllString(name, "_")
	if len(safe) > 30 {
		safe = safe[:30]
	}
	return "AuditReport_" + safe + "_" + now.UTC().Format(DateLayout)
}
