// This file turns the project entry form into core.ProjectInput.

package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"ledger/internal/core"
)

// Form field names shared with project_form.html.
const (
	fieldName           = "name"
	fieldStartDate      = "start_date"
	fieldEndDate        = "end_date"
	fieldBudget         = "budget_amount"
	fieldAdvance        = "advance_amount"
	fieldExpense        = "expense_amount"
	fieldSettled        = "is_settled"
	fieldBillSubmission = "bill_submission_date"
	fieldSOPSubmission  = "sop_roi_email_submission_date"
	fieldBillTopSheet   = "bill_top_sheet"
	fieldBudgetCopy     = "budget_copy"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// projectForm holds the raw form values so a rejected submission can be
// re-rendered exactly as typed.
type projectForm struct {
	Name           string
	StartDate      string
	EndDate        string
	Budget         string
	Advance        string
	Expense        string
	IsSettled      bool
	BillSubmission string
	SOPSubmission  string
}

// formError is a validation failure tied to one form field.
type formError struct {
	Label string
	Err   error
}

func (e *formError) Error() string {
	return fmt.Sprintf("%s: %v", e.Label, e.Err)
}

func (e *formError) Unwrap() error {
	return e.Err
}

// formFromInput pre-fills the form from stored values.
func formFromInput(in core.ProjectInput) projectForm {
	return projectForm{
		Name:           in.Name,
		StartDate:      in.StartDate.String(),
		EndDate:        in.EndDate.String(),
		Budget:         in.Budget.Decimal(),
		Advance:        in.Advance.Decimal(),
		Expense:        in.Expense.Decimal(),
		IsSettled:      in.IsSettled,
		BillSubmission: in.BillSubmissionDate.String(),
		SOPSubmission:  in.SOPROIEmailSubmissionDate.String(),
	}
}

// parseProjectForm reads a multipart or urlencoded project submission.
// The raw form is returned even when parsing fails.
func parseProjectForm(w http.ResponseWriter, r *http.Request, maxAttachment int) (projectForm, core.ProjectInput, error) {
	if maxAttachment <= 0 {
		maxAttachment = core.DefaultAttachmentMaxBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, int64(2*maxAttachment)+multipartMemory)

	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return projectForm{}, core.ProjectInput{}, &formError{Label: "Attachments", Err: core.ErrAttachmentTooLarge}
		}
		return projectForm{}, core.ProjectInput{}, &formError{Label: "Request", Err: err}
	}

	form := projectForm{
		Name:           sanitizeInput(r.FormValue(fieldName)),
		StartDate:      sanitizeInput(r.FormValue(fieldStartDate)),
		EndDate:        sanitizeInput(r.FormValue(fieldEndDate)),
		Budget:         sanitizeInput(r.FormValue(fieldBudget)),
		Advance:        sanitizeInput(r.FormValue(fieldAdvance)),
		Expense:        sanitizeInput(r.FormValue(fieldExpense)),
		IsSettled:      r.FormValue(fieldSettled) != "",
		BillSubmission: sanitizeInput(r.FormValue(fieldBillSubmission)),
		SOPSubmission:  sanitizeInput(r.FormValue(fieldSOPSubmission)),
	}

	in := core.ProjectInput{Name: form.Name, IsSettled: form.IsSettled}

	dates := []struct {
		label string
		raw   string
		dst   *core.Date
	}{
		{"Commencement date", form.StartDate, &in.StartDate},
		{"End date", form.EndDate, &in.EndDate},
		{"Bill submission date", form.BillSubmission, &in.BillSubmissionDate},
		{"SOP/ROI email submission date", form.SOPSubmission, &in.SOPROIEmailSubmissionDate},
	}
	for _, d := range dates {
		parsed, err := core.ParseDate(d.raw)
		if err != nil {
			return form, in, &formError{Label: d.label, Err: err}
		}
		*d.dst = parsed
	}

	amounts := []struct {
		label string
		raw   string
		dst   *core.Money
	}{
		{"Budget amount", form.Budget, &in.Budget},
		{"Advance amount", form.Advance, &in.Advance},
		{"Expense amount", form.Expense, &in.Expense},
	}
	for _, a := range amounts {
		cents, err := core.ParseAmount(a.raw)
		if err != nil {
			return form, in, &formError{Label: a.label, Err: err}
		}
		*a.dst = core.Money{Cents: cents}
	}

	files := []struct {
		label string
		field string
		dst   **core.Attachment
	}{
		{core.SlotBillTopSheet.Label(), fieldBillTopSheet, &in.BillTopSheetImage},
		{core.SlotBudgetCopy.Label(), fieldBudgetCopy, &in.BudgetCopyAttachment},
	}
	for _, f := range files {
		a, err := readAttachment(r, f.field, maxAttachment)
		if err != nil {
			return form, in, &formError{Label: f.label, Err: err}
		}
		*f.dst = a
	}

	return form, in, nil
}

// readAttachment returns nil when the field carries no file.
func readAttachment(r *http.Request, field string, maxBytes int) (*core.Attachment, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if header.Size == 0 {
		return nil, nil
	}
	data, err := readLimited(file, maxBytes)
	if err != nil {
		return nil, err
	}
	a, err := core.NewAttachment(header.Header.Get("Content-Type"), header.Filename, data, maxBytes)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// readLimited reads at most maxBytes+1 so an oversized file is detected
// without buffering all of it.
func readLimited(f multipart.File, maxBytes int) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(f, int64(maxBytes)+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", core.ErrAttachmentTooLarge, maxBytes)
	}
	return data, nil
}
