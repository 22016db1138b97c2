package core

import (
	"strings"
	"time"
	"unicode/utf8"
)

const maxNameLength = 120

// ProjectInput is the raw content of the project form. Balance is not part
// of it: the ledger always derives it.
type ProjectInput struct {
	Name                      string
	StartDate                 Date
	EndDate                   Date
	Budget                    Money
	Advance                   Money
	Expense                   Money
	IsSettled                 bool
	BillSubmissionDate        Date
	SOPROIEmailSubmissionDate Date
	BillTopSheetImage         *Attachment
	BudgetCopyAttachment      *Attachment
}

// Balance is budget minus advance minus expense. Negative results are kept.
func Balance(budget, advance, expense Money) Money {
	return budget.Sub(advance).Sub(expense)
}

func (in ProjectInput) Validate() error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return ErrNameTooLong
	}
	if in.StartDate.IsZero() {
		return ErrMissingStartDate
	}
	if !in.EndDate.IsZero() && in.EndDate.Before(in.StartDate.Time) {
		return ErrEndBeforeStart
	}
	for _, m := range []Money{in.Budget, in.Advance, in.Expense} {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NewProject builds a record from form input with its balance derived.
func NewProject(in ProjectInput, id string, now time.Time) Project {
	p := Project{ID: id, CreatedAt: now}
	p.Apply(in)
	return p
}

// Apply replaces every user-editable field with the input and re-derives
// the balance. ID and CreatedAt are kept. Attachments absent from the input
// keep their current value.
func (p *Project) Apply(in ProjectInput) {
	p.Name = strings.TrimSpace(in.Name)
	p.StartDate = in.StartDate
	p.EndDate = in.EndDate
	p.BudgetAmount = in.Budget
	p.AdvanceAmount = in.Advance
	p.ExpenseAmount = in.Expense
	p.IsSettled = in.IsSettled
	p.BillSubmissionDate = in.BillSubmissionDate
	p.SOPROIEmailSubmissionDate = in.SOPROIEmailSubmissionDate
	if in.BillTopSheetImage != nil {
		p.BillTopSheetImage = in.BillTopSheetImage
	}
	if in.BudgetCopyAttachment != nil {
		p.BudgetCopyAttachment = in.BudgetCopyAttachment
	}
	p.Recompute()
}

// Recompute re-derives the balance, discarding whatever value was stored.
func (p *Project) Recompute() {
	p.BalanceAmount = Balance(p.BudgetAmount, p.AdvanceAmount, p.ExpenseAmount)
}

// Input returns the editable fields of p, used to pre-fill the edit form.
func (p Project) Input() ProjectInput {
	return ProjectInput{
		Name:                      p.Name,
		StartDate:                 p.StartDate,
		EndDate:                   p.EndDate,
		Budget:                    p.BudgetAmount,
		Advance:                   p.AdvanceAmount,
		Expense:                   p.ExpenseAmount,
		IsSettled:                 p.IsSettled,
		BillSubmissionDate:        p.BillSubmissionDate,
		SOPROIEmailSubmissionDate: p.SOPROIEmailSubmissionDate,
	}
}

// SettlementNote narrates settlement risk. A record may be marked settled
// with a nonzero balance; that is reported, not rejected.
func (p Project) SettlementNote() string {
	switch {
	case p.IsSettled && p.BalanceAmount.IsZero():
		return "Fully settled. Closing balance is zero."
	case p.IsSettled && p.BalanceAmount.IsNegative():
		return "Marked as settled while expenditure exceeds the budget. Overrun requires review."
	case p.IsSettled:
		return "Marked as settled with an outstanding balance. Refund of the residual amount requires confirmation."
	case p.BalanceAmount.IsNegative():
		return "Pending settlement. Expenditure exceeds the budget."
	default:
		return "Pending settlement."
	}
}
