package summary

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"ledger/internal/core"
)

const promptCurrency = "৳"

// BuildPrompt renders the auditor instructions for p as seen at now.
func BuildPrompt(p core.Project, now time.Time) string {
	settlement := "Pending Settlement"
	if p.IsSettled {
		settlement = "FULLY SETTLED (Balance Zeroed)"
	}

	var b strings.Builder
	b.WriteString("As a senior financial auditor for Akij Venture Ltd, provide a professional, structured, and analytical audit summary for this record.\n\n")

	b.WriteString("PROJECT CONTEXT:\n")
	fmt.Fprintf(&b, "Name: %s\n", p.Name)
	fmt.Fprintf(&b, "Current Status: %s\n", p.Status(now))
	fmt.Fprintf(&b, "Timeline: %s to %s\n", orPending(p.StartDate), orPending(p.EndDate))
	fmt.Fprintf(&b, "Settlement Status: %s\n\n", settlement)

	b.WriteString("FINANCIAL LEDGER:\n")
	fmt.Fprintf(&b, "Total Budget: %s\n", p.BudgetAmount.Format(promptCurrency))
	fmt.Fprintf(&b, "Advance Disbursed: %s\n", p.AdvanceAmount.Format(promptCurrency))
	fmt.Fprintf(&b, "Actual Expense: %s\n", p.ExpenseAmount.Format(promptCurrency))
	fmt.Fprintf(&b, "Closing Balance: %s\n\n", p.BalanceAmount.Format(promptCurrency))

	b.WriteString("COMPLIANCE METRICS:\n")
	fmt.Fprintf(&b, "Bill Submission: %s\n", orPending(p.BillSubmissionDate))
	fmt.Fprintf(&b, "SOP/ROI Submission: %s\n\n", orPending(p.SOPROIEmailSubmissionDate))

	b.WriteString("REPORT REQUIREMENTS:\n")
	b.WriteString("1. Summarise financial performance and budget utilisation efficiency.\n")
	b.WriteString("2. Evaluate compliance with corporate submission deadlines.\n")
	b.WriteString("3. Highlight any risks associated with the current balance.\n")
	b.WriteString("4. Specifically comment on the settlement status (Balance being zero if complete/settled).\n\n")

	b.WriteString("Use formal British English and professional auditing terminology.")
	return b.String()
}

func orPending(d core.Date) string {
	if d.IsEmpty() {
		return "Pending"
	}
	return d.String()
}

// Fingerprint keys a prompt for caching and request collapsing.
func Fingerprint(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}
