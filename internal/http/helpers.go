package http

import (
	"net/http"
	"strings"

	"ledger/internal/core"
)

// isHTMX reports whether the request was issued by htmx rather than a full
// page navigation.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// redirect navigates to url after a form post, through HX-Redirect for
// htmx requests and a 303 otherwise.
func redirect(w http.ResponseWriter, r *http.Request, url string) {
	if isHTMX(r) {
		NewHTMXResponse().Redirect(url).Write(w)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// statusClass maps a project status onto its badge class.
func statusClass(s core.Status) string {
	switch s {
	case core.StatusPending:
		return "badge-pending"
	case core.StatusCompleted:
		return "badge-completed"
	}
	return "badge-ongoing"
}

// percent scales count against limit for chart bars. An empty chart yields 0.
func percent(count, limit int) int {
	if limit <= 0 {
		return 0
	}
	return count * 100 / limit
}
