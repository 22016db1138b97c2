package http

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/log"
)

// pageNames are the templates rendered inside layout.html.
var pageNames = []string{
	"login.html",
	"register.html",
	"dashboard.html",
	"project_form.html",
	"project_list.html",
	"history.html",
	"report.html",
	"print.html",
	"error.html",
}

// pageData is what every page template receives.
type pageData struct {
	Title   string
	Active  string
	Session *core.Session
	Error   string
	Success string
	// Bare drops the sidebar, for sign-in and printable pages.
	Bare bool
	Data any
}

// parsePages builds one template set per page, each layered on layout.html
// and the shared partials, so every page can define its own "content" block.
func parsePages(fsys fs.FS, funcs template.FuncMap) (map[string]*template.Template, error) {
	base, err := template.New("layout.html").Funcs(funcs).ParseFS(fsys, "templates/layout.html", "templates/partials.html")
	if err != nil {
		return nil, err
	}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(fsys, "templates/"+name); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

func (s *Server) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"money": func(m core.Money) string {
			return m.Format(s.currency)
		},
		"displayDate": core.DisplayDate,
		"statusClass": statusClass,
		"percent":     percent,
		"can": func(sess *core.Session, action string) bool {
			return auth.Authorize(sess, auth.Action(action))
		},
		"timestamp": func(t time.Time) string {
			return t.Format("2 January 2006 15:04")
		},
	}
}

// render executes page into a buffer first so a template failure still
// produces a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	t, ok := s.pages[page]
	if !ok {
		s.serverError(w, r, fmt.Errorf("unknown page %q", page), log.OpRender)
		return
	}
	if data.Session == nil {
		data.Session = auth.SessionFromContext(r.Context())
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).ErrorContext(r.Context(), "Template execution failed",
			"template", page,
			log.FieldError, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderError shows message on the error page, or as a fragment for htmx.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if isHTMX(r) {
		ErrorResponse(status, message).TriggerErrorNotification(message).Write(w)
		return
	}
	s.render(w, r, status, "error.html", pageData{
		Title: http.StatusText(status),
		Error: message,
	})
}

// serverError logs err and answers with a generic message.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error, op string) {
	log.FromContext(r.Context()).WithComponent(log.ComponentHTTP).ErrorContext(r.Context(), "Request failed",
		log.FieldOperation, op,
		log.FieldPath, r.URL.Path,
		log.FieldError, err,
		log.FieldErrorType, log.ErrorTypeInternal)
	s.renderError(w, r, http.StatusInternalServerError, "The ledger could not complete the request. Please try again.")
}
