package http

import (
	"errors"
	"net/http"
	"time"

	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/log"
)

const sessionCookie = "ledger_session"

// deniedNotices is what a signed-in user sees when their role may not act.
var deniedNotices = map[auth.Action]string{
	auth.ActionCreateProject: "Unauthorized Access: Only Administrative users can create project entries.",
	auth.ActionEditProject:   "Unauthorized Access: Only Administrative users can edit project entries.",
	auth.ActionDeleteProject: "Unauthorized Access: Only Administrative users can delete project entries.",
	auth.ActionPrintReport:   "Unauthorized Access: Only Administrative users can print official audit documentation.",
}

func deniedNotice(action auth.Action) string {
	if msg, ok := deniedNotices[action]; ok {
		return msg
	}
	return "Unauthorized Access."
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, token string, sess core.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// loadSession resolves the session cookie and stores the session in the
// request context. A stale or forged cookie is cleared and the request
// continues anonymously.
func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := s.deps.Sessions.Resolve(r.Context(), c.Value)
		if err != nil {
			logger := log.FromContext(r.Context()).WithComponent(log.ComponentAuth)
			if errors.Is(err, auth.ErrSessionExpired) || errors.Is(err, auth.ErrInvalidToken) {
				logger.DebugContext(r.Context(), "Discarding session cookie", log.FieldError, err)
			} else {
				logger.WarnContext(r.Context(), "Session lookup failed", log.FieldError, err)
			}
			s.clearSessionCookie(w, r)
			next.ServeHTTP(w, r)
			return
		}

		ctx := auth.WithSession(r.Context(), sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireSession sends anonymous requests to the sign-in page.
func (s *Server) requireSession(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.SessionFromContext(r.Context()) == nil {
			redirect(w, r, "/login")
			return
		}
		h(w, r)
	})
}

// requireAction additionally checks the session's role for action and
// answers 403 with a notice when it falls short.
func (s *Server) requireAction(action auth.Action, h http.HandlerFunc) http.Handler {
	return s.requireSession(func(w http.ResponseWriter, r *http.Request) {
		sess := auth.SessionFromContext(r.Context())
		if !auth.Authorize(sess, action) {
			log.NewStructuredLogger(log.FromContext(r.Context()).WithComponent(log.ComponentAuth)).
				LogAccessDenied(r.Context(), sess.Username, sess.Role.String(), string(action))
			s.renderError(w, r, http.StatusForbidden, deniedNotice(action))
			return
		}
		h(w, r)
	})
}
