package http

import (
	"errors"
	"net/http"

	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/log"
)

const registeredMessage = "Account registered. Please authorize sign-in."

// authView pre-fills the sign-in and registration forms.
type authView struct {
	Username string
	Role     string
	Roles    []core.Role
}

func newAuthView(username, role string) authView {
	if role == "" {
		role = core.RoleViewer.String()
	}
	return authView{Username: username, Role: role, Roles: []core.Role{core.RoleViewer, core.RoleAdmin}}
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if auth.SessionFromContext(r.Context()) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", pageData{Title: "Sign In", Bare: true, Data: newAuthView("", "")})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Invalid request format.")
		return
	}
	username := sanitizeInput(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentAuth)

	u, err := s.deps.Gate.Authenticate(r.Context(), username, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		logger.InfoContext(r.Context(), "Sign-in rejected",
			log.FieldOperation, log.OpLogin,
			log.FieldUsername, username,
			log.FieldErrorType, log.ErrorTypeAuth)
		s.render(w, r, http.StatusUnauthorized, "login.html", pageData{
			Title: "Sign In",
			Bare:  true,
			Error: err.Error(),
			Data:  newAuthView(username, ""),
		})
		return
	}
	if err != nil {
		s.serverError(w, r, err, log.OpLogin)
		return
	}

	token, sess, err := s.deps.Sessions.Start(r.Context(), u)
	if err != nil {
		s.serverError(w, r, err, log.OpLogin)
		return
	}
	s.setSessionCookie(w, r, token, sess)
	logger.InfoContext(r.Context(), "Signed in",
		log.FieldOperation, log.OpLogin,
		log.FieldUsername, sess.Username,
		log.FieldRole, sess.Role,
		log.FieldSessionID, sess.ID)
	redirect(w, r, "/")
}

func (s *Server) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "register.html", pageData{Title: "Register ID", Bare: true, Data: newAuthView("", "")})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Invalid request format.")
		return
	}
	username := sanitizeInput(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")
	rawRole := sanitizeInput(r.PostForm.Get("role"))

	fail := func(status int, msg string) {
		s.render(w, r, status, "register.html", pageData{
			Title: "Register ID",
			Bare:  true,
			Error: msg,
			Data:  newAuthView(username, rawRole),
		})
	}

	role, err := core.ParseRole(rawRole)
	if err != nil {
		fail(http.StatusUnprocessableEntity, "Select a valid role.")
		return
	}

	u, err := s.deps.Gate.Register(r.Context(), username, password, role)
	switch {
	case errors.Is(err, auth.ErrDuplicateUsername):
		fail(http.StatusUnauthorized, err.Error())
		return
	case errors.Is(err, auth.ErrInvalidInput):
		fail(http.StatusUnprocessableEntity, "Username and password are required.")
		return
	case err != nil:
		s.serverError(w, r, err, log.OpRegister)
		return
	}

	log.FromContext(r.Context()).WithComponent(log.ComponentAuth).InfoContext(r.Context(), "Account registered",
		log.FieldOperation, log.OpRegister,
		log.FieldUsername, u.Username,
		log.FieldRole, u.Role)
	s.render(w, r, http.StatusOK, "login.html", pageData{
		Title:   "Sign In",
		Bare:    true,
		Success: registeredMessage,
		Data:    newAuthView(u.Username, ""),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if err := s.deps.Sessions.End(r.Context(), c.Value); err != nil {
			log.FromContext(r.Context()).WithComponent(log.ComponentAuth).WarnContext(r.Context(), "Failed to revoke session",
				log.FieldOperation, log.OpLogout,
				log.FieldError, err)
		}
	}
	s.clearSessionCookie(w, r)
	redirect(w, r, "/login")
}
