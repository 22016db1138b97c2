package http

import (
	"errors"
	"net/http"

	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/store"
)

type projectRow struct {
	Project core.Project
	Status  core.Status
}

type dashboardView struct {
	Counts core.Counts
	Rows   []projectRow
}

type listView struct {
	Heading string
	Empty   string
	Rows    []projectRow
}

type formView struct {
	Heading string
	Action  string
	Submit  string
	ID      string
	Form    projectForm
	// Attachments lists the files already on record, for the edit form.
	Attachments []core.AttachmentView
}

type historyView struct {
	History    core.History
	MonthlyMax int
	YearlyMax  int
}

func (s *Server) rows(projects []core.Project) []projectRow {
	now := s.now()
	rows := make([]projectRow, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, projectRow{Project: p, Status: p.Status(now)})
	}
	return rows
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	projects, err := s.deps.Projects.List(r.Context())
	if err != nil {
		s.serverError(w, r, err, log.OpList)
		return
	}
	s.render(w, r, http.StatusOK, "dashboard.html", pageData{
		Title:  "Dashboard",
		Active: "dashboard",
		Data: dashboardView{
			Counts: core.Aggregate(projects, s.now()).Counts,
			Rows:   s.rows(projects),
		},
	})
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	projects, err := s.deps.Projects.Upcoming(r.Context(), s.now())
	if err != nil {
		s.serverError(w, r, err, log.OpList)
		return
	}
	s.render(w, r, http.StatusOK, "project_list.html", pageData{
		Title:  "Upcoming Projects",
		Active: "upcoming",
		Data: listView{
			Heading: "Upcoming Projects",
			Empty:   "No projects are scheduled to start.",
			Rows:    s.rows(projects),
		},
	})
}

func (s *Server) handleCompleted(w http.ResponseWriter, r *http.Request) {
	projects, err := s.deps.Projects.Completed(r.Context(), s.now())
	if err != nil {
		s.serverError(w, r, err, log.OpList)
		return
	}
	s.render(w, r, http.StatusOK, "project_list.html", pageData{
		Title:  "Completed Projects",
		Active: "completed",
		Data: listView{
			Heading: "Completed Projects",
			Empty:   "No projects have reached their end date.",
			Rows:    s.rows(projects),
		},
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.deps.Projects.History(r.Context(), s.now())
	if err != nil {
		s.serverError(w, r, err, log.OpList)
		return
	}
	s.render(w, r, http.StatusOK, "history.html", pageData{
		Title:  "History & Analytics",
		Active: "history",
		Data: historyView{
			History:    h,
			MonthlyMax: core.MaxCount(h.Monthly),
			YearlyMax:  core.MaxCount(h.Yearly),
		},
	})
}

func newProjectView(form projectForm) formView {
	return formView{
		Heading: "New Project Entry",
		Action:  "/projects",
		Submit:  "Save Project Entry",
		Form:    form,
	}
}

func editProjectView(p core.Project, form projectForm) formView {
	report := core.NewAuditReport(p, "", p.CreatedAt)
	return formView{
		Heading:     "Edit Project Entry",
		Action:      "/projects/" + p.ID,
		Submit:      "Update Project Entry",
		ID:          p.ID,
		Form:        form,
		Attachments: report.Attachments,
	}
}

func (s *Server) handleNewProject(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "project_form.html", pageData{
		Title:  "New Project Entry",
		Active: "new",
		Data:   newProjectView(projectForm{}),
	})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	form, in, err := parseProjectForm(w, r, s.deps.Config.AttachmentMaxBytes)
	if err != nil {
		s.renderProjectForm(w, r, http.StatusUnprocessableEntity, newProjectView(form), err.Error())
		return
	}

	p, err := s.deps.Projects.Create(r.Context(), auth.SessionFromContext(r.Context()), in)
	if err != nil {
		s.writeFailed(w, r, err, log.OpCreate, newProjectView(form))
		return
	}
	s.saved(w, r, p)
}

func (s *Server) handleEditProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Projects.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.lookupFailed(w, r, err, log.OpRead)
		return
	}
	s.render(w, r, http.StatusOK, "project_form.html", pageData{
		Title:  "Edit Project Entry",
		Active: "dashboard",
		Data:   editProjectView(p, formFromInput(p.Input())),
	})
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	current, err := s.deps.Projects.Get(r.Context(), id)
	if err != nil {
		s.lookupFailed(w, r, err, log.OpRead)
		return
	}

	form, in, err := parseProjectForm(w, r, s.deps.Config.AttachmentMaxBytes)
	if err != nil {
		s.renderProjectForm(w, r, http.StatusUnprocessableEntity, editProjectView(current, form), err.Error())
		return
	}

	p, err := s.deps.Projects.Update(r.Context(), auth.SessionFromContext(r.Context()), id, in)
	if err != nil {
		s.writeFailed(w, r, err, log.OpUpdate, editProjectView(current, form))
		return
	}
	s.saved(w, r, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Projects.Delete(r.Context(), auth.SessionFromContext(r.Context()), id); err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			s.renderError(w, r, http.StatusForbidden, deniedNotice(auth.ActionDeleteProject))
			return
		}
		s.serverError(w, r, err, log.OpDelete)
		return
	}

	if isHTMX(r) {
		NewHTMXResponse().
			TriggerProjectDeleted(id).
			TriggerSuccessNotification("Project entry deleted.").
			Write(w)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) saved(w http.ResponseWriter, r *http.Request, p core.Project) {
	if isHTMX(r) {
		NewHTMXResponse().
			TriggerProjectSaved(p.ID).
			TriggerSuccessNotification("Project entry saved.").
			Redirect("/").
			Write(w)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) renderProjectForm(w http.ResponseWriter, r *http.Request, status int, view formView, msg string) {
	s.render(w, r, status, "project_form.html", pageData{
		Title:  view.Heading,
		Active: "new",
		Error:  msg,
		Data:   view,
	})
}

// writeFailed maps a service error from create or update onto a response.
func (s *Server) writeFailed(w http.ResponseWriter, r *http.Request, err error, op string, view formView) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		s.renderProjectForm(w, r, http.StatusUnprocessableEntity, view, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		action := auth.ActionCreateProject
		if op == log.OpUpdate {
			action = auth.ActionEditProject
		}
		s.renderError(w, r, http.StatusForbidden, deniedNotice(action))
	case errors.Is(err, store.ErrNotFound):
		s.renderError(w, r, http.StatusNotFound, "Project entry not found.")
	case errors.Is(err, core.ErrAttachmentTooLarge):
		s.renderProjectForm(w, r, http.StatusUnprocessableEntity, view, "Attachment exceeds the maximum upload size.")
	default:
		s.serverError(w, r, err, op)
	}
}

// lookupFailed answers 404 for a missing project and 500 otherwise.
func (s *Server) lookupFailed(w http.ResponseWriter, r *http.Request, err error, op string) {
	if errors.Is(err, store.ErrNotFound) {
		s.renderError(w, r, http.StatusNotFound, "Project entry not found.")
		return
	}
	s.serverError(w, r, err, op)
}
