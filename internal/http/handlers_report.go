package http

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/store"
)

type reportView struct {
	Report core.AuditReport
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Reports.Build(r.Context(), r.PathValue("id"), s.now())
	if err != nil {
		s.lookupFailed(w, r, err, log.OpRead)
		return
	}
	s.render(w, r, http.StatusOK, "report.html", pageData{
		Title:  "Official Audit Report",
		Active: "dashboard",
		Data:   reportView{Report: report},
	})
}

func (s *Server) handlePrintReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Reports.Build(r.Context(), r.PathValue("id"), s.now())
	if err != nil {
		s.lookupFailed(w, r, err, log.OpRead)
		return
	}
	s.render(w, r, http.StatusOK, "print.html", pageData{
		Title: report.PrintTitle,
		Bare:  true,
		Data:  reportView{Report: report},
	})
}

func (s *Server) handleAttachment(w http.ResponseWriter, r *http.Request) {
	slot, err := core.ParseSlot(r.PathValue("slot"))
	if err != nil {
		s.renderError(w, r, http.StatusNotFound, "Attachment not found.")
		return
	}

	a, err := s.deps.Projects.Attachment(r.Context(), r.PathValue("id"), slot)
	if errors.Is(err, store.ErrNotFound) {
		s.renderError(w, r, http.StatusNotFound, "Attachment not found.")
		return
	}
	if err != nil {
		s.serverError(w, r, err, log.OpRead)
		return
	}

	contentType := a.Type
	if contentType == "" || a.Kind == core.AttachmentUnsupported {
		contentType = "application/octet-stream"
	}
	disposition := "attachment"
	if a.Kind == core.AttachmentImage {
		disposition = "inline"
	}
	name := a.Name
	if name == "" {
		name = string(slot)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": name}))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Data)
}
