package applicants

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/samplyze/samplyze/internal/audit"
	"github.com/samplyze/samplyze/internal/shared"
	"github.com/samplyze/samplyze/internal/view"
)

// Handler manages applicant pages. Mounted behind the applicants
// permission gate.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	auditor   *audit.Service
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, auditor *audit.Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{logger: logger, service: service, auditor: auditor, templates: templates, csrf: csrf}
}

// MountRoutes registers applicant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listApplicants)
	r.Get("/new", h.showCreateForm)
	r.Post("/", h.createApplicant)
	r.Get("/{id}", h.showApplicant)
	r.Get("/{id}/edit", h.showEditForm)
	r.Post("/{id}", h.updateApplicant)
	r.Post("/{id}/delete", h.deleteApplicant)
}

func (h *Handler) listApplicants(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	search := strings.TrimSpace(r.URL.Query().Get("q"))
	result, err := h.service.List(r.Context(), search, page)
	if err != nil {
		h.logger.Error("list applicants failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/applicants/list.html", "Applicants", map[string]any{
		"Applicants": result.Applicants,
		"Search":     search,
		"Pagination": result.Pagination,
	})
}

func (h *Handler) showApplicant(w http.ResponseWriter, r *http.Request) {
	applicant, ok := h.load(w, r)
	if !ok {
		return
	}
	h.render(w, r, "pages/applicants/detail.html", applicant.Name, map[string]any{"Applicant": applicant})
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/applicants/form.html", "New Applicant", map[string]any{"Form": Input{}})
}

func (h *Handler) createApplicant(w http.ResponseWriter, r *http.Request) {
	in, err := parseForm(r)
	if err != nil {
		h.redirectWithFlash(w, r, "/applicants/new", "error", "An applicant name is required")
		return
	}
	applicant, err := h.service.Register(r.Context(), in)
	if err != nil {
		h.logger.Error("register applicant failed", slog.Any("error", err))
		h.redirectWithFlash(w, r, "/applicants/new", "error", "An applicant name is required")
		return
	}
	h.record(r, fmt.Sprintf("Registered applicant '%s' (%s)", applicant.Name, applicant.UID))
	h.redirectWithFlash(w, r, fmt.Sprintf("/applicants/%d", applicant.ID), "success", "Applicant registered")
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	applicant, ok := h.load(w, r)
	if !ok {
		return
	}
	h.render(w, r, "pages/applicants/form.html", "Edit Applicant", map[string]any{
		"Applicant": applicant,
		"Form": Input{
			Name: applicant.Name, Gender: applicant.Gender, DOB: applicant.DOB,
			Phone: applicant.Phone, Email: applicant.Email, Occupation: applicant.Occupation,
			City: applicant.City, State: applicant.State, Country: applicant.Country,
			Remarks: applicant.Remarks, Overview: applicant.Overview,
		},
	})
}

func (h *Handler) updateApplicant(w http.ResponseWriter, r *http.Request) {
	applicant, ok := h.load(w, r)
	if !ok {
		return
	}
	in, err := parseForm(r)
	if err != nil {
		h.redirectWithFlash(w, r, fmt.Sprintf("/applicants/%d/edit", applicant.ID), "error", "An applicant name is required")
		return
	}
	if err := h.service.Update(r.Context(), applicant.ID, in); err != nil {
		h.logger.Error("update applicant failed", slog.Any("error", err))
		h.redirectWithFlash(w, r, fmt.Sprintf("/applicants/%d/edit", applicant.ID), "error", "An applicant name is required")
		return
	}
	h.record(r, fmt.Sprintf("Updated applicant '%s' (%s)", in.Name, applicant.UID))
	h.redirectWithFlash(w, r, fmt.Sprintf("/applicants/%d", applicant.ID), "success", "Applicant updated")
}

func (h *Handler) deleteApplicant(w http.ResponseWriter, r *http.Request) {
	applicant, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), applicant.ID); err != nil {
		h.logger.Error("delete applicant failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.record(r, fmt.Sprintf("Deleted applicant '%s' (%s)", applicant.Name, applicant.UID))
	h.redirectWithFlash(w, r, "/applicants", "success", "Applicant deleted")
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (Applicant, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return Applicant{}, false
	}
	applicant, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return Applicant{}, false
		}
		h.logger.Error("load applicant failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return Applicant{}, false
	}
	return applicant, true
}

func parseForm(r *http.Request) (Input, error) {
	if err := r.ParseForm(); err != nil {
		return Input{}, err
	}
	in := Input{
		Name:       strings.TrimSpace(r.PostFormValue("name")),
		Gender:     strings.TrimSpace(r.PostFormValue("gender")),
		Phone:      strings.TrimSpace(r.PostFormValue("phone")),
		Email:      strings.TrimSpace(r.PostFormValue("email")),
		Occupation: strings.TrimSpace(r.PostFormValue("occupation")),
		City:       strings.TrimSpace(r.PostFormValue("city")),
		State:      strings.TrimSpace(r.PostFormValue("state")),
		Country:    strings.TrimSpace(r.PostFormValue("country")),
		Remarks:    r.PostFormValue("remarks"),
		Overview:   r.PostFormValue("overview"),
	}
	if in.Name == "" {
		return Input{}, fmt.Errorf("applicants: name required")
	}
	if raw := strings.TrimSpace(r.PostFormValue("dob")); raw != "" {
		if dob, err := time.Parse("2006-01-02", raw); err == nil {
			in.DOB = &dob
		}
	}
	return in, nil
}

func (h *Handler) record(r *http.Request, action string) {
	sess := shared.SessionFromContext(r.Context())
	var userID *int64
	if id, ok := sess.UserID(); ok {
		userID = &id
	}
	if err := h.auditor.Record(r.Context(), userID, action); err != nil {
		h.logger.Warn("audit record failed", slog.Any("error", err))
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: title, CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
