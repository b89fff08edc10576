package departments

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/samplyze/samplyze/internal/audit"
	"github.com/samplyze/samplyze/internal/shared"
	"github.com/samplyze/samplyze/internal/view"
)

// Handler manages department pages. Mounted behind the admin gate.
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

// MountRoutes registers department routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listDepartments)
	r.Post("/", h.createDepartment)
	r.Post("/{id}", h.renameDepartment)
	r.Post("/{id}/delete", h.deleteDepartment)
}

func (h *Handler) listDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list departments failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       "Departments",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        map[string]any{"Departments": depts},
	}
	if err := h.templates.Render(w, "pages/departments.html", data); err != nil {
		h.logger.Error("render departments", slog.Any("error", err))
	}
}

func (h *Handler) createDepartment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(r.PostFormValue("name"))
	if _, err := h.service.Create(r.Context(), name); err != nil {
		if errors.Is(err, shared.ErrDuplicateName) {
			h.redirectWithFlash(w, r, "error", "A department with this name already exists")
			return
		}
		h.redirectWithFlash(w, r, "error", "A department name is required")
		return
	}
	h.record(r, fmt.Sprintf("Created department '%s'", name))
	h.redirectWithFlash(w, r, "success", "Department created")
}

func (h *Handler) renameDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(r.PostFormValue("name"))
	if err := h.service.Rename(r.Context(), id, name); err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			http.NotFound(w, r)
		case errors.Is(err, shared.ErrDuplicateName):
			h.redirectWithFlash(w, r, "error", "A department with this name already exists")
		default:
			h.redirectWithFlash(w, r, "error", "A department name is required")
		}
		return
	}
	h.record(r, fmt.Sprintf("Renamed department to '%s'", name))
	h.redirectWithFlash(w, r, "success", "Department renamed")
}

func (h *Handler) deleteDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	dept, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load department failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete department failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.record(r, fmt.Sprintf("Deleted department '%s'", dept.Name))
	h.redirectWithFlash(w, r, "success", "Department deleted")
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

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, "/admin/departments", http.StatusSeeOther)
}
