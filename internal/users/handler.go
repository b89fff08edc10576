package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/samplyze/samplyze/internal/audit"
	"github.com/samplyze/samplyze/internal/rbac"
	"github.com/samplyze/samplyze/internal/shared"
	"github.com/samplyze/samplyze/internal/view"
)

// DepartmentLister provides the department options for the staff form.
type DepartmentLister interface {
	ListOptions(ctx context.Context) ([]shared.Option, error)
}

// Handler manages staff-administration pages. Mounted behind the admin
// gate.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	roles       *rbac.Service
	departments DepartmentLister
	auditor     *audit.Service
	templates   *view.Engine
	csrf        *shared.CSRFManager
	validator   *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, roles *rbac.Service, departments DepartmentLister, auditor *audit.Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		roles:       roles,
		departments: departments,
		auditor:     auditor,
		templates:   templates,
		csrf:        csrf,
		validator:   validator.New(),
	}
}

// MountRoutes registers staff routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listStaff)
	r.Get("/new", h.showCreateForm)
	r.Post("/", h.createStaff)
	r.Get("/{id}/edit", h.showEditForm)
	r.Post("/{id}", h.updateStaff)
	r.Post("/{id}/delete", h.deleteStaff)
	r.Post("/{id}/password", h.resetPassword)
}

type staffForm struct {
	Username     string `validate:"required,max=64"`
	Name         string `validate:"required,max=128"`
	Password     string
	RoleID       *int64
	DepartmentID *int64
}

func (h *Handler) listStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list staff failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/users/list.html", "Staff", map[string]any{"Staff": staff}, http.StatusOK)
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.formOptions(w, r)
	if !ok {
		return
	}
	h.render(w, r, "pages/users/form.html", "New Staff", map[string]any{
		"Form":    staffForm{},
		"Options": opts,
		"Errors":  map[string]string{},
	}, http.StatusOK)
}

func (h *Handler) createStaff(w http.ResponseWriter, r *http.Request) {
	form, errs := h.parseForm(r)
	if form.Password == "" {
		errs["Password"] = "A password is required"
	}
	if len(errs) > 0 {
		opts, ok := h.formOptions(w, r)
		if !ok {
			return
		}
		h.render(w, r, "pages/users/form.html", "New Staff", map[string]any{
			"Form": form, "Options": opts, "Errors": errs,
		}, http.StatusUnprocessableEntity)
		return
	}

	input := StaffInput{Username: form.Username, Name: form.Name, RoleID: form.RoleID, DepartmentID: form.DepartmentID}
	if _, err := h.service.Create(r.Context(), input, form.Password); err != nil {
		if errors.Is(err, shared.ErrDuplicateName) {
			opts, ok := h.formOptions(w, r)
			if !ok {
				return
			}
			h.render(w, r, "pages/users/form.html", "New Staff", map[string]any{
				"Form": form, "Options": opts,
				"Errors": map[string]string{"Username": "This username is taken"},
			}, http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("create staff failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.record(r, fmt.Sprintf("Created staff account '%s'", form.Username))
	h.redirectWithFlash(w, r, "/admin/staff", "success", "Staff account created")
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	staff, ok := h.loadStaff(w, r)
	if !ok {
		return
	}
	opts, ok := h.formOptions(w, r)
	if !ok {
		return
	}
	form := staffForm{Username: staff.Username, Name: staff.Name, RoleID: staff.RoleID, DepartmentID: staff.DepartmentID}
	h.render(w, r, "pages/users/form.html", "Edit Staff", map[string]any{
		"Form": form, "Staff": staff, "Options": opts, "Errors": map[string]string{},
	}, http.StatusOK)
}

func (h *Handler) updateStaff(w http.ResponseWriter, r *http.Request) {
	staff, ok := h.loadStaff(w, r)
	if !ok {
		return
	}
	form, errs := h.parseForm(r)
	if len(errs) > 0 {
		opts, ok := h.formOptions(w, r)
		if !ok {
			return
		}
		h.render(w, r, "pages/users/form.html", "Edit Staff", map[string]any{
			"Form": form, "Staff": staff, "Options": opts, "Errors": errs,
		}, http.StatusUnprocessableEntity)
		return
	}

	input := StaffInput{Username: form.Username, Name: form.Name, RoleID: form.RoleID, DepartmentID: form.DepartmentID}
	if err := h.service.Update(r.Context(), staff.ID, input); err != nil {
		if errors.Is(err, shared.ErrDuplicateName) {
			opts, ok := h.formOptions(w, r)
			if !ok {
				return
			}
			h.render(w, r, "pages/users/form.html", "Edit Staff", map[string]any{
				"Form": form, "Staff": staff, "Options": opts,
				"Errors": map[string]string{"Username": "This username is taken"},
			}, http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("update staff failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.record(r, fmt.Sprintf("Updated staff account '%s'", form.Username))
	h.redirectWithFlash(w, r, "/admin/staff", "success", "Staff account updated")
}

func (h *Handler) deleteStaff(w http.ResponseWriter, r *http.Request) {
	staff, ok := h.loadStaff(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), staff.ID); err != nil {
		if errors.Is(err, shared.ErrProtectedAccount) {
			h.redirectWithFlash(w, r, "/admin/staff", "error", "Admin accounts cannot be deleted")
			return
		}
		h.logger.Error("delete staff failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.record(r, fmt.Sprintf("Deleted staff account '%s'", staff.Username))
	h.redirectWithFlash(w, r, "/admin/staff", "success", "Staff account deleted")
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	staff, ok := h.loadStaff(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	password := r.PostFormValue("password")
	if len(password) < 8 {
		h.redirectWithFlash(w, r, "/admin/staff", "error", "Passwords must be at least 8 characters")
		return
	}
	if err := h.service.ResetPassword(r.Context(), staff.ID, password); err != nil {
		h.logger.Error("reset password failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.record(r, fmt.Sprintf("Reset password for '%s'", staff.Username))
	h.redirectWithFlash(w, r, "/admin/staff", "success", "Password reset")
}

type formOptions struct {
	Roles       []rbac.Role
	Departments []shared.Option
}

func (h *Handler) formOptions(w http.ResponseWriter, r *http.Request) (formOptions, bool) {
	roles, err := h.roles.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return formOptions{}, false
	}
	depts, err := h.departments.ListOptions(r.Context())
	if err != nil {
		h.logger.Error("list departments failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return formOptions{}, false
	}
	return formOptions{Roles: roles, Departments: depts}, true
}

func (h *Handler) loadStaff(w http.ResponseWriter, r *http.Request) (Staff, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return Staff{}, false
	}
	staff, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return Staff{}, false
		}
		h.logger.Error("load staff failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return Staff{}, false
	}
	return staff, true
}

func (h *Handler) parseForm(r *http.Request) (staffForm, map[string]string) {
	errs := make(map[string]string)
	if err := r.ParseForm(); err != nil {
		errs["general"] = "Invalid form submission"
		return staffForm{}, errs
	}
	form := staffForm{
		Username:     strings.TrimSpace(r.PostFormValue("username")),
		Name:         strings.TrimSpace(r.PostFormValue("name")),
		Password:     r.PostFormValue("password"),
		RoleID:       parseOptionalID(r.PostFormValue("role_id")),
		DepartmentID: parseOptionalID(r.PostFormValue("department_id")),
	}
	if err := h.validator.Struct(form); err != nil {
		for _, fieldErr := range err.(validator.ValidationErrors) {
			errs[fieldErr.Field()] = "This field is required"
		}
	}
	return form, errs
}

func parseOptionalID(raw string) *int64 {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
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

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: title, CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	w.WriteHeader(status)
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
