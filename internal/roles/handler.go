package roles

import (
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

// Handler manages role-administration pages. Mounted behind the admin
// gate.
type Handler struct {
	logger    *slog.Logger
	service   *rbac.Service
	auditor   *audit.Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *rbac.Service, auditor *audit.Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		auditor:   auditor,
		templates: templates,
		csrf:      csrf,
		validator: validator.New(),
	}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listRoles)
	r.Get("/new", h.showCreateForm)
	r.Post("/", h.createRole)
	r.Get("/{id}/edit", h.showEditForm)
	r.Post("/{id}", h.updateRole)
	r.Post("/{id}/delete", h.deleteRole)
}

type roleForm struct {
	Name        string `validate:"required,max=64"`
	Permissions []string
}

// permissionOption pairs a permission name with its display label.
type permissionOption struct {
	Name    string
	Label   string
	Checked bool
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/roles/list.html", "Roles", map[string]any{"Roles": roles}, http.StatusOK)
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/roles/form.html", "New Role", map[string]any{
		"Form":        roleForm{},
		"Permissions": permissionOptions(nil),
		"Errors":      map[string]string{},
	}, http.StatusOK)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	form, errs := h.parseForm(r)
	if len(errs) > 0 {
		h.render(w, r, "pages/roles/form.html", "New Role", map[string]any{
			"Form":        form,
			"Permissions": permissionOptions(form.Permissions),
			"Errors":      errs,
		}, http.StatusUnprocessableEntity)
		return
	}

	if _, err := h.service.CreateRole(r.Context(), form.Name, form.Permissions); err != nil {
		if errors.Is(err, shared.ErrDuplicateName) {
			h.render(w, r, "pages/roles/form.html", "New Role", map[string]any{
				"Form":        form,
				"Permissions": permissionOptions(form.Permissions),
				"Errors":      map[string]string{"Name": "A role with this name already exists"},
			}, http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("create role failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.record(r, fmt.Sprintf("Created role '%s'", form.Name))
	h.redirectWithFlash(w, r, "/admin/roles", "success", "Role created")
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	role, ok := h.loadRole(w, r)
	if !ok {
		return
	}
	form := roleForm{Name: role.Name, Permissions: role.Permissions}
	h.render(w, r, "pages/roles/form.html", "Edit Role", map[string]any{
		"Form":        form,
		"Role":        role,
		"Permissions": permissionOptions(role.Permissions),
		"Errors":      map[string]string{},
	}, http.StatusOK)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	role, ok := h.loadRole(w, r)
	if !ok {
		return
	}
	form, errs := h.parseForm(r)
	if len(errs) > 0 {
		h.render(w, r, "pages/roles/form.html", "Edit Role", map[string]any{
			"Form":        form,
			"Role":        role,
			"Permissions": permissionOptions(form.Permissions),
			"Errors":      errs,
		}, http.StatusUnprocessableEntity)
		return
	}

	if err := h.service.UpdateRole(r.Context(), role.ID, form.Name, form.Permissions); err != nil {
		if errors.Is(err, shared.ErrDuplicateName) {
			h.render(w, r, "pages/roles/form.html", "Edit Role", map[string]any{
				"Form":        form,
				"Role":        role,
				"Permissions": permissionOptions(form.Permissions),
				"Errors":      map[string]string{"Name": "A role with this name already exists"},
			}, http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("update role failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.record(r, fmt.Sprintf("Updated role '%s'", form.Name))
	h.redirectWithFlash(w, r, "/admin/roles", "success", "Role updated")
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	role, ok := h.loadRole(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), role.ID); err != nil {
		if errors.Is(err, shared.ErrProtectedRole) {
			h.redirectWithFlash(w, r, "/admin/roles", "error", "The Admin role cannot be deleted")
			return
		}
		h.logger.Error("delete role failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.record(r, fmt.Sprintf("Deleted role '%s'", role.Name))
	h.redirectWithFlash(w, r, "/admin/roles", "success", "Role deleted")
}

func (h *Handler) loadRole(w http.ResponseWriter, r *http.Request) (rbac.Role, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return rbac.Role{}, false
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return rbac.Role{}, false
		}
		h.logger.Error("load role failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return rbac.Role{}, false
	}
	return role, true
}

func (h *Handler) parseForm(r *http.Request) (roleForm, map[string]string) {
	errs := make(map[string]string)
	if err := r.ParseForm(); err != nil {
		errs["general"] = "Invalid form submission"
		return roleForm{}, errs
	}
	form := roleForm{
		Name:        strings.TrimSpace(r.PostFormValue("name")),
		Permissions: normalizePermissions(r.PostForm["permissions"]),
	}
	if err := h.validator.Struct(form); err != nil {
		errs["Name"] = "A role name is required"
	}
	return form, errs
}

// normalizePermissions drops unknown names silently; the form only
// offers registry permissions, anything else is a forged submission.
func normalizePermissions(names []string) []string {
	var out []string
	for _, name := range names {
		if rbac.InRegistry(name) {
			out = append(out, name)
		}
	}
	return out
}

func permissionOptions(selected []string) []permissionOption {
	chosen := make(map[string]bool, len(selected))
	for _, name := range selected {
		chosen[name] = true
	}
	opts := make([]permissionOption, 0, len(rbac.Registry()))
	for _, name := range rbac.Registry() {
		opts = append(opts, permissionOption{Name: name, Label: rbac.Label(name), Checked: chosen[name]})
	}
	return opts
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
