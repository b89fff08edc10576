package labsettings

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/samplyze/samplyze/internal/audit"
	"github.com/samplyze/samplyze/internal/shared"
	"github.com/samplyze/samplyze/internal/view"
)

// Handler manages the lab profile page. Mounted behind the admin gate.
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

// MountRoutes registers settings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showSettings)
	r.Post("/", h.updateSettings)
}

func (h *Handler) showSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.Get(r.Context())
	if err != nil {
		h.logger.Error("load settings failed", slog.Any("error", err))
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
		Title:       "Lab Settings",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        map[string]any{"Settings": settings},
	}
	if err := h.templates.Render(w, "pages/settings.html", data); err != nil {
		h.logger.Error("render settings", slog.Any("error", err))
	}
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := Settings{
		LabName:       strings.TrimSpace(r.PostFormValue("lab_name")),
		Description:   r.PostFormValue("description"),
		Address:       r.PostFormValue("address"),
		ContactNumber: r.PostFormValue("contact_number"),
		Email:         r.PostFormValue("email"),
		LogoPath:      r.PostFormValue("logo_path"),
	}
	if err := h.service.Update(r.Context(), in); err != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "A lab name is required"})
		http.Redirect(w, r, "/admin/settings", http.StatusSeeOther)
		return
	}

	var userID *int64
	if id, ok := sess.UserID(); ok {
		userID = &id
	}
	if err := h.auditor.Record(r.Context(), userID, "Updated lab settings"); err != nil {
		h.logger.Warn("audit record failed", slog.Any("error", err))
	}
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Settings saved"})
	http.Redirect(w, r, "/admin/settings", http.StatusSeeOther)
}
