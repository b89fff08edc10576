package audit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/samplyze/samplyze/internal/shared"
	"github.com/samplyze/samplyze/internal/view"
)

// Handler exposes the audit trail pages.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	templates   *view.Engine
	csrfManager *shared.CSRFManager
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrfManager: csrf}
}

// MountRoutes registers audit routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showTrail)
	r.Get("/export", h.exportTrail)
}

type trailPageData struct {
	Entries    []Entry
	Search     string
	Pagination shared.Pagination
}

func (h *Handler) showTrail(w http.ResponseWriter, r *http.Request) {
	filters := Filters{
		Search: strings.TrimSpace(r.URL.Query().Get("q")),
		Page:   parsePage(r.URL.Query().Get("page")),
	}
	result, err := h.service.Trail(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit trail query failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data := view.TemplateData{
		Title:       "Audit Trail",
		CSRFToken:   token,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Data: trailPageData{
			Entries:    result.Entries,
			Search:     filters.Search,
			Pagination: result.Pagination,
		},
	}
	if err := h.templates.Render(w, "pages/audit.html", data); err != nil {
		h.logger.Error("render audit trail", slog.Any("error", err))
	}
}

func (h *Handler) exportTrail(w http.ResponseWriter, r *http.Request) {
	filters := Filters{Search: strings.TrimSpace(r.URL.Query().Get("q"))}
	entries, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit trail export failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	stamp := h.service.clock.Now().Format("20060102_150405")
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=audit_trail_%s.csv", stamp))
	if err := WriteCSV(w, entries, h.service.Location()); err != nil {
		h.logger.Error("write audit csv", slog.Any("error", err))
	}
}

func parsePage(raw string) int {
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 1
	}
	return page
}
