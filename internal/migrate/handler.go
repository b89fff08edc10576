package migrate

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/samplyze/samplyze/internal/audit"
	"github.com/samplyze/samplyze/internal/shared"
	"github.com/samplyze/samplyze/internal/view"
)

const maxUploadBytes = 256 << 20

// Handler exposes the database-import page. Mounted behind the admin
// gate.
type Handler struct {
	logger      *slog.Logger
	migrator    *Migrator
	auditor     *audit.Service
	templates   *view.Engine
	csrfManager *shared.CSRFManager
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, migrator *Migrator, auditor *audit.Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{logger: logger, migrator: migrator, auditor: auditor, templates: templates, csrfManager: csrf}
}

// MountRoutes registers migration routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showImport)
	r.Post("/", h.handleImport)
}

type importPageData struct {
	Stats *Stats
}

func (h *Handler) showImport(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, importPageData{})
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Upload failed."})
		http.Redirect(w, r, "/admin/migrate", http.StatusSeeOther)
		return
	}
	file, header, err := r.FormFile("database")
	if err != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Select a database file to import."})
		http.Redirect(w, r, "/admin/migrate", http.StatusSeeOther)
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "samplyze-import-*.db")
	if err != nil {
		h.logger.Error("stage import upload", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		h.logger.Error("stage import upload", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	tmp.Close()

	stats, err := h.migrator.Run(r.Context(), tmp.Name())
	if err != nil {
		h.logger.Error("migration failed", slog.Any("error", err))
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Could not open the uploaded database."})
		http.Redirect(w, r, "/admin/migrate", http.StatusSeeOther)
		return
	}

	var userID *int64
	if id, ok := sess.UserID(); ok {
		userID = &id
	}
	action := fmt.Sprintf("Imported database '%s' (%d tables)", header.Filename, stats.TablesMigrated)
	if err := h.auditor.Record(r.Context(), userID, action); err != nil {
		h.logger.Warn("audit record failed", slog.Any("error", err))
	}

	msg := fmt.Sprintf("Migration complete: %d tables imported, %d skipped.", stats.TablesMigrated, stats.TablesSkipped)
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: msg})
	http.Redirect(w, r, "/admin/migrate", http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data importPageData) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	page := view.TemplateData{
		Title:       "Import Database",
		CSRFToken:   token,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if err := h.templates.Render(w, "pages/migrate.html", page); err != nil {
		h.logger.Error("render migrate", slog.Any("error", err))
	}
}
