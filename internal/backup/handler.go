package backup

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/samplyze/samplyze/internal/audit"
	"github.com/samplyze/samplyze/internal/shared"
	"github.com/samplyze/samplyze/internal/view"
)

const maxUploadBytes = 512 << 20

// Handler exposes backup and restore pages. All routes are mounted
// behind the admin gate.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	auditor     *audit.Service
	templates   *view.Engine
	sessions    *shared.SessionManager
	csrfManager *shared.CSRFManager
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, auditor *audit.Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		auditor:     auditor,
		templates:   templates,
		sessions:    sessions,
		csrfManager: csrf,
	}
}

// MountRoutes registers backup routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showBackups)
	r.Post("/create", h.handleCreate)
	r.Get("/download/{name}", h.handleDownload)
	r.Post("/restore", h.handleRestore)
}

type backupPageData struct {
	Backups []string
}

func (h *Handler) showBackups(w http.ResponseWriter, r *http.Request) {
	names, err := h.service.List()
	if err != nil {
		h.logger.Error("list backups", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, backupPageData{Backups: names})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	path, err := h.service.Create(r.Context())
	if err != nil {
		h.logger.Error("create backup", slog.Any("error", err))
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Backup failed. Check the server logs."})
		http.Redirect(w, r, "/admin/backups", http.StatusSeeOther)
		return
	}
	h.record(r, fmt.Sprintf("Created backup '%s'", filepath.Base(path)))
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Backup created: " + filepath.Base(path)})
	http.Redirect(w, r, "/admin/backups", http.StatusSeeOther)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(chi.URLParam(r, "name"))
	path := filepath.Join(h.service.paths.BackupDir, name)
	if _, err := os.Stat(path); err != nil {
		http.NotFound(w, r)
		return
	}
	h.record(r, fmt.Sprintf("Downloaded backup '%s'", name))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	http.ServeFile(w, r, path)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Upload failed."})
		http.Redirect(w, r, "/admin/backups", http.StatusSeeOther)
		return
	}
	file, header, err := r.FormFile("archive")
	if err != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Select a backup archive to restore."})
		http.Redirect(w, r, "/admin/backups", http.StatusSeeOther)
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "samplyze-restore-*.zip")
	if err != nil {
		h.logger.Error("stage restore upload", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		h.logger.Error("stage restore upload", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	tmp.Close()

	if err := h.service.Restore(r.Context(), tmp.Name(), h.sessions); err != nil {
		if errors.Is(err, shared.ErrInvalidArchive) {
			sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Invalid backup archive."})
			http.Redirect(w, r, "/admin/backups", http.StatusSeeOther)
			return
		}
		h.logger.Error("restore backup", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	// Recorded after the swap so the entry lands in the restored database.
	h.record(r, fmt.Sprintf("Restored backup '%s'", header.Filename))
	// Every session including the caller's is gone now.
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
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

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data backupPageData) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	page := view.TemplateData{
		Title:       "Backups",
		CSRFToken:   token,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if err := h.templates.Render(w, "pages/backups.html", page); err != nil {
		h.logger.Error("render backups", slog.Any("error", err))
	}
}
