package labarchive

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

const maxUploadBytes = 256 << 20

// Handler exposes archive pages. Creation is mounted behind the admin
// gate, the viewer behind the archives permission.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	auditor     *audit.Service
	templates   *view.Engine
	csrfManager *shared.CSRFManager
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, auditor *audit.Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{logger: logger, service: service, auditor: auditor, templates: templates, csrfManager: csrf}
}

// MountAdminRoutes registers archive creation for administrators.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/", h.showArchives)
	r.Post("/create", h.handleCreate)
	r.Get("/download/{name}", h.handleDownload)
}

// MountViewerRoutes registers the archive-content viewer.
func (h *Handler) MountViewerRoutes(r chi.Router) {
	r.Get("/", h.showViewer)
	r.Post("/", h.handleInspect)
}

type archivesPageData struct {
	Archives []string
}

func (h *Handler) showArchives(w http.ResponseWriter, r *http.Request) {
	names, err := h.service.List()
	if err != nil {
		h.logger.Error("list archives", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/archives.html", "Archives", archivesPageData{Archives: names})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	path, err := h.service.Create(r.Context())
	if err != nil {
		h.logger.Error("create archive", slog.Any("error", err))
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Archive creation failed."})
		http.Redirect(w, r, "/admin/archives", http.StatusSeeOther)
		return
	}
	h.record(r, fmt.Sprintf("Created archive '%s'", filepath.Base(path)))
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Archive created: " + filepath.Base(path)})
	http.Redirect(w, r, "/admin/archives", http.StatusSeeOther)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(chi.URLParam(r, "name"))
	path := filepath.Join(h.service.archiveDir, name)
	if _, err := os.Stat(path); err != nil {
		http.NotFound(w, r)
		return
	}
	h.record(r, fmt.Sprintf("Downloaded archive '%s'", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	http.ServeFile(w, r, path)
}

type viewerPageData struct {
	Tables   []Table
	Filename string
}

func (h *Handler) showViewer(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/archive_viewer.html", "Archive Viewer", viewerPageData{})
}

func (h *Handler) handleInspect(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Upload failed."})
		http.Redirect(w, r, "/archives/view", http.StatusSeeOther)
		return
	}
	file, header, err := r.FormFile("archive")
	if err != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Select an archive file to view."})
		http.Redirect(w, r, "/archives/view", http.StatusSeeOther)
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "samplyze-archive-*.db")
	if err != nil {
		h.logger.Error("stage archive upload", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		h.logger.Error("stage archive upload", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	tmp.Close()

	tables, err := h.service.Inspect(r.Context(), tmp.Name())
	if err != nil {
		if errors.Is(err, shared.ErrInvalidArchive) {
			sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Not a readable archive file."})
			http.Redirect(w, r, "/archives/view", http.StatusSeeOther)
			return
		}
		h.logger.Error("inspect archive", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.record(r, fmt.Sprintf("Viewed archive '%s'", header.Filename))
	h.render(w, r, "pages/archive_viewer.html", "Archive Viewer", viewerPageData{
		Tables:   tables,
		Filename: header.Filename,
	})
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

func (h *Handler) render(w http.ResponseWriter, r *http.Request, page, title string, data any) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	td := view.TemplateData{
		Title:       title,
		CSRFToken:   token,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if err := h.templates.Render(w, page, td); err != nil {
		h.logger.Error("render archive page", slog.Any("error", err))
	}
}
