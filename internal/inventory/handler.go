package inventory

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

const maxImportBytes = 16 << 20

// Handler manages inventory pages. Mounted behind the inventory
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

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listItems)
	r.Post("/", h.createItem)
	r.Post("/{id}", h.updateItem)
	r.Post("/{id}/delete", h.deleteItem)
	r.Get("/export", h.exportCSV)
	r.Post("/import", h.importCSV)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list inventory failed", slog.Any("error", err))
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
		Title:       "Inventory",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        map[string]any{"Items": items},
	}
	if err := h.templates.Render(w, "pages/inventory.html", data); err != nil {
		h.logger.Error("render inventory", slog.Any("error", err))
	}
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	in, err := parseItemForm(r)
	if err != nil {
		h.redirectWithFlash(w, r, "error", formErrorMessage(err))
		return
	}
	if _, err := h.service.Create(r.Context(), in); err != nil {
		if errors.Is(err, shared.ErrDuplicateName) {
			h.redirectWithFlash(w, r, "error", "An item with this SKU already exists")
			return
		}
		h.redirectWithFlash(w, r, "error", formErrorMessage(err))
		return
	}
	h.record(r, fmt.Sprintf("Added inventory item '%s'", in.SKU))
	h.redirectWithFlash(w, r, "success", "Item added")
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	in, err := parseItemForm(r)
	if err != nil {
		h.redirectWithFlash(w, r, "error", formErrorMessage(err))
		return
	}
	if err := h.service.Update(r.Context(), id, in); err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			http.NotFound(w, r)
		case errors.Is(err, shared.ErrDuplicateName):
			h.redirectWithFlash(w, r, "error", "An item with this SKU already exists")
		default:
			h.redirectWithFlash(w, r, "error", formErrorMessage(err))
		}
		return
	}
	h.record(r, fmt.Sprintf("Updated inventory item '%s'", in.SKU))
	h.redirectWithFlash(w, r, "success", "Item updated")
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load item failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete item failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.record(r, fmt.Sprintf("Deleted inventory item '%s'", item.SKU))
	h.redirectWithFlash(w, r, "success", "Item deleted")
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=inventory.csv")
	if err := h.service.ExportCSV(r.Context(), w); err != nil {
		h.logger.Error("export inventory csv", slog.Any("error", err))
	}
	h.record(r, "Exported inventory CSV")
}

func (h *Handler) importCSV(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		h.redirectWithFlash(w, r, "error", "Upload failed.")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		h.redirectWithFlash(w, r, "error", "Select a CSV file to import.")
		return
	}
	defer file.Close()

	stats, err := h.service.ImportCSV(r.Context(), file)
	if err != nil {
		h.redirectWithFlash(w, r, "error", "Could not read the CSV file.")
		return
	}
	h.record(r, fmt.Sprintf("Imported inventory CSV (%d created, %d updated)", stats.Created, stats.Updated))
	msg := fmt.Sprintf("Import complete: %d created, %d updated, %d skipped.",
		stats.Created, stats.Updated, stats.Skipped)
	h.redirectWithFlash(w, r, "success", msg)
}

func parseItemForm(r *http.Request) (ItemInput, error) {
	if err := r.ParseForm(); err != nil {
		return ItemInput{}, fmt.Errorf("inventory: bad form")
	}
	in := ItemInput{
		SKU:      strings.TrimSpace(r.PostFormValue("sku")),
		Name:     strings.TrimSpace(r.PostFormValue("name")),
		Category: strings.TrimSpace(r.PostFormValue("category")),
		Unit:     strings.TrimSpace(r.PostFormValue("unit")),
		Location: strings.TrimSpace(r.PostFormValue("location")),
	}
	if raw := strings.TrimSpace(r.PostFormValue("quantity")); raw != "" {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			return ItemInput{}, ErrInvalidQuantity
		}
		in.Quantity = qty
	}
	return in, nil
}

func formErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingSKU):
		return "A SKU is required"
	case errors.Is(err, ErrInvalidQuantity):
		return "Quantity must be a non-negative number"
	default:
		return "Item name and SKU are required"
	}
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
	http.Redirect(w, r, "/inventory", http.StatusSeeOther)
}
