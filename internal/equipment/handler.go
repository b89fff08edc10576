package equipment

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

// Handler manages the equipment register and usage log pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	auditor   *audit.Service
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, auditor *audit.Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		auditor:   auditor,
		templates: templates,
		csrf:      csrf,
	}
}

// MountRoutes registers equipment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listEquipment)
	r.Post("/", h.createEquipment)
	r.Get("/{id}", h.showEquipment)
	r.Post("/{id}", h.updateEquipment)
	r.Post("/{id}/delete", h.deleteEquipment)
	r.Post("/{id}/start", h.startUsage)
	r.Post("/{id}/end", h.endUsage)
}

func (h *Handler) listEquipment(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list equipment failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/equipment/list.html", "Equipment", map[string]any{
		"Equipment": items,
	})
}

func (h *Handler) showEquipment(w http.ResponseWriter, r *http.Request) {
	eq, ok := h.load(w, r)
	if !ok {
		return
	}
	logs, err := h.service.Logs(r.Context(), eq.ID)
	if err != nil {
		h.logger.Error("list usage logs failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/equipment/detail.html", eq.Name, map[string]any{
		"Equipment": eq,
		"Logs":      logs,
	})
}

func (h *Handler) createEquipment(w http.ResponseWriter, r *http.Request) {
	in, err := parseEquipmentForm(r)
	if err != nil {
		h.redirectWithFlash(w, r, "/equipment", "error", "An ID number and a name are required")
		return
	}
	eq, err := h.service.Register(r.Context(), in)
	if err != nil {
		if errors.Is(err, shared.ErrDuplicateName) {
			h.redirectWithFlash(w, r, "/equipment", "error", "ID number or serial number already registered")
			return
		}
		h.redirectWithFlash(w, r, "/equipment", "error", "An ID number and a name are required")
		return
	}
	h.record(r, fmt.Sprintf("Registered equipment %s", eq.IDNumber))
	h.redirectWithFlash(w, r, "/equipment", "success", "Equipment registered: "+eq.IDNumber)
}

func (h *Handler) updateEquipment(w http.ResponseWriter, r *http.Request) {
	eq, ok := h.load(w, r)
	if !ok {
		return
	}
	in, err := parseEquipmentForm(r)
	if err != nil {
		h.redirectWithFlash(w, r, fmt.Sprintf("/equipment/%d", eq.ID), "error", "An ID number and a name are required")
		return
	}
	if err := h.service.Update(r.Context(), eq.ID, in); err != nil {
		if errors.Is(err, shared.ErrDuplicateName) {
			h.redirectWithFlash(w, r, fmt.Sprintf("/equipment/%d", eq.ID), "error", "ID number or serial number already registered")
			return
		}
		h.logger.Error("update equipment failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.record(r, fmt.Sprintf("Updated equipment %s", in.IDNumber))
	h.redirectWithFlash(w, r, fmt.Sprintf("/equipment/%d", eq.ID), "success", "Equipment updated")
}

func (h *Handler) deleteEquipment(w http.ResponseWriter, r *http.Request) {
	eq, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), eq.ID); err != nil {
		h.logger.Error("delete equipment failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.record(r, fmt.Sprintf("Deleted equipment %s", eq.IDNumber))
	h.redirectWithFlash(w, r, "/equipment", "success", "Equipment deleted")
}

func (h *Handler) startUsage(w http.ResponseWriter, r *http.Request) {
	eq, ok := h.load(w, r)
	if !ok {
		return
	}
	userID, ok := currentUserID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if _, err := h.service.StartUsage(r.Context(), eq.ID, userID, r.PostFormValue("notes")); err != nil {
		if errors.Is(err, ErrInUse) {
			h.redirectWithFlash(w, r, fmt.Sprintf("/equipment/%d", eq.ID), "error", "This equipment is already in use")
			return
		}
		h.logger.Error("start usage failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.record(r, fmt.Sprintf("Started using equipment %s", eq.IDNumber))
	h.redirectWithFlash(w, r, fmt.Sprintf("/equipment/%d", eq.ID), "success", "Usage session started")
}

func (h *Handler) endUsage(w http.ResponseWriter, r *http.Request) {
	eq, ok := h.load(w, r)
	if !ok {
		return
	}
	userID, ok := currentUserID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	if err := h.service.EndUsage(r.Context(), eq.ID, userID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.redirectWithFlash(w, r, fmt.Sprintf("/equipment/%d", eq.ID), "error", "No open usage session found")
			return
		}
		h.logger.Error("end usage failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.record(r, fmt.Sprintf("Stopped using equipment %s", eq.IDNumber))
	h.redirectWithFlash(w, r, fmt.Sprintf("/equipment/%d", eq.ID), "success", "Usage session closed")
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (Equipment, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return Equipment{}, false
	}
	eq, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return Equipment{}, false
		}
		h.logger.Error("load equipment failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return Equipment{}, false
	}
	return eq, true
}

func parseEquipmentForm(r *http.Request) (Input, error) {
	if err := r.ParseForm(); err != nil {
		return Input{}, err
	}
	in := Input{
		IDNumber:     strings.TrimSpace(r.PostFormValue("id_number")),
		SerialNumber: strings.TrimSpace(r.PostFormValue("serial_number")),
		Name:         strings.TrimSpace(r.PostFormValue("name")),
		Location:     strings.TrimSpace(r.PostFormValue("location")),
		MakeModel:    strings.TrimSpace(r.PostFormValue("make_model")),
		MultiUser:    r.PostFormValue("multi_user") == "on",
	}
	if raw := strings.TrimSpace(r.PostFormValue("purchase_date")); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			in.PurchaseDate = &t
		}
	}
	if raw := strings.TrimSpace(r.PostFormValue("last_calibration_date")); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			in.LastCalibrationDate = &t
		}
	}
	return in, nil
}

func currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	return sess.UserID()
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
