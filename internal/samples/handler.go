package samples

import (
	"context"
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

// StaffLister provides assignee options for the sample form.
type StaffLister interface {
	ListOptions(ctx context.Context) ([]shared.Option, error)
}

// Handler manages sample pages. Listing and editing are mounted behind
// the sampling gate, diagnosis routes behind the diagnosis gate.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	staff       StaffLister
	departments StaffLister
	auditor     *audit.Service
	templates   *view.Engine
	csrf        *shared.CSRFManager
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, staff, departments StaffLister, auditor *audit.Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		staff:       staff,
		departments: departments,
		auditor:     auditor,
		templates:   templates,
		csrf:        csrf,
	}
}

// MountRoutes registers sample routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listSamples)
	r.Get("/new", h.showCreateForm)
	r.Post("/", h.createSample)
	r.Get("/{id}", h.showSample)
	r.Get("/{id}/edit", h.showEditForm)
	r.Post("/{id}", h.updateSample)
	r.Post("/{id}/delete", h.deleteSample)
}

// MountDiagnosisRoutes registers diagnosis routes.
func (h *Handler) MountDiagnosisRoutes(r chi.Router) {
	r.Post("/{id}/diagnoses", h.addDiagnosis)
	r.Post("/{id}/diagnoses/{diagID}/delete", h.deleteDiagnosis)
}

func (h *Handler) listSamples(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	search := strings.TrimSpace(r.URL.Query().Get("q"))
	result, err := h.service.List(r.Context(), search, page)
	if err != nil {
		h.logger.Error("list samples failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/samples/list.html", "Samples", map[string]any{
		"Samples":    result.Samples,
		"Search":     search,
		"Pagination": result.Pagination,
	})
}

func (h *Handler) showSample(w http.ResponseWriter, r *http.Request) {
	sample, ok := h.load(w, r)
	if !ok {
		return
	}
	diagnoses, err := h.service.Diagnoses(r.Context(), sample.ID)
	if err != nil {
		h.logger.Error("list diagnoses failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/samples/detail.html", sample.UID, map[string]any{
		"Sample":    sample,
		"Diagnoses": diagnoses,
	})
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.formOptions(w, r)
	if !ok {
		return
	}
	applicantID, _ := strconv.ParseInt(r.URL.Query().Get("applicant"), 10, 64)
	h.render(w, r, "pages/samples/form.html", "New Sample", map[string]any{
		"Form":        Input{ApplicantID: applicantID, Status: DefaultStatus},
		"Statuses":    Statuses,
		"Staff":       opts.Staff,
		"Departments": opts.Departments,
	})
}

func (h *Handler) createSample(w http.ResponseWriter, r *http.Request) {
	in, err := parseSampleForm(r)
	if err != nil {
		h.redirectWithFlash(w, r, "/samples/new", "error", "An applicant is required")
		return
	}
	sample, err := h.service.Submit(r.Context(), in)
	if err != nil {
		h.logger.Error("submit sample failed", slog.Any("error", err))
		h.redirectWithFlash(w, r, "/samples/new", "error", "An applicant is required")
		return
	}
	h.record(r, fmt.Sprintf("Registered sample %s", sample.UID))
	h.redirectWithFlash(w, r, fmt.Sprintf("/samples/%d", sample.ID), "success", "Sample registered: "+sample.UID)
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	sample, ok := h.load(w, r)
	if !ok {
		return
	}
	opts, ok := h.formOptions(w, r)
	if !ok {
		return
	}
	form := Input{
		ApplicantID:     sample.ApplicantID,
		AssignedStaffID: sample.AssignedStaffID,
		DepartmentID:    sample.DepartmentID,
		Name:            sample.Name,
		Type:            sample.Type,
		CollectionDate:  sample.CollectionDate,
		StorageLocation: sample.StorageLocation,
		DisposeBefore:   sample.DisposeBefore,
		Status:          sample.Status,
		Remarks:         sample.Remarks,
	}
	h.render(w, r, "pages/samples/form.html", "Edit Sample", map[string]any{
		"Sample":      sample,
		"Form":        form,
		"Statuses":    Statuses,
		"Staff":       opts.Staff,
		"Departments": opts.Departments,
	})
}

func (h *Handler) updateSample(w http.ResponseWriter, r *http.Request) {
	sample, ok := h.load(w, r)
	if !ok {
		return
	}
	in, err := parseSampleForm(r)
	if err != nil {
		h.redirectWithFlash(w, r, fmt.Sprintf("/samples/%d/edit", sample.ID), "error", "Invalid form submission")
		return
	}
	in.ApplicantID = sample.ApplicantID
	if err := h.service.Update(r.Context(), sample.ID, in); err != nil {
		h.logger.Error("update sample failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.record(r, fmt.Sprintf("Updated sample %s", sample.UID))
	h.redirectWithFlash(w, r, fmt.Sprintf("/samples/%d", sample.ID), "success", "Sample updated")
}

func (h *Handler) deleteSample(w http.ResponseWriter, r *http.Request) {
	sample, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), sample.ID); err != nil {
		h.logger.Error("delete sample failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.record(r, fmt.Sprintf("Deleted sample %s", sample.UID))
	h.redirectWithFlash(w, r, "/samples", "success", "Sample deleted")
}

func (h *Handler) addDiagnosis(w http.ResponseWriter, r *http.Request) {
	sample, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := DiagnosisInput{
		Name:        strings.TrimSpace(r.PostFormValue("name")),
		Title:       strings.TrimSpace(r.PostFormValue("title")),
		Description: r.PostFormValue("description"),
		Result:      r.PostFormValue("result"),
	}
	if _, err := h.service.AddDiagnosis(r.Context(), sample.ID, in); err != nil {
		h.logger.Error("add diagnosis failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.record(r, fmt.Sprintf("Added diagnosis to sample %s", sample.UID))
	h.redirectWithFlash(w, r, fmt.Sprintf("/samples/%d", sample.ID), "success", "Diagnosis recorded")
}

func (h *Handler) deleteDiagnosis(w http.ResponseWriter, r *http.Request) {
	sample, ok := h.load(w, r)
	if !ok {
		return
	}
	diagID, err := strconv.ParseInt(chi.URLParam(r, "diagID"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := h.service.DeleteDiagnosis(r.Context(), diagID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("delete diagnosis failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.record(r, fmt.Sprintf("Removed diagnosis from sample %s", sample.UID))
	h.redirectWithFlash(w, r, fmt.Sprintf("/samples/%d", sample.ID), "success", "Diagnosis removed")
}

type sampleFormOptions struct {
	Staff       []shared.Option
	Departments []shared.Option
}

func (h *Handler) formOptions(w http.ResponseWriter, r *http.Request) (sampleFormOptions, bool) {
	staff, err := h.staff.ListOptions(r.Context())
	if err != nil {
		h.logger.Error("list staff failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return sampleFormOptions{}, false
	}
	depts, err := h.departments.ListOptions(r.Context())
	if err != nil {
		h.logger.Error("list departments failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return sampleFormOptions{}, false
	}
	return sampleFormOptions{Staff: staff, Departments: depts}, true
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (Sample, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return Sample{}, false
	}
	sample, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return Sample{}, false
		}
		h.logger.Error("load sample failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return Sample{}, false
	}
	return sample, true
}

func parseSampleForm(r *http.Request) (Input, error) {
	if err := r.ParseForm(); err != nil {
		return Input{}, err
	}
	applicantID, _ := strconv.ParseInt(r.PostFormValue("applicant_id"), 10, 64)
	in := Input{
		ApplicantID:     applicantID,
		AssignedStaffID: parseOptionalID(r.PostFormValue("assigned_staff_id")),
		DepartmentID:    parseOptionalID(r.PostFormValue("department_id")),
		Name:            strings.TrimSpace(r.PostFormValue("sample_name")),
		Type:            strings.TrimSpace(r.PostFormValue("sample_type")),
		StorageLocation: strings.TrimSpace(r.PostFormValue("storage_location")),
		Status:          strings.TrimSpace(r.PostFormValue("current_status")),
		Remarks:         r.PostFormValue("remarks"),
	}
	if raw := strings.TrimSpace(r.PostFormValue("collection_date")); raw != "" {
		if t, err := time.Parse("2006-01-02T15:04", raw); err == nil {
			in.CollectionDate = &t
		}
	}
	if raw := strings.TrimSpace(r.PostFormValue("dispose_before")); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			in.DisposeBefore = &t
		}
	}
	return in, nil
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
