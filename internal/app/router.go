package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/samplyze/samplyze/internal/applicants"
	"github.com/samplyze/samplyze/internal/audit"
	"github.com/samplyze/samplyze/internal/auth"
	"github.com/samplyze/samplyze/internal/backup"
	"github.com/samplyze/samplyze/internal/departments"
	"github.com/samplyze/samplyze/internal/equipment"
	"github.com/samplyze/samplyze/internal/inventory"
	"github.com/samplyze/samplyze/internal/labarchive"
	"github.com/samplyze/samplyze/internal/labsettings"
	"github.com/samplyze/samplyze/internal/migrate"
	"github.com/samplyze/samplyze/internal/observability"
	"github.com/samplyze/samplyze/internal/platform/httpx"
	"github.com/samplyze/samplyze/internal/rbac"
	"github.com/samplyze/samplyze/internal/roles"
	"github.com/samplyze/samplyze/internal/samples"
	"github.com/samplyze/samplyze/internal/shared"
	"github.com/samplyze/samplyze/internal/users"
	"github.com/samplyze/samplyze/internal/view"
	"github.com/samplyze/samplyze/jobs"
	"github.com/samplyze/samplyze/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Gate           rbac.Gate

	AuthHandler        *auth.Handler
	RolesHandler       *roles.Handler
	UsersHandler       *users.Handler
	DepartmentsHandler *departments.Handler
	SettingsHandler    *labsettings.Handler
	SettingsService    *labsettings.Service
	BackupHandler      *backup.Handler
	MigrateHandler     *migrate.Handler
	ArchiveHandler     *labarchive.Handler
	AuditHandler       *audit.Handler
	ApplicantsHandler  *applicants.Handler
	SamplesHandler     *samples.Handler
	InventoryHandler   *inventory.Handler
	EquipmentHandler   *equipment.Handler
	JobHandler         *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router for the lab application. Every
// page except login and health sits behind RequireAuth; the admin
// surface additionally sits behind RequireAdmin, and each service area
// behind its permission gate.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(params.Gate.RequireAuth)

		r.Get("/", params.homePage)

		r.Route("/applicants", func(r chi.Router) {
			r.Use(params.Gate.RequirePermission(rbac.PermApplicants))
			params.ApplicantsHandler.MountRoutes(r)
		})
		r.Route("/samples", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(params.Gate.RequirePermission(rbac.PermSampling))
				params.SamplesHandler.MountRoutes(r)
			})
			r.Group(func(r chi.Router) {
				r.Use(params.Gate.RequirePermission(rbac.PermDiagnosis))
				params.SamplesHandler.MountDiagnosisRoutes(r)
			})
		})
		r.Route("/inventory", func(r chi.Router) {
			r.Use(params.Gate.RequirePermission(rbac.PermInventory))
			params.InventoryHandler.MountRoutes(r)
		})
		r.Route("/equipment", func(r chi.Router) {
			r.Use(params.Gate.RequirePermission(rbac.PermEquipment))
			params.EquipmentHandler.MountRoutes(r)
		})
		r.Route("/audit", func(r chi.Router) {
			r.Use(params.Gate.RequirePermission(rbac.PermAuditLog))
			params.AuditHandler.MountRoutes(r)
		})
		r.Route("/archives/view", func(r chi.Router) {
			r.Use(params.Gate.RequirePermission(rbac.PermArchives))
			params.ArchiveHandler.MountViewerRoutes(r)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(params.Gate.RequireAdmin)
			r.Route("/roles", params.RolesHandler.MountRoutes)
			r.Route("/staff", params.UsersHandler.MountRoutes)
			r.Route("/departments", params.DepartmentsHandler.MountRoutes)
			r.Route("/settings", params.SettingsHandler.MountRoutes)
			r.Route("/backups", params.BackupHandler.MountRoutes)
			r.Route("/migrate", params.MigrateHandler.MountRoutes)
			r.Route("/archives", params.ArchiveHandler.MountAdminRoutes)
		})

		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

func (params RouterParams) homePage(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	settings, err := params.SettingsService.Get(r.Context())
	if err != nil {
		params.Logger.Error("load lab settings", slog.Any("error", err))
	}
	data := view.TemplateData{
		Title:       settings.LabName,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data: map[string]any{
			"Settings": settings,
			"AppEnv":   params.Config.AppEnv,
		},
	}
	if err := params.Templates.Render(w, "pages/home.html", data); err != nil {
		params.Logger.Error("render home", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// staticCacheHandler wraps a file server with Cache-Control headers so
// browsers keep assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
