package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/samplyze/samplyze/internal/app"
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
	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/rbac"
	"github.com/samplyze/samplyze/internal/roles"
	"github.com/samplyze/samplyze/internal/samples"
	"github.com/samplyze/samplyze/internal/shared"
	"github.com/samplyze/samplyze/internal/users"
	"github.com/samplyze/samplyze/internal/view"
	"github.com/samplyze/samplyze/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	clock, err := shared.NewClock(cfg.Timezone)
	if err != nil {
		logger.Error("load timezone", slog.Any("error", err))
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		logger.Error("create instance dir", slog.Any("error", err))
		os.Exit(1)
	}
	handle, err := db.Open(ctx, cfg.SQLitePath)
	if err != nil {
		logger.Error("open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := handle.Close(); err != nil {
			logger.Warn("database close", slog.Any("error", err))
		}
	}()
	if err := db.EnsureSchema(ctx, handle); err != nil {
		logger.Error("ensure schema", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "samplyze_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	// Bootstrap order matters: the permission registry must exist before
	// roles are seeded, and roles before the bootstrap admin.
	rbacService := rbac.NewService(rbac.NewRepository(handle))
	if err := rbacService.SeedRegistry(ctx); err != nil {
		logger.Error("seed permission registry", slog.Any("error", err))
		os.Exit(1)
	}
	if err := rbacService.SeedRoles(ctx, rbac.DefaultSeeds()); err != nil {
		logger.Error("seed roles", slog.Any("error", err))
		os.Exit(1)
	}

	authService := auth.NewService(auth.NewRepository(handle))
	if err := authService.EnsureBootstrapAdmin(ctx, rbacService, cfg.BootstrapAdminPassword); err != nil {
		logger.Error("ensure bootstrap admin", slog.Any("error", err))
		os.Exit(1)
	}

	settingsService := labsettings.NewService(handle)
	if err := settingsService.EnsureDefaults(ctx); err != nil {
		logger.Error("seed lab settings", slog.Any("error", err))
		os.Exit(1)
	}

	auditService := audit.NewService(audit.NewRepository(handle), clock)

	usersService := users.NewService(users.NewRepository(handle), authService)
	departmentsService := departments.NewService(departments.NewRepository(handle))
	applicantsService := applicants.NewService(applicants.NewRepository(handle), clock)
	samplesService := samples.NewService(samples.NewRepository(handle), clock)
	inventoryService := inventory.NewService(inventory.NewRepository(handle), clock)
	equipmentService := equipment.NewService(equipment.NewRepository(handle), clock)

	backupService := backup.NewService(logger, handle, backup.Paths{
		DBPath:    cfg.SQLitePath,
		UploadDir: cfg.UploadDir,
		SharedDir: cfg.SharedDir,
		BackupDir: cfg.BackupDir,
	}, clock)
	archiveService := labarchive.NewService(logger, handle, cfg.ArchiveDir, clock)
	migrator := migrate.NewMigrator(logger, handle)

	gate := rbac.Gate{Service: rbacService, Templates: templates, Logger: logger}
	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Gate:           gate,

		AuthHandler:        auth.NewHandler(logger, authService, templates, sessionManager, csrfManager),
		RolesHandler:       roles.NewHandler(logger, rbacService, auditService, templates, csrfManager),
		UsersHandler:       users.NewHandler(logger, usersService, rbacService, departmentsService, auditService, templates, csrfManager),
		DepartmentsHandler: departments.NewHandler(logger, departmentsService, auditService, templates, csrfManager),
		SettingsHandler:    labsettings.NewHandler(logger, settingsService, auditService, templates, csrfManager),
		SettingsService:    settingsService,
		BackupHandler:      backup.NewHandler(logger, backupService, auditService, templates, sessionManager, csrfManager),
		MigrateHandler:     migrate.NewHandler(logger, migrator, auditService, templates, csrfManager),
		ArchiveHandler:     labarchive.NewHandler(logger, archiveService, auditService, templates, csrfManager),
		AuditHandler:       audit.NewHandler(logger, auditService, templates, csrfManager),
		ApplicantsHandler:  applicants.NewHandler(logger, applicantsService, auditService, templates, csrfManager),
		SamplesHandler:     samples.NewHandler(logger, samplesService, usersService, departmentsService, auditService, templates, csrfManager),
		InventoryHandler:   inventory.NewHandler(logger, inventoryService, auditService, templates, csrfManager),
		EquipmentHandler:   equipment.NewHandler(logger, equipmentService, auditService, templates, csrfManager),
		JobHandler:         jobHandler,

		Metrics: metrics,
	})

	for _, dir := range []string{cfg.UploadDir, cfg.SharedDir, cfg.BackupDir, cfg.ArchiveDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Warn("create data dir", slog.String("dir", dir), slog.Any("error", err))
		}
	}
	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
