package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/samplyze/samplyze/internal/app"
	"github.com/samplyze/samplyze/internal/backup"
	jobmetrics "github.com/samplyze/samplyze/internal/jobs"
	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/shared"
	"github.com/samplyze/samplyze/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	backupService := backup.NewService(logger, handle, backup.Paths{
		DBPath:    cfg.SQLitePath,
		UploadDir: cfg.UploadDir,
		SharedDir: cfg.SharedDir,
		BackupDir: cfg.BackupDir,
	}, clock)

	metrics := jobmetrics.NewMetrics(nil)
	backupJob := jobs.NewBackupJob(backupService, logger, metrics)

	backupTask, err := jobs.NewBackupTask(jobs.BackupPayload{Reason: "scheduled"})
	if err != nil {
		logger.Error("build backup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeBackup, Handler: backupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.BackupCron, Task: backupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
		Location: clock.Location(),
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
