package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/samplyze/samplyze/internal/backup"
	jobmetrics "github.com/samplyze/samplyze/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeBackup is the task type for building a backup archive.
	TaskTypeBackup = "backup:create"
)

// BackupPayload describes a scheduled backup run.
type BackupPayload struct {
	Reason string `json:"reason"`
}

// NewBackupTask constructs an Asynq task for a backup run.
func NewBackupTask(payload BackupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeBackup, data), nil
}

// BackupJob builds backup archives on a schedule. Concurrent runs
// collapse into one archive inside the backup service.
type BackupJob struct {
	Service *backup.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewBackupJob initialises the backup job handler.
func NewBackupJob(service *backup.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *BackupJob {
	return &BackupJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes one backup run.
func (j *BackupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload BackupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track("backup")
	path, err := j.Service.Create(ctx)
	if err != nil {
		j.Logger.Error("scheduled backup failed",
			slog.String("reason", payload.Reason), slog.Any("error", err))
		return tracker.End(err)
	}
	j.Logger.Info("scheduled backup complete",
		slog.String("reason", payload.Reason), slog.String("path", path))
	return tracker.End(nil)
}
