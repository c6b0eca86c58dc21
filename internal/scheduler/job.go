package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lysje/internal/db"
	"lysje/internal/notifications/core"
	"lysje/internal/types"
)

// JobHistorian records dispatch runs in job_history.
type JobHistorian interface {
	Start(ctx context.Context, task, runID string) (int64, error)
	Finish(ctx context.Context, id int64, run db.JobRun) error
}

// Dispatcher runs one dispatch batch.
type Dispatcher interface {
	Run(ctx context.Context, now time.Time) (RunSummary, error)
}

// ReminderJob wraps a dispatch run with job-history bookkeeping and run
// metrics. Neither of them can fail the run.
type ReminderJob struct {
	dispatcher Dispatcher
	history    JobHistorian // nil disables job history
	metrics    core.ReminderMetrics
	logger     *slog.Logger
}

// NewReminderJob creates a job. history may be nil; a nil metrics recorder
// discards metrics.
func NewReminderJob(dispatcher Dispatcher, history JobHistorian, metrics core.ReminderMetrics, logger *slog.Logger) *ReminderJob {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = core.NoopReminderMetrics{}
	}
	return &ReminderJob{
		dispatcher: dispatcher,
		history:    history,
		metrics:    metrics,
		logger:     logger,
	}
}

// Execute runs the dispatcher at now and returns its summary together with
// the fatal error, if any.
func (j *ReminderJob) Execute(ctx context.Context, now time.Time) (RunSummary, error) {
	runID := types.GetRunID(ctx)
	if runID == "" {
		runID = uuid.New().String()
		ctx = types.WithRunID(ctx, runID)
	}
	logger := j.logger.With("run_id", runID)

	var jobID int64
	if j.history != nil {
		id, err := j.history.Start(ctx, TaskSendReminders, runID)
		if err != nil {
			// Zero skips Finish below.
			logger.ErrorContext(ctx, "failed to start job history", "task", TaskSendReminders, "error", err)
		} else {
			jobID = id
		}
	}

	start := time.Now()
	summary, runErr := j.dispatcher.Run(ctx, now)
	elapsed := time.Since(start)

	if jobID != 0 {
		status := db.JobStatusSuccess
		if runErr != nil {
			status = db.JobStatusFailed
		}
		finishErr := j.history.Finish(ctx, jobID, db.JobRun{
			Status:         status,
			UsersProcessed: summary.Users,
			EmailsSent:     summary.Sent,
			EmailsFailed:   summary.Failed,
			Err:            runErr,
		})
		if finishErr != nil {
			logger.ErrorContext(ctx, "failed to finish job history", "job_id", jobID, "error", finishErr)
		}
	}

	j.metrics.RecordRun(ctx, core.RunMetrics{
		Users:   summary.Users,
		Sent:    summary.Sent,
		Failed:  summary.Failed,
		Pending: summary.Pending,
		Skipped: map[string]int{
			core.SkipUnconfigured: summary.SkippedUnconfigured,
			core.SkipWrongTime:    summary.SkippedWrongTime,
			core.SkipInvalid:      summary.SkippedInvalid,
			core.SkipNoOpenItems:  summary.SkippedNoOpenItems,
		},
		Duration: elapsed,
		Fatal:    runErr != nil,
	})

	if runErr != nil {
		logger.ErrorContext(ctx, "reminder job failed", "error", runErr, "duration_ms", elapsed.Milliseconds())
		return summary, runErr
	}
	logger.InfoContext(ctx, "reminder job complete",
		"sent", summary.Sent,
		"failed", summary.Failed,
		"duration_ms", elapsed.Milliseconds(),
	)
	return summary, nil
}
