package db

import (
	"context"

	"lysje/internal/types"
)

// Job history statuses.
const (
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusFailed  = "failed"
)

// JobRun is the outcome recorded when a job_history row is closed.
type JobRun struct {
	Status         string
	UsersProcessed int
	EmailsSent     int
	EmailsFailed   int
	Err            error
}

// JobHistoryRepository records each reminder run in the job_history table
// for operational visibility.
type JobHistoryRepository struct {
	db DBTX
}

// NewJobHistoryRepository creates a new JobHistoryRepository.
func NewJobHistoryRepository(db DBTX) *JobHistoryRepository {
	return &JobHistoryRepository{db: db}
}

// Start inserts a running row for task and returns its BIGSERIAL ID.
func (r *JobHistoryRepository) Start(ctx context.Context, task, runID string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_history (task, run_id, started_at, status)
		 VALUES ($1, $2, NOW(), $3)
		 RETURNING id`,
		task,
		runID,
		JobStatusRunning,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start job history entry", err)
	}
	return id, nil
}

// Finish closes the row with the run outcome. A non-nil run.Err is stored in
// the error column.
func (r *JobHistoryRepository) Finish(ctx context.Context, id int64, run JobRun) error {
	var errMsg *string
	if run.Err != nil {
		s := run.Err.Error()
		errMsg = &s
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE job_history
		 SET finished_at = NOW(), status = $2, users_processed = $3,
		     emails_sent = $4, emails_failed = $5, error = $6
		 WHERE id = $1`,
		id,
		run.Status,
		run.UsersProcessed,
		run.EmailsSent,
		run.EmailsFailed,
		errMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job history entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "job history entry not found", nil)
	}
	return nil
}
