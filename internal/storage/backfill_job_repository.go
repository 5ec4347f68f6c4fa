package storage

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/contact-ranker/internal/errors"
	"github.com/contact-ranker/internal/models"
	"github.com/contact-ranker/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// BackfillJobRepository handles backfill job persistence
type BackfillJobRepository struct {
	db *PostgresDB
}

// NewBackfillJobRepository creates a new backfill job repository
func NewBackfillJobRepository(db *PostgresDB) *BackfillJobRepository {
	return &BackfillJobRepository{db: db}
}

// Create creates a new backfill job record in pending state. A violation of
// the one-active-job-per-user index comes back as a conflict so callers can
// fall back to the job that won the race.
func (r *BackfillJobRepository) Create(ctx context.Context, job *models.BackfillJob) error {
	query := `
		INSERT INTO backfill_jobs (
			job_id, user_id, status, trigger_reason, retry_count,
			created_at, started_at, completed_at, error_message
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		job.JobID,
		job.UserID,
		job.Status,
		job.TriggerReason,
		job.RetryCount,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
		job.ErrorMessage,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 unique_violation from idx_backfill_jobs_user_active
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.NewConflictError("an active backfill job already exists for this user")
		}
		return apperrors.NewDatabaseError("create backfill job", err)
	}

	return nil
}

// GetByID retrieves a backfill job by ID
func (r *BackfillJobRepository) GetByID(ctx context.Context, jobID string) (*models.BackfillJob, error) {
	query := `
		SELECT job_id, user_id, status, trigger_reason, retry_count,
			   created_at, started_at, completed_at, error_message
		FROM backfill_jobs
		WHERE job_id = $1
	`

	var job models.BackfillJob
	err := r.db.Pool().QueryRow(ctx, query, jobID).Scan(
		&job.JobID,
		&job.UserID,
		&job.Status,
		&job.TriggerReason,
		&job.RetryCount,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.ErrorMessage,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("backfill job", jobID)
		}
		return nil, apperrors.NewDatabaseError("get backfill job", err)
	}

	return &job, nil
}

// GetLatestForUser retrieves the most recently created job for a user,
// or nil when the user has no jobs.
func (r *BackfillJobRepository) GetLatestForUser(ctx context.Context, userID string) (*models.BackfillJob, error) {
	query := `
		SELECT job_id, user_id, status, trigger_reason, retry_count,
			   created_at, started_at, completed_at, error_message
		FROM backfill_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var job models.BackfillJob
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(
		&job.JobID,
		&job.UserID,
		&job.Status,
		&job.TriggerReason,
		&job.RetryCount,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.ErrorMessage,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("get latest backfill job", err)
	}

	return &job, nil
}

// GetActiveForUser retrieves a pending or running job for a user, or nil.
func (r *BackfillJobRepository) GetActiveForUser(ctx context.Context, userID string) (*models.BackfillJob, error) {
	query := `
		SELECT job_id, user_id, status, trigger_reason, retry_count,
			   created_at, started_at, completed_at, error_message
		FROM backfill_jobs
		WHERE user_id = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1
	`

	var job models.BackfillJob
	err := r.db.Pool().QueryRow(ctx, query, userID, types.JobStatusPending, types.JobStatusRunning).Scan(
		&job.JobID,
		&job.UserID,
		&job.Status,
		&job.TriggerReason,
		&job.RetryCount,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.ErrorMessage,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("get active backfill job", err)
	}

	return &job, nil
}

// GetLatestCompletedForUser retrieves the most recently completed job for a
// user, or nil when none has completed.
func (r *BackfillJobRepository) GetLatestCompletedForUser(ctx context.Context, userID string) (*models.BackfillJob, error) {
	query := `
		SELECT job_id, user_id, status, trigger_reason, retry_count,
			   created_at, started_at, completed_at, error_message
		FROM backfill_jobs
		WHERE user_id = $1 AND status = $2
		ORDER BY completed_at DESC
		LIMIT 1
	`

	var job models.BackfillJob
	err := r.db.Pool().QueryRow(ctx, query, userID, types.JobStatusCompleted).Scan(
		&job.JobID,
		&job.UserID,
		&job.Status,
		&job.TriggerReason,
		&job.RetryCount,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.ErrorMessage,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("get latest completed backfill job", err)
	}

	return &job, nil
}

// CountFailedForUser counts failed jobs for a user. The scheduler uses this to
// enforce the retry ceiling.
func (r *BackfillJobRepository) CountFailedForUser(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM backfill_jobs WHERE user_id = $1 AND status = $2`

	var count int
	if err := r.db.Pool().QueryRow(ctx, query, userID, types.JobStatusFailed).Scan(&count); err != nil {
		return 0, apperrors.NewDatabaseError("count failed backfill jobs", err)
	}

	return count, nil
}

// MarkRunning transitions a job from pending to running. Returns false without
// error when the job is no longer pending, so a duplicate queue entry is
// skipped rather than re-executed.
func (r *BackfillJobRepository) MarkRunning(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE backfill_jobs
		SET status = $2, started_at = NOW()
		WHERE job_id = $1 AND status = $3
	`

	result, err := r.db.Pool().Exec(ctx, query, jobID, types.JobStatusRunning, types.JobStatusPending)
	if err != nil {
		return false, apperrors.NewDatabaseError("mark backfill job running", err)
	}

	return result.RowsAffected() == 1, nil
}

// MarkCompleted transitions a job to completed
func (r *BackfillJobRepository) MarkCompleted(ctx context.Context, jobID string) error {
	query := `
		UPDATE backfill_jobs
		SET status = $2, completed_at = NOW(), error_message = NULL
		WHERE job_id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, jobID, types.JobStatusCompleted)
	if err != nil {
		return apperrors.NewDatabaseError("mark backfill job completed", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("backfill job", jobID)
	}

	return nil
}

// MarkFailed transitions a job to failed with a sanitized error message
func (r *BackfillJobRepository) MarkFailed(ctx context.Context, jobID string, errorMessage string) error {
	query := `
		UPDATE backfill_jobs
		SET status = $2, completed_at = NOW(), error_message = $3
		WHERE job_id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, jobID, types.JobStatusFailed, errorMessage)
	if err != nil {
		return apperrors.NewDatabaseError("mark backfill job failed", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("backfill job", jobID)
	}

	return nil
}

// ListByStatus retrieves jobs in a given status, newest first
func (r *BackfillJobRepository) ListByStatus(ctx context.Context, status types.JobStatus, limit int) ([]*models.BackfillJob, error) {
	query := `
		SELECT job_id, user_id, status, trigger_reason, retry_count,
			   created_at, started_at, completed_at, error_message
		FROM backfill_jobs
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, status, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list backfill jobs", err)
	}
	defer rows.Close()

	var jobs []*models.BackfillJob
	for rows.Next() {
		var job models.BackfillJob
		if err := rows.Scan(
			&job.JobID,
			&job.UserID,
			&job.Status,
			&job.TriggerReason,
			&job.RetryCount,
			&job.CreatedAt,
			&job.StartedAt,
			&job.CompletedAt,
			&job.ErrorMessage,
		); err != nil {
			return nil, apperrors.NewDatabaseError("scan backfill job", err)
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate backfill jobs: %w", err)
	}

	return jobs, nil
}
