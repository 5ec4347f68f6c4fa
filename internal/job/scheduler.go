package job

import (
	"context"
	"time"

	"github.com/contact-ranker/internal/config"
	apperrors "github.com/contact-ranker/internal/errors"
	"github.com/contact-ranker/internal/logging"
	"github.com/contact-ranker/internal/models"
	"github.com/contact-ranker/internal/types"
	"github.com/google/uuid"
)

// JobStore is the job persistence surface the scheduler needs
type JobStore interface {
	Create(ctx context.Context, job *models.BackfillJob) error
	GetActiveForUser(ctx context.Context, userID string) (*models.BackfillJob, error)
	GetLatestCompletedForUser(ctx context.Context, userID string) (*models.BackfillJob, error)
	CountFailedForUser(ctx context.Context, userID string) (int, error)
	MarkFailed(ctx context.Context, jobID string, errorMessage string) error
}

// EnqueueResult reports the outcome of an enqueue request
type EnqueueResult struct {
	Job *models.BackfillJob
	// Enqueued is false when deduplication returned an existing job instead
	// of creating a new one
	Enqueued bool
	// SkipReason explains a dedup skip: "active_job" or "recent_completion"
	SkipReason string
}

// Scheduler creates backfill jobs and hands them to the queue, deduplicating
// so each user has at most one active job.
type Scheduler struct {
	jobs   JobStore
	queue  Queue
	cfg    *config.BackfillConfig
	logger *logging.Logger
	now    func() time.Time
}

// NewScheduler creates a backfill job scheduler
func NewScheduler(jobs JobStore, queue Queue, cfg *config.BackfillConfig, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		jobs:   jobs,
		queue:  queue,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// EnqueueBackfill schedules a backfill job for a user. An existing pending or
// running job always wins over a new request; the single-active-job invariant
// is also backed by a partial unique index on the jobs table. A completion
// within the recent-skip window suppresses new triggers unless force is set.
//
// The job row is committed before the queue push. If the push fails the job is
// marked failed immediately, so no row is left pending with no queue entry
// behind it.
func (s *Scheduler) EnqueueBackfill(ctx context.Context, userID string, reason types.TriggerReason, force bool) (*EnqueueResult, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("user id is required")
	}
	if !s.cfg.Enabled {
		return nil, apperrors.NewConflictError("backfill is disabled")
	}

	log := s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"reason":  string(reason),
	})

	active, err := s.jobs.GetActiveForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		log.WithField("job_id", active.JobID).Info("Backfill already in flight, skipping enqueue")
		return &EnqueueResult{Job: active, Enqueued: false, SkipReason: "active_job"}, nil
	}

	if !force {
		completed, err := s.jobs.GetLatestCompletedForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if completed != nil && completed.CompletedAt != nil &&
			s.now().Sub(*completed.CompletedAt) < s.cfg.RecentCompletionSkip {
			log.WithField("job_id", completed.JobID).Info("Backfill completed recently, skipping enqueue")
			return &EnqueueResult{Job: completed, Enqueued: false, SkipReason: "recent_completion"}, nil
		}
	}

	retryCount := 0
	if reason == types.TriggerManualRetry {
		failed, err := s.jobs.CountFailedForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if failed >= s.cfg.MaxRetries {
			return nil, apperrors.NewConflictError("backfill retry limit reached")
		}
		retryCount = failed
	}

	job := &models.BackfillJob{
		JobID:         uuid.NewString(),
		UserID:        userID,
		Status:        types.JobStatusPending,
		TriggerReason: reason,
		RetryCount:    retryCount,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		if apperrors.IsConflict(err) {
			// Lost the insert race to a concurrent enqueue for the same
			// user; return the job that won instead of surfacing an error
			existing, getErr := s.jobs.GetActiveForUser(ctx, userID)
			if getErr != nil {
				return nil, getErr
			}
			if existing != nil {
				log.WithField("job_id", existing.JobID).Info("Backfill already in flight, skipping enqueue")
				return &EnqueueResult{Job: existing, Enqueued: false, SkipReason: "active_job"}, nil
			}
		}
		return nil, err
	}

	if err := s.queue.Enqueue(ctx, Message{JobID: job.JobID, UserID: job.UserID}); err != nil {
		log.WithError(err).WithField("job_id", job.JobID).Error("Queue push failed, marking job failed")
		if markErr := s.jobs.MarkFailed(ctx, job.JobID, "queue push failed"); markErr != nil {
			log.WithError(markErr).WithField("job_id", job.JobID).Error("Failed to mark job failed after queue error")
		}
		return nil, err
	}

	log.WithField("job_id", job.JobID).Info("Backfill job enqueued")
	return &EnqueueResult{Job: job, Enqueued: true}, nil
}
