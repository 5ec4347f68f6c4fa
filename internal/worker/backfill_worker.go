// Package worker runs the backfill job consumer.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/contact-ranker/internal/config"
	apperrors "github.com/contact-ranker/internal/errors"
	"github.com/contact-ranker/internal/job"
	"github.com/contact-ranker/internal/logging"
	"github.com/contact-ranker/internal/models"
	"github.com/contact-ranker/internal/service"
)

// JobStore is the job persistence surface the worker needs
type JobStore interface {
	GetByID(ctx context.Context, jobID string) (*models.BackfillJob, error)
	MarkRunning(ctx context.Context, jobID string) (bool, error)
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, errorMessage string) error
}

// Backfiller runs the collection stage for one user
type Backfiller interface {
	Run(ctx context.Context, userID string) (*service.BackfillResult, error)
}

// Aggregator recomputes contact statistics for one user
type Aggregator interface {
	Aggregate(ctx context.Context, userID string) (int, error)
}

// BackfillWorker consumes the job queue and drives each job through the
// status lifecycle: pending, running, then completed or failed. Exactly one
// terminal transition happens per execution.
type BackfillWorker struct {
	queue      job.Queue
	jobs       JobStore
	backfill   Backfiller
	aggregator Aggregator
	cfg        *config.BackfillConfig
	logger     *logging.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewBackfillWorker creates a backfill worker
func NewBackfillWorker(
	queue job.Queue,
	jobs JobStore,
	backfill Backfiller,
	aggregator Aggregator,
	cfg *config.BackfillConfig,
	logger *logging.Logger,
) *BackfillWorker {
	return &BackfillWorker{
		queue:      queue,
		jobs:       jobs,
		backfill:   backfill,
		aggregator: aggregator,
		cfg:        cfg,
		logger:     logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start runs the consume loop until the context is cancelled or Stop is
// called. Each blocking pop uses a bounded timeout so shutdown is observed
// promptly.
func (w *BackfillWorker) Start(ctx context.Context) {
	go w.consumeLoop(ctx)
}

// Stop signals the consume loop to exit and waits for the in-flight job to
// finish, up to the context deadline.
func (w *BackfillWorker) Stop(ctx context.Context) error {
	close(w.stopCh)

	select {
	case <-w.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker shutdown timed out: %w", ctx.Err())
	}
}

func (w *BackfillWorker) consumeLoop(ctx context.Context) {
	defer close(w.doneCh)

	w.logger.Info("Backfill worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Backfill worker stopping: context cancelled")
			return
		case <-w.stopCh:
			w.logger.Info("Backfill worker stopping")
			return
		default:
		}

		msg, err := w.queue.Dequeue(ctx, w.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.WithError(err).Error("Queue dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue
		}

		w.processJob(ctx, msg)
	}
}

// processJob drives one job through its lifecycle. A job that is no longer
// pending (duplicate queue entry, crash recovery race) is skipped without a
// status write.
func (w *BackfillWorker) processJob(ctx context.Context, msg *job.Message) {
	log := w.logger.WithFields(map[string]interface{}{
		"job_id":  msg.JobID,
		"user_id": msg.UserID,
	})

	record, err := w.jobs.GetByID(ctx, msg.JobID)
	if err != nil {
		log.WithError(err).Error("Failed to load job record")
		return
	}
	if record.Status.IsTerminal() {
		log.WithField("status", string(record.Status)).Info("Job already terminal, skipping")
		return
	}

	claimed, err := w.jobs.MarkRunning(ctx, msg.JobID)
	if err != nil {
		log.WithError(err).Error("Failed to claim job")
		return
	}
	if !claimed {
		log.Info("Job claimed elsewhere, skipping")
		return
	}

	started := time.Now()
	if err := w.execute(ctx, msg.UserID); err != nil {
		log.WithError(err).Error("Backfill job failed")
		if markErr := w.jobs.MarkFailed(ctx, msg.JobID, sanitizeError(err)); markErr != nil {
			log.WithError(markErr).Error("Failed to mark job failed")
		}
		return
	}

	if err := w.jobs.MarkCompleted(ctx, msg.JobID); err != nil {
		log.WithError(err).Error("Failed to mark job completed")
		return
	}

	log.WithField("duration_ms", time.Since(started).Milliseconds()).Info("Backfill job completed")
}

// execute runs collection then aggregation for one user
func (w *BackfillWorker) execute(ctx context.Context, userID string) error {
	result, err := w.backfill.Run(ctx, userID)
	if err != nil {
		return err
	}

	if len(result.SkippedSources) > 0 {
		w.logger.WithFields(map[string]interface{}{
			"user_id": userID,
			"skipped": len(result.SkippedSources),
		}).Warn("Backfill ran with partial source coverage")
	}

	if _, err := w.aggregator.Aggregate(ctx, userID); err != nil {
		return err
	}

	return nil
}

// sanitizeError reduces an execution error to a category label safe to store
// and expose through the status endpoint. Raw error text can embed upstream
// response fragments and never reaches the job record.
func sanitizeError(err error) string {
	if cerr := apperrors.Categorize(err); cerr != nil {
		return string(cerr.Category)
	}
	return "internal_error"
}
