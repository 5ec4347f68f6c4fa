package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/contact-ranker/internal/config"
	apperrors "github.com/contact-ranker/internal/errors"
	"github.com/contact-ranker/internal/logging"
	"github.com/contact-ranker/internal/models"
	"github.com/contact-ranker/internal/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJobStore is an in-memory JobStore. Create enforces the same
// one-active-job-per-user constraint the backfill_jobs unique index does, so
// racing enqueues lose the insert the way they would against Postgres.
type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.BackfillJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*models.BackfillJob)}
}

func (f *fakeJobStore) Create(ctx context.Context, job *models.BackfillJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.UserID == job.UserID && j.IsActive() {
			return apperrors.NewConflictError("an active backfill job already exists for this user")
		}
	}
	copied := *job
	f.jobs[job.JobID] = &copied
	return nil
}

func (f *fakeJobStore) GetActiveForUser(ctx context.Context, userID string) (*models.BackfillJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.UserID == userID && j.IsActive() {
			return j, nil
		}
	}
	return nil, nil
}

func (f *fakeJobStore) GetLatestCompletedForUser(ctx context.Context, userID string) (*models.BackfillJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.BackfillJob
	for _, j := range f.jobs {
		if j.UserID != userID || j.Status != types.JobStatusCompleted {
			continue
		}
		if latest == nil || j.CompletedAt.After(*latest.CompletedAt) {
			latest = j
		}
	}
	return latest, nil
}

func (f *fakeJobStore) CountFailedForUser(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, j := range f.jobs {
		if j.UserID == userID && j.Status == types.JobStatusFailed {
			count++
		}
	}
	return count, nil
}

func (f *fakeJobStore) MarkFailed(ctx context.Context, jobID string, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return apperrors.NewNotFoundError("backfill job", jobID)
	}
	j.Status = types.JobStatusFailed
	j.ErrorMessage = &errorMessage
	return nil
}

func (f *fakeJobStore) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, j := range f.jobs {
		if j.IsActive() {
			count++
		}
	}
	return count
}

// fakeQueue records enqueued messages and can fail on demand
type fakeQueue struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func (f *fakeQueue) Enqueue(ctx context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return nil, nil
	}
	msg := f.messages[0]
	f.messages = f.messages[1:]
	return &msg, nil
}

func (f *fakeQueue) Length(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.messages)), nil
}

var schedulerNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestScheduler(store *fakeJobStore, queue *fakeQueue) *Scheduler {
	cfg := &config.BackfillConfig{
		Enabled:              true,
		MaxRetries:           3,
		RecentCompletionSkip: 24 * time.Hour,
	}
	s := NewScheduler(store, queue, cfg, logging.NewLogger(logging.LevelError, logging.FormatText))
	s.now = func() time.Time { return schedulerNow }
	return s
}

func TestEnqueueBackfill_CreatesPendingJobAndPushes(t *testing.T) {
	store := newFakeJobStore()
	queue := &fakeQueue{}
	s := newTestScheduler(store, queue)

	result, err := s.EnqueueBackfill(context.Background(), "user-1", types.TriggerOAuthConnect, false)
	require.NoError(t, err)
	assert.True(t, result.Enqueued)
	assert.Equal(t, types.JobStatusPending, result.Job.Status)

	require.Len(t, queue.messages, 1)
	assert.Equal(t, result.Job.JobID, queue.messages[0].JobID)
	assert.Equal(t, "user-1", queue.messages[0].UserID)
}

func TestEnqueueBackfill_DeduplicatesActiveJob(t *testing.T) {
	store := newFakeJobStore()
	queue := &fakeQueue{}
	s := newTestScheduler(store, queue)
	ctx := context.Background()

	first, err := s.EnqueueBackfill(ctx, "user-1", types.TriggerOAuthConnect, false)
	require.NoError(t, err)

	second, err := s.EnqueueBackfill(ctx, "user-1", types.TriggerOAuthConnect, false)
	require.NoError(t, err)
	assert.False(t, second.Enqueued)
	assert.Equal(t, "active_job", second.SkipReason)
	assert.Equal(t, first.Job.JobID, second.Job.JobID)

	// Only the first push landed
	assert.Len(t, queue.messages, 1)
}

func TestEnqueueBackfill_ConcurrentEnqueuesShareOneJob(t *testing.T) {
	store := newFakeJobStore()
	queue := &fakeQueue{}
	s := newTestScheduler(store, queue)
	ctx := context.Background()

	// All goroutines race past the active-job check together; the unique
	// constraint decides the winner and everyone else gets its job back
	const attempts = 8
	results := make([]*EnqueueResult, attempts)
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.EnqueueBackfill(ctx, "user-1", types.TriggerOAuthConnect, false)
		}(i)
	}
	wg.Wait()

	enqueued := 0
	var winnerID string
	for i := 0; i < attempts; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i].Job)
		if results[i].Enqueued {
			enqueued++
			winnerID = results[i].Job.JobID
		}
	}
	require.Equal(t, 1, enqueued)
	for i := 0; i < attempts; i++ {
		assert.Equal(t, winnerID, results[i].Job.JobID)
	}
	assert.Len(t, queue.messages, 1)
	assert.Equal(t, 1, store.activeCount())
}

func TestEnqueueBackfill_ActiveJobWinsEvenWithForce(t *testing.T) {
	store := newFakeJobStore()
	queue := &fakeQueue{}
	s := newTestScheduler(store, queue)
	ctx := context.Background()

	_, err := s.EnqueueBackfill(ctx, "user-1", types.TriggerOAuthConnect, false)
	require.NoError(t, err)

	result, err := s.EnqueueBackfill(ctx, "user-1", types.TriggerOAuthConnect, true)
	require.NoError(t, err)
	assert.False(t, result.Enqueued)
	assert.Equal(t, "active_job", result.SkipReason)
}

func TestEnqueueBackfill_SkipsRecentCompletion(t *testing.T) {
	store := newFakeJobStore()
	queue := &fakeQueue{}
	s := newTestScheduler(store, queue)

	completedAt := schedulerNow.Add(-2 * time.Hour)
	store.jobs["done"] = &models.BackfillJob{
		JobID:       "done",
		UserID:      "user-1",
		Status:      types.JobStatusCompleted,
		CompletedAt: &completedAt,
	}

	result, err := s.EnqueueBackfill(context.Background(), "user-1", types.TriggerScheduled, false)
	require.NoError(t, err)
	assert.False(t, result.Enqueued)
	assert.Equal(t, "recent_completion", result.SkipReason)
	assert.Empty(t, queue.messages)
}

func TestEnqueueBackfill_ForceBypassesRecentCompletion(t *testing.T) {
	store := newFakeJobStore()
	queue := &fakeQueue{}
	s := newTestScheduler(store, queue)

	completedAt := schedulerNow.Add(-2 * time.Hour)
	store.jobs["done"] = &models.BackfillJob{
		JobID:       "done",
		UserID:      "user-1",
		Status:      types.JobStatusCompleted,
		CompletedAt: &completedAt,
	}

	result, err := s.EnqueueBackfill(context.Background(), "user-1", types.TriggerScheduled, true)
	require.NoError(t, err)
	assert.True(t, result.Enqueued)
	assert.Len(t, queue.messages, 1)
}

func TestEnqueueBackfill_StaleCompletionDoesNotSkip(t *testing.T) {
	store := newFakeJobStore()
	queue := &fakeQueue{}
	s := newTestScheduler(store, queue)

	completedAt := schedulerNow.Add(-48 * time.Hour)
	store.jobs["done"] = &models.BackfillJob{
		JobID:       "done",
		UserID:      "user-1",
		Status:      types.JobStatusCompleted,
		CompletedAt: &completedAt,
	}

	result, err := s.EnqueueBackfill(context.Background(), "user-1", types.TriggerScheduled, false)
	require.NoError(t, err)
	assert.True(t, result.Enqueued)
}

func TestEnqueueBackfill_RetryCeiling(t *testing.T) {
	store := newFakeJobStore()
	queue := &fakeQueue{}
	s := newTestScheduler(store, queue)

	for i, id := range []string{"f1", "f2", "f3"} {
		createdAt := schedulerNow.Add(time.Duration(-3+i) * time.Hour)
		store.jobs[id] = &models.BackfillJob{
			JobID:     id,
			UserID:    "user-1",
			Status:    types.JobStatusFailed,
			CreatedAt: createdAt,
		}
	}

	_, err := s.EnqueueBackfill(context.Background(), "user-1", types.TriggerManualRetry, false)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Empty(t, queue.messages)
}

func TestEnqueueBackfill_RetryCarriesAttemptCount(t *testing.T) {
	store := newFakeJobStore()
	queue := &fakeQueue{}
	s := newTestScheduler(store, queue)

	store.jobs["f1"] = &models.BackfillJob{
		JobID:  "f1",
		UserID: "user-1",
		Status: types.JobStatusFailed,
	}

	result, err := s.EnqueueBackfill(context.Background(), "user-1", types.TriggerManualRetry, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Job.RetryCount)
}

func TestEnqueueBackfill_QueuePushFailureMarksJobFailed(t *testing.T) {
	store := newFakeJobStore()
	queue := &fakeQueue{err: apperrors.NewQueueError("enqueue job", assert.AnError)}
	s := newTestScheduler(store, queue)

	_, err := s.EnqueueBackfill(context.Background(), "user-1", types.TriggerOAuthConnect, false)
	require.Error(t, err)

	// The orphaned row was flipped to failed, not left pending
	require.Len(t, store.jobs, 1)
	for _, j := range store.jobs {
		assert.Equal(t, types.JobStatusFailed, j.Status)
		require.NotNil(t, j.ErrorMessage)
	}
}

func TestEnqueueBackfill_SingleActiveJobProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Any set of concurrent enqueue attempts leaves at most one job in
	// pending or running for the user, with no attempt seeing an error
	properties.Property("at most one active job per user", prop.ForAll(
		func(forces []bool) bool {
			store := newFakeJobStore()
			queue := &fakeQueue{}
			s := newTestScheduler(store, queue)
			ctx := context.Background()

			errs := make([]error, len(forces))
			var wg sync.WaitGroup
			for i, force := range forces {
				wg.Add(1)
				go func(i int, force bool) {
					defer wg.Done()
					_, errs[i] = s.EnqueueBackfill(ctx, "user-1", types.TriggerOAuthConnect, force)
				}(i, force)
			}
			wg.Wait()

			for _, err := range errs {
				if err != nil {
					return false
				}
			}
			return store.activeCount() <= 1
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestEnqueueBackfill_RejectedWhenDisabled(t *testing.T) {
	store := newFakeJobStore()
	queue := &fakeQueue{}
	s := newTestScheduler(store, queue)
	s.cfg.Enabled = false

	_, err := s.EnqueueBackfill(context.Background(), "user-1", types.TriggerOAuthConnect, false)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Empty(t, store.jobs)
}

func TestEnqueueBackfill_RequiresUserID(t *testing.T) {
	s := newTestScheduler(newFakeJobStore(), &fakeQueue{})

	_, err := s.EnqueueBackfill(context.Background(), "", types.TriggerOAuthConnect, false)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}
