package worker

import (
	"context"
	"testing"
	"time"

	"github.com/contact-ranker/internal/config"
	apperrors "github.com/contact-ranker/internal/errors"
	"github.com/contact-ranker/internal/job"
	"github.com/contact-ranker/internal/logging"
	"github.com/contact-ranker/internal/models"
	"github.com/contact-ranker/internal/service"
	"github.com/contact-ranker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJobStore is an in-memory JobStore with CAS semantics
type fakeJobStore struct {
	jobs map[string]*models.BackfillJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*models.BackfillJob)}
}

func (f *fakeJobStore) addPending(jobID, userID string) {
	f.jobs[jobID] = &models.BackfillJob{
		JobID:     jobID,
		UserID:    userID,
		Status:    types.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func (f *fakeJobStore) GetByID(ctx context.Context, jobID string) (*models.BackfillJob, error) {
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, apperrors.NewNotFoundError("backfill job", jobID)
	}
	return j, nil
}

func (f *fakeJobStore) MarkRunning(ctx context.Context, jobID string) (bool, error) {
	j, ok := f.jobs[jobID]
	if !ok || j.Status != types.JobStatusPending {
		return false, nil
	}
	j.Status = types.JobStatusRunning
	now := time.Now().UTC()
	j.StartedAt = &now
	return true, nil
}

func (f *fakeJobStore) MarkCompleted(ctx context.Context, jobID string) error {
	j, ok := f.jobs[jobID]
	if !ok {
		return apperrors.NewNotFoundError("backfill job", jobID)
	}
	j.Status = types.JobStatusCompleted
	now := time.Now().UTC()
	j.CompletedAt = &now
	return nil
}

func (f *fakeJobStore) MarkFailed(ctx context.Context, jobID string, errorMessage string) error {
	j, ok := f.jobs[jobID]
	if !ok {
		return apperrors.NewNotFoundError("backfill job", jobID)
	}
	j.Status = types.JobStatusFailed
	j.ErrorMessage = &errorMessage
	now := time.Now().UTC()
	j.CompletedAt = &now
	return nil
}

// fakeBackfiller tracks runs and can fail on demand
type fakeBackfiller struct {
	result *service.BackfillResult
	err    error
	runs   int
}

func (f *fakeBackfiller) Run(ctx context.Context, userID string) (*service.BackfillResult, error) {
	f.runs++
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &service.BackfillResult{}, nil
}

type fakeAggregator struct {
	err  error
	runs int
}

func (f *fakeAggregator) Aggregate(ctx context.Context, userID string) (int, error) {
	f.runs++
	if f.err != nil {
		return 0, f.err
	}
	return 5, nil
}

func newTestWorker(store *fakeJobStore, backfill *fakeBackfiller, agg *fakeAggregator) *BackfillWorker {
	cfg := &config.BackfillConfig{PollTimeout: 10 * time.Millisecond}
	return NewBackfillWorker(nil, store, backfill, agg, cfg, logging.NewLogger(logging.LevelError, logging.FormatText))
}

func TestProcessJob_SuccessCompletesJob(t *testing.T) {
	store := newFakeJobStore()
	store.addPending("job-1", "user-1")
	backfill := &fakeBackfiller{}
	agg := &fakeAggregator{}
	w := newTestWorker(store, backfill, agg)

	w.processJob(context.Background(), &job.Message{JobID: "job-1", UserID: "user-1"})

	j := store.jobs["job-1"]
	assert.Equal(t, types.JobStatusCompleted, j.Status)
	assert.NotNil(t, j.StartedAt)
	assert.NotNil(t, j.CompletedAt)
	assert.Equal(t, 1, backfill.runs)
	assert.Equal(t, 1, agg.runs)
}

func TestProcessJob_BackfillFailureMarksFailed(t *testing.T) {
	store := newFakeJobStore()
	store.addPending("job-1", "user-1")
	backfill := &fakeBackfiller{err: apperrors.NewSourceError(types.SourceEmail, assert.AnError)}
	agg := &fakeAggregator{}
	w := newTestWorker(store, backfill, agg)

	w.processJob(context.Background(), &job.Message{JobID: "job-1", UserID: "user-1"})

	j := store.jobs["job-1"]
	assert.Equal(t, types.JobStatusFailed, j.Status)
	require.NotNil(t, j.ErrorMessage)
	// Stored message is a category label, not raw upstream error text
	assert.Equal(t, "source", *j.ErrorMessage)
	assert.Equal(t, 0, agg.runs)
}

func TestProcessJob_AggregationFailureMarksFailed(t *testing.T) {
	store := newFakeJobStore()
	store.addPending("job-1", "user-1")
	backfill := &fakeBackfiller{}
	agg := &fakeAggregator{err: apperrors.NewDatabaseError("upsert contact aggregates", assert.AnError)}
	w := newTestWorker(store, backfill, agg)

	w.processJob(context.Background(), &job.Message{JobID: "job-1", UserID: "user-1"})

	j := store.jobs["job-1"]
	assert.Equal(t, types.JobStatusFailed, j.Status)
	require.NotNil(t, j.ErrorMessage)
	assert.Equal(t, "database", *j.ErrorMessage)
}

func TestProcessJob_SkipsTerminalJob(t *testing.T) {
	store := newFakeJobStore()
	store.addPending("job-1", "user-1")
	store.jobs["job-1"].Status = types.JobStatusCompleted
	backfill := &fakeBackfiller{}
	w := newTestWorker(store, backfill, &fakeAggregator{})

	w.processJob(context.Background(), &job.Message{JobID: "job-1", UserID: "user-1"})

	// Duplicate queue entry for a finished job is a no-op
	assert.Equal(t, 0, backfill.runs)
	assert.Equal(t, types.JobStatusCompleted, store.jobs["job-1"].Status)
}

func TestProcessJob_SkipsJobClaimedElsewhere(t *testing.T) {
	store := newFakeJobStore()
	store.addPending("job-1", "user-1")
	store.jobs["job-1"].Status = types.JobStatusRunning
	backfill := &fakeBackfiller{}
	w := newTestWorker(store, backfill, &fakeAggregator{})

	w.processJob(context.Background(), &job.Message{JobID: "job-1", UserID: "user-1"})

	assert.Equal(t, 0, backfill.runs)
	assert.Equal(t, types.JobStatusRunning, store.jobs["job-1"].Status)
}

func TestProcessJob_UnknownJobIsSkipped(t *testing.T) {
	store := newFakeJobStore()
	backfill := &fakeBackfiller{}
	w := newTestWorker(store, backfill, &fakeAggregator{})

	w.processJob(context.Background(), &job.Message{JobID: "ghost", UserID: "user-1"})

	assert.Equal(t, 0, backfill.runs)
}

func TestProcessJob_PartialSourceCoverageStillCompletes(t *testing.T) {
	store := newFakeJobStore()
	store.addPending("job-1", "user-1")
	backfill := &fakeBackfiller{result: &service.BackfillResult{
		EventRows:      3,
		SkippedSources: []types.Source{types.SourceEmail},
	}}
	agg := &fakeAggregator{}
	w := newTestWorker(store, backfill, agg)

	w.processJob(context.Background(), &job.Message{JobID: "job-1", UserID: "user-1"})

	assert.Equal(t, types.JobStatusCompleted, store.jobs["job-1"].Status)
	assert.Equal(t, 1, agg.runs)
}

// queueFromMessages builds a queue preloaded with messages for loop tests
type sliceQueue struct {
	messages chan job.Message
}

func newSliceQueue(msgs ...job.Message) *sliceQueue {
	q := &sliceQueue{messages: make(chan job.Message, len(msgs)+1)}
	for _, m := range msgs {
		q.messages <- m
	}
	return q
}

func (q *sliceQueue) Enqueue(ctx context.Context, msg job.Message) error {
	q.messages <- msg
	return nil
}

func (q *sliceQueue) Dequeue(ctx context.Context, timeout time.Duration) (*job.Message, error) {
	select {
	case msg := <-q.messages:
		return &msg, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *sliceQueue) Length(ctx context.Context) (int64, error) {
	return int64(len(q.messages)), nil
}

func TestWorker_ConsumesQueueAndStops(t *testing.T) {
	store := newFakeJobStore()
	store.addPending("job-1", "user-1")
	store.addPending("job-2", "user-2")

	queue := newSliceQueue(
		job.Message{JobID: "job-1", UserID: "user-1"},
		job.Message{JobID: "job-2", UserID: "user-2"},
	)
	backfill := &fakeBackfiller{}
	cfg := &config.BackfillConfig{PollTimeout: 10 * time.Millisecond}
	w := NewBackfillWorker(queue, store, backfill, &fakeAggregator{}, cfg, logging.NewLogger(logging.LevelError, logging.FormatText))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.Eventually(t, func() bool {
		return store.jobs["job-1"].Status == types.JobStatusCompleted &&
			store.jobs["job-2"].Status == types.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, w.Stop(stopCtx))
}
