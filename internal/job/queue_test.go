package job

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/contact-ranker/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestQueue creates a RedisQueue backed by an in-process Redis.
func setupTestQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisQueue(storage.NewRedisClientFromExisting(client), "test:backfill:jobs"), mr
}

func TestRedisQueue_RoundTrip(t *testing.T) {
	queue, _ := setupTestQueue(t)
	ctx := context.Background()

	sent := Message{JobID: "job-1", UserID: "user-1"}
	require.NoError(t, queue.Enqueue(ctx, sent))

	received, err := queue.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, received)
	assert.Equal(t, sent, *received)
}

func TestRedisQueue_FIFOOrder(t *testing.T) {
	queue, _ := setupTestQueue(t)
	ctx := context.Background()

	for _, id := range []string{"job-1", "job-2", "job-3"} {
		require.NoError(t, queue.Enqueue(ctx, Message{JobID: id, UserID: "user-1"}))
	}

	for _, want := range []string{"job-1", "job-2", "job-3"} {
		msg, err := queue.Dequeue(ctx, 50*time.Millisecond)
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, want, msg.JobID)
	}
}

func TestRedisQueue_EmptyTimeoutReturnsNil(t *testing.T) {
	queue, _ := setupTestQueue(t)

	msg, err := queue.Dequeue(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestRedisQueue_Length(t *testing.T) {
	queue, _ := setupTestQueue(t)
	ctx := context.Background()

	length, err := queue.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)

	require.NoError(t, queue.Enqueue(ctx, Message{JobID: "job-1", UserID: "user-1"}))
	require.NoError(t, queue.Enqueue(ctx, Message{JobID: "job-2", UserID: "user-1"}))

	length, err = queue.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)
}

func TestRedisQueue_SurvivesReconnect(t *testing.T) {
	queue, mr := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, Message{JobID: "job-1", UserID: "user-1"}))

	// A new client against the same Redis sees the pending entry
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	fresh := NewRedisQueue(storage.NewRedisClientFromExisting(client), "test:backfill:jobs")

	msg, err := fresh.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "job-1", msg.JobID)
}
