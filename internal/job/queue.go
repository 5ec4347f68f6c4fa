// Package job provides the backfill job queue and scheduler.
package job

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/contact-ranker/internal/errors"
	"github.com/contact-ranker/internal/storage"
)

// Message is the queue payload for one backfill job. The payload carries only
// identifiers; all job state lives in Postgres.
type Message struct {
	JobID  string `json:"job_id"`
	UserID string `json:"user_id"`
}

// Queue is a durable FIFO job queue
type Queue interface {
	// Enqueue appends a job message to the queue
	Enqueue(ctx context.Context, msg Message) error
	// Dequeue pops the oldest message, waiting up to timeout. Returns
	// (nil, nil) when the wait times out with nothing available.
	Dequeue(ctx context.Context, timeout time.Duration) (*Message, error)
	// Length returns the number of pending messages
	Length(ctx context.Context) (int64, error)
}

// RedisQueue is a Redis list-backed Queue. LPUSH/BRPOP gives FIFO delivery
// that survives worker restarts.
type RedisQueue struct {
	redis     *storage.RedisClient
	queueName string
}

// NewRedisQueue creates a Redis-backed job queue
func NewRedisQueue(redis *storage.RedisClient, queueName string) *RedisQueue {
	return &RedisQueue{
		redis:     redis,
		queueName: queueName,
	}
}

// Enqueue appends a job message to the queue
func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return apperrors.NewQueueError("marshal job message", err)
	}

	if err := q.redis.Push(ctx, q.queueName, string(payload)); err != nil {
		return apperrors.NewQueueError("enqueue job", err)
	}

	return nil
}

// Dequeue pops the oldest message, waiting up to timeout
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Message, error) {
	payload, err := q.redis.BlockingPop(ctx, q.queueName, timeout)
	if err != nil {
		return nil, apperrors.NewQueueError("dequeue job", err)
	}
	if payload == "" {
		return nil, nil
	}

	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return nil, apperrors.NewQueueError("unmarshal job message", err)
	}

	return &msg, nil
}

// Length returns the number of pending messages
func (q *RedisQueue) Length(ctx context.Context) (int64, error) {
	length, err := q.redis.QueueLength(ctx, q.queueName)
	if err != nil {
		return 0, apperrors.NewQueueError("queue length", err)
	}
	return length, nil
}
