package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/contact-ranker/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisClient wraps the Redis client used for the durable job queue.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis connection
func NewRedisClient(cfg *config.RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  -1, // blocking pops manage their own timeout
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// NewRedisClientFromExisting wraps an already-constructed client. Used by tests
// that back the queue with an in-process Redis.
func NewRedisClientFromExisting(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Push appends a value to the tail side of a list queue
func (r *RedisClient) Push(ctx context.Context, queue string, value string) error {
	return r.client.LPush(ctx, queue, value).Err()
}

// BlockingPop pops the oldest value from a list queue, waiting up to timeout.
// Returns ("", nil) when the wait times out with no value available.
func (r *RedisClient) BlockingPop(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	result, err := r.client.BRPop(ctx, timeout, queue).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// BRPop returns [key, value]
	if len(result) != 2 {
		return "", fmt.Errorf("unexpected BRPOP reply length %d", len(result))
	}
	return result[1], nil
}

// QueueLength returns the number of pending entries in a list queue
func (r *RedisClient) QueueLength(ctx context.Context, queue string) (int64, error) {
	return r.client.LLen(ctx, queue).Result()
}
