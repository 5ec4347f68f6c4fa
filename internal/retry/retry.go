// Package retry provides exponential backoff for transient failures.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	apperrors "github.com/contact-ranker/internal/errors"
	"github.com/contact-ranker/internal/logging"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts  int           // Maximum number of attempts including the first
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Cap on the delay between retries
	Multiplier   float64       // Multiplier for exponential backoff
}

// DefaultConfig returns the default retry configuration.
// Pattern: 1s, 2s, 4s, capped at 30s.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Func is a function that can be retried
type Func func(ctx context.Context, attempt int) error

// Do executes fn with exponential backoff. It gives up immediately on
// non-retryable errors (validation, scope, conflict) and on context
// cancellation; everything else is retried up to MaxAttempts.
func Do(ctx context.Context, cfg *Config, fn Func) error {
	logger := logging.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.WithField("attempts", attempt).Info("Operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !apperrors.IsRetryable(err) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := backoffDelay(cfg, attempt)
		logger.WithFields(map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": cfg.MaxAttempts,
			"delay":        delay.String(),
			"error":        err.Error(),
		}).Warn("Operation failed, backing off before retry")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// backoffDelay computes the exponential delay for the next attempt
func backoffDelay(cfg *Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
