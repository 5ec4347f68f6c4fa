// Package main provides a CLI tool for enqueueing backfill jobs by hand,
// useful for support and for re-running a user's pipeline in staging.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/contact-ranker/internal/config"
	"github.com/contact-ranker/internal/job"
	"github.com/contact-ranker/internal/logging"
	"github.com/contact-ranker/internal/storage"
	"github.com/contact-ranker/internal/types"
)

func main() {
	var (
		userID = flag.String("user", "", "User ID to backfill (required)")
		force  = flag.Bool("force", false, "Bypass dedup and recent-completion checks")
	)
	flag.Parse()

	if *userID == "" {
		log.Fatal("-user is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	redis, err := storage.NewRedisClient(&cfg.Database.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	jobRepo := storage.NewBackfillJobRepository(postgres)
	queue := job.NewRedisQueue(redis, cfg.Backfill.QueueName)
	scheduler := job.NewScheduler(jobRepo, queue, &cfg.Backfill, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := scheduler.EnqueueBackfill(ctx, *userID, types.TriggerScheduled, *force)
	if err != nil {
		log.Fatalf("Failed to enqueue backfill: %v", err)
	}

	if result.Enqueued {
		log.Printf("Enqueued backfill job %s for user %s", result.Job.JobID, *userID)
	} else {
		log.Printf("Skipped (%s): existing job %s in status %s", result.SkipReason, result.Job.JobID, result.Job.Status)
	}
}
