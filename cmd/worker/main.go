// Package main provides the backfill worker entry point.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contact-ranker/internal/adapter"
	"github.com/contact-ranker/internal/config"
	"github.com/contact-ranker/internal/hashing"
	"github.com/contact-ranker/internal/job"
	"github.com/contact-ranker/internal/logging"
	"github.com/contact-ranker/internal/service"
	"github.com/contact-ranker/internal/storage"
	"github.com/contact-ranker/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()

	if !cfg.Backfill.Enabled {
		logger.Info("Backfill worker disabled by configuration, exiting")
		return
	}

	hasher, err := hashing.NewHasher(cfg.Hashing.Secret)
	if err != nil {
		logger.WithError(err).Fatal("Invalid hashing configuration")
	}

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisClient(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	// Repositories
	jobRepo := storage.NewBackfillJobRepository(postgres)
	metadataRepo := storage.NewMetadataRepository(postgres)
	contactRepo := storage.NewContactRepository(postgres)

	// Metadata sources, paced against upstream API quotas
	gateway := adapter.NewHTTPSource(cfg.Sources.GatewayBaseURL, cfg.Sources.RequestTimeout)
	emailSource := adapter.NewPacedEmailSource(gateway, cfg.Sources.FetchRPS, cfg.Sources.FetchBurst)
	calendarSource := adapter.NewPacedCalendarSource(gateway, cfg.Sources.FetchRPS, cfg.Sources.FetchBurst)

	// Pipeline services
	backfillService := service.NewBackfillService(emailSource, calendarSource, metadataRepo, hasher, &cfg.Backfill, logger)
	aggregationService := service.NewAggregationService(metadataRepo, contactRepo, logger)

	queue := job.NewRedisQueue(redis, cfg.Backfill.QueueName)

	backfillWorker := worker.NewBackfillWorker(queue, jobRepo, backfillService, aggregationService, &cfg.Backfill, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backfillWorker.Start(ctx)
	logger.WithField("queue", cfg.Backfill.QueueName).Info("Backfill worker running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := backfillWorker.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Worker shutdown failed")
	}

	logger.Info("Worker stopped")
}
