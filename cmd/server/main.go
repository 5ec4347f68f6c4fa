// Package main provides the API server entry point for the contact ranker service.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contact-ranker/internal/api"
	"github.com/contact-ranker/internal/config"
	"github.com/contact-ranker/internal/hashing"
	"github.com/contact-ranker/internal/job"
	"github.com/contact-ranker/internal/logging"
	"github.com/contact-ranker/internal/service"
	"github.com/contact-ranker/internal/storage"
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
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	hasher, err := hashing.NewHasher(cfg.Hashing.Secret)
	if err != nil {
		logger.WithError(err).Fatal("Invalid hashing configuration")
	}

	logger.Info("Connecting to databases...")

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

	logger.Info("Database connections established")

	// Repositories
	jobRepo := storage.NewBackfillJobRepository(postgres)
	contactRepo := storage.NewContactRepository(postgres)
	vipListRepo := storage.NewVipListRepository(postgres)

	// Queue and scheduler
	queue := job.NewRedisQueue(redis, cfg.Backfill.QueueName)
	scheduler := job.NewScheduler(jobRepo, queue, &cfg.Backfill, logger)

	// Scoring service
	scoringService := service.NewScoringService(contactRepo, vipListRepo, hasher, &cfg.Scoring, logger)

	serverConfig := &api.ServerConfig{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		ReadRPS:            cfg.RateLimit.ReadRPS,
		WriteRPS:           cfg.RateLimit.WriteRPS,
		Burst:              cfg.RateLimit.Burst,
		BackfillMaxRetries: cfg.Backfill.MaxRetries,
	}

	server := api.NewServer(serverConfig, scoringService, scheduler, jobRepo, contactRepo, postgres, redis, logger)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	logger.Info("Server stopped")
}
