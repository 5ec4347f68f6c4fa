// Package main provides a CLI tool for running database migrations.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/contact-ranker/internal/config"
	"github.com/contact-ranker/internal/storage"
)

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		path   = flag.String("path", "migrations/postgres", "Path to migration files")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Postgres.User,
		cfg.Database.Postgres.Password,
		cfg.Database.Postgres.Host,
		cfg.Database.Postgres.Port,
		cfg.Database.Postgres.Database,
	)

	switch *action {
	case "up":
		log.Println("Running migrations...")
		if err := storage.RunMigrations(databaseURL, *path); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")

	case "down":
		log.Println("Rolling back migration...")
		if err := storage.RollbackMigrations(databaseURL, *path); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.Println("Migration rolled back successfully")

	case "version":
		version, dirty, err := storage.MigrationVersion(databaseURL, *path)
		if err != nil {
			log.Fatalf("Failed to get migration version: %v", err)
		}
		log.Printf("Current migration version: %d (dirty: %v)", version, dirty)

	default:
		log.Fatalf("Unknown action: %s", *action)
	}
}
