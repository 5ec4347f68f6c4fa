package storage

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func newMigrator(databaseURL, migrationsPath string) (*migrate.Migrate, error) {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// RunMigrations applies all pending schema migrations. The job, metadata and
// contact tables must exist before the worker or the API start.
func RunMigrations(databaseURL, migrationsPath string) error {
	m, err := newMigrator(databaseURL, migrationsPath)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = m.Close() // nolint:errcheck // cleanup in defer
	}()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RollbackMigrations steps the schema back by one migration
func RollbackMigrations(databaseURL, migrationsPath string) error {
	m, err := newMigrator(databaseURL, migrationsPath)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = m.Close() // nolint:errcheck // cleanup in defer
	}()

	if err := m.Steps(-1); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	return nil
}

// MigrationVersion reports the schema version currently applied and whether a
// failed migration left it dirty
func MigrationVersion(databaseURL, migrationsPath string) (version uint, dirty bool, err error) {
	m, migrateErr := newMigrator(databaseURL, migrationsPath)
	if migrateErr != nil {
		return 0, false, migrateErr
	}
	defer func() {
		_, _ = m.Close() // nolint:errcheck // cleanup in defer
	}()

	version, dirty, err = m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}

	return version, dirty, nil
}
