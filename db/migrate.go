// Package db provides database utilities including migration support.
package db

import (
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx v5 driver
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/parallaxhq/parallax/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending migrations. Migration files are embedded
// at compile time and run in order; golang-migrate manages the
// schema_migrations bookkeeping table.
//
// connURL must be in postgres:// or postgresql:// URL format.
func Migrate(connURL string, logger log.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	dbURL, err := toMigrateURL(connURL)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("failed to close migration source", "error", srcErr)
		}
		if dbErr != nil {
			logger.Warn("failed to close migration database connection", "error", dbErr)
		}
	}()

	// A dirty state means a previous run failed mid-migration and needs
	// manual inspection; refusing to run avoids compounding the damage.
	version, dirty, verErr := m.Version()
	if verErr != nil && !errors.Is(verErr, migrate.ErrNilVersion) {
		return fmt.Errorf("checking migration version: %w", verErr)
	}
	if dirty {
		logger.Error("database is in dirty migration state",
			"version", version,
			"hint", fmt.Sprintf("inspect schema and run: migrate force %d", version))
		return fmt.Errorf("database in dirty state (version=%d), manual cleanup required", version)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("no new migrations to apply")
			return nil
		}
		if postVersion, postDirty, postErr := m.Version(); postErr == nil && postDirty {
			logger.Error("migration failed, database now in dirty state",
				"version", postVersion,
				"hint", fmt.Sprintf("fix the migration and run: migrate force %d", postVersion))
		}
		return fmt.Errorf("running migrations: %w", err)
	}

	if finalVersion, finalDirty, verErr := m.Version(); verErr != nil {
		logger.Warn("migrations completed but version check failed", "error", verErr)
	} else {
		logger.Info("migrations completed", "version", finalVersion, "dirty", finalDirty)
	}

	return nil
}

// toMigrateURL converts a postgres:// or postgresql:// URL to the pgx5://
// scheme golang-migrate's pgx v5 driver registers under.
func toMigrateURL(connURL string) (string, error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return "", fmt.Errorf("parsing database URL: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		u.Scheme = "pgx5"
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported database URL scheme: %s (expected postgres or postgresql)", u.Scheme)
	}
}
