// Package dbx opens the Postgres pool and applies the embedded schema
// migrations.
package dbx

import (
	"context"
	"embed"
	"errors"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/asyncx"
	"github.com/Abraxas-365/mailroom/pkg/config"
	"github.com/Abraxas-365/mailroom/pkg/errx"
	"github.com/Abraxas-365/mailroom/pkg/logx"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
	connectTimeout  = 5 * time.Second
)

// Connect opens and pings the pool described by cfg, retrying with backoff
// while the database comes up.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := asyncx.RetryWithBackoff(ctx, connectAttempts, connectBackoff, func(ctx context.Context) (*sqlx.DB, error) {
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
		if err != nil {
			logx.WithError(err).WithField("host", cfg.Host).Warn("dbx: connect attempt failed")
		}
		return db, err
	})
	if err != nil {
		return nil, errx.Wrap(err, "failed to connect to database", errx.TypeUnavailable).
			WithDetail("host", cfg.Host).
			WithDetail("database", cfg.Name)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// MigrateUp applies every pending migration on db. An up-to-date schema is
// not an error.
func MigrateUp(db *sqlx.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errx.Wrap(err, "failed to open embedded migrations", errx.TypeInternal)
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{MigrationsTable: "mailroom_schema_migrations"})
	if err != nil {
		return errx.Wrap(err, "failed to create migration driver", errx.TypeInternal)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return errx.Wrap(err, "failed to create migrator", errx.TypeInternal)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errx.Wrap(err, "failed to apply migrations", errx.TypeInternal)
	}

	version, dirty, err := m.Version()
	if err == nil {
		logx.WithFields(logx.Fields{"version": version, "dirty": dirty}).Info("dbx: schema up to date")
	}
	return nil
}

// Versions lists the embedded migration files, for diagnostics.
func Versions() ([]string, error) {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
