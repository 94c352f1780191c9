// Package db runs schema migrations for the knowledge store.
//
// Migration files are embedded at compile time and applied in order on
// startup, before the connection pool is created. golang-migrate manages
// the schema_migrations bookkeeping table.
package db

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx v5 driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDirtySchema indicates a previous migration failed partway and the
// schema needs manual repair before any further migration can run.
var ErrDirtySchema = errors.New("schema in dirty migration state")

// Migrate applies all pending migrations. connURL must be a postgres:// or
// postgresql:// URL; it is rewritten to the pgx5 scheme golang-migrate expects.
//
// A dirty schema_migrations row aborts immediately: rerunning on top of a
// half-applied migration would make the damage worse.
func Migrate(connURL string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	migrateURL, err := toMigrateURL(connURL)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL)
	if err != nil {
		return fmt.Errorf("connecting for migrations: %w", err)
	}
	defer closeMigrate(m)

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("%w at version %d: inspect the schema, then `migrate force %d`",
			ErrDirtySchema, version, version)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Debug("schema up to date", "version", version)
			return nil
		}
		// Report whether the failure left the schema dirty so the operator
		// knows repair is needed, not just a retry.
		if v, d, verr := m.Version(); verr == nil && d {
			return fmt.Errorf("applying migrations (schema now dirty at version %d, fix and `migrate force %d`): %w", v, v, err)
		}
		return fmt.Errorf("applying migrations: %w", err)
	}

	if v, _, verr := m.Version(); verr == nil {
		slog.Info("migrations applied", "version", v)
	}
	return nil
}

// closeMigrate closes both halves of the migrate instance, logging rather
// than failing: the migrations themselves already succeeded or errored.
func closeMigrate(m *migrate.Migrate) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		slog.Warn("closing migration source", "error", srcErr)
	}
	if dbErr != nil {
		slog.Warn("closing migration connection", "error", dbErr)
	}
}

// toMigrateURL rewrites a postgres URL to golang-migrate's pgx5 scheme.
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
		return "", fmt.Errorf("unsupported database URL scheme %q (want postgres or postgresql)", u.Scheme)
	}
}
