package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationResult reports the schema version after Migrate returns.
type MigrationResult struct {
	Version uint
	Applied bool
}

// Migrate applies every pending embedded migration.
func (p *Postgres) Migrate(logger *slog.Logger) (MigrationResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if p == nil || p.DB == nil {
		return MigrationResult{}, errors.New("postgres is not connected")
	}
	if p.dsn == "" {
		return MigrationResult{}, errors.New("postgres dsn is unknown; connect with db.Connect")
	}

	// The migrate driver closes the handle it is given, so it never gets the
	// shared gorm pool.
	migrationDB, err := sql.Open("pgx", p.dsn)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("open migration connection: %w", err)
	}
	defer func() {
		_ = migrationDB.Close()
	}()

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return MigrationResult{}, fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := migratepostgres.WithInstance(migrationDB, &migratepostgres.Config{
		MigrationsTable: "schema_migrations",
		SchemaName:      "public",
	})
	if err != nil {
		return MigrationResult{}, fmt.Errorf("create postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("create migration instance: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	result := MigrationResult{Applied: true}
	if err := m.Up(); err != nil {
		var dirtyErr migrate.ErrDirty
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			result.Applied = false
		case errors.As(err, &dirtyErr):
			return MigrationResult{}, fmt.Errorf("migration failed: dirty database version %d", dirtyErr.Version)
		default:
			return MigrationResult{}, fmt.Errorf("migration failed: %w", err)
		}
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationResult{}, fmt.Errorf("read migration version: %w", err)
	}
	result.Version = version

	logger.Info("database migrations applied",
		"event", "db_migrations_applied",
		"module", "platform/db",
		"layer", "platform",
		"version", version,
		"applied", result.Applied,
	)
	return result, nil
}
