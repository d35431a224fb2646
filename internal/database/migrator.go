package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"edterm.com/edterm/internal/config"
	dbpgx "edterm.com/edterm/internal/database/pgx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator applies the embedded schema migrations.
type Migrator struct {
	pg *pgxpool.Pool
}

func NewMigrator(pg *pgxpool.Pool) (*Migrator, error) {
	if pg == nil {
		return nil, fmt.Errorf("nil pgx pool")
	}
	return &Migrator{pg: pg}, nil
}

func NewMigratorForConfig(ctx context.Context, cfg *config.Config) (*Migrator, error) {
	pg, err := dbpgx.NewClientForConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewMigrator(pg)
}

func (mg *Migrator) Close() {
	if mg.pg != nil {
		mg.pg.Close()
	}
}

func (mg *Migrator) instance() (*migrate.Migrate, error) {
	if mg.pg == nil {
		return nil, fmt.Errorf("migrator not initialized")
	}
	driver, err := pgx.WithInstance(sql.OpenDB(stdlib.GetPoolConnector(mg.pg)), &pgx.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver failed: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migration source failed: %w", err)
	}
	return migrate.NewWithInstance("iofs", src, "pgx", driver)
}

// Up applies all pending migrations.
func (mg *Migrator) Up() error {
	m, err := mg.instance()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up failed: %w", err)
	}
	mg.logVersion(m)
	return nil
}

// Down rolls back every migration.
func (mg *Migrator) Down() error {
	m, err := mg.instance()
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down failed: %w", err)
	}
	mg.logVersion(m)
	return nil
}

func (mg *Migrator) logVersion(m *migrate.Migrate) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		slog.Info("schema is empty")
		return
	}
	if err != nil {
		slog.Warn("failed to read schema version", "error", err)
		return
	}
	slog.Info("schema version", "version", v, "dirty", dirty)
}
