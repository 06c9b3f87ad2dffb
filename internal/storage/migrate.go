package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// ErrMigrationsUnsupported is returned for stores that are not backed by Postgres.
var ErrMigrationsUnsupported = errors.New("migrations require a postgres backed store")

// Migrator applies the embedded schema migrations with goose.
type Migrator struct {
	db      *sql.DB
	release func() error
}

// NewMigrator exposes the database/sql handle goose needs. pgx pools are
// bridged through pgx's stdlib package.
func NewMigrator(db DB) (*Migrator, error) {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}

	switch d := db.(type) {
	case *SQLAdapter:
		return &Migrator{db: d.db, release: func() error { return nil }}, nil
	case *SQLXAdapter:
		return &Migrator{db: d.db.DB, release: func() error { return nil }}, nil
	case *PGXAdapter:
		sqlDB := stdlib.OpenDBFromPool(d.pool)
		return &Migrator{db: sqlDB, release: sqlDB.Close}, nil
	default:
		return nil, ErrMigrationsUnsupported
	}
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	if err := goose.UpContext(ctx, m.db, migrationsDir); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := goose.DownContext(ctx, m.db, migrationsDir); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Status prints the applied state of each migration through goose's logger.
func (m *Migrator) Status(ctx context.Context) error {
	if err := goose.StatusContext(ctx, m.db, migrationsDir); err != nil {
		return fmt.Errorf("migrate status: %w", err)
	}
	return nil
}

// Version returns the current schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	v, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return 0, fmt.Errorf("migrate version: %w", err)
	}
	return v, nil
}

// Close releases the bridged handle, if any. The underlying store stays open.
func (m *Migrator) Close() error { return m.release() }
