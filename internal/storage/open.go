package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"libracatalog/internal/config"
)

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLX     = "sqlx"
	DriverPGX      = "pgx"
	DriverMemory   = "memory"
)

// Open connects to Postgres with the driver named in cfg and verifies the
// connection. The memory driver is not handled here.
func Open(ctx context.Context, cfg config.DatabaseConfig) (DB, error) {
	var db DB
	switch cfg.Driver {
	case DriverPostgres:
		sqlDB, err := sql.Open("postgres", cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		applyPoolLimits(sqlDB, cfg)
		db = NewSQLAdapter(sqlDB)
	case DriverSQLX:
		sqlxDB, err := sqlx.Open("postgres", cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("open sqlx: %w", err)
		}
		applyPoolLimits(sqlxDB.DB, cfg)
		db = NewSQLXAdapter(sqlxDB)
	case DriverPGX:
		poolCfg, err := pgxpool.ParseConfig(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse pgx config: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("open pgx pool: %w", err)
		}
		db = NewPGXAdapter(pool)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return db, nil
}

func applyPoolLimits(db *sql.DB, cfg config.DatabaseConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}
