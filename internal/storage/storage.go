// Package storage is the relational access point used by every catalog
// service. It exposes parameterized queries and explicit transaction scoping
// over interchangeable drivers (lib/pq, sqlx, pgx) so services never depend
// on a concrete connection pool.
package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ErrNoRows is returned by Row.Scan when the query selected nothing,
// regardless of the driver underneath.
var ErrNoRows = sql.ErrNoRows

// Rows is a forward-only cursor over a query result.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// Row is the result of a single-row query.
type Row interface {
	Scan(dest ...any) error
}

// Result describes the effect of an Exec.
type Result interface {
	RowsAffected() (int64, error)
}

// Querier runs parameterized statements. Both DB and Tx implement it, so
// repository code is written once and runs inside or outside a transaction.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Exec(ctx context.Context, query string, args ...any) (Result, error)
}

// Tx is an open transaction. Rollback after a successful Commit is a no-op.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DB is a pooled connection handle.
type DB interface {
	Querier
	Begin(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	Close() error
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back on every other exit path, including panics.
func WithTx(ctx context.Context, db DB, fn func(q Querier) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", Classify(err))
	}
	return nil
}
