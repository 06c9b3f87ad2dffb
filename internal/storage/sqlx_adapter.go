package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// SQLXAdapter implements DB for a sqlx pool.
type SQLXAdapter struct {
	db *sqlx.DB
}

// NewSQLXAdapter wraps an open *sqlx.DB.
func NewSQLXAdapter(db *sqlx.DB) *SQLXAdapter {
	return &SQLXAdapter{db: db}
}

// Query rebinds the statement for the driver's placeholder style before
// running it.
func (s *SQLXAdapter) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, Classify(err)
	}
	return &sqlxRows{rows: rows}, nil
}

func (s *SQLXAdapter) QueryRow(ctx context.Context, query string, args ...any) Row {
	return &sqlxRow{row: s.db.QueryRowxContext(ctx, s.db.Rebind(query), args...)}
}

func (s *SQLXAdapter) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, Classify(err)
	}
	return res, nil
}

func (s *SQLXAdapter) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlxTx{tx: tx}, nil
}

func (s *SQLXAdapter) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLXAdapter) Close() error { return s.db.Close() }

type sqlxTx struct {
	tx *sqlx.Tx
}

func (t *sqlxTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.QueryxContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return nil, Classify(err)
	}
	return &sqlxRows{rows: rows}, nil
}

func (t *sqlxTx) QueryRow(ctx context.Context, query string, args ...any) Row {
	return &sqlxRow{row: t.tx.QueryRowxContext(ctx, t.tx.Rebind(query), args...)}
}

func (t *sqlxTx) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return nil, Classify(err)
	}
	return res, nil
}

func (t *sqlxTx) Commit(context.Context) error { return t.tx.Commit() }

func (t *sqlxTx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

type sqlxRows struct {
	rows *sqlx.Rows
}

func (r *sqlxRows) Next() bool             { return r.rows.Next() }
func (r *sqlxRows) Scan(dest ...any) error { return Classify(r.rows.Scan(dest...)) }
func (r *sqlxRows) Close() error           { return r.rows.Close() }
func (r *sqlxRows) Err() error             { return Classify(r.rows.Err()) }

type sqlxRow struct {
	row *sqlx.Row
}

func (r *sqlxRow) Scan(dest ...any) error { return Classify(r.row.Scan(dest...)) }
