package storage

import (
	"context"
	"database/sql"
	"errors"
)

// SQLAdapter implements DB for a database/sql pool (lib/pq driver).
type SQLAdapter struct {
	db *sql.DB
}

// NewSQLAdapter wraps an open *sql.DB.
func NewSQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db}
}

func (s *SQLAdapter) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Classify(err)
	}
	return &sqlRows{rows: rows}, nil
}

func (s *SQLAdapter) QueryRow(ctx context.Context, query string, args ...any) Row {
	return &sqlRow{row: s.db.QueryRowContext(ctx, query, args...)}
}

func (s *SQLAdapter) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, Classify(err)
	}
	return res, nil
}

func (s *SQLAdapter) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

func (s *SQLAdapter) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLAdapter) Close() error { return s.db.Close() }

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Classify(err)
	}
	return &sqlRows{rows: rows}, nil
}

func (t *sqlTx) QueryRow(ctx context.Context, query string, args ...any) Row {
	return &sqlRow{row: t.tx.QueryRowContext(ctx, query, args...)}
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, Classify(err)
	}
	return res, nil
}

func (t *sqlTx) Commit(context.Context) error { return t.tx.Commit() }

func (t *sqlTx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool             { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error { return Classify(r.rows.Scan(dest...)) }
func (r *sqlRows) Close() error           { return r.rows.Close() }
func (r *sqlRows) Err() error             { return Classify(r.rows.Err()) }

type sqlRow struct {
	row *sql.Row
}

func (r *sqlRow) Scan(dest ...any) error { return Classify(r.row.Scan(dest...)) }
