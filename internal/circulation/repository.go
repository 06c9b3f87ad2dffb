package circulation

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"libracatalog/internal/storage"
)

// Repository persists borrowing records and the copy counts they move. Every
// method runs on the querier it is given; the workflow always hands it an
// open transaction for writes.
type Repository interface {
	List(ctx context.Context, q storage.Querier, page storage.Page) ([]BorrowingRecord, error)
	Get(ctx context.Context, q storage.Querier, id int64) (*BorrowingRecord, error)
	// GetForUpdate loads and locks a record for the rest of the transaction.
	GetForUpdate(ctx context.Context, q storage.Querier, id int64) (*BorrowingRecord, error)
	// LockBook locks a book row and returns its available copies, or
	// storage.ErrNoRows when the book does not exist.
	LockBook(ctx context.Context, q storage.Querier, bookID int64) (int, error)
	MemberExists(ctx context.Context, q storage.Querier, memberID int64) (bool, error)
	// HasActiveLoan reports whether another record for the book is Borrowed.
	HasActiveLoan(ctx context.Context, q storage.Querier, bookID, excludeID int64) (bool, error)
	Insert(ctx context.Context, q storage.Querier, in RecordInput) (int64, error)
	Update(ctx context.Context, q storage.Querier, id int64, in RecordInput) (bool, error)
	// AdjustCopies adds delta to a book's available copies. A negative delta
	// applies only while enough copies remain; ok is false otherwise.
	AdjustCopies(ctx context.Context, q storage.Querier, bookID int64, delta int) (ok bool, err error)
}

var recordColumns = []any{
	"record_id", "book_id", "member_id", "borrow_date", "due_date", "return_date",
	"fine_amount", "status", "created_at", "updated_at",
}

const recordSelect = `
	SELECT record_id, book_id, member_id, borrow_date, due_date, return_date,
	       fine_amount, status, created_at, updated_at
	FROM borrowing_records
	WHERE record_id = $1
`

type postgresRepository struct{}

// NewPostgresRepository returns a Repository over the borrowing_records and
// books tables.
func NewPostgresRepository() Repository {
	return postgresRepository{}
}

func scanRecord(row storage.Row) (*BorrowingRecord, error) {
	r := &BorrowingRecord{}
	err := row.Scan(
		&r.ID,
		&r.BookID,
		&r.MemberID,
		&r.BorrowDate,
		&r.DueDate,
		&r.ReturnDate,
		&r.FineAmount,
		&r.Status,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (postgresRepository) List(ctx context.Context, q storage.Querier, page storage.Page) ([]BorrowingRecord, error) {
	ds := storage.Dialect.From("borrowing_records").
		Select(recordColumns...).
		Order(goqu.C("record_id").Asc()).
		Prepared(true)

	query, args, err := page.Apply(ds).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build borrowing record list query: %w", err)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query borrowing records: %w", err)
	}
	defer rows.Close()

	records := make([]BorrowingRecord, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan borrowing record: %w", err)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate borrowing records: %w", err)
	}
	return records, nil
}

func (postgresRepository) Get(ctx context.Context, q storage.Querier, id int64) (*BorrowingRecord, error) {
	return scanRecord(q.QueryRow(ctx, recordSelect, id))
}

func (postgresRepository) GetForUpdate(ctx context.Context, q storage.Querier, id int64) (*BorrowingRecord, error) {
	return scanRecord(q.QueryRow(ctx, recordSelect+" FOR UPDATE", id))
}

func (postgresRepository) LockBook(ctx context.Context, q storage.Querier, bookID int64) (int, error) {
	var available int
	err := q.QueryRow(ctx,
		`SELECT available_copies FROM books WHERE book_id = $1 FOR UPDATE`, bookID,
	).Scan(&available)
	return available, err
}

func (postgresRepository) MemberExists(ctx context.Context, q storage.Querier, memberID int64) (bool, error) {
	return exists(ctx, q, `SELECT 1 FROM members WHERE member_id = $1`, memberID)
}

func (postgresRepository) HasActiveLoan(ctx context.Context, q storage.Querier, bookID, excludeID int64) (bool, error) {
	return exists(ctx, q, `
		SELECT 1 FROM borrowing_records
		WHERE book_id = $1 AND status = 'Borrowed' AND record_id <> $2
		LIMIT 1
	`, bookID, excludeID)
}

func exists(ctx context.Context, q storage.Querier, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, storage.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (postgresRepository) Insert(ctx context.Context, q storage.Querier, in RecordInput) (int64, error) {
	query := `
		INSERT INTO borrowing_records (book_id, member_id, borrow_date, due_date, return_date, fine_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING record_id
	`
	var id int64
	err := q.QueryRow(ctx, query,
		in.BookID, in.MemberID, in.BorrowDate, in.DueDate, in.ReturnDate, in.FineAmount, in.Status,
	).Scan(&id)
	return id, err
}

func (postgresRepository) Update(ctx context.Context, q storage.Querier, id int64, in RecordInput) (bool, error) {
	query := `
		UPDATE borrowing_records
		SET book_id = $1, member_id = $2, borrow_date = $3, due_date = $4, return_date = $5,
		    fine_amount = $6, status = $7, updated_at = NOW()
		WHERE record_id = $8
	`
	res, err := q.Exec(ctx, query,
		in.BookID, in.MemberID, in.BorrowDate, in.DueDate, in.ReturnDate, in.FineAmount, in.Status, id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (postgresRepository) AdjustCopies(ctx context.Context, q storage.Querier, bookID int64, delta int) (bool, error) {
	res, err := q.Exec(ctx, `
		UPDATE books
		SET available_copies = available_copies + $1, updated_at = NOW()
		WHERE book_id = $2 AND available_copies + $1 >= 0
	`, delta, bookID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
