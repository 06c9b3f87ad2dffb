package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"libracatalog/internal/storage"
)

// Repository persists reservations. Get returns storage.ErrNoRows for a
// missing reservation.
type Repository interface {
	List(ctx context.Context, q storage.Querier, page storage.Page) ([]Reservation, error)
	Get(ctx context.Context, q storage.Querier, id int64) (*Reservation, error)
	// LockBook locks the book row; storage.ErrNoRows when it does not exist.
	LockBook(ctx context.Context, q storage.Querier, bookID int64) error
	MemberExists(ctx context.Context, q storage.Querier, memberID int64) (bool, error)
	// HasPending reports whether another Pending reservation exists for the
	// pair.
	HasPending(ctx context.Context, q storage.Querier, bookID, memberID, excludeID int64) (bool, error)
	Insert(ctx context.Context, q storage.Querier, in ReservationInput) (int64, error)
	Update(ctx context.Context, q storage.Querier, id int64, in ReservationInput) (bool, error)
}

var reservationColumns = []any{
	"reservation_id", "book_id", "member_id", "reservation_date", "status", "created_at", "updated_at",
}

type postgresRepository struct{}

// NewPostgresRepository returns a Repository over the reservations table.
func NewPostgresRepository() Repository {
	return postgresRepository{}
}

func scanReservation(row storage.Row) (*Reservation, error) {
	r := &Reservation{}
	if err := row.Scan(&r.ID, &r.BookID, &r.MemberID, &r.ReservationDate, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return r, nil
}

func (postgresRepository) List(ctx context.Context, q storage.Querier, page storage.Page) ([]Reservation, error) {
	ds := storage.Dialect.From("reservations").
		Select(reservationColumns...).
		Order(goqu.C("reservation_id").Asc()).
		Prepared(true)

	query, args, err := page.Apply(ds).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build reservation list query: %w", err)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	reservations := make([]Reservation, 0)
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		reservations = append(reservations, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}
	return reservations, nil
}

func (postgresRepository) Get(ctx context.Context, q storage.Querier, id int64) (*Reservation, error) {
	query := `
		SELECT reservation_id, book_id, member_id, reservation_date, status, created_at, updated_at
		FROM reservations
		WHERE reservation_id = $1
	`
	return scanReservation(q.QueryRow(ctx, query, id))
}

func (postgresRepository) LockBook(ctx context.Context, q storage.Querier, bookID int64) error {
	var id int64
	return q.QueryRow(ctx, `SELECT book_id FROM books WHERE book_id = $1 FOR UPDATE`, bookID).Scan(&id)
}

func (postgresRepository) MemberExists(ctx context.Context, q storage.Querier, memberID int64) (bool, error) {
	var one int
	err := q.QueryRow(ctx, `SELECT 1 FROM members WHERE member_id = $1`, memberID).Scan(&one)
	if errors.Is(err, storage.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (postgresRepository) HasPending(ctx context.Context, q storage.Querier, bookID, memberID, excludeID int64) (bool, error) {
	var one int
	err := q.QueryRow(ctx, `
		SELECT 1 FROM reservations
		WHERE book_id = $1 AND member_id = $2 AND status = 'Pending' AND reservation_id <> $3
		LIMIT 1
	`, bookID, memberID, excludeID).Scan(&one)
	if errors.Is(err, storage.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (postgresRepository) Insert(ctx context.Context, q storage.Querier, in ReservationInput) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO reservations (book_id, member_id, reservation_date, status)
		VALUES ($1, $2, $3, $4)
		RETURNING reservation_id
	`, in.BookID, in.MemberID, in.ReservationDate, in.Status).Scan(&id)
	return id, err
}

func (postgresRepository) Update(ctx context.Context, q storage.Querier, id int64, in ReservationInput) (bool, error) {
	res, err := q.Exec(ctx, `
		UPDATE reservations
		SET book_id = $1, member_id = $2, reservation_date = $3, status = $4, updated_at = NOW()
		WHERE reservation_id = $5
	`, in.BookID, in.MemberID, in.ReservationDate, in.Status, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
