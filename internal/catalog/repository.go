package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"

	"libracatalog/internal/storage"
)

// Repository persists books. Every method runs on the querier it is given,
// which may be a pool or an open transaction. Get returns storage.ErrNoRows
// for a missing book; Update and Delete report whether a row matched.
type Repository interface {
	List(ctx context.Context, q storage.Querier, filter ListFilter) ([]Book, error)
	Get(ctx context.Context, q storage.Querier, id int64) (*Book, error)
	Insert(ctx context.Context, q storage.Querier, in BookInput) (int64, error)
	Update(ctx context.Context, q storage.Querier, id int64, in BookInput) (bool, error)
	Delete(ctx context.Context, q storage.Querier, id int64) (bool, error)
}

var bookColumns = []any{
	"book_id", "title", "author", "isbn", "publication_year", "publisher",
	"category", "total_copies", "available_copies", "location", "created_at", "updated_at",
}

type postgresRepository struct{}

// NewPostgresRepository returns a Repository over the books table.
func NewPostgresRepository() Repository {
	return postgresRepository{}
}

func scanBook(row storage.Row) (*Book, error) {
	b := &Book{}
	err := row.Scan(
		&b.ID,
		&b.Title,
		&b.Author,
		&b.ISBN,
		&b.PublicationYear,
		&b.Publisher,
		&b.Category,
		&b.TotalCopies,
		&b.AvailableCopies,
		&b.Location,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// likeEscaper makes search text match literally under ILIKE's default
// backslash escape.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (postgresRepository) List(ctx context.Context, q storage.Querier, filter ListFilter) ([]Book, error) {
	ds := storage.Dialect.From("books").
		Select(bookColumns...).
		Order(goqu.C("book_id").Asc()).
		Prepared(true)
	if filter.Search != "" {
		pattern := "%" + likeEscaper.Replace(filter.Search) + "%"
		ds = ds.Where(goqu.Or(
			goqu.C("title").ILike(pattern),
			goqu.C("author").ILike(pattern),
		))
	}
	ds = filter.Page.Apply(ds)

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build book list query: %w", err)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	books := make([]Book, 0)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return books, nil
}

func (postgresRepository) Get(ctx context.Context, q storage.Querier, id int64) (*Book, error) {
	query := `
		SELECT book_id, title, author, isbn, publication_year, publisher, category,
		       total_copies, available_copies, location, created_at, updated_at
		FROM books
		WHERE book_id = $1
	`
	return scanBook(q.QueryRow(ctx, query, id))
}

func (postgresRepository) Insert(ctx context.Context, q storage.Querier, in BookInput) (int64, error) {
	query := `
		INSERT INTO books (title, author, isbn, publication_year, publisher, category,
		                   total_copies, available_copies, location)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING book_id
	`
	var id int64
	err := q.QueryRow(ctx, query,
		in.Title, in.Author, in.ISBN, in.PublicationYear, in.Publisher, in.Category,
		*in.TotalCopies, *in.AvailableCopies, in.Location,
	).Scan(&id)
	return id, err
}

func (postgresRepository) Update(ctx context.Context, q storage.Querier, id int64, in BookInput) (bool, error) {
	query := `
		UPDATE books
		SET title = $1, author = $2, isbn = $3, publication_year = $4, publisher = $5,
		    category = $6, total_copies = $7, available_copies = $8, location = $9,
		    updated_at = NOW()
		WHERE book_id = $10
	`
	res, err := q.Exec(ctx, query,
		in.Title, in.Author, in.ISBN, in.PublicationYear, in.Publisher, in.Category,
		*in.TotalCopies, *in.AvailableCopies, in.Location, id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (postgresRepository) Delete(ctx context.Context, q storage.Querier, id int64) (bool, error) {
	res, err := q.Exec(ctx, `DELETE FROM books WHERE book_id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
