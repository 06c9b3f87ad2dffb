package memstore

import (
	"context"
	"slices"
	"strings"

	"libracatalog/internal/catalog"
	"libracatalog/internal/storage"
)

type bookRepo struct{ s *Store }

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func window[T any](items []T, page storage.Page) []T {
	lo, hi := page.Window(len(items))
	return items[lo:hi]
}

func (r bookRepo) List(ctx context.Context, q storage.Querier, filter catalog.ListFilter) ([]catalog.Book, error) {
	books := make([]catalog.Book, 0)
	err := r.s.run(ctx, q, func(st *state) error {
		needle := strings.ToLower(filter.Search)
		for _, id := range sortedKeys(st.books) {
			b := st.books[id]
			if needle != "" &&
				!strings.Contains(strings.ToLower(b.Title), needle) &&
				!strings.Contains(strings.ToLower(b.Author), needle) {
				continue
			}
			books = append(books, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return window(books, filter.Page), nil
}

func (r bookRepo) Get(ctx context.Context, q storage.Querier, id int64) (*catalog.Book, error) {
	var out *catalog.Book
	err := r.s.run(ctx, q, func(st *state) error {
		b, ok := st.books[id]
		if !ok {
			return storage.ErrNoRows
		}
		out = &b
		return nil
	})
	return out, err
}

func isbnTaken(st *state, isbn string, exclude int64) bool {
	for id, b := range st.books {
		if id != exclude && b.ISBN == isbn {
			return true
		}
	}
	return false
}

func (r bookRepo) Insert(ctx context.Context, q storage.Querier, in catalog.BookInput) (int64, error) {
	var id int64
	err := r.s.run(ctx, q, func(st *state) error {
		if isbnTaken(st, in.ISBN, 0) {
			return violation(storage.UniqueViolation, "books_isbn_key")
		}
		if *in.AvailableCopies < 0 {
			return violation(storage.CheckViolation, "books_available_copies_check")
		}
		st.seq.book++
		id = st.seq.book
		now := r.s.now()
		st.books[id] = applyBook(catalog.Book{ID: id, CreatedAt: now, UpdatedAt: now}, in)
		return nil
	})
	return id, err
}

func (r bookRepo) Update(ctx context.Context, q storage.Querier, id int64, in catalog.BookInput) (bool, error) {
	var found bool
	err := r.s.run(ctx, q, func(st *state) error {
		b, ok := st.books[id]
		if !ok {
			return nil
		}
		found = true
		if isbnTaken(st, in.ISBN, id) {
			return violation(storage.UniqueViolation, "books_isbn_key")
		}
		if *in.AvailableCopies < 0 {
			return violation(storage.CheckViolation, "books_available_copies_check")
		}
		b.UpdatedAt = r.s.now()
		st.books[id] = applyBook(b, in)
		return nil
	})
	return found, err
}

func applyBook(b catalog.Book, in catalog.BookInput) catalog.Book {
	b.Title = in.Title
	b.Author = in.Author
	b.ISBN = in.ISBN
	b.PublicationYear = in.PublicationYear
	b.Publisher = in.Publisher
	b.Category = in.Category
	b.TotalCopies = *in.TotalCopies
	b.AvailableCopies = *in.AvailableCopies
	b.Location = in.Location
	return b
}

func (r bookRepo) Delete(ctx context.Context, q storage.Querier, id int64) (bool, error) {
	var found bool
	err := r.s.run(ctx, q, func(st *state) error {
		if _, ok := st.books[id]; !ok {
			return nil
		}
		found = true
		for _, rec := range st.records {
			if rec.BookID == id {
				return violation(storage.ForeignKeyViolation, "borrowing_records_book_id_fkey")
			}
		}
		for _, res := range st.reservations {
			if res.BookID == id {
				return violation(storage.ForeignKeyViolation, "reservations_book_id_fkey")
			}
		}
		delete(st.books, id)
		return nil
	})
	return found, err
}
