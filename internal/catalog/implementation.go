package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libracatalog/internal/apperror"
	"libracatalog/internal/audit"
	"libracatalog/internal/storage"
)

const (
	msgDuplicateISBN = "Book with this ISBN already exists"
	msgBookInUse     = "Book has dependent records"
)

// service implements the Service interface.
type service struct {
	db     storage.DB
	repo   Repository
	events audit.Store
	logger *slog.Logger
	tracer trace.Tracer
}

// NewService creates a new catalog service instance.
func NewService(db storage.DB, repo Repository, events audit.Store, logger *slog.Logger) Service {
	return &service{
		db:     db,
		repo:   repo,
		events: events,
		logger: logger,
		tracer: otel.Tracer("libracatalog/catalog"),
	}
}

// ListBooks returns books ordered by id.
func (s *service) ListBooks(ctx context.Context, filter ListFilter) ([]Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.list_books",
		trace.WithAttributes(attribute.Bool("search", filter.Search != "")),
	)
	defer span.End()

	books, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		span.RecordError(err)
		return nil, apperror.Internal(err)
	}
	span.SetAttributes(attribute.Int("books.count", len(books)))
	return books, nil
}

// GetBook retrieves a book by its ID.
func (s *service) GetBook(ctx context.Context, id int64) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.get_book",
		trace.WithAttributes(attribute.Int64("book.id", id)),
	)
	defer span.End()

	book, err := s.repo.Get(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return nil, apperror.NotFound("Book")
		}
		span.RecordError(err)
		return nil, apperror.Internal(fmt.Errorf("failed to get book %d: %w", id, err))
	}
	return book, nil
}

// CreateBook adds a book. A duplicate ISBN is a conflict.
func (s *service) CreateBook(ctx context.Context, in BookInput) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.create_book",
		trace.WithAttributes(attribute.String("book.isbn", in.ISBN)),
	)
	defer span.End()

	var id int64
	err := storage.WithTx(ctx, s.db, func(q storage.Querier) error {
		var err error
		id, err = s.repo.Insert(ctx, q, in)
		if err != nil {
			if storage.IsConstraint(err, storage.UniqueViolation) {
				return apperror.Conflict(msgDuplicateISBN)
			}
			return fmt.Errorf("failed to insert book: %w", err)
		}
		book, err := s.repo.Get(ctx, q, id)
		if err != nil {
			return fmt.Errorf("failed to reload book %d: %w", id, err)
		}
		return audit.Record(ctx, s.events, q, AggregateType, id, EventBookCreated, book)
	})
	if err != nil {
		span.RecordError(err)
		return 0, apperror.As(err)
	}

	span.SetAttributes(attribute.Int64("book.id", id))
	s.logger.InfoContext(ctx, "book created", "book_id", id, "isbn", in.ISBN)
	return id, nil
}

// UpdateBook replaces every caller controlled field of a book.
func (s *service) UpdateBook(ctx context.Context, id int64, in BookInput) error {
	ctx, span := s.tracer.Start(ctx, "catalog.update_book",
		trace.WithAttributes(attribute.Int64("book.id", id)),
	)
	defer span.End()

	err := storage.WithTx(ctx, s.db, func(q storage.Querier) error {
		found, err := s.repo.Update(ctx, q, id, in)
		if err != nil {
			if storage.IsConstraint(err, storage.UniqueViolation) {
				return apperror.Conflict(msgDuplicateISBN)
			}
			return fmt.Errorf("failed to update book %d: %w", id, err)
		}
		if !found {
			return apperror.NotFound("Book")
		}
		book, err := s.repo.Get(ctx, q, id)
		if err != nil {
			return fmt.Errorf("failed to reload book %d: %w", id, err)
		}
		return audit.Record(ctx, s.events, q, AggregateType, id, EventBookUpdated, book)
	})
	if err != nil {
		span.RecordError(err)
		return apperror.As(err)
	}
	return nil
}

// DeleteBook removes a book. The store refuses while borrowing records or
// reservations still reference it.
func (s *service) DeleteBook(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "catalog.delete_book",
		trace.WithAttributes(attribute.Int64("book.id", id)),
	)
	defer span.End()

	err := storage.WithTx(ctx, s.db, func(q storage.Querier) error {
		book, err := s.repo.Get(ctx, q, id)
		if err != nil {
			if errors.Is(err, storage.ErrNoRows) {
				return apperror.NotFound("Book")
			}
			return fmt.Errorf("failed to get book %d: %w", id, err)
		}
		if _, err := s.repo.Delete(ctx, q, id); err != nil {
			if storage.IsConstraint(err, storage.ForeignKeyViolation) {
				return apperror.Conflict(msgBookInUse)
			}
			return fmt.Errorf("failed to delete book %d: %w", id, err)
		}
		return audit.Record(ctx, s.events, q, AggregateType, id, EventBookDeleted, BookDeletedEvent{ID: id, ISBN: book.ISBN})
	})
	if err != nil {
		span.RecordError(err)
		return apperror.As(err)
	}

	s.logger.InfoContext(ctx, "book deleted", "book_id", id)
	return nil
}
