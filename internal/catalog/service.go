package catalog

import (
	"context"
)

// Service defines the interface for the book catalog.
type Service interface {
	ListBooks(ctx context.Context, filter ListFilter) ([]Book, error)
	GetBook(ctx context.Context, id int64) (*Book, error)
	CreateBook(ctx context.Context, in BookInput) (int64, error)
	UpdateBook(ctx context.Context, id int64, in BookInput) error
	DeleteBook(ctx context.Context, id int64) error
}
