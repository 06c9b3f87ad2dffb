package circulation

import (
	"context"

	"libracatalog/internal/storage"
)

// Service defines the interface for the borrowing workflow.
type Service interface {
	ListRecords(ctx context.Context, page storage.Page) ([]BorrowingRecord, error)
	GetRecord(ctx context.Context, id int64) (*BorrowingRecord, error)
	Checkout(ctx context.Context, in RecordInput) (int64, error)
	UpdateRecord(ctx context.Context, id int64, in RecordInput) error
}
