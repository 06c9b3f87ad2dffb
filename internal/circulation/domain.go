package circulation

import (
	"time"

	"libracatalog/internal/caldate"
)

// Borrowing record statuses.
const (
	StatusBorrowed = "Borrowed"
	StatusReturned = "Returned"
	StatusOverdue  = "Overdue"
)

// BorrowingRecord ties one copy of a book to a member for a loan period.
type BorrowingRecord struct {
	ID         int64         `json:"record_id"`
	BookID     int64         `json:"book_id"`
	MemberID   int64         `json:"member_id"`
	BorrowDate caldate.Date  `json:"borrow_date"`
	DueDate    caldate.Date  `json:"due_date"`
	ReturnDate *caldate.Date `json:"return_date"`
	FineAmount float64       `json:"fine_amount"`
	Status     string        `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// RecordInput is the caller supplied body for checkout and update.
type RecordInput struct {
	BookID     int64         `json:"book_id" validate:"required"`
	MemberID   int64         `json:"member_id" validate:"required"`
	BorrowDate caldate.Date  `json:"borrow_date" validate:"required"`
	DueDate    caldate.Date  `json:"due_date" validate:"required"`
	ReturnDate *caldate.Date `json:"return_date"`
	FineAmount float64       `json:"fine_amount" validate:"gte=0,cents"`
	Status     string        `json:"status" validate:"oneof=Borrowed Returned Overdue"`
}

// ApplyDefaults fills an omitted status with Borrowed.
func (in *RecordInput) ApplyDefaults() {
	if in.Status == "" {
		in.Status = StatusBorrowed
	}
}

const (
	AggregateType       = "borrowing"
	EventCheckedOut     = "borrowing.checked_out"
	EventRecordUpdated  = "borrowing.updated"
	EventRecordReturned = "borrowing.returned"
)
