// Package reservation keeps members' requests to borrow a book once a copy
// is free. Reservations are never fulfilled automatically.
package reservation

import (
	"time"

	"libracatalog/internal/caldate"
)

const (
	StatusPending   = "Pending"
	StatusFulfilled = "Fulfilled"
	StatusCancelled = "Cancelled"
)

// Reservation is a member's hold request on a book.
type Reservation struct {
	ID              int64        `json:"reservation_id"`
	BookID          int64        `json:"book_id"`
	MemberID        int64        `json:"member_id"`
	ReservationDate caldate.Date `json:"reservation_date"`
	Status          string       `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

type ReservationInput struct {
	BookID          int64        `json:"book_id" validate:"required"`
	MemberID        int64        `json:"member_id" validate:"required"`
	ReservationDate caldate.Date `json:"reservation_date" validate:"required"`
	Status          string       `json:"status" validate:"oneof=Pending Fulfilled Cancelled"`
}

// ApplyDefaults fills an omitted status with Pending.
func (in *ReservationInput) ApplyDefaults() {
	if in.Status == "" {
		in.Status = StatusPending
	}
}

const (
	AggregateType           = "reservation"
	EventReservationCreated = "reservation.created"
	EventReservationUpdated = "reservation.updated"
)
