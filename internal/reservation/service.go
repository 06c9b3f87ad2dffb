package reservation

import (
	"context"

	"libracatalog/internal/storage"
)

// Service defines the interface for the reservation queue.
type Service interface {
	ListReservations(ctx context.Context, page storage.Page) ([]Reservation, error)
	GetReservation(ctx context.Context, id int64) (*Reservation, error)
	CreateReservation(ctx context.Context, in ReservationInput) (int64, error)
	UpdateReservation(ctx context.Context, id int64, in ReservationInput) error
}
