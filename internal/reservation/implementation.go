package reservation

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

const msgDuplicateReservation = "Reservation already exists"

// service implements the Service interface.
type service struct {
	db     storage.DB
	repo   Repository
	events audit.Store
	logger *slog.Logger
	tracer trace.Tracer
}

// NewService creates a new reservation service instance.
func NewService(db storage.DB, repo Repository, events audit.Store, logger *slog.Logger) Service {
	return &service{
		db:     db,
		repo:   repo,
		events: events,
		logger: logger,
		tracer: otel.Tracer("libracatalog/reservation"),
	}
}

func (s *service) ListReservations(ctx context.Context, page storage.Page) ([]Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.list_reservations")
	defer span.End()

	reservations, err := s.repo.List(ctx, s.db, page)
	if err != nil {
		span.RecordError(err)
		return nil, apperror.Internal(err)
	}
	span.SetAttributes(attribute.Int("reservations.count", len(reservations)))
	return reservations, nil
}

func (s *service) GetReservation(ctx context.Context, id int64) (*Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.get_reservation",
		trace.WithAttributes(attribute.Int64("reservation.id", id)),
	)
	defer span.End()

	r, err := s.repo.Get(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return nil, apperror.NotFound("Reservation")
		}
		span.RecordError(err)
		return nil, apperror.Internal(fmt.Errorf("failed to get reservation %d: %w", id, err))
	}
	return r, nil
}

// CreateReservation queues a hold. A member holds at most one Pending
// reservation per book.
func (s *service) CreateReservation(ctx context.Context, in ReservationInput) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.create_reservation",
		trace.WithAttributes(
			attribute.Int64("book.id", in.BookID),
			attribute.Int64("member.id", in.MemberID),
		),
	)
	defer span.End()

	var id int64
	err := storage.WithTx(ctx, s.db, func(q storage.Querier) error {
		if err := s.checkParties(ctx, q, in.BookID, in.MemberID); err != nil {
			return err
		}
		if err := s.checkPending(ctx, q, in, 0); err != nil {
			return err
		}

		var err error
		id, err = s.repo.Insert(ctx, q, in)
		if err != nil {
			if storage.IsConstraint(err, storage.UniqueViolation) {
				return apperror.Conflict(msgDuplicateReservation)
			}
			return fmt.Errorf("failed to insert reservation: %w", err)
		}
		r, err := s.repo.Get(ctx, q, id)
		if err != nil {
			return fmt.Errorf("failed to reload reservation %d: %w", id, err)
		}
		return audit.Record(ctx, s.events, q, AggregateType, id, EventReservationCreated, r)
	})
	if err != nil {
		span.RecordError(err)
		return 0, apperror.As(err)
	}

	s.logger.InfoContext(ctx, "reservation created",
		"reservation_id", id, "book_id", in.BookID, "member_id", in.MemberID)
	return id, nil
}

// UpdateReservation replaces every field of a reservation.
func (s *service) UpdateReservation(ctx context.Context, id int64, in ReservationInput) error {
	ctx, span := s.tracer.Start(ctx, "reservation.update_reservation",
		trace.WithAttributes(
			attribute.Int64("reservation.id", id),
			attribute.String("reservation.status", in.Status),
		),
	)
	defer span.End()

	err := storage.WithTx(ctx, s.db, func(q storage.Querier) error {
		old, err := s.repo.Get(ctx, q, id)
		if err != nil {
			if errors.Is(err, storage.ErrNoRows) {
				return apperror.NotFound("Reservation")
			}
			return fmt.Errorf("failed to load reservation %d: %w", id, err)
		}
		if in.BookID != old.BookID || in.MemberID != old.MemberID {
			if err := s.checkParties(ctx, q, in.BookID, in.MemberID); err != nil {
				return err
			}
		} else if err := s.repo.LockBook(ctx, q, in.BookID); err != nil {
			return fmt.Errorf("failed to lock book %d: %w", in.BookID, err)
		}
		if err := s.checkPending(ctx, q, in, id); err != nil {
			return err
		}

		if _, err := s.repo.Update(ctx, q, id, in); err != nil {
			if storage.IsConstraint(err, storage.UniqueViolation) {
				return apperror.Conflict(msgDuplicateReservation)
			}
			return fmt.Errorf("failed to update reservation %d: %w", id, err)
		}
		r, err := s.repo.Get(ctx, q, id)
		if err != nil {
			return fmt.Errorf("failed to reload reservation %d: %w", id, err)
		}
		return audit.Record(ctx, s.events, q, AggregateType, id, EventReservationUpdated, r)
	})
	if err != nil {
		span.RecordError(err)
		return apperror.As(err)
	}
	return nil
}

// checkParties locks the book and confirms both parties exist, book first.
func (s *service) checkParties(ctx context.Context, q storage.Querier, bookID, memberID int64) error {
	if err := s.repo.LockBook(ctx, q, bookID); err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return apperror.NotFound("Book")
		}
		return fmt.Errorf("failed to lock book %d: %w", bookID, err)
	}
	ok, err := s.repo.MemberExists(ctx, q, memberID)
	if err != nil {
		return fmt.Errorf("failed to look up member %d: %w", memberID, err)
	}
	if !ok {
		return apperror.NotFound("Member")
	}
	return nil
}

func (s *service) checkPending(ctx context.Context, q storage.Querier, in ReservationInput, excludeID int64) error {
	if in.Status != StatusPending {
		return nil
	}
	dup, err := s.repo.HasPending(ctx, q, in.BookID, in.MemberID, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check pending reservations: %w", err)
	}
	if dup {
		return apperror.Conflict(msgDuplicateReservation)
	}
	return nil
}
