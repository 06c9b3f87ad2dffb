package circulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"libracatalog/internal/apperror"
	"libracatalog/internal/audit"
	"libracatalog/internal/storage"
)

const (
	msgUnavailable     = "Book is not available for borrowing"
	msgAlreadyBorrowed = "Book is already borrowed"
	entityRecord       = "Borrowing record"
	msgRecordBusy      = "Borrowing record is being updated, try again"

	maxLockAttempts = 3
)

// Rejection reasons reported on the checkout_rejections counter.
const (
	reasonBookNotFound    = "book_not_found"
	reasonUnavailable     = "unavailable"
	reasonMemberNotFound  = "member_not_found"
	reasonAlreadyBorrowed = "already_borrowed"
)

type metrics struct {
	checkouts  metric.Int64Counter
	returns    metric.Int64Counter
	rejections metric.Int64Counter
}

func newMetrics(meter metric.Meter) (metrics, error) {
	var m metrics
	var err, errs error
	m.checkouts, err = meter.Int64Counter("libracatalog.checkouts",
		metric.WithDescription("Borrowing records created"))
	errs = errors.Join(errs, err)
	m.returns, err = meter.Int64Counter("libracatalog.returns",
		metric.WithDescription("Borrowing records moved to Returned"))
	errs = errors.Join(errs, err)
	m.rejections, err = meter.Int64Counter("libracatalog.checkout_rejections",
		metric.WithDescription("Checkouts refused by a business rule"))
	errs = errors.Join(errs, err)
	return m, errs
}

// service implements the Service interface.
type service struct {
	db      storage.DB
	repo    Repository
	events  audit.Store
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics metrics
}

// NewService creates a new circulation service instance.
func NewService(db storage.DB, repo Repository, events audit.Store, logger *slog.Logger) Service {
	m, err := newMetrics(otel.Meter("libracatalog/circulation"))
	if err != nil {
		logger.Warn("failed to register circulation metrics", "error", err)
		m, _ = newMetrics(noop.NewMeterProvider().Meter(""))
	}
	return &service{
		db:      db,
		repo:    repo,
		events:  events,
		logger:  logger,
		tracer:  otel.Tracer("libracatalog/circulation"),
		metrics: m,
	}
}

func (s *service) ListRecords(ctx context.Context, page storage.Page) ([]BorrowingRecord, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.list_records")
	defer span.End()

	records, err := s.repo.List(ctx, s.db, page)
	if err != nil {
		span.RecordError(err)
		return nil, apperror.Internal(err)
	}
	span.SetAttributes(attribute.Int("records.count", len(records)))
	return records, nil
}

func (s *service) GetRecord(ctx context.Context, id int64) (*BorrowingRecord, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.get_record",
		trace.WithAttributes(attribute.Int64("record.id", id)),
	)
	defer span.End()

	record, err := s.repo.Get(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return nil, apperror.NotFound(entityRecord)
		}
		span.RecordError(err)
		return nil, apperror.Internal(fmt.Errorf("failed to get borrowing record %d: %w", id, err))
	}
	return record, nil
}

// Checkout lends a copy of a book to a member. The book row stays locked from
// the first check until commit, so concurrent checkouts of the same book are
// decided one at a time.
func (s *service) Checkout(ctx context.Context, in RecordInput) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.checkout",
		trace.WithAttributes(
			attribute.Int64("book.id", in.BookID),
			attribute.Int64("member.id", in.MemberID),
		),
	)
	defer span.End()

	var id int64
	var reason string
	err := storage.WithTx(ctx, s.db, func(q storage.Querier) error {
		available, err := s.repo.LockBook(ctx, q, in.BookID)
		if err != nil {
			if errors.Is(err, storage.ErrNoRows) {
				reason = reasonBookNotFound
				return apperror.NotFound("Book")
			}
			return fmt.Errorf("failed to lock book %d: %w", in.BookID, err)
		}
		if available <= 0 {
			reason = reasonUnavailable
			return apperror.Conflict(msgUnavailable)
		}

		ok, err := s.repo.MemberExists(ctx, q, in.MemberID)
		if err != nil {
			return fmt.Errorf("failed to look up member %d: %w", in.MemberID, err)
		}
		if !ok {
			reason = reasonMemberNotFound
			return apperror.NotFound("Member")
		}

		active, err := s.repo.HasActiveLoan(ctx, q, in.BookID, 0)
		if err != nil {
			return fmt.Errorf("failed to check loans for book %d: %w", in.BookID, err)
		}
		if active {
			reason = reasonAlreadyBorrowed
			return apperror.Conflict(msgAlreadyBorrowed)
		}

		id, err = s.repo.Insert(ctx, q, in)
		if err != nil {
			if storage.IsConstraint(err, storage.UniqueViolation) {
				reason = reasonAlreadyBorrowed
				return apperror.Conflict(msgAlreadyBorrowed)
			}
			return fmt.Errorf("failed to insert borrowing record: %w", err)
		}

		if err := s.applyDeltas(ctx, q, transition(0, "", in.BookID, in.Status)); err != nil {
			if apperror.IsConflict(err) {
				reason = reasonUnavailable
			}
			return err
		}

		record, err := s.repo.Get(ctx, q, id)
		if err != nil {
			return fmt.Errorf("failed to reload borrowing record %d: %w", id, err)
		}
		return audit.Record(ctx, s.events, q, AggregateType, id, EventCheckedOut, record)
	})
	if err != nil {
		span.RecordError(err)
		if reason != "" {
			s.metrics.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
			s.logger.InfoContext(ctx, "checkout rejected",
				"book_id", in.BookID, "member_id", in.MemberID, "reason", reason)
		}
		return 0, apperror.As(err)
	}

	s.metrics.checkouts.Add(ctx, 1)
	span.SetAttributes(attribute.Int64("record.id", id))
	s.logger.InfoContext(ctx, "book checked out",
		"record_id", id, "book_id", in.BookID, "member_id", in.MemberID)
	return id, nil
}

// UpdateRecord replaces a record and moves copies between shelf and loan as
// the status and book change.
func (s *service) UpdateRecord(ctx context.Context, id int64, in RecordInput) error {
	ctx, span := s.tracer.Start(ctx, "circulation.update_record",
		trace.WithAttributes(
			attribute.Int64("record.id", id),
			attribute.String("record.status", in.Status),
		),
	)
	defer span.End()

	var returned bool
	err := storage.WithTx(ctx, s.db, func(q storage.Querier) error {
		old, err := s.lockRecord(ctx, q, id, in.BookID)
		if err != nil {
			return err
		}

		if in.MemberID != old.MemberID {
			ok, err := s.repo.MemberExists(ctx, q, in.MemberID)
			if err != nil {
				return fmt.Errorf("failed to look up member %d: %w", in.MemberID, err)
			}
			if !ok {
				return apperror.NotFound("Member")
			}
		}
		if in.Status == StatusBorrowed {
			active, err := s.repo.HasActiveLoan(ctx, q, in.BookID, id)
			if err != nil {
				return fmt.Errorf("failed to check loans for book %d: %w", in.BookID, err)
			}
			if active {
				return apperror.Conflict(msgAlreadyBorrowed)
			}
		}

		if _, err := s.repo.Update(ctx, q, id, in); err != nil {
			if storage.IsConstraint(err, storage.UniqueViolation) {
				return apperror.Conflict(msgAlreadyBorrowed)
			}
			return fmt.Errorf("failed to update borrowing record %d: %w", id, err)
		}

		if err := s.applyDeltas(ctx, q, transition(old.BookID, old.Status, in.BookID, in.Status)); err != nil {
			return err
		}

		record, err := s.repo.Get(ctx, q, id)
		if err != nil {
			return fmt.Errorf("failed to reload borrowing record %d: %w", id, err)
		}
		eventType := EventRecordUpdated
		if in.Status == StatusReturned && old.Status != StatusReturned {
			eventType = EventRecordReturned
			returned = true
		}
		return audit.Record(ctx, s.events, q, AggregateType, id, eventType, record)
	})
	if err != nil {
		span.RecordError(err)
		return apperror.As(err)
	}

	if returned {
		s.metrics.returns.Add(ctx, 1)
		s.logger.InfoContext(ctx, "book returned", "record_id", id, "book_id", in.BookID)
	}
	return nil
}

// lockRecord locks the old and new book rows in ascending id order and then
// the record, the same book-before-record order Checkout uses. A record moved
// to an unlocked book in between is re-read.
func (s *service) lockRecord(ctx context.Context, q storage.Querier, id, bookID int64) (*BorrowingRecord, error) {
	locked := make(map[int64]bool, 2)
	for i := 0; i < maxLockAttempts; i++ {
		current, err := s.repo.Get(ctx, q, id)
		if err != nil {
			return nil, recordLoadError(id, err)
		}

		books := []int64{bookID, current.BookID}
		slices.Sort(books)
		for _, b := range slices.Compact(books) {
			if locked[b] {
				continue
			}
			if _, err := s.repo.LockBook(ctx, q, b); err != nil {
				if errors.Is(err, storage.ErrNoRows) {
					return nil, apperror.NotFound("Book")
				}
				return nil, fmt.Errorf("failed to lock book %d: %w", b, err)
			}
			locked[b] = true
		}

		record, err := s.repo.GetForUpdate(ctx, q, id)
		if err != nil {
			return nil, recordLoadError(id, err)
		}
		if locked[record.BookID] {
			return record, nil
		}
	}
	return nil, apperror.Conflict(msgRecordBusy)
}

func recordLoadError(id int64, err error) error {
	if errors.Is(err, storage.ErrNoRows) {
		return apperror.NotFound(entityRecord)
	}
	return fmt.Errorf("failed to load borrowing record %d: %w", id, err)
}

func (s *service) applyDeltas(ctx context.Context, q storage.Querier, deltas []copyDelta) error {
	for _, d := range deltas {
		ok, err := s.repo.AdjustCopies(ctx, q, d.BookID, d.Delta)
		if err != nil {
			return fmt.Errorf("failed to adjust copies of book %d by %d: %w", d.BookID, d.Delta, err)
		}
		if !ok {
			if d.Delta < 0 {
				return apperror.Conflict(msgUnavailable)
			}
			return apperror.NotFound("Book")
		}
	}
	return nil
}
