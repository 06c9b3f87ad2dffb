package membership

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
	"libracatalog/internal/caldate"
	"libracatalog/internal/storage"
)

const (
	msgDuplicateEmail = "Email already registered"
	msgMemberInUse    = "Member has dependent records"
)

// service implements the Service interface.
type service struct {
	db     storage.DB
	repo   Repository
	events audit.Store
	logger *slog.Logger
	tracer trace.Tracer
	today  func() caldate.Date
}

// NewService creates a new membership service instance.
func NewService(db storage.DB, repo Repository, events audit.Store, logger *slog.Logger) Service {
	return &service{
		db:     db,
		repo:   repo,
		events: events,
		logger: logger,
		tracer: otel.Tracer("libracatalog/membership"),
		today:  caldate.Today,
	}
}

func (s *service) ListMembers(ctx context.Context, page storage.Page) ([]Member, error) {
	ctx, span := s.tracer.Start(ctx, "membership.list_members")
	defer span.End()

	members, err := s.repo.List(ctx, s.db, page)
	if err != nil {
		span.RecordError(err)
		return nil, apperror.Internal(err)
	}
	span.SetAttributes(attribute.Int("members.count", len(members)))
	return members, nil
}

func (s *service) GetMember(ctx context.Context, id int64) (*Member, error) {
	ctx, span := s.tracer.Start(ctx, "membership.get_member",
		trace.WithAttributes(attribute.Int64("member.id", id)),
	)
	defer span.End()

	member, err := s.repo.Get(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return nil, apperror.NotFound("Member")
		}
		span.RecordError(err)
		return nil, apperror.Internal(fmt.Errorf("failed to get member %d: %w", id, err))
	}
	return member, nil
}

// CreateMember registers a member as Active from today.
func (s *service) CreateMember(ctx context.Context, in MemberInput) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "membership.create_member")
	defer span.End()

	var id int64
	err := storage.WithTx(ctx, s.db, func(q storage.Querier) error {
		var err error
		id, err = s.repo.Insert(ctx, q, in, s.today(), StatusActive)
		if err != nil {
			if storage.IsConstraint(err, storage.UniqueViolation) {
				return apperror.Conflict(msgDuplicateEmail)
			}
			return fmt.Errorf("failed to insert member: %w", err)
		}
		member, err := s.repo.Get(ctx, q, id)
		if err != nil {
			return fmt.Errorf("failed to reload member %d: %w", id, err)
		}
		return audit.Record(ctx, s.events, q, AggregateType, id, EventMemberCreated, member)
	})
	if err != nil {
		span.RecordError(err)
		return 0, apperror.As(err)
	}

	span.SetAttributes(attribute.Int64("member.id", id))
	s.logger.InfoContext(ctx, "member registered", "member_id", id)
	return id, nil
}

// UpdateMember changes the profile fields. Membership date and status stay.
func (s *service) UpdateMember(ctx context.Context, id int64, in MemberInput) error {
	ctx, span := s.tracer.Start(ctx, "membership.update_member",
		trace.WithAttributes(attribute.Int64("member.id", id)),
	)
	defer span.End()

	err := storage.WithTx(ctx, s.db, func(q storage.Querier) error {
		found, err := s.repo.Update(ctx, q, id, in)
		if err != nil {
			if storage.IsConstraint(err, storage.UniqueViolation) {
				return apperror.Conflict(msgDuplicateEmail)
			}
			return fmt.Errorf("failed to update member %d: %w", id, err)
		}
		if !found {
			return apperror.NotFound("Member")
		}
		member, err := s.repo.Get(ctx, q, id)
		if err != nil {
			return fmt.Errorf("failed to reload member %d: %w", id, err)
		}
		return audit.Record(ctx, s.events, q, AggregateType, id, EventMemberUpdated, member)
	})
	if err != nil {
		span.RecordError(err)
		return apperror.As(err)
	}
	return nil
}

// DeleteMember removes a member with no borrowing records or reservations.
func (s *service) DeleteMember(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "membership.delete_member",
		trace.WithAttributes(attribute.Int64("member.id", id)),
	)
	defer span.End()

	err := storage.WithTx(ctx, s.db, func(q storage.Querier) error {
		member, err := s.repo.Get(ctx, q, id)
		if err != nil {
			if errors.Is(err, storage.ErrNoRows) {
				return apperror.NotFound("Member")
			}
			return fmt.Errorf("failed to get member %d: %w", id, err)
		}
		if _, err := s.repo.Delete(ctx, q, id); err != nil {
			if storage.IsConstraint(err, storage.ForeignKeyViolation) {
				return apperror.Conflict(msgMemberInUse)
			}
			return fmt.Errorf("failed to delete member %d: %w", id, err)
		}
		return audit.Record(ctx, s.events, q, AggregateType, id, EventMemberDeleted,
			MemberDeletedEvent{ID: id, Email: member.Email})
	})
	if err != nil {
		span.RecordError(err)
		return apperror.As(err)
	}

	s.logger.InfoContext(ctx, "member deleted", "member_id", id)
	return nil
}
