package membership_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libracatalog/internal/apperror"
	"libracatalog/internal/audit"
	"libracatalog/internal/caldate"
	"libracatalog/internal/catalog"
	"libracatalog/internal/membership"
	"libracatalog/internal/memstore"
	"libracatalog/internal/reservation"
	"libracatalog/internal/storage"
)

func newService(t *testing.T) (membership.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return membership.NewService(store, store.Members(), store.Events(), logger), store
}

func memberInput(email string) membership.MemberInput {
	return membership.MemberInput{
		Name:    "John Doe",
		Email:   email,
		Phone:   "+1-555-0100",
		Address: "1 Main St",
	}
}

func catalogBook(copies *int) catalog.BookInput {
	return catalog.BookInput{
		Title:           "Dune",
		Author:          "Frank Herbert",
		ISBN:            "9780441013593",
		PublicationYear: 1965,
		Publisher:       "Chilton",
		Category:        "Fiction",
		TotalCopies:     copies,
		AvailableCopies: copies,
		Location:        "Shelf C3",
	}
}

func TestCreateMember(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	id, err := svc.CreateMember(ctx, memberInput("john@example.com"))
	require.NoError(t, err)

	m, err := svc.GetMember(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "john@example.com", m.Email)
	assert.Equal(t, membership.StatusActive, m.MembershipStatus)
	assert.Equal(t, caldate.Today(), m.MembershipDate)

	events, err := store.Events().Stream(ctx, store, audit.Filter{AggregateType: membership.AggregateType})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, membership.EventMemberCreated, events[0].EventType)
}

func TestDuplicateEmail(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, err := svc.CreateMember(ctx, memberInput("john@example.com"))
	require.NoError(t, err)
	second, err := svc.CreateMember(ctx, memberInput("jane@example.com"))
	require.NoError(t, err)

	_, err = svc.CreateMember(ctx, memberInput("john@example.com"))
	assert.True(t, apperror.IsConflict(err))
	assert.Equal(t, "Email already registered", apperror.As(err).Message)

	err = svc.UpdateMember(ctx, second, memberInput("john@example.com"))
	assert.True(t, apperror.IsConflict(err))

	require.NoError(t, svc.UpdateMember(ctx, first, memberInput("john@example.com")))
}

func TestUpdateMemberKeepsStatus(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	id, err := svc.CreateMember(ctx, memberInput("john@example.com"))
	require.NoError(t, err)

	in := memberInput("johnny@example.com")
	in.Name = "Johnny Doe"
	require.NoError(t, svc.UpdateMember(ctx, id, in))

	m, err := svc.GetMember(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Johnny Doe", m.Name)
	assert.Equal(t, "johnny@example.com", m.Email)
	assert.Equal(t, membership.StatusActive, m.MembershipStatus)

	err = svc.UpdateMember(ctx, 42, in)
	assert.True(t, apperror.IsNotFound(err))
	assert.Equal(t, "Member not found", apperror.As(err).Message)
}

func TestListMembersPaging(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := svc.CreateMember(ctx, memberInput(email))
		require.NoError(t, err)
	}

	all, err := svc.ListMembers(ctx, storage.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a@example.com", all[0].Email)

	tail, err := svc.ListMembers(ctx, storage.Page{Offset: 2, Limit: 10})
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "c@example.com", tail[0].Email)
}

func TestDeleteMember(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	id, err := svc.CreateMember(ctx, memberInput("john@example.com"))
	require.NoError(t, err)
	require.NoError(t, svc.DeleteMember(ctx, id))

	_, err = svc.GetMember(ctx, id)
	assert.True(t, apperror.IsNotFound(err))
	assert.True(t, apperror.IsNotFound(svc.DeleteMember(ctx, id)))

	events, err := store.Events().Stream(ctx, store, audit.Filter{AggregateID: id})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.JSONEq(t, `{"member_id":1,"email":"john@example.com"}`, string(events[1].Data))
}

func TestDeleteMemberWithReservation(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	id, err := svc.CreateMember(ctx, memberInput("john@example.com"))
	require.NoError(t, err)

	copies := 1
	bookID, err := store.Books().Insert(ctx, store, catalogBook(&copies))
	require.NoError(t, err)
	_, err = store.Reservations().Insert(ctx, store, reservation.ReservationInput{
		BookID:          bookID,
		MemberID:        id,
		ReservationDate: caldate.Today(),
		Status:          reservation.StatusPending,
	})
	require.NoError(t, err)

	err = svc.DeleteMember(ctx, id)
	assert.True(t, apperror.IsConflict(err))
	assert.Equal(t, "Member has dependent records", apperror.As(err).Message)
}
