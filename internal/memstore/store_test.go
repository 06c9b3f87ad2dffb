package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libracatalog/internal/audit"
	"libracatalog/internal/caldate"
	"libracatalog/internal/catalog"
	"libracatalog/internal/circulation"
	"libracatalog/internal/membership"
	"libracatalog/internal/reservation"
	"libracatalog/internal/storage"
)

func book(isbn string, copies int) catalog.BookInput {
	return catalog.BookInput{
		Title:           "Dune",
		Author:          "Frank Herbert",
		ISBN:            isbn,
		PublicationYear: 1965,
		Publisher:       "Chilton",
		Category:        "Fiction",
		TotalCopies:     &copies,
		AvailableCopies: &copies,
		Location:        "Shelf C3",
	}
}

func member(email string) membership.MemberInput {
	return membership.MemberInput{Name: "John Doe", Email: email, Phone: "+1-555-0100", Address: "1 Main St"}
}

func loan(bookID, memberID int64) circulation.RecordInput {
	d := caldate.New(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return circulation.RecordInput{
		BookID:     bookID,
		MemberID:   memberID,
		BorrowDate: d,
		DueDate:    caldate.New(d.AddDate(0, 0, 14)),
		Status:     circulation.StatusBorrowed,
	}
}

func TestRollbackRestoresState(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, err := s.Books().Insert(ctx, s, book("9780000000001", 2))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = storage.WithTx(ctx, s, func(q storage.Querier) error {
		if _, err := s.Books().Insert(ctx, q, book("9780000000002", 1)); err != nil {
			return err
		}
		ok, err := s.Records().AdjustCopies(ctx, q, id, -1)
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	books, err := s.Books().List(ctx, s, catalog.ListFilter{})
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, 2, books[0].AvailableCopies)

	next, err := s.Books().Insert(ctx, s, book("9780000000002", 1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)
}

func TestCommitKeepsState(t *testing.T) {
	s := New()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = s.Members().Insert(ctx, tx, member("a@example.com"), caldate.Today(), membership.StatusActive)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	assert.NoError(t, tx.Rollback(ctx))
	assert.ErrorIs(t, tx.Commit(ctx), errTxDone)
	_, err = s.Members().Get(ctx, tx, 1)
	assert.ErrorIs(t, err, errTxDone)

	m, err := s.Members().Get(ctx, s, 1)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", m.Email)
}

func TestBeginSerializesTransactions(t *testing.T) {
	s := New()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		other, err := s.Begin(ctx)
		if err == nil {
			other.Rollback(ctx)
		}
		close(done)
	}()

	<-started
	select {
	case <-done:
		t.Fatal("second transaction began while the first was open")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, tx.Rollback(ctx))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second transaction never began")
	}
}

func TestConstraints(t *testing.T) {
	s := New()
	ctx := context.Background()

	b, err := s.Books().Insert(ctx, s, book("9780000000001", 1))
	require.NoError(t, err)
	m, err := s.Members().Insert(ctx, s, member("a@example.com"), caldate.Today(), membership.StatusActive)
	require.NoError(t, err)

	_, err = s.Books().Insert(ctx, s, book("9780000000001", 1))
	assert.True(t, storage.IsConstraint(err, storage.UniqueViolation))
	assert.Equal(t, "books_isbn_key", storage.ConstraintName(err))

	_, err = s.Members().Insert(ctx, s, member("a@example.com"), caldate.Today(), membership.StatusActive)
	assert.Equal(t, "members_email_key", storage.ConstraintName(err))

	_, err = s.Records().Insert(ctx, s, loan(b, 99))
	assert.True(t, storage.IsConstraint(err, storage.ForeignKeyViolation))

	bad := loan(b, m)
	bad.DueDate = caldate.New(bad.BorrowDate.AddDate(0, 0, -1))
	_, err = s.Records().Insert(ctx, s, bad)
	assert.True(t, storage.IsConstraint(err, storage.CheckViolation))

	_, err = s.Records().Insert(ctx, s, loan(b, m))
	require.NoError(t, err)
	_, err = s.Records().Insert(ctx, s, loan(b, m))
	assert.Equal(t, "borrowing_records_one_active_per_book", storage.ConstraintName(err))

	_, err = s.Reservations().Insert(ctx, s, reservation.ReservationInput{
		BookID: b, MemberID: m, ReservationDate: caldate.Today(), Status: reservation.StatusPending,
	})
	require.NoError(t, err)
	_, err = s.Reservations().Insert(ctx, s, reservation.ReservationInput{
		BookID: b, MemberID: m, ReservationDate: caldate.Today(), Status: reservation.StatusPending,
	})
	assert.Equal(t, "reservations_one_pending_per_pair", storage.ConstraintName(err))

	_, err = s.Books().Delete(ctx, s, b)
	assert.True(t, storage.IsConstraint(err, storage.ForeignKeyViolation))
	_, err = s.Members().Delete(ctx, s, m)
	assert.True(t, storage.IsConstraint(err, storage.ForeignKeyViolation))
}

func TestAdjustCopiesNeverNegative(t *testing.T) {
	s := New()
	ctx := context.Background()

	b, err := s.Books().Insert(ctx, s, book("9780000000001", 1))
	require.NoError(t, err)

	ok, err := s.Records().AdjustCopies(ctx, s, b, -1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Records().AdjustCopies(ctx, s, b, -1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Records().AdjustCopies(ctx, s, 99, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	available, err := s.Records().LockBook(ctx, s, b)
	require.NoError(t, err)
	assert.Equal(t, 0, available)
}

func TestEventsStream(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		aggregate := "book"
		if i%2 == 0 {
			aggregate = "member"
		}
		_, err := s.Events().Append(ctx, s, audit.Event{
			AggregateType: aggregate,
			AggregateID:   i,
			EventType:     aggregate + ".created",
			Data:          []byte(`{}`),
		})
		require.NoError(t, err)
	}

	_, err := s.Events().Append(ctx, s, audit.Event{AggregateType: "book"})
	assert.ErrorIs(t, err, audit.ErrInvalidEvent)

	books, err := s.Events().Stream(ctx, s, audit.Filter{AggregateType: "book"})
	require.NoError(t, err)
	require.Len(t, books, 3)
	assert.Equal(t, []int64{1, 3, 5}, []int64{books[0].ID, books[1].ID, books[2].ID})

	page, err := s.Events().Stream(ctx, s, audit.Filter{AfterID: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(3), page[0].ID)
	assert.Equal(t, int64(4), page[1].ID)
}

func TestClosedStore(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Ping(ctx), errClosed)

	_, err := s.Begin(ctx)
	assert.ErrorIs(t, err, errClosed)
	_, err = s.Books().Get(ctx, s, 1)
	assert.ErrorIs(t, err, errClosed)
}

func TestRawSQLUnsupported(t *testing.T) {
	s := New()
	_, err := s.Exec(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrRawSQL)

	var n int
	assert.ErrorIs(t, s.QueryRow(context.Background(), "SELECT 1").Scan(&n), ErrRawSQL)
}
