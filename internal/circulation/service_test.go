package circulation_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"libracatalog/internal/apperror"
	"libracatalog/internal/audit"
	"libracatalog/internal/caldate"
	"libracatalog/internal/catalog"
	"libracatalog/internal/circulation"
	"libracatalog/internal/membership"
	"libracatalog/internal/memstore"
	"libracatalog/internal/storage"
)

type fixture struct {
	svc   circulation.Service
	store *memstore.Store
	books int
}

func newFixture() *fixture {
	store := memstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		svc:   circulation.NewService(store, store.Records(), store.Events(), logger),
		store: store,
	}
}

func (f *fixture) addBook(t require.TestingT, copies int) int64 {
	f.books++
	isbn := fmt.Sprintf("978%010d", f.books)
	id, err := f.store.Books().Insert(context.Background(), f.store, catalog.BookInput{
		Title:           "Dune",
		Author:          "Frank Herbert",
		ISBN:            isbn,
		PublicationYear: 1965,
		Publisher:       "Chilton",
		Category:        "Fiction",
		TotalCopies:     &copies,
		AvailableCopies: &copies,
		Location:        "Shelf C3",
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) addMember(t require.TestingT, email string) int64 {
	id, err := f.store.Members().Insert(context.Background(), f.store, membership.MemberInput{
		Name:    "John Doe",
		Email:   email,
		Phone:   "+1-555-0100",
		Address: "1 Main St",
	}, caldate.Today(), membership.StatusActive)
	require.NoError(t, err)
	return id
}

func (f *fixture) available(t require.TestingT, bookID int64) int {
	b, err := f.store.Books().Get(context.Background(), f.store, bookID)
	require.NoError(t, err)
	return b.AvailableCopies
}

func loan(bookID, memberID int64, status string) circulation.RecordInput {
	today := caldate.Today()
	return circulation.RecordInput{
		BookID:     bookID,
		MemberID:   memberID,
		BorrowDate: today,
		DueDate:    caldate.New(today.AddDate(0, 0, 14)),
		Status:     status,
	}
}

func TestCheckout(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	book := f.addBook(t, 2)
	member := f.addMember(t, "john@example.com")

	id, err := f.svc.Checkout(ctx, loan(book, member, circulation.StatusBorrowed))
	require.NoError(t, err)
	assert.Equal(t, 1, f.available(t, book))

	rec, err := f.svc.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, circulation.StatusBorrowed, rec.Status)
	assert.Nil(t, rec.ReturnDate)
	assert.Zero(t, rec.FineAmount)

	events, err := f.store.Events().Stream(ctx, f.store, audit.Filter{AggregateType: circulation.AggregateType})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, circulation.EventCheckedOut, events[0].EventType)
}

func TestCheckoutRejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	empty := f.addBook(t, 0)
	book := f.addBook(t, 3)
	member := f.addMember(t, "john@example.com")
	other := f.addMember(t, "jane@example.com")

	_, err := f.svc.Checkout(ctx, loan(book, member, circulation.StatusBorrowed))
	require.NoError(t, err)

	tests := []struct {
		name string
		in   circulation.RecordInput
		kind apperror.Kind
		msg  string
	}{
		{"missing book", loan(999, member, circulation.StatusBorrowed), apperror.KindNotFound, "Book not found"},
		{"no copies", loan(empty, member, circulation.StatusBorrowed), apperror.KindConflict, "Book is not available for borrowing"},
		{"missing member", loan(book, 999, circulation.StatusBorrowed), apperror.KindNotFound, "Member not found"},
		{"already borrowed", loan(book, other, circulation.StatusBorrowed), apperror.KindConflict, "Book is already borrowed"},
		{"availability checked before member", loan(empty, 999, circulation.StatusBorrowed), apperror.KindConflict, "Book is not available for borrowing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Checkout(ctx, tt.in)
			require.Error(t, err)
			ae := apperror.As(err)
			assert.Equal(t, tt.kind, ae.Kind)
			assert.Equal(t, tt.msg, ae.Message)
		})
	}

	assert.Equal(t, 0, f.available(t, empty))
	assert.Equal(t, 2, f.available(t, book))
	records, err := f.svc.ListRecords(ctx, storage.Page{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestReturnRestoresCopyOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	book := f.addBook(t, 1)
	member := f.addMember(t, "john@example.com")

	id, err := f.svc.Checkout(ctx, loan(book, member, circulation.StatusBorrowed))
	require.NoError(t, err)
	assert.Equal(t, 0, f.available(t, book))

	in := loan(book, member, circulation.StatusOverdue)
	require.NoError(t, f.svc.UpdateRecord(ctx, id, in))
	assert.Equal(t, 0, f.available(t, book))

	in.Status = circulation.StatusReturned
	returned := caldate.Today()
	in.ReturnDate = &returned
	in.FineAmount = 2.5
	require.NoError(t, f.svc.UpdateRecord(ctx, id, in))
	assert.Equal(t, 1, f.available(t, book))

	require.NoError(t, f.svc.UpdateRecord(ctx, id, in))
	assert.Equal(t, 1, f.available(t, book))

	rec, err := f.svc.GetRecord(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec.ReturnDate)
	assert.Equal(t, returned, *rec.ReturnDate)
	assert.Equal(t, 2.5, rec.FineAmount)

	events, err := f.store.Events().Stream(ctx, f.store, audit.Filter{AggregateID: id, AggregateType: circulation.AggregateType})
	require.NoError(t, err)
	var types []string
	for _, ev := range events {
		types = append(types, ev.EventType)
	}
	assert.Equal(t, []string{
		circulation.EventCheckedOut,
		circulation.EventRecordUpdated,
		circulation.EventRecordReturned,
		circulation.EventRecordUpdated,
	}, types)
}

func TestUpdateRecordMovesCopies(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	first := f.addBook(t, 1)
	second := f.addBook(t, 1)
	member := f.addMember(t, "john@example.com")

	id, err := f.svc.Checkout(ctx, loan(first, member, circulation.StatusBorrowed))
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateRecord(ctx, id, loan(second, member, circulation.StatusBorrowed)))
	assert.Equal(t, 1, f.available(t, first))
	assert.Equal(t, 0, f.available(t, second))

	_, err = f.svc.Checkout(ctx, loan(first, member, circulation.StatusBorrowed))
	require.NoError(t, err)

	err = f.svc.UpdateRecord(ctx, id, loan(first, member, circulation.StatusBorrowed))
	assert.True(t, apperror.IsConflict(err))
	assert.Equal(t, 0, f.available(t, first))
	assert.Equal(t, 0, f.available(t, second))
}

func TestUpdateRecordRejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	book := f.addBook(t, 1)
	member := f.addMember(t, "john@example.com")

	id, err := f.svc.Checkout(ctx, loan(book, member, circulation.StatusBorrowed))
	require.NoError(t, err)

	err = f.svc.UpdateRecord(ctx, 42, loan(book, member, circulation.StatusReturned))
	assert.Equal(t, "Borrowing record not found", apperror.As(err).Message)

	err = f.svc.UpdateRecord(ctx, id, loan(999, member, circulation.StatusBorrowed))
	assert.Equal(t, "Book not found", apperror.As(err).Message)

	err = f.svc.UpdateRecord(ctx, id, loan(book, 999, circulation.StatusBorrowed))
	assert.Equal(t, "Member not found", apperror.As(err).Message)

	require.NoError(t, f.svc.UpdateRecord(ctx, id, loan(book, member, circulation.StatusReturned)))

	other := f.addMember(t, "jane@example.com")
	_, err = f.svc.Checkout(ctx, loan(book, other, circulation.StatusBorrowed))
	require.NoError(t, err)

	// The book is on loan to someone else by now.
	err = f.svc.UpdateRecord(ctx, id, loan(book, member, circulation.StatusBorrowed))
	assert.True(t, apperror.IsConflict(err))
	assert.Equal(t, 0, f.available(t, book))
}

type lockLog struct {
	circulation.Repository
	calls []string
}

func (r *lockLog) LockBook(ctx context.Context, q storage.Querier, bookID int64) (int, error) {
	r.calls = append(r.calls, fmt.Sprintf("book %d", bookID))
	return r.Repository.LockBook(ctx, q, bookID)
}

func (r *lockLog) GetForUpdate(ctx context.Context, q storage.Querier, id int64) (*circulation.BorrowingRecord, error) {
	r.calls = append(r.calls, fmt.Sprintf("record %d", id))
	return r.Repository.GetForUpdate(ctx, q, id)
}

func TestUpdateRecordLocksBooksBeforeRecord(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	repo := &lockLog{Repository: f.store.Records()}
	svc := circulation.NewService(f.store, repo, f.store.Events(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	low := f.addBook(t, 1)
	high := f.addBook(t, 1)
	member := f.addMember(t, "john@example.com")

	id, err := svc.Checkout(ctx, loan(high, member, circulation.StatusBorrowed))
	require.NoError(t, err)
	assert.Equal(t, []string{fmt.Sprintf("book %d", high)}, repo.calls)

	repo.calls = nil
	require.NoError(t, svc.UpdateRecord(ctx, id, loan(low, member, circulation.StatusBorrowed)))
	assert.Equal(t, []string{
		fmt.Sprintf("book %d", low),
		fmt.Sprintf("book %d", high),
		fmt.Sprintf("record %d", id),
	}, repo.calls)
	assert.Equal(t, 0, f.available(t, low))
	assert.Equal(t, 1, f.available(t, high))

	repo.calls = nil
	require.NoError(t, svc.UpdateRecord(ctx, id, loan(low, member, circulation.StatusReturned)))
	assert.Equal(t, []string{fmt.Sprintf("book %d", low), fmt.Sprintf("record %d", id)}, repo.calls)
	assert.Equal(t, 1, f.available(t, low))
}

func TestConcurrentCheckoutSingleWinner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	book := f.addBook(t, 1)

	const n = 20
	members := make([]int64, n)
	for i := range members {
		members[i] = f.addMember(t, fmt.Sprintf("member%d@example.com", i))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins, unavailable int
	for _, m := range members {
		wg.Add(1)
		go func(m int64) {
			defer wg.Done()
			_, err := f.svc.Checkout(ctx, loan(book, m, circulation.StatusBorrowed))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case apperror.As(err).Message == "Book is not available for borrowing":
				unavailable++
			}
		}(m)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, unavailable)
	assert.Equal(t, 0, f.available(t, book))
}

// TestAvailableCopiesProperty drives random checkouts and status changes and
// checks the shelf count against a model after every step.
func TestAvailableCopiesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture()
		ctx := context.Background()

		total := rapid.IntRange(0, 3).Draw(t, "copies")
		book := f.addBook(t, total)
		members := []int64{
			f.addMember(t, "a@example.com"),
			f.addMember(t, "b@example.com"),
		}

		available := total
		status := map[int64]string{}
		var ids []int64

		borrowedBy := func(exclude int64) bool {
			for id, s := range status {
				if id != exclude && s == circulation.StatusBorrowed {
					return true
				}
			}
			return false
		}
		holds := func(s string) bool {
			return s == circulation.StatusBorrowed || s == circulation.StatusOverdue
		}

		t.Repeat(map[string]func(*rapid.T){
			"checkout": func(t *rapid.T) {
				m := rapid.SampledFrom(members).Draw(t, "member")
				id, err := f.svc.Checkout(ctx, loan(book, m, circulation.StatusBorrowed))
				switch {
				case available <= 0:
					require.Equal(t, "Book is not available for borrowing", apperror.As(err).Message)
				case borrowedBy(0):
					require.Equal(t, "Book is already borrowed", apperror.As(err).Message)
				default:
					require.NoError(t, err)
					status[id] = circulation.StatusBorrowed
					ids = append(ids, id)
					available--
				}
			},
			"update": func(t *rapid.T) {
				if len(ids) == 0 {
					t.Skip("no records yet")
				}
				id := rapid.SampledFrom(ids).Draw(t, "record")
				next := rapid.SampledFrom([]string{
					circulation.StatusBorrowed, circulation.StatusOverdue, circulation.StatusReturned,
				}).Draw(t, "status")

				delta := 0
				if holds(status[id]) {
					delta++
				}
				if holds(next) {
					delta--
				}

				err := f.svc.UpdateRecord(ctx, id, loan(book, members[0], next))
				switch {
				case next == circulation.StatusBorrowed && borrowedBy(id):
					require.True(t, apperror.IsConflict(err))
				case available+delta < 0:
					require.Equal(t, "Book is not available for borrowing", apperror.As(err).Message)
				default:
					require.NoError(t, err)
					status[id] = next
					available += delta
				}
			},
			"": func(t *rapid.T) {
				held := 0
				for _, s := range status {
					if holds(s) {
						held++
					}
				}
				got := f.available(t, book)
				require.Equal(t, available, got)
				require.Equal(t, total-held, got)
				require.GreaterOrEqual(t, got, 0)
			},
		})
	})
}
