// Package memstore is an in-process store for the memory driver and for
// tests. It implements every repository and the audit event store over a
// single mutex-guarded state. A transaction holds the mutex from Begin until
// Commit or Rollback, so transactions are fully serialized, and rollback
// restores the state captured at Begin.
package memstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"libracatalog/internal/audit"
	"libracatalog/internal/catalog"
	"libracatalog/internal/circulation"
	"libracatalog/internal/membership"
	"libracatalog/internal/reservation"
	"libracatalog/internal/storage"
)

var (
	// ErrRawSQL is returned by the Querier methods: the memory store only
	// serves its typed repositories.
	ErrRawSQL  = errors.New("memstore: raw SQL is not supported")
	errTxDone  = errors.New("memstore: transaction has already been committed or rolled back")
	errClosed  = errors.New("memstore: store is closed")
	errForeign = errors.New("memstore: querier belongs to a different store")
)

type sequences struct {
	book, member, record, reservation, event int64
}

type state struct {
	books        map[int64]catalog.Book
	members      map[int64]membership.Member
	records      map[int64]circulation.BorrowingRecord
	reservations map[int64]reservation.Reservation
	events       []audit.Event
	seq          sequences
}

func newState() state {
	return state{
		books:        make(map[int64]catalog.Book),
		members:      make(map[int64]membership.Member),
		records:      make(map[int64]circulation.BorrowingRecord),
		reservations: make(map[int64]reservation.Reservation),
	}
}

func (s state) clone() state {
	c := state{
		books:        make(map[int64]catalog.Book, len(s.books)),
		members:      make(map[int64]membership.Member, len(s.members)),
		records:      make(map[int64]circulation.BorrowingRecord, len(s.records)),
		reservations: make(map[int64]reservation.Reservation, len(s.reservations)),
		events:       append([]audit.Event(nil), s.events...),
		seq:          s.seq,
	}
	for k, v := range s.books {
		c.books[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	return c
}

// Store is an in-memory storage.DB.
type Store struct {
	mu     sync.Mutex
	st     state
	closed bool
	now    func() time.Time
}

func New() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Query(context.Context, string, ...any) (storage.Rows, error) {
	return nil, ErrRawSQL
}

func (s *Store) QueryRow(context.Context, string, ...any) storage.Row {
	return errRow{err: ErrRawSQL}
}

func (s *Store) Exec(context.Context, string, ...any) (storage.Result, error) {
	return nil, ErrRawSQL
}

// Begin blocks until no other transaction is open.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errClosed
	}
	return &tx{store: s, snapshot: s.st.clone()}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	return ctx.Err()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Books, Members, Records, Reservations and Events return the typed views
// the services are wired with.
func (s *Store) Books() catalog.Repository            { return bookRepo{s} }
func (s *Store) Members() membership.Repository       { return memberRepo{s} }
func (s *Store) Records() circulation.Repository      { return recordRepo{s} }
func (s *Store) Reservations() reservation.Repository { return reservationRepo{s} }
func (s *Store) Events() audit.Store                  { return eventStore{s} }

// run executes fn against the live state. Inside a transaction of this store
// the mutex is already held; otherwise fn runs under its own lock.
func (s *Store) run(ctx context.Context, q storage.Querier, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch q := q.(type) {
	case *tx:
		if q.store != s {
			return errForeign
		}
		if q.done {
			return errTxDone
		}
		return fn(&s.st)
	case *Store:
		if q != s {
			return errForeign
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return errClosed
		}
		return fn(&s.st)
	default:
		return errForeign
	}
}

type tx struct {
	store    *Store
	snapshot state
	done     bool
}

func (t *tx) Query(context.Context, string, ...any) (storage.Rows, error) { return nil, ErrRawSQL }
func (t *tx) QueryRow(context.Context, string, ...any) storage.Row      { return errRow{err: ErrRawSQL} }
func (t *tx) Exec(context.Context, string, ...any) (storage.Result, error) {
	return nil, ErrRawSQL
}

func (t *tx) Commit(context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.st = t.snapshot
	t.store.mu.Unlock()
	return nil
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

func violation(kind storage.ConstraintKind, constraint string) error {
	return &storage.ConstraintError{
		Kind:       kind,
		Constraint: constraint,
		Err:        errors.New("memstore: " + constraint),
	}
}
