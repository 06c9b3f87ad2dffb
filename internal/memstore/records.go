package memstore

import (
	"context"

	"libracatalog/internal/circulation"
	"libracatalog/internal/storage"
)

type recordRepo struct{ s *Store }

func (r recordRepo) List(ctx context.Context, q storage.Querier, page storage.Page) ([]circulation.BorrowingRecord, error) {
	records := make([]circulation.BorrowingRecord, 0)
	err := r.s.run(ctx, q, func(st *state) error {
		for _, id := range sortedKeys(st.records) {
			records = append(records, st.records[id])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return window(records, page), nil
}

func (r recordRepo) Get(ctx context.Context, q storage.Querier, id int64) (*circulation.BorrowingRecord, error) {
	var out *circulation.BorrowingRecord
	err := r.s.run(ctx, q, func(st *state) error {
		rec, ok := st.records[id]
		if !ok {
			return storage.ErrNoRows
		}
		out = &rec
		return nil
	})
	return out, err
}

// GetForUpdate needs no row lock; the open transaction already excludes
// every other writer.
func (r recordRepo) GetForUpdate(ctx context.Context, q storage.Querier, id int64) (*circulation.BorrowingRecord, error) {
	return r.Get(ctx, q, id)
}

func (r recordRepo) LockBook(ctx context.Context, q storage.Querier, bookID int64) (int, error) {
	var available int
	err := r.s.run(ctx, q, func(st *state) error {
		b, ok := st.books[bookID]
		if !ok {
			return storage.ErrNoRows
		}
		available = b.AvailableCopies
		return nil
	})
	return available, err
}

func (r recordRepo) MemberExists(ctx context.Context, q storage.Querier, memberID int64) (bool, error) {
	var ok bool
	err := r.s.run(ctx, q, func(st *state) error {
		_, ok = st.members[memberID]
		return nil
	})
	return ok, err
}

func activeLoan(st *state, bookID, exclude int64) bool {
	for id, rec := range st.records {
		if id != exclude && rec.BookID == bookID && rec.Status == circulation.StatusBorrowed {
			return true
		}
	}
	return false
}

func (r recordRepo) HasActiveLoan(ctx context.Context, q storage.Querier, bookID, excludeID int64) (bool, error) {
	var active bool
	err := r.s.run(ctx, q, func(st *state) error {
		active = activeLoan(st, bookID, excludeID)
		return nil
	})
	return active, err
}

// checkRecord mirrors the borrowing_records constraints.
func checkRecord(st *state, id int64, in circulation.RecordInput) error {
	if _, ok := st.books[in.BookID]; !ok {
		return violation(storage.ForeignKeyViolation, "borrowing_records_book_id_fkey")
	}
	if _, ok := st.members[in.MemberID]; !ok {
		return violation(storage.ForeignKeyViolation, "borrowing_records_member_id_fkey")
	}
	if in.DueDate.Before(in.BorrowDate) {
		return violation(storage.CheckViolation, "borrowing_records_due_after_borrow")
	}
	if in.FineAmount < 0 {
		return violation(storage.CheckViolation, "borrowing_records_fine_amount_check")
	}
	if in.Status == circulation.StatusBorrowed && activeLoan(st, in.BookID, id) {
		return violation(storage.UniqueViolation, "borrowing_records_one_active_per_book")
	}
	return nil
}

func applyRecord(rec circulation.BorrowingRecord, in circulation.RecordInput) circulation.BorrowingRecord {
	rec.BookID = in.BookID
	rec.MemberID = in.MemberID
	rec.BorrowDate = in.BorrowDate
	rec.DueDate = in.DueDate
	rec.ReturnDate = nil
	if in.ReturnDate != nil {
		d := *in.ReturnDate
		rec.ReturnDate = &d
	}
	rec.FineAmount = in.FineAmount
	rec.Status = in.Status
	return rec
}

func (r recordRepo) Insert(ctx context.Context, q storage.Querier, in circulation.RecordInput) (int64, error) {
	var id int64
	err := r.s.run(ctx, q, func(st *state) error {
		if err := checkRecord(st, 0, in); err != nil {
			return err
		}
		st.seq.record++
		id = st.seq.record
		now := r.s.now()
		st.records[id] = applyRecord(circulation.BorrowingRecord{ID: id, CreatedAt: now, UpdatedAt: now}, in)
		return nil
	})
	return id, err
}

func (r recordRepo) Update(ctx context.Context, q storage.Querier, id int64, in circulation.RecordInput) (bool, error) {
	var found bool
	err := r.s.run(ctx, q, func(st *state) error {
		rec, ok := st.records[id]
		if !ok {
			return nil
		}
		found = true
		if err := checkRecord(st, id, in); err != nil {
			return err
		}
		rec.UpdatedAt = r.s.now()
		st.records[id] = applyRecord(rec, in)
		return nil
	})
	return found, err
}

func (r recordRepo) AdjustCopies(ctx context.Context, q storage.Querier, bookID int64, delta int) (bool, error) {
	var ok bool
	err := r.s.run(ctx, q, func(st *state) error {
		b, found := st.books[bookID]
		if !found || b.AvailableCopies+delta < 0 {
			return nil
		}
		b.AvailableCopies += delta
		b.UpdatedAt = r.s.now()
		st.books[bookID] = b
		ok = true
		return nil
	})
	return ok, err
}
