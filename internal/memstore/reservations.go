package memstore

import (
	"context"

	"libracatalog/internal/reservation"
	"libracatalog/internal/storage"
)

type reservationRepo struct{ s *Store }

func (r reservationRepo) List(ctx context.Context, q storage.Querier, page storage.Page) ([]reservation.Reservation, error) {
	out := make([]reservation.Reservation, 0)
	err := r.s.run(ctx, q, func(st *state) error {
		for _, id := range sortedKeys(st.reservations) {
			out = append(out, st.reservations[id])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return window(out, page), nil
}

func (r reservationRepo) Get(ctx context.Context, q storage.Querier, id int64) (*reservation.Reservation, error) {
	var out *reservation.Reservation
	err := r.s.run(ctx, q, func(st *state) error {
		res, ok := st.reservations[id]
		if !ok {
			return storage.ErrNoRows
		}
		out = &res
		return nil
	})
	return out, err
}

func (r reservationRepo) LockBook(ctx context.Context, q storage.Querier, bookID int64) error {
	return r.s.run(ctx, q, func(st *state) error {
		if _, ok := st.books[bookID]; !ok {
			return storage.ErrNoRows
		}
		return nil
	})
}

func (r reservationRepo) MemberExists(ctx context.Context, q storage.Querier, memberID int64) (bool, error) {
	var ok bool
	err := r.s.run(ctx, q, func(st *state) error {
		_, ok = st.members[memberID]
		return nil
	})
	return ok, err
}

func pending(st *state, bookID, memberID, exclude int64) bool {
	for id, res := range st.reservations {
		if id != exclude && res.BookID == bookID && res.MemberID == memberID &&
			res.Status == reservation.StatusPending {
			return true
		}
	}
	return false
}

func (r reservationRepo) HasPending(ctx context.Context, q storage.Querier, bookID, memberID, excludeID int64) (bool, error) {
	var dup bool
	err := r.s.run(ctx, q, func(st *state) error {
		dup = pending(st, bookID, memberID, excludeID)
		return nil
	})
	return dup, err
}

func checkReservation(st *state, id int64, in reservation.ReservationInput) error {
	if _, ok := st.books[in.BookID]; !ok {
		return violation(storage.ForeignKeyViolation, "reservations_book_id_fkey")
	}
	if _, ok := st.members[in.MemberID]; !ok {
		return violation(storage.ForeignKeyViolation, "reservations_member_id_fkey")
	}
	if in.Status == reservation.StatusPending && pending(st, in.BookID, in.MemberID, id) {
		return violation(storage.UniqueViolation, "reservations_one_pending_per_pair")
	}
	return nil
}

func (r reservationRepo) Insert(ctx context.Context, q storage.Querier, in reservation.ReservationInput) (int64, error) {
	var id int64
	err := r.s.run(ctx, q, func(st *state) error {
		if err := checkReservation(st, 0, in); err != nil {
			return err
		}
		st.seq.reservation++
		id = st.seq.reservation
		now := r.s.now()
		st.reservations[id] = reservation.Reservation{
			ID:              id,
			BookID:          in.BookID,
			MemberID:        in.MemberID,
			ReservationDate: in.ReservationDate,
			Status:          in.Status,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return nil
	})
	return id, err
}

func (r reservationRepo) Update(ctx context.Context, q storage.Querier, id int64, in reservation.ReservationInput) (bool, error) {
	var found bool
	err := r.s.run(ctx, q, func(st *state) error {
		res, ok := st.reservations[id]
		if !ok {
			return nil
		}
		found = true
		if err := checkReservation(st, id, in); err != nil {
			return err
		}
		res.BookID, res.MemberID = in.BookID, in.MemberID
		res.ReservationDate, res.Status = in.ReservationDate, in.Status
		res.UpdatedAt = r.s.now()
		st.reservations[id] = res
		return nil
	})
	return found, err
}
