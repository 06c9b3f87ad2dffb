package memstore

import (
	"context"

	"libracatalog/internal/caldate"
	"libracatalog/internal/membership"
	"libracatalog/internal/storage"
)

type memberRepo struct{ s *Store }

func (r memberRepo) List(ctx context.Context, q storage.Querier, page storage.Page) ([]membership.Member, error) {
	members := make([]membership.Member, 0)
	err := r.s.run(ctx, q, func(st *state) error {
		for _, id := range sortedKeys(st.members) {
			members = append(members, st.members[id])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return window(members, page), nil
}

func (r memberRepo) Get(ctx context.Context, q storage.Querier, id int64) (*membership.Member, error) {
	var out *membership.Member
	err := r.s.run(ctx, q, func(st *state) error {
		m, ok := st.members[id]
		if !ok {
			return storage.ErrNoRows
		}
		out = &m
		return nil
	})
	return out, err
}

func emailTaken(st *state, email string, exclude int64) bool {
	for id, m := range st.members {
		if id != exclude && m.Email == email {
			return true
		}
	}
	return false
}

func (r memberRepo) Insert(ctx context.Context, q storage.Querier, in membership.MemberInput, joined caldate.Date, status string) (int64, error) {
	var id int64
	err := r.s.run(ctx, q, func(st *state) error {
		if emailTaken(st, in.Email, 0) {
			return violation(storage.UniqueViolation, "members_email_key")
		}
		st.seq.member++
		id = st.seq.member
		now := r.s.now()
		st.members[id] = membership.Member{
			ID:               id,
			Name:             in.Name,
			Email:            in.Email,
			Phone:            in.Phone,
			Address:          in.Address,
			MembershipDate:   joined,
			MembershipStatus: status,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		return nil
	})
	return id, err
}

func (r memberRepo) Update(ctx context.Context, q storage.Querier, id int64, in membership.MemberInput) (bool, error) {
	var found bool
	err := r.s.run(ctx, q, func(st *state) error {
		m, ok := st.members[id]
		if !ok {
			return nil
		}
		found = true
		if emailTaken(st, in.Email, id) {
			return violation(storage.UniqueViolation, "members_email_key")
		}
		m.Name, m.Email, m.Phone, m.Address = in.Name, in.Email, in.Phone, in.Address
		m.UpdatedAt = r.s.now()
		st.members[id] = m
		return nil
	})
	return found, err
}

func (r memberRepo) Delete(ctx context.Context, q storage.Querier, id int64) (bool, error) {
	var found bool
	err := r.s.run(ctx, q, func(st *state) error {
		if _, ok := st.members[id]; !ok {
			return nil
		}
		found = true
		for _, rec := range st.records {
			if rec.MemberID == id {
				return violation(storage.ForeignKeyViolation, "borrowing_records_member_id_fkey")
			}
		}
		for _, res := range st.reservations {
			if res.MemberID == id {
				return violation(storage.ForeignKeyViolation, "reservations_member_id_fkey")
			}
		}
		delete(st.members, id)
		return nil
	})
	return found, err
}
