package membership

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"libracatalog/internal/caldate"
	"libracatalog/internal/storage"
)

// Repository persists members. Get returns storage.ErrNoRows for a missing
// member; Update and Delete report whether a row matched.
type Repository interface {
	List(ctx context.Context, q storage.Querier, page storage.Page) ([]Member, error)
	Get(ctx context.Context, q storage.Querier, id int64) (*Member, error)
	Insert(ctx context.Context, q storage.Querier, in MemberInput, joined caldate.Date, status string) (int64, error)
	Update(ctx context.Context, q storage.Querier, id int64, in MemberInput) (bool, error)
	Delete(ctx context.Context, q storage.Querier, id int64) (bool, error)
}

type postgresRepository struct{}

// NewPostgresRepository returns a Repository over the members table.
func NewPostgresRepository() Repository {
	return postgresRepository{}
}

func scanMember(row storage.Row) (*Member, error) {
	m := &Member{}
	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.Email,
		&m.Phone,
		&m.Address,
		&m.MembershipDate,
		&m.MembershipStatus,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (postgresRepository) List(ctx context.Context, q storage.Querier, page storage.Page) ([]Member, error) {
	ds := storage.Dialect.From("members").
		Select("member_id", "name", "email", "phone", "address", "membership_date",
			"membership_status", "created_at", "updated_at").
		Order(goqu.C("member_id").Asc()).
		Prepared(true)

	query, args, err := page.Apply(ds).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build member list query: %w", err)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	members := make([]Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

func (postgresRepository) Get(ctx context.Context, q storage.Querier, id int64) (*Member, error) {
	query := `
		SELECT member_id, name, email, phone, address, membership_date,
		       membership_status, created_at, updated_at
		FROM members
		WHERE member_id = $1
	`
	return scanMember(q.QueryRow(ctx, query, id))
}

func (postgresRepository) Insert(ctx context.Context, q storage.Querier, in MemberInput, joined caldate.Date, status string) (int64, error) {
	query := `
		INSERT INTO members (name, email, phone, address, membership_date, membership_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING member_id
	`
	var id int64
	err := q.QueryRow(ctx, query, in.Name, in.Email, in.Phone, in.Address, joined, status).Scan(&id)
	return id, err
}

func (postgresRepository) Update(ctx context.Context, q storage.Querier, id int64, in MemberInput) (bool, error) {
	query := `
		UPDATE members
		SET name = $1, email = $2, phone = $3, address = $4, updated_at = NOW()
		WHERE member_id = $5
	`
	res, err := q.Exec(ctx, query, in.Name, in.Email, in.Phone, in.Address, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (postgresRepository) Delete(ctx context.Context, q storage.Querier, id int64) (bool, error) {
	res, err := q.Exec(ctx, `DELETE FROM members WHERE member_id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
