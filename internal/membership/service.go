package membership

import (
	"context"

	"libracatalog/internal/storage"
)

// Service defines the interface for the member directory.
type Service interface {
	ListMembers(ctx context.Context, page storage.Page) ([]Member, error)
	GetMember(ctx context.Context, id int64) (*Member, error)
	CreateMember(ctx context.Context, in MemberInput) (int64, error)
	UpdateMember(ctx context.Context, id int64, in MemberInput) error
	DeleteMember(ctx context.Context, id int64) error
}
