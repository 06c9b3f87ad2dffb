package membership

import (
	"time"

	"libracatalog/internal/caldate"
)

// Membership statuses. New members start Active.
const (
	StatusActive    = "Active"
	StatusInactive  = "Inactive"
	StatusSuspended = "Suspended"
)

// Member represents a library member.
type Member struct {
	ID               int64        `json:"member_id"`
	Name             string       `json:"name"`
	Email            string       `json:"email"`
	Phone            string       `json:"phone"`
	Address          string       `json:"address"`
	MembershipDate   caldate.Date `json:"membership_date"`
	MembershipStatus string       `json:"membership_status"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// MemberInput holds the profile fields a caller may set. Membership date and
// status are owned by the service.
type MemberInput struct {
	Name    string `json:"name" validate:"required,min=2,max=100"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"required,phone"`
	Address string `json:"address" validate:"required"`
}

const (
	AggregateType      = "member"
	EventMemberCreated = "member.created"
	EventMemberUpdated = "member.updated"
	EventMemberDeleted = "member.deleted"
)

// MemberDeletedEvent is the payload of EventMemberDeleted.
type MemberDeletedEvent struct {
	ID    int64  `json:"member_id"`
	Email string `json:"email"`
}
