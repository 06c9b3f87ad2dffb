package clients

import (
	"context"
	"fmt"
	"net/http"

	"libracatalog/internal/membership"
)

type MembershipClient struct {
	base
}

func NewMembershipClient(baseURL string, hc *http.Client) *MembershipClient {
	return &MembershipClient{base: newBase(baseURL, hc)}
}

func (c *MembershipClient) RegisterMember(ctx context.Context, in membership.MemberInput) (int64, error) {
	var out struct {
		ID int64 `json:"member_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/members", in, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

func (c *MembershipClient) GetMember(ctx context.Context, id int64) (*membership.Member, error) {
	var member membership.Member
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/members/%d", id), nil, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *MembershipClient) RemoveMember(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/members/%d", id), nil, nil)
}
