// Package teams はIdPのチーム所属による権限判定を提供する。
package teams

import (
	"context"
	"fmt"

	"github.com/freecorps/pulse/internal/appwrite"
	"github.com/freecorps/pulse/internal/model"
)

// MembershipClient はチーム所属を操作するクライアントのインターフェース。
type MembershipClient interface {
	CreateMembership(ctx context.Context, teamID string, roles []string, email, userID, redirectURL string) (*model.Membership, error)
	ListMemberships(ctx context.Context, teamID, userID string) ([]model.Membership, error)
	DeleteMembership(ctx context.Context, teamID, membershipID string) error
}

var _ MembershipClient = (*appwrite.Teams)(nil)

// Checker はユーザーがチームに所属しているかを判定する。
type Checker struct {
	client MembershipClient
}

// NewChecker はCheckerを生成する。
func NewChecker(client MembershipClient) *Checker {
	return &Checker{client: client}
}

// IsMember はuserIDがteamIDに1件以上の所属を持つかを返す。
func (c *Checker) IsMember(ctx context.Context, teamID, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	memberships, err := c.client.ListMemberships(ctx, teamID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check %s membership: %w", teamID, err)
	}
	return len(memberships) > 0, nil
}
