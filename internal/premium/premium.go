// Package premium はプレミアム会員チームへの付与と剥奪を提供する。
package premium

import (
	"context"
	"fmt"

	"github.com/freecorps/pulse/internal/appwrite"
	"github.com/freecorps/pulse/internal/model"
	"github.com/freecorps/pulse/internal/teams"
)

// Service はpremiumチームの所属を管理する。
type Service struct {
	client teams.MembershipClient
	teamID string
}

// NewService はServiceを生成する。
func NewService(client teams.MembershipClient) *Service {
	return &Service{client: client, teamID: model.TeamPremium}
}

// Grant はユーザーをpremiumチームに追加する。
// すでに所属している場合（409）は既存の所属を返し、成功として扱う。
func (s *Service) Grant(ctx context.Context, userID, email, redirectURL string) (*model.Membership, error) {
	m, err := s.client.CreateMembership(ctx, s.teamID, []string{model.TeamPremium}, email, userID, redirectURL)
	if err == nil {
		return m, nil
	}
	if !appwrite.IsConflict(err) {
		return nil, fmt.Errorf("failed to grant premium: %w", err)
	}

	memberships, listErr := s.client.ListMemberships(ctx, s.teamID, userID)
	if listErr != nil {
		return nil, fmt.Errorf("failed to look up existing premium membership: %w", listErr)
	}
	if len(memberships) == 0 {
		return nil, fmt.Errorf("failed to grant premium: %w", err)
	}
	return &memberships[0], nil
}

// Revoke はユーザーの最初のpremium所属を削除する。
// 所属がない場合はfalseを返す。
func (s *Service) Revoke(ctx context.Context, userID string) (bool, error) {
	memberships, err := s.client.ListMemberships(ctx, s.teamID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to list premium memberships: %w", err)
	}
	if len(memberships) == 0 {
		return false, nil
	}
	if err := s.client.DeleteMembership(ctx, s.teamID, memberships[0].ID); err != nil {
		return false, fmt.Errorf("failed to revoke premium: %w", err)
	}
	return true, nil
}

// IsPremium はユーザーがpremiumチームに所属しているかを返す。
func (s *Service) IsPremium(ctx context.Context, userID string) (bool, error) {
	return teams.NewChecker(s.client).IsMember(ctx, s.teamID, userID)
}
