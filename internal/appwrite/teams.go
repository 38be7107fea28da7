package appwrite

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/freecorps/pulse/internal/model"
)

// Teams はTeams APIのクライアント。サーバー権限（APIキー付き）で使う。
type Teams struct {
	client *Client
}

// NewTeams はTeamsを生成する。
func NewTeams(client *Client) *Teams {
	return &Teams{client: client}
}

type membershipDoc struct {
	ID     string   `json:"$id"`
	TeamID string   `json:"teamId"`
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
}

func (d membershipDoc) toModel() model.Membership {
	return model.Membership{
		ID:     d.ID,
		TeamID: d.TeamID,
		UserID: d.UserID,
		Roles:  d.Roles,
	}
}

type membershipList struct {
	Total       int             `json:"total"`
	Memberships []membershipDoc `json:"memberships"`
}

// CreateMembership はユーザーをチームに追加する。
// APIキーで呼び出す場合、招待メールを経由せず即時に所属が確定する。
func (t *Teams) CreateMembership(ctx context.Context, teamID string, roles []string, email, userID, redirectURL string) (*model.Membership, error) {
	params := map[string]any{
		"roles":  roles,
		"userId": userID,
	}
	if email != "" {
		params["email"] = email
	}
	if redirectURL != "" {
		params["url"] = redirectURL
	}

	var doc membershipDoc
	path := fmt.Sprintf("/teams/%s/memberships", url.PathEscape(teamID))
	if err := t.client.Call(ctx, http.MethodPost, path, params, &doc); err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}
	m := doc.toModel()
	return &m, nil
}

// ListMemberships は指定ユーザーのチーム所属を取得する。
func (t *Teams) ListMemberships(ctx context.Context, teamID, userID string) ([]model.Membership, error) {
	params := map[string]any{
		"queries": Queries(Equal("userId", userID)),
	}

	var list membershipList
	path := fmt.Sprintf("/teams/%s/memberships", url.PathEscape(teamID))
	if err := t.client.Call(ctx, http.MethodGet, path, params, &list); err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}

	out := make([]model.Membership, 0, len(list.Memberships))
	for _, d := range list.Memberships {
		out = append(out, d.toModel())
	}
	return out, nil
}

// DeleteMembership はチーム所属を削除する。
func (t *Teams) DeleteMembership(ctx context.Context, teamID, membershipID string) error {
	path := fmt.Sprintf("/teams/%s/memberships/%s", url.PathEscape(teamID), url.PathEscape(membershipID))
	if err := t.client.Call(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	return nil
}
