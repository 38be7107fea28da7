// Package content はニュース記事・ゲーム・編集者の管理を提供する。
// 書き込み操作は編集部チームのメンバーに限られる。
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/freecorps/pulse/internal/model"
	"github.com/freecorps/pulse/internal/repository"
)

// MembershipChecker はチーム所属を判定するインターフェース。
type MembershipChecker interface {
	IsMember(ctx context.Context, teamID, userID string) (bool, error)
}

// PostInput は記事作成の入力。
type PostInput struct {
	Title       string
	ImageURL    string
	Type        model.PostType
	Description string
	Content     string
	GameID      string
	EditorID    string
}

// GameInput はゲーム作成・更新の入力。
type GameInput struct {
	Name          string
	ImageURL      string
	Abbreviation  string
	ImageURLUpper string
}

// EditorInput は編集者作成・更新の入力。
type EditorInput struct {
	Name        string
	ImageURL    string
	Description string
}

// Service は記事・ゲーム・編集者のサービス層。
type Service struct {
	posts   repository.PostRepository
	games   repository.GameRepository
	editors repository.EditorRepository
	members MembershipChecker
	now     func() time.Time
	newID   func() string
}

// NewService はServiceを生成する。
func NewService(
	posts repository.PostRepository,
	games repository.GameRepository,
	editors repository.EditorRepository,
	members MembershipChecker,
) *Service {
	return &Service{
		posts:   posts,
		games:   games,
		editors: editors,
		members: members,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// RequireEditor はユーザーが編集部チームに所属しているかを確認する。
func (s *Service) RequireEditor(ctx context.Context, userID string) error {
	if userID == "" {
		return model.NewUnauthorizedError()
	}
	ok, err := s.members.IsMember(ctx, model.TeamEditor, userID)
	if err != nil {
		return fmt.Errorf("編集部の所属確認に失敗しました: %w", err)
	}
	if !ok {
		return model.NewForbiddenError(model.TeamEditor)
	}
	return nil
}

// ListPosts は記事を新しい順に返す。
func (s *Service) ListPosts(ctx context.Context, filter model.PostFilter) ([]*model.Post, error) {
	if filter.Type != "" && !validPostType(string(filter.Type)) {
		return nil, model.NewValidationError("記事の種別は news または analysis を指定してください")
	}
	posts, err := s.posts.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	return posts, nil
}

// GetPost は記事を取得する。
func (s *Service) GetPost(ctx context.Context, id string) (*model.Post, error) {
	post, err := s.posts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(id)
	}
	return post, nil
}

// CreatePost は記事を作成する。権限は閲覧を全員、編集を編集部に与える。
func (s *Service) CreatePost(ctx context.Context, userID string, in PostInput) (*model.Post, error) {
	if err := s.RequireEditor(ctx, userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, model.NewValidationError("タイトルを入力してください")
	}
	if in.Type == "" {
		in.Type = model.PostTypeNews
	}
	if !validPostType(string(in.Type)) {
		return nil, model.NewValidationError("記事の種別は news または analysis を指定してください")
	}
	if err := validateRichText(in.Content); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, in.GameID, in.EditorID); err != nil {
		return nil, err
	}

	now := s.now()
	post := &model.Post{
		ID:          s.newID(),
		Title:       strings.TrimSpace(in.Title),
		ImageURL:    in.ImageURL,
		Type:        in.Type,
		Description: in.Description,
		Content:     in.Content,
		GameID:      in.GameID,
		EditorID:    in.EditorID,
		Permissions: model.EditorialPermissions(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("記事の作成に失敗しました: %w", err)
	}
	return post, nil
}

// DeletePost は記事を削除する。
func (s *Service) DeletePost(ctx context.Context, userID, id string) error {
	if err := s.RequireEditor(ctx, userID); err != nil {
		return err
	}
	if _, err := s.GetPost(ctx, id); err != nil {
		return err
	}
	if err := s.posts.Delete(ctx, id); err != nil {
		return fmt.Errorf("記事の削除に失敗しました: %w", err)
	}
	return nil
}

func (s *Service) checkReferences(ctx context.Context, gameID, editorID string) error {
	if gameID != "" {
		if _, err := s.GetGame(ctx, gameID); err != nil {
			return err
		}
	}
	if editorID != "" {
		if _, err := s.GetEditor(ctx, editorID); err != nil {
			return err
		}
	}
	return nil
}

// ListGames はゲーム一覧を返す。
func (s *Service) ListGames(ctx context.Context) ([]*model.Game, error) {
	games, err := s.games.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ゲーム一覧の取得に失敗しました: %w", err)
	}
	return games, nil
}

// GetGame はゲームを取得する。
func (s *Service) GetGame(ctx context.Context, id string) (*model.Game, error) {
	game, err := s.games.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ゲームの取得に失敗しました: %w", err)
	}
	if game == nil {
		return nil, model.NewGameNotFoundError(id)
	}
	return game, nil
}

// CreateGame はゲームを作成する。
func (s *Service) CreateGame(ctx context.Context, userID string, in GameInput) (*model.Game, error) {
	if err := s.RequireEditor(ctx, userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, model.NewValidationError("ゲーム名を入力してください")
	}

	now := s.now()
	game := &model.Game{
		ID:            s.newID(),
		Name:          strings.TrimSpace(in.Name),
		ImageURL:      in.ImageURL,
		Abbreviation:  in.Abbreviation,
		ImageURLUpper: in.ImageURLUpper,
		Permissions:   model.EditorialPermissions(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.games.Create(ctx, game); err != nil {
		return nil, fmt.Errorf("ゲームの作成に失敗しました: %w", err)
	}
	return game, nil
}

// UpdateGame はゲームを更新する。
func (s *Service) UpdateGame(ctx context.Context, userID, id string, in GameInput) (*model.Game, error) {
	if err := s.RequireEditor(ctx, userID); err != nil {
		return nil, err
	}
	game, err := s.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, model.NewValidationError("ゲーム名を入力してください")
	}

	game.Name = strings.TrimSpace(in.Name)
	game.ImageURL = in.ImageURL
	game.Abbreviation = in.Abbreviation
	game.ImageURLUpper = in.ImageURLUpper
	game.UpdatedAt = s.now()
	if err := s.games.Update(ctx, game); err != nil {
		return nil, fmt.Errorf("ゲームの更新に失敗しました: %w", err)
	}
	return game, nil
}

// DeleteGame はゲームを削除する。記事のgame_idはNULLになる。
func (s *Service) DeleteGame(ctx context.Context, userID, id string) error {
	if err := s.RequireEditor(ctx, userID); err != nil {
		return err
	}
	if _, err := s.GetGame(ctx, id); err != nil {
		return err
	}
	if err := s.games.Delete(ctx, id); err != nil {
		return fmt.Errorf("ゲームの削除に失敗しました: %w", err)
	}
	return nil
}

// ListEditors は編集者一覧を返す。
func (s *Service) ListEditors(ctx context.Context) ([]*model.Editor, error) {
	editors, err := s.editors.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("編集者一覧の取得に失敗しました: %w", err)
	}
	return editors, nil
}

// GetEditor は編集者を取得する。
func (s *Service) GetEditor(ctx context.Context, id string) (*model.Editor, error) {
	editor, err := s.editors.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("編集者の取得に失敗しました: %w", err)
	}
	if editor == nil {
		return nil, model.NewEditorNotFoundError(id)
	}
	return editor, nil
}

// CreateEditor は編集者を作成する。
func (s *Service) CreateEditor(ctx context.Context, userID string, in EditorInput) (*model.Editor, error) {
	if err := s.RequireEditor(ctx, userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, model.NewValidationError("編集者名を入力してください")
	}

	now := s.now()
	editor := &model.Editor{
		ID:          s.newID(),
		Name:        strings.TrimSpace(in.Name),
		ImageURL:    in.ImageURL,
		Description: in.Description,
		Permissions: model.EditorialPermissions(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.editors.Create(ctx, editor); err != nil {
		return nil, fmt.Errorf("編集者の作成に失敗しました: %w", err)
	}
	return editor, nil
}

// UpdateEditor は編集者を更新する。
func (s *Service) UpdateEditor(ctx context.Context, userID, id string, in EditorInput) (*model.Editor, error) {
	if err := s.RequireEditor(ctx, userID); err != nil {
		return nil, err
	}
	editor, err := s.GetEditor(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, model.NewValidationError("編集者名を入力してください")
	}

	editor.Name = strings.TrimSpace(in.Name)
	editor.ImageURL = in.ImageURL
	editor.Description = in.Description
	editor.UpdatedAt = s.now()
	if err := s.editors.Update(ctx, editor); err != nil {
		return nil, fmt.Errorf("編集者の更新に失敗しました: %w", err)
	}
	return editor, nil
}

// DeleteEditor は編集者を削除する。記事のeditor_idはNULLになる。
func (s *Service) DeleteEditor(ctx context.Context, userID, id string) error {
	if err := s.RequireEditor(ctx, userID); err != nil {
		return err
	}
	if _, err := s.GetEditor(ctx, id); err != nil {
		return err
	}
	if err := s.editors.Delete(ctx, id); err != nil {
		return fmt.Errorf("編集者の削除に失敗しました: %w", err)
	}
	return nil
}

func validPostType(t string) bool {
	return t == string(model.PostTypeNews) || t == string(model.PostTypeAnalysis)
}

// validateRichText は本文がエディタのJSONとして解釈できるかを確認する。空は許可する。
func validateRichText(content string) error {
	if content == "" || json.Valid([]byte(content)) {
		return nil
	}
	return model.NewValidationError("本文の形式が不正です")
}

// ValidatePatch は下書きパッチの値を検証する。
func ValidatePatch(patch model.PostPatch) error {
	if patch.IsEmpty() {
		return model.NewValidationError("更新する項目がありません")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return model.NewValidationError("タイトルを入力してください")
	}
	if patch.Type != nil && !validPostType(*patch.Type) {
		return model.NewValidationError("記事の種別は news または analysis を指定してください")
	}
	if patch.Content != nil {
		return validateRichText(*patch.Content)
	}
	return nil
}
