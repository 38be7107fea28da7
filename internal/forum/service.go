// Package forum はコミュニティフォーラムの投稿・コメント・プロフィールを扱う。
package forum

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/freecorps/pulse/internal/model"
	"github.com/freecorps/pulse/internal/repository"
	"github.com/freecorps/pulse/internal/security"
)

const (
	// DefaultPageSize は投稿一覧の既定件数。
	DefaultPageSize = 20
	// MaxPageSize は投稿一覧で指定できる最大件数。
	MaxPageSize = 100
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

// Service はフォーラムのサービス層。
// 投稿・コメントの作成にはプロフィールが必要で、削除は作成者本人に限る。
type Service struct {
	posts     repository.ForumPostRepository
	comments  repository.CommentRepository
	profiles  repository.ProfileRepository
	sanitizer security.ContentSanitizerService
	now       func() time.Time
	newID     func() string
}

// NewService はServiceを生成する。
func NewService(
	posts repository.ForumPostRepository,
	comments repository.CommentRepository,
	profiles repository.ProfileRepository,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		posts:     posts,
		comments:  comments,
		profiles:  profiles,
		sanitizer: sanitizer,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// ListPosts は投稿を新しい順に返す。
func (s *Service) ListPosts(ctx context.Context, limit, offset int) ([]*model.ForumPost, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	posts, err := s.posts.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("フォーラム投稿一覧の取得に失敗しました: %w", err)
	}
	return posts, nil
}

// GetPost は投稿を取得する。
func (s *Service) GetPost(ctx context.Context, id string) (*model.ForumPost, error) {
	post, err := s.posts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("フォーラム投稿の取得に失敗しました: %w", err)
	}
	if post == nil {
		return nil, model.NewForumPostNotFoundError(id)
	}
	return post, nil
}

// CreatePost は投稿を作成する。本文は許可タグのみに、タイトルと概要はプレーンテキストにする。
func (s *Service) CreatePost(ctx context.Context, userID, title, content, description string) (*model.ForumPost, error) {
	profile, err := s.requireProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	title = s.sanitizer.StripTags(title)
	content = s.sanitizer.Sanitize(content)
	if title == "" {
		return nil, model.NewValidationError("タイトルを入力してください")
	}
	if strings.TrimSpace(content) == "" {
		return nil, model.NewValidationError("本文を入力してください")
	}

	now := s.now()
	post := &model.ForumPost{
		ID:          s.newID(),
		Title:       title,
		Content:     content,
		Description: s.sanitizer.StripTags(description),
		UserID:      userID,
		ProfileID:   profile.ID,
		Permissions: model.OwnerPermissions(userID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("フォーラム投稿の作成に失敗しました: %w", err)
	}
	return post, nil
}

// DeletePost は投稿を削除する。他人の投稿は存在しないものとして扱う。
func (s *Service) DeletePost(ctx context.Context, userID, id string) error {
	post, err := s.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if !canDelete(post.Permissions, userID) {
		return model.NewForumPostNotFoundError(id)
	}
	if err := s.posts.Delete(ctx, id); err != nil {
		return fmt.Errorf("フォーラム投稿の削除に失敗しました: %w", err)
	}
	return nil
}

// ListComments は投稿へのコメントを古い順に返す。
func (s *Service) ListComments(ctx context.Context, postID string) ([]*model.Comment, error) {
	if _, err := s.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByPostID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	return comments, nil
}

// CreateComment は投稿にコメントする。コメントはプレーンテキストのみ。
func (s *Service) CreateComment(ctx context.Context, userID, postID, content string) (*model.Comment, error) {
	profile, err := s.requireProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetPost(ctx, postID); err != nil {
		return nil, err
	}

	content = s.sanitizer.StripTags(content)
	if content == "" {
		return nil, model.NewValidationError("コメントを入力してください")
	}

	comment := &model.Comment{
		ID:          s.newID(),
		PostID:      postID,
		Content:     content,
		UserID:      userID,
		ProfileID:   profile.ID,
		Permissions: model.OwnerPermissions(userID),
		CreatedAt:   s.now(),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("コメントの作成に失敗しました: %w", err)
	}
	return comment, nil
}

// DeleteComment はコメントを削除する。他人のコメントは存在しないものとして扱う。
func (s *Service) DeleteComment(ctx context.Context, userID, id string) error {
	comment, err := s.comments.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	if comment == nil || !canDelete(comment.Permissions, userID) {
		return model.NewCommentNotFoundError(id)
	}
	if err := s.comments.Delete(ctx, id); err != nil {
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}
	return nil
}

// GetProfile はプロフィールを取得する。
func (s *Service) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	profile, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError()
	}
	return profile, nil
}

// GetProfileByUser はユーザーのプロフィールを取得する。
func (s *Service) GetProfileByUser(ctx context.Context, userID string) (*model.Profile, error) {
	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError()
	}
	return profile, nil
}

// CreateProfile はプロフィールを作成する。ハンドルは大文字小文字を区別せず一意。
func (s *Service) CreateProfile(ctx context.Context, userID, handle, imageURL string) (*model.Profile, error) {
	if userID == "" {
		return nil, model.NewUnauthorizedError()
	}
	handle = strings.TrimSpace(handle)
	if err := validateHandle(handle); err != nil {
		return nil, err
	}

	existing, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewValidationError("プロフィールは作成済みです")
	}
	if err := s.ensureHandleFree(ctx, handle, userID); err != nil {
		return nil, err
	}

	now := s.now()
	profile := &model.Profile{
		ID:          s.newID(),
		Handle:      handle,
		ImageURL:    imageURL,
		UserID:      userID,
		Permissions: model.OwnerPermissions(userID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, model.NewHandleTakenError(handle)
		}
		return nil, fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
	}
	return profile, nil
}

// UpdateProfile はユーザーのプロフィールのハンドルと画像を更新する。
func (s *Service) UpdateProfile(ctx context.Context, userID, handle, imageURL string) (*model.Profile, error) {
	profile, err := s.GetProfileByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	handle = strings.TrimSpace(handle)
	if err := validateHandle(handle); err != nil {
		return nil, err
	}
	if !strings.EqualFold(handle, profile.Handle) {
		if err := s.ensureHandleFree(ctx, handle, userID); err != nil {
			return nil, err
		}
	}

	profile.Handle = handle
	profile.ImageURL = imageURL
	profile.UpdatedAt = s.now()
	if err := s.profiles.Update(ctx, profile); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, model.NewHandleTakenError(handle)
		}
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return profile, nil
}

func (s *Service) requireProfile(ctx context.Context, userID string) (*model.Profile, error) {
	if userID == "" {
		return nil, model.NewUnauthorizedError()
	}
	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileRequiredError()
	}
	return profile, nil
}

func (s *Service) ensureHandleFree(ctx context.Context, handle, userID string) error {
	other, err := s.profiles.FindByHandle(ctx, handle)
	if err != nil {
		return fmt.Errorf("ハンドル名の確認に失敗しました: %w", err)
	}
	if other != nil && other.UserID != userID {
		return model.NewHandleTakenError(handle)
	}
	return nil
}

func validateHandle(handle string) error {
	if !handlePattern.MatchString(handle) {
		return model.NewValidationError("ハンドル名は英数字とアンダースコアで3〜30文字にしてください")
	}
	return nil
}

// canDelete は権限リストにユーザーの削除権限が含まれるかを判定する。
func canDelete(perms []string, userID string) bool {
	return userID != "" && model.HasPermission(perms, model.PermissionDelete(model.RoleUser(userID)))
}
