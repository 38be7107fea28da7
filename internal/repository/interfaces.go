// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/freecorps/pulse/internal/model"
)

// PostRepository はニュース記事の永続化インターフェース。
type PostRepository interface {
	// List は条件に合う記事を作成日時の新しい順に返す。
	List(ctx context.Context, filter model.PostFilter) ([]*model.Post, error)

	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Post, error)

	// Create は記事を作成する。
	Create(ctx context.Context, post *model.Post) error

	// ApplyPatch はパッチの非nilフィールドだけを更新する。
	ApplyPatch(ctx context.Context, id string, patch model.PostPatch) error

	// Delete は指定IDの記事を削除する。
	Delete(ctx context.Context, id string) error
}

// GameRepository はゲームの永続化インターフェース。
type GameRepository interface {
	// List はゲームを名前順に返す。
	List(ctx context.Context) ([]*model.Game, error)

	// FindByID は指定IDのゲームを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Game, error)

	Create(ctx context.Context, game *model.Game) error
	Update(ctx context.Context, game *model.Game) error
	Delete(ctx context.Context, id string) error
}

// EditorRepository は編集者の永続化インターフェース。
type EditorRepository interface {
	// List は編集者を名前順に返す。
	List(ctx context.Context) ([]*model.Editor, error)

	// FindByID は指定IDの編集者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Editor, error)

	Create(ctx context.Context, editor *model.Editor) error
	Update(ctx context.Context, editor *model.Editor) error
	Delete(ctx context.Context, id string) error
}

// ForumPostRepository はフォーラム投稿の永続化インターフェース。
type ForumPostRepository interface {
	// List は投稿を作成日時の新しい順に返す。
	List(ctx context.Context, limit, offset int) ([]*model.ForumPost, error)

	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ForumPost, error)

	Create(ctx context.Context, post *model.ForumPost) error
	Delete(ctx context.Context, id string) error
}

// CommentRepository はフォーラムのコメントの永続化インターフェース。
type CommentRepository interface {
	// ListByPostID は投稿へのコメントを古い順に返す。
	ListByPostID(ctx context.Context, postID string) ([]*model.Comment, error)

	// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Comment, error)

	Create(ctx context.Context, comment *model.Comment) error
	Delete(ctx context.Context, id string) error
}

// ProfileRepository はフォーラムのプロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// FindByUserID はユーザーのプロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)

	// FindByHandle は大文字小文字を区別せずハンドルで検索する。見つからない場合はnilを返す。
	FindByHandle(ctx context.Context, handle string) (*model.Profile, error)

	Create(ctx context.Context, profile *model.Profile) error
	Update(ctx context.Context, profile *model.Profile) error
}

// CustomerRepository は決済顧客の永続化インターフェース。
type CustomerRepository interface {
	// FindActiveByUserID はユーザーの有効な顧客を取得する。見つからない場合はnilを返す。
	FindActiveByUserID(ctx context.Context, userID string) (*model.Customer, error)

	// CreateWithEvent は顧客の作成とWebhookイベントの記録を同一トランザクションで行う。
	CreateWithEvent(ctx context.Context, customer *model.Customer, eventID, eventType string) error
}

// WebhookEventRepository は処理済みWebhookイベントの永続化インターフェース。
type WebhookEventRepository interface {
	// Exists は指定IDのイベントが処理済みかを返す。
	Exists(ctx context.Context, eventID string) (bool, error)

	// Record はイベントを処理済みとして記録する。記録済みの場合は何もしない。
	Record(ctx context.Context, eventID, eventType string) error
}
