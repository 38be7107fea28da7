package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/freecorps/pulse/internal/model"
)

// PostgresForumPostRepo はPostgreSQLを使用したフォーラム投稿リポジトリ。
type PostgresForumPostRepo struct {
	db *sql.DB
}

// NewPostgresForumPostRepo はPostgresForumPostRepoを生成する。
func NewPostgresForumPostRepo(db *sql.DB) *PostgresForumPostRepo {
	return &PostgresForumPostRepo{db: db}
}

const forumPostColumns = `id, title, content, description, user_id, profile_id, permissions, created_at, updated_at`

func scanForumPost(row rowScanner) (*model.ForumPost, error) {
	p := &model.ForumPost{}
	err := row.Scan(&p.ID, &p.Title, &p.Content, &p.Description, &p.UserID, &p.ProfileID,
		pq.Array(&p.Permissions), &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List は投稿を作成日時の新しい順に返す。
func (r *PostgresForumPostRepo) List(ctx context.Context, limit, offset int) ([]*model.ForumPost, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+forumPostColumns+` FROM forum_posts ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("フォーラム投稿一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var posts []*model.ForumPost
	for rows.Next() {
		p, err := scanForumPost(rows)
		if err != nil {
			return nil, fmt.Errorf("フォーラム投稿行の読み取りに失敗しました: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フォーラム投稿一覧の走査に失敗しました: %w", err)
	}
	return posts, nil
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *PostgresForumPostRepo) FindByID(ctx context.Context, id string) (*model.ForumPost, error) {
	p, err := scanForumPost(r.db.QueryRowContext(ctx, `SELECT `+forumPostColumns+` FROM forum_posts WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フォーラム投稿の取得に失敗しました: %w", err)
	}
	return p, nil
}

// Create は投稿を作成する。
func (r *PostgresForumPostRepo) Create(ctx context.Context, p *model.ForumPost) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO forum_posts (id, title, content, description, user_id, profile_id, permissions, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Title, p.Content, p.Description, p.UserID, p.ProfileID, pq.Array(p.Permissions), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("フォーラム投稿の作成に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDの投稿を削除する。コメントはCASCADE削除される。
func (r *PostgresForumPostRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM forum_posts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("フォーラム投稿の削除に失敗しました: %w", err)
	}
	return nil
}

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

const commentColumns = `id, post_id, content, user_id, profile_id, permissions, created_at`

func scanComment(row rowScanner) (*model.Comment, error) {
	c := &model.Comment{}
	err := row.Scan(&c.ID, &c.PostID, &c.Content, &c.UserID, &c.ProfileID, pq.Array(&c.Permissions), &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListByPostID は投稿へのコメントを古い順に返す。
func (r *PostgresCommentRepo) ListByPostID(ctx context.Context, postID string) ([]*model.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM forum_comments WHERE post_id = $1 ORDER BY created_at ASC`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var comments []*model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("コメント行の読み取りに失敗しました: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コメント一覧の走査に失敗しました: %w", err)
	}
	return comments, nil
}

// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	c, err := scanComment(r.db.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM forum_comments WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	return c, nil
}

// Create はコメントを作成する。
func (r *PostgresCommentRepo) Create(ctx context.Context, c *model.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO forum_comments (id, post_id, content, user_id, profile_id, permissions, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.PostID, c.Content, c.UserID, c.ProfileID, pq.Array(c.Permissions), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("コメントの作成に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDのコメントを削除する。
func (r *PostgresCommentRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM forum_comments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}
	return nil
}

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const profileColumns = `id, handle, image_url, user_id, permissions, created_at, updated_at`

func (r *PostgresProfileRepo) findOne(ctx context.Context, where string, arg any) (*model.Profile, error) {
	p := &model.Profile{}
	err := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM forum_profiles WHERE `+where, arg).Scan(
		&p.ID, &p.Handle, &p.ImageURL, &p.UserID, pq.Array(&p.Permissions), &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	return p, nil
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByUserID はユーザーのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	return r.findOne(ctx, "user_id = $1", userID)
}

// FindByHandle は大文字小文字を区別せずハンドルで検索する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByHandle(ctx context.Context, handle string) (*model.Profile, error) {
	return r.findOne(ctx, "LOWER(handle) = LOWER($1)", handle)
}

// Create はプロフィールを作成する。
func (r *PostgresProfileRepo) Create(ctx context.Context, p *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO forum_profiles (id, handle, image_url, user_id, permissions, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Handle, p.ImageURL, p.UserID, pq.Array(p.Permissions), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はハンドルと画像URLを更新する。
func (r *PostgresProfileRepo) Update(ctx context.Context, p *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE forum_profiles SET handle = $2, image_url = $3, updated_at = NOW() WHERE id = $1`,
		p.ID, p.Handle, p.ImageURL,
	)
	if err != nil {
		return fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return nil
}

// IsUniqueViolation はエラーが一意制約違反かを判定する。
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

var (
	_ ForumPostRepository = (*PostgresForumPostRepo)(nil)
	_ CommentRepository   = (*PostgresCommentRepo)(nil)
	_ ProfileRepository   = (*PostgresProfileRepo)(nil)
)
