package model

import "time"

// ForumPost はフォーラムの投稿を表す。
type ForumPost struct {
	ID          string
	Title       string
	Content     string
	Description string
	UserID      string
	ProfileID   string
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Comment はフォーラム投稿へのコメントを表す。
type Comment struct {
	ID          string
	PostID      string
	Content     string
	UserID      string
	ProfileID   string
	Permissions []string
	CreatedAt   time.Time
}

// Profile はフォーラムの公開プロフィールを表す。Handleは全ユーザーで一意。
type Profile struct {
	ID          string
	Handle      string
	ImageURL    string
	UserID      string
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
