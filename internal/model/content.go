package model

import "time"

// PostType は記事の種別。
type PostType string

const (
	PostTypeNews     PostType = "news"
	PostTypeAnalysis PostType = "analysis"
)

// Post はニュース記事を表す。ContentはリッチテキストエディタのJSON文字列。
type Post struct {
	ID          string
	Title       string
	ImageURL    string
	Type        PostType
	Description string
	Content     string
	GameID      string
	EditorID    string
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PostPatch は記事の部分更新。nilのフィールドは変更しない。
type PostPatch struct {
	Title       *string `json:"title,omitempty"`
	ImageURL    *string `json:"imageURL,omitempty"`
	Type        *string `json:"type,omitempty"`
	Description *string `json:"description,omitempty"`
	Content     *string `json:"content,omitempty"`
}

// Merge はnext の非nilフィールドで上書きした新しいパッチを返す。
func (p PostPatch) Merge(next PostPatch) PostPatch {
	if next.Title != nil {
		p.Title = next.Title
	}
	if next.ImageURL != nil {
		p.ImageURL = next.ImageURL
	}
	if next.Type != nil {
		p.Type = next.Type
	}
	if next.Description != nil {
		p.Description = next.Description
	}
	if next.Content != nil {
		p.Content = next.Content
	}
	return p
}

// IsEmpty は変更対象のフィールドがないかを判定する。
func (p PostPatch) IsEmpty() bool {
	return p.Title == nil && p.ImageURL == nil && p.Type == nil &&
		p.Description == nil && p.Content == nil
}

// PostFilter は記事一覧の絞り込み条件。
type PostFilter struct {
	GameIDs  []string
	EditorID string
	Type     PostType
	Limit    int
	Offset   int
}

// Game はゲームを表す。
type Game struct {
	ID            string
	Name          string
	ImageURL      string
	Abbreviation  string
	ImageURLUpper string
	Permissions   []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Editor は記事の執筆者を表す。
type Editor struct {
	ID          string
	Name        string
	ImageURL    string
	Description string
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SyncStatus は自動保存の状態。
type SyncStatus string

const (
	SyncStatusSaved  SyncStatus = "saved"
	SyncStatusSaving SyncStatus = "saving"
	SyncStatusError  SyncStatus = "error"
)
