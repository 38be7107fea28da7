// Package model はドメインモデルを定義する。
package model

import "time"

// PrefProfilePicture はプロフィール画像URLを格納するユーザー設定のキー。
const PrefProfilePicture = "profilePicture"

// User はIdPが発行するユーザーレコードのキャッシュを表す。
// 正はIdP側にあり、ここで保持する値は参考値として扱う。
type User struct {
	ID                string         `json:"id"`
	Email             string         `json:"email"`
	Name              string         `json:"name"`
	EmailVerification bool           `json:"emailVerification"`
	MFA               bool           `json:"mfa"`
	Prefs             map[string]any `json:"prefs,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// ProfilePicture はユーザー設定からプロフィール画像URLを取り出す。
func (u *User) ProfilePicture() string {
	if u == nil || u.Prefs == nil {
		return ""
	}
	v, _ := u.Prefs[PrefProfilePicture].(string)
	return v
}

// Session はIdP上のログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	Secret    string
	ExpiresAt time.Time
}
