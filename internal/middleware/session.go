// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/freecorps/pulse/internal/model"
)

// SessionCookieName はブラウザセッションIDを保持するCookieの名前。
const SessionCookieName = "pulse_sid"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// sessionIDContextKey はリクエストコンテキストにブラウザセッションIDを格納するためのキー。
	sessionIDContextKey = contextKey("session_id")
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
)

// UserResolver はブラウザセッションIDからログイン中のユーザーIDを返す。
// 未ログインの場合は空文字を返す。
type UserResolver func(ctx context.Context, sessionID string) (string, error)

// SessionConfig はセッションCookieの設定。
type SessionConfig struct {
	CookieSecure bool
	CookieDomain string
	MaxAge       int
}

// NewSessionMiddleware はブラウザセッションIDをCookieから読み取り、
// ない場合は新規に発行するミドルウェアを返す。
// セッションIDと、ログイン中であればユーザーIDをリクエストコンテキストに注入する。
// 未ログインでもリクエストは通す。認証必須のルートにはRequireUserを併用する。
func NewSessionMiddleware(resolve UserResolver, config SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := ""
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				sid = cookie.Value
			}
			if !validSessionID(sid) {
				var err error
				sid, err = generateSessionID()
				if err != nil {
					slog.Error("failed to generate session id", slog.String("error", err.Error()))
					WriteInternalServerError(w)
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    sid,
					Path:     "/",
					Domain:   config.CookieDomain,
					MaxAge:   config.MaxAge,
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), sessionIDContextKey, sid)

			userID, err := resolve(ctx, sid)
			if err != nil {
				slog.Warn("failed to resolve session user",
					slog.String("error", err.Error()),
				)
			} else if userID != "" {
				ctx = context.WithValue(ctx, userIDContextKey, userID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser はログイン中のユーザーがいないリクエストに401を返すミドルウェア。
// NewSessionMiddlewareの後に配置する。
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := UserIDFromContext(r.Context()); err != nil {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionIDFromContext はリクエストコンテキストからブラウザセッションIDを取得する。
func SessionIDFromContext(ctx context.Context) (string, error) {
	sid, ok := ctx.Value(sessionIDContextKey).(string)
	if !ok || sid == "" {
		return "", fmt.Errorf("session ID not found in context")
	}
	return sid, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// ログイン中のリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// ContextWithSessionID はコンテキストにブラウザセッションIDを注入する。
func ContextWithSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, sid)
}

// generateSessionID は32バイトの乱数から16進数のセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// validSessionID はgenerateSessionIDが生成する形式かを判定する。
func validSessionID(sid string) bool {
	if len(sid) != 64 {
		return false
	}
	_, err := hex.DecodeString(sid)
	return err == nil
}
