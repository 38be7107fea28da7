package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/freecorps/pulse/internal/model"
)

const (
	// csrfCookieName はHttpOnlyにしない。フロントエンドが読み取ってヘッダーに載せる。
	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"

	defaultCSRFMaxAge = 24 * time.Hour
)

// CSRFConfig はダブルサブミットCookie方式のCSRF対策の設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
	// MaxAge が0の場合は24時間。
	MaxAge time.Duration
	// ExemptPaths は検証を行わないパスの接頭辞。署名を検証するWebhook用。
	ExemptPaths []string
	// TrustedOrigins が空でなければ、状態変更リクエストのOriginヘッダーを照合する。
	// Originヘッダーのないリクエストはトークンのみで判定する。
	TrustedOrigins []string
}

// NewCSRFMiddleware はGET・HEAD・OPTIONSでトークンCookieを発行し、
// それ以外のメソッドではCookieとX-CSRF-Tokenヘッダーの一致を要求する。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	trusted := normalizeOrigins(config.TrustedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				ensureCSRFCookie(w, r, config)
				next.ServeHTTP(w, r)
				return
			}
			if config.isExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			reason := checkOrigin(r, trusted)
			if reason == "" {
				reason = checkCSRFToken(r)
			}
			if reason != "" {
				slog.Warn("CSRF validation failed",
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewCSRFError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// checkCSRFToken は不一致の理由を返す。一致時は空文字。
func checkCSRFToken(r *http.Request) string {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return "missing cookie token"
	}
	header := r.Header.Get(csrfHeaderName)
	if header == "" {
		return "missing header token"
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return "token mismatch"
	}
	return ""
}

func checkOrigin(r *http.Request, trusted map[string]struct{}) string {
	if len(trusted) == 0 {
		return ""
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return ""
	}
	if _, ok := trusted[strings.ToLower(origin)]; !ok {
		return "untrusted origin " + origin
	}
	return ""
}

// normalizeOrigins は"https://pulse.example/"のような値をscheme://hostに揃える。
func normalizeOrigins(origins []string) map[string]struct{} {
	out := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		u, err := url.Parse(strings.TrimSpace(o))
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		out[strings.ToLower(u.Scheme+"://"+u.Host)] = struct{}{}
	}
	return out
}

func (c CSRFConfig) isExempt(path string) bool {
	for _, p := range c.ExemptPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (c CSRFConfig) maxAge() time.Duration {
	if c.MaxAge > 0 {
		return c.MaxAge
	}
	return defaultCSRFMaxAge
}

// NewCSRFTokenHandler は GET /api/csrf-token のハンドラー。
// Cookieにトークンがあればそれを返し、なければ発行する。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if cookie, err := r.Cookie(csrfCookieName); err == nil {
			token = cookie.Value
		}
		if token == "" {
			var err error
			if token, err = generateCSRFToken(); err != nil {
				slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}
			setCSRFCookie(w, token, config)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func ensureCSRFCookie(w http.ResponseWriter, r *http.Request, config CSRFConfig) {
	if _, err := r.Cookie(csrfCookieName); err == nil {
		return
	}
	token, err := generateCSRFToken()
	if err != nil {
		slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
		return
	}
	setCSRFCookie(w, token, config)
	// 同じリクエスト内のトークン取得ハンドラーが同じ値を返すようにする
	r.AddCookie(&http.Cookie{Name: csrfCookieName, Value: token})
}

func setCSRFCookie(w http.ResponseWriter, token string, config CSRFConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   int(config.maxAge().Seconds()),
		HttpOnly: false,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateCSRFToken は256bitの乱数をURLセーフなBase64で返す。
func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
