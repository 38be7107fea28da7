package security

import (
	"fmt"
	"net/url"
	"strings"
)

// RedirectValidator はリダイレクト先URLが許可されたオリジン配下かを検証する。
// 決済完了後などに外部サービスから戻ってくるURLを受け付ける前に使用する。
type RedirectValidator struct {
	guard   SSRFGuardService
	origins map[string]struct{}
}

// NewRedirectValidator はRedirectValidatorを生成する。
// allowedOriginsが空の場合はSSRFの静的検証のみ行う。
func NewRedirectValidator(guard SSRFGuardService, allowedOrigins []string) *RedirectValidator {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			origins[strings.ToLower(o)] = struct{}{}
		}
	}
	return &RedirectValidator{guard: guard, origins: origins}
}

// Validate はrawURLを検証する。
func (v *RedirectValidator) Validate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if len(v.origins) > 0 {
		origin := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
		if _, ok := v.origins[origin]; !ok {
			return fmt.Errorf("origin not allowed: %s", origin)
		}
		// 許可オリジンには開発用のlocalhostが含まれうるため、SSRF検証は行わない
		return nil
	}

	return v.guard.ValidateURL(rawURL)
}
