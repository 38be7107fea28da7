package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Redis（空の場合は認証状態のスナップショットをメモリに保持する）
	RedisURL string

	// Appwrite
	AppwriteEndpoint  string
	AppwriteProjectID string
	AppwriteAPIKey    string

	// Auth
	VerificationURL  string
	RecoveryURL      string
	AuthSnapshotTTL  time.Duration
	AuthStoreIdleTTL time.Duration

	// Session
	SessionMaxAge int

	// Stripe
	StripeSecretKey      string
	StripeWebhookSecret  string
	StripeMonthlyPriceID string
	StripeYearlyPriceID  string

	// Resend
	ResendAPIKey     string
	ResendAudienceID string

	// Autosave
	AutosaveDelay time.Duration
	DraftIdleTTL  time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitAuth    int

	// Logging
	LogLevel             string
	WebhookRetentionDays int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigins []string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AppwriteEndpoint = os.Getenv("APPWRITE_ENDPOINT")
	if cfg.AppwriteEndpoint == "" {
		missing = append(missing, "APPWRITE_ENDPOINT")
	}

	cfg.AppwriteProjectID = os.Getenv("APPWRITE_PROJECT_ID")
	if cfg.AppwriteProjectID == "" {
		missing = append(missing, "APPWRITE_PROJECT_ID")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional credentials. 未設定の場合は依存する機能が503を返す。
	cfg.AppwriteAPIKey = os.Getenv("APPWRITE_API_KEY")
	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	cfg.StripeMonthlyPriceID = os.Getenv("STRIPE_MONTHLY_PRICE_ID")
	cfg.StripeYearlyPriceID = os.Getenv("STRIPE_YEARLY_PRICE_ID")
	cfg.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.RedisURL = os.Getenv("REDIS_URL")

	// Optional fields with defaults
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	cfg.VerificationURL = getEnvString("VERIFICATION_URL", baseURL+"/verify-email")
	cfg.RecoveryURL = getEnvString("RECOVERY_URL", baseURL+"/reset-password")
	cfg.AuthSnapshotTTL = getEnvDuration("AUTH_SNAPSHOT_TTL", 30*24*time.Hour)
	cfg.AuthStoreIdleTTL = getEnvDuration("AUTH_STORE_IDLE_TTL", 30*time.Minute)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 30*86400)
	cfg.ResendAudienceID = getEnvString("RESEND_AUDIENCE_ID", "")
	cfg.AutosaveDelay = getEnvDuration("AUTOSAVE_DELAY", 2*time.Second)
	cfg.DraftIdleTTL = getEnvDuration("DRAFT_IDLE_TTL", 15*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.WebhookRetentionDays = getEnvInt("WEBHOOK_RETENTION_DAYS", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"})

	return cfg, nil
}

// StripeConfigured は決済APIの呼び出しに必要な設定が揃っているかを返す。
func (c *Config) StripeConfigured() bool {
	return c.StripeSecretKey != ""
}

// WebhookConfigured はWebhookの署名検証に必要な設定が揃っているかを返す。
func (c *Config) WebhookConfigured() bool {
	return c.StripeWebhookSecret != ""
}

// AppwriteAdminConfigured はサーバー権限のAPIキーが設定されているかを返す。
func (c *Config) AppwriteAdminConfigured() bool {
	return c.AppwriteAPIKey != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの環境変数を読み込む。空要素は捨てる。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
