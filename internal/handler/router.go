package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/freecorps/pulse/internal/metrics"
	"github.com/freecorps/pulse/internal/middleware"
)

// HealthChecker はデータベースの疎通確認を行う。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
// 未設定の外部サービス（Payment, Webhook, Newsletter, Bucket）はnilのままにする。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	UserResolver       middleware.UserResolver
	Session            middleware.SessionConfig
	CSRF               middleware.CSRFConfig
	CORSAllowedOrigins []string
	HSTS               bool
	RateLimiter        *middleware.RateLimiter
	StatusRecorder     middleware.StatusRecorder
	PanicRecorder      middleware.PanicRecorder

	// 運用
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer

	// 認証
	AuthStores AuthStoreProvider
	AuthConfig AuthHandlerConfig

	// 決済
	Payment PaymentServiceInterface
	Webhook WebhookProcessor

	// ニュースレター・ストレージ
	Newsletter NewsletterServiceInterface
	Bucket     BucketServiceInterface

	// コンテンツ
	Content ContentServiceInterface
	Drafts  DraftEditor

	// フォーラム
	Forum ForumServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP → SecurityHeaders → CORS → Logging → Session → CSRF → RateLimit(General)
//
// /health と /metrics はセッションを発行しないようチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger, deps.PanicRecorder))
	r.Use(chimw.RealIP)
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	generalLimit, authLimit := passthrough, passthrough
	if deps.RateLimiter != nil {
		generalLimit = deps.RateLimiter.GeneralMiddleware()
		authLimit = deps.RateLimiter.AuthMiddleware()
	}

	authHandler := NewAuthHandler(deps.AuthStores, deps.AuthConfig)
	stripeHandler := NewStripeHandler(deps.Payment, deps.Webhook)
	newsletterHandler := NewNewsletterHandler(deps.Newsletter)
	bucketHandler := NewBucketHandler(deps.Bucket)
	contentHandler := NewContentHandler(deps.Content, deps.Drafts)
	forumHandler := NewForumHandler(deps.Forum)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
		r.Use(middleware.NewSessionMiddleware(deps.UserResolver, deps.Session))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(generalLimit)

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

		SetupAuthRoutes(r, authHandler, authLimit)

		// ニュースレター購読（未ログインでも可能）
		r.With(authLimit).Post("/api/newsletter", newsletterHandler.Subscribe)

		// 決済。userIdの欠落は400、セッションのユーザーとの照合は各ハンドラーで行う。
		r.Route("/api/stripe", func(r chi.Router) {
			r.Post("/create-checkout", stripeHandler.CreateCheckout)
			r.Post("/create-portal-session", stripeHandler.CreatePortalSession)
		})
		r.Post("/api/webhooks/stripe", stripeHandler.Webhook)

		// ユーザーごとのストレージバケット
		r.Route("/api/user-bucket", func(r chi.Router) {
			r.Get("/", bucketHandler.Get)
			r.Post("/", bucketHandler.Ensure)
			r.Post("/files", bucketHandler.Upload)
			r.Post("/files/import", bucketHandler.Import)
			r.Delete("/files/{fileID}", bucketHandler.DeleteFile)
		})

		SetupContentRoutes(r, contentHandler, middleware.RequireUser)
		SetupForumRoutes(r, forumHandler, middleware.RequireUser)
	})

	return r
}

// healthHandler はデータベースへの疎通を確認するハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Warn("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
