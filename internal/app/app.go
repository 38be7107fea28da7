package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/freecorps/pulse/internal/appwrite"
	"github.com/freecorps/pulse/internal/authstore"
	"github.com/freecorps/pulse/internal/bucket"
	"github.com/freecorps/pulse/internal/config"
	"github.com/freecorps/pulse/internal/content"
	"github.com/freecorps/pulse/internal/database"
	"github.com/freecorps/pulse/internal/forum"
	"github.com/freecorps/pulse/internal/handler"
	"github.com/freecorps/pulse/internal/identity"
	"github.com/freecorps/pulse/internal/logger"
	"github.com/freecorps/pulse/internal/metrics"
	"github.com/freecorps/pulse/internal/middleware"
	"github.com/freecorps/pulse/internal/model"
	"github.com/freecorps/pulse/internal/newsletter"
	"github.com/freecorps/pulse/internal/payment"
	"github.com/freecorps/pulse/internal/premium"
	"github.com/freecorps/pulse/internal/repository"
	"github.com/freecorps/pulse/internal/security"
	"github.com/freecorps/pulse/internal/teams"
	"github.com/freecorps/pulse/internal/worker/cleanup"
)

// appwriteTimeout はサーバー権限でのAppwrite API呼び出しのタイムアウト。
const appwriteTimeout = 10 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定値のログレベルで再設定する
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// help と healthcheck は設定の読み込みを必要としない
	if cmd == CommandHelp {
		Usage(w)
		return nil
	}
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(databaseURL string) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return database.Connect(ctx, databaseURL, database.DefaultPoolOptions)
}

// newPersister は認証状態スナップショットの保存先を返す。
// REDIS_URLが未設定の場合はプロセス内メモリに保持する。
func newPersister(cfg *config.Config) (authstore.Persister, func(), error) {
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL is not set; auth snapshots are kept in memory")
		return authstore.NewMemoryPersister(cfg.AuthSnapshotTTL), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("redis connection established")
	return authstore.NewRedisPersister(client, cfg.AuthSnapshotTTL), func() { client.Close() }, nil
}

// newMetrics はプロセス・ランタイムの標準メトリクスを含むレジストリとCollectorを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	postRepo := repository.NewPostgresPostRepo(db)
	gameRepo := repository.NewPostgresGameRepo(db)
	editorRepo := repository.NewPostgresEditorRepo(db)
	forumPostRepo := repository.NewPostgresForumPostRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	customerRepo := repository.NewPostgresCustomerRepo(db)
	webhookEventRepo := repository.NewPostgresWebhookEventRepo(db)

	// 3. メトリクス
	registry, collector := newMetrics()

	// 4. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()
	redirects := security.NewRedirectValidator(ssrfGuard, append([]string{cfg.BaseURL}, cfg.CORSAllowedOrigins...))

	// 5. 認証状態ストア
	persister, closePersister, err := newPersister(cfg)
	if err != nil {
		return err
	}
	defer closePersister()

	managerCfg := authstore.DefaultManagerConfig()
	managerCfg.IdleTTL = cfg.AuthStoreIdleTTL
	authManager := authstore.NewManager(
		identity.NewFactory(cfg.AppwriteEndpoint, cfg.AppwriteProjectID),
		authstore.Options{
			VerificationURL: cfg.VerificationURL,
			RecoveryURL:     cfg.RecoveryURL,
			Persister:       persister,
			Recorder:        collector,
			Logger:          log,
		},
		managerCfg,
	)
	defer authManager.Stop()
	authStores := handler.NewAuthManagerAdapter(authManager)

	// 6. サーバー権限のAppwriteクライアント
	if !cfg.AppwriteAdminConfigured() {
		slog.Warn("APPWRITE_API_KEY is not set; team checks, premium grants and user buckets are unavailable")
	}
	adminClient := appwrite.NewClient(appwrite.Config{
		Endpoint:  cfg.AppwriteEndpoint,
		ProjectID: cfg.AppwriteProjectID,
		APIKey:    cfg.AppwriteAPIKey,
		Timeout:   appwriteTimeout,
	})
	teamsClient := appwrite.NewTeams(adminClient)

	// 7. ドメインサービスの初期化
	contentService := content.NewService(postRepo, gameRepo, editorRepo, teams.NewChecker(teamsClient))
	draftCfg := content.DefaultDraftConfig()
	draftCfg.Delay = cfg.AutosaveDelay
	draftCfg.IdleTTL = cfg.DraftIdleTTL
	drafts := content.NewDraftManager(postRepo, draftCfg, func(s model.SyncStatus) {
		collector.RecordAutosave(string(s))
	}, log)

	forumService := forum.NewService(forumPostRepo, commentRepo, profileRepo, sanitizer)

	// 外部サービスは設定が揃っている場合のみ構築する。未設定のものはnilのままにし、503を返す。
	deps := &handler.RouterDeps{
		Logger:       log,
		UserResolver: handler.NewUserResolver(authStores),
		Session: middleware.SessionConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			MaxAge:       cfg.SessionMaxAge,
		},
		CSRF: middleware.CSRFConfig{
			CookieSecure:   cfg.CookieSecure,
			CookieDomain:   cfg.CookieDomain,
			ExemptPaths:    []string{"/api/webhooks/"},
			TrustedOrigins: append([]string{cfg.BaseURL}, cfg.CORSAllowedOrigins...),
		},
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		HSTS:               cfg.CookieSecure,
		RateLimiter:        middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth)),
		StatusRecorder:     collector,
		PanicRecorder:      collector,

		HealthChecker:   db,
		MetricsGatherer: registry,

		AuthStores: authStores,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:   cfg.BaseURL,
			Redirects: redirects,
		},

		Content: contentService,
		Drafts:  drafts,
		Forum:   forumService,
	}
	defer deps.RateLimiter.Stop()

	if cfg.StripeConfigured() {
		deps.Payment = payment.NewService(
			payment.NewStripeClient(cfg.StripeSecretKey),
			customerRepo,
			redirects,
			payment.Prices{Monthly: cfg.StripeMonthlyPriceID, Yearly: cfg.StripeYearlyPriceID},
		)
	} else {
		slog.Warn("STRIPE_SECRET_KEY is not set; checkout and portal are unavailable")
	}

	if cfg.WebhookConfigured() && cfg.AppwriteAdminConfigured() {
		deps.Webhook = payment.NewWebhook(
			cfg.StripeWebhookSecret,
			premium.NewService(teamsClient),
			customerRepo,
			webhookEventRepo,
			collector,
			log,
		)
	} else {
		slog.Warn("stripe webhook is unavailable; STRIPE_WEBHOOK_SECRET and APPWRITE_API_KEY are required")
	}

	if cfg.ResendAPIKey != "" {
		deps.Newsletter = newsletter.NewService(newsletter.NewResendContacts(cfg.ResendAPIKey), cfg.ResendAudienceID, log)
	} else {
		slog.Warn("RESEND_API_KEY is not set; newsletter signup is unavailable")
	}

	if cfg.AppwriteAdminConfigured() {
		deps.Bucket = bucket.NewService(appwrite.NewStorage(adminClient), ssrfGuard, log)
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		drafts.Close(context.Background())
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 保存待ちの下書きを書き出してから終了する
	if err := drafts.Close(ctx); err != nil {
		slog.Error("failed to flush pending drafts", slog.String("error", err.Error()))
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、Webhookイベント記録のクリーンアップジョブを日次で実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	_, collector := newMetrics()
	cleanupJob := cleanup.NewCleanupJob(db, collector, cfg.WebhookRetentionDays, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Int("webhook_retention_days", cleanupJob.RetentionDays),
	)

	cleanupJob.Start(ctx, 24*time.Hour)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	result, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("from_version", uint64(result.From)),
		slog.Uint64("to_version", uint64(result.To)),
		slog.Bool("applied", result.Applied()),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はログ出力用にパスワードとクエリを伏せたURLを返す。
func maskDatabaseURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
