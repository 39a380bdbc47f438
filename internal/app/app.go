package app

import (
	"context"
	"database/sql"
	"errors"
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

	"github.com/hitoshi/subtodo/internal/auth"
	"github.com/hitoshi/subtodo/internal/clerk"
	"github.com/hitoshi/subtodo/internal/config"
	"github.com/hitoshi/subtodo/internal/database"
	"github.com/hitoshi/subtodo/internal/handler"
	"github.com/hitoshi/subtodo/internal/logger"
	"github.com/hitoshi/subtodo/internal/metrics"
	"github.com/hitoshi/subtodo/internal/middleware"
	"github.com/hitoshi/subtodo/internal/repository"
	"github.com/hitoshi/subtodo/internal/role"
	"github.com/hitoshi/subtodo/internal/security"
	"github.com/hitoshi/subtodo/internal/subscription"
	"github.com/hitoshi/subtodo/internal/todo"
	"github.com/hitoshi/subtodo/internal/user"
	"github.com/hitoshi/subtodo/internal/webhook"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化する
	log := logger.SetupDefault(w, cfg.LogLevel)
	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var subArgs []string
	if len(args) > 1 {
		subArgs = args[1:]
	}

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg, log, subArgs)
	case CommandReconcile:
		return runReconcile(ctx, cfg, log)
	default:
		return runServe(ctx, cfg, log)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("database connection established")
	return db, nil
}

// newDeliveryStore はREDIS_URLが設定されていればRedisの配信記録ストアを返す。
// 未設定の場合は重複排除を行わないストアを返す。closeは常に呼び出してよい。
func newDeliveryStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (webhook.DeliveryStore, func(), error) {
	if cfg.RedisURL == "" {
		log.Info("webhook delivery de-duplication disabled")
		return webhook.NopDeliveryStore{}, func() {}, nil
	}

	rdb, err := webhook.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	// 重複排除は最適化のため、疎通できなくても起動は継続する
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis is not reachable, de-duplication will be retried per delivery",
			slog.String("error", err.Error()),
		)
	}
	log.Info("webhook delivery de-duplication enabled",
		slog.Duration("ttl", cfg.WebhookDedupeTTL),
	)
	return webhook.NewRedisDeliveryStore(rdb, cfg.WebhookDedupeTTL), func() { rdb.Close() }, nil
}

// newMetrics はプロセスメトリクスを含むレジストリとCollectorを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// buildRouter は全依存関係をワイヤリングしてルーターを構築する。
func buildRouter(cfg *config.Config, log *slog.Logger, db *sql.DB, deliveries webhook.DeliveryStore, reg *prometheus.Registry, m *metrics.Collector, rl *middleware.RateLimiter) (http.Handler, error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	todoRepo := repository.NewPostgresTodoRepo(db)

	// 2. 外部サービスの初期化
	tokenVerifier, err := auth.NewVerifier(auth.Config{
		Issuer:            cfg.ClerkIssuer,
		JWKSURL:           cfg.ClerkJWKSURL,
		AuthorizedParties: cfg.ClerkAuthorizedParties,
		Logger:            log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session verifier: %w", err)
	}
	webhookVerifier, err := webhook.NewVerifier(cfg.WebhookSecret)
	if err != nil {
		return nil, err
	}
	if !webhookVerifier.Configured() {
		log.Warn("WEBHOOK_SECRET is not set, webhook deliveries will be rejected")
	}
	clerkClient := clerk.NewClient(&http.Client{Timeout: 10 * time.Second}, cfg.ClerkAPIURL, cfg.ClerkSecretKey, log)
	if !clerkClient.Configured() {
		log.Warn("CLERK_SECRET_KEY is not set, role changes will be rejected")
	}

	// 3. ドメインサービスの初期化
	userService := user.NewService(userRepo, log)
	subService := subscription.NewService(userRepo, m, log)
	todoService := todo.NewService(todoRepo, subService, security.NewTitleSanitizer(), m, log, todo.Config{
		FreeTodoLimit: cfg.FreeTodoLimit,
	})
	roleService := role.NewService(clerkClient, m, log)
	dispatcher := webhook.NewDispatcher(userService, deliveries, m, log)

	// 4. ルーターの構築
	return handler.NewRouter(&handler.RouterDeps{
		TokenVerifier:     tokenVerifier,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rl,
		Logger:            log,
		Metrics:           m,

		DB:             db,
		MetricsHandler: metrics.Handler(reg),

		WebhookVerifier:   webhookVerifier,
		WebhookDispatcher: dispatcher,
		UserCounter:       userService,

		SubscriptionService: subService,
		TodoService:         todoService,
		RoleService:         roleService,
	}), nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	deliveries, closeDeliveries, err := newDeliveryStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDeliveries()

	reg, m := newMetrics()

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral), log)
	defer rl.Stop()

	router, err := buildRouter(cfg, log, db, deliveries, reg, m, rl)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// up はすべての未適用マイグレーションを順番に適用し、down は直近の1件を取り消す。
func runMigrate(cfg *config.Config, log *slog.Logger, args []string) error {
	action, ok := ParseMigrateAction(args)
	if !ok {
		return fmt.Errorf("unknown migrate action: %q (want up, down or version)", args[0])
	}

	log.Info("running database migrations",
		slog.String("action", string(action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case MigrateDown:
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		log.Info("current migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
		return nil
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Info("database migrations completed successfully")
	return nil
}

// runReconcile は期限切れの購読を一括で失効させて終了する。
// 読み取り時の遅延失効と同じ条件付き更新のため、何度実行しても結果は変わらない。
func runReconcile(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	subService := subscription.NewService(repository.NewPostgresUserRepo(db), nil, log)
	if _, err := subService.ReconcileAll(ctx); err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}
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

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
