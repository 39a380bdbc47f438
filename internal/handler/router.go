package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/subtodo/internal/metrics"
	"github.com/hitoshi/subtodo/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector

	// 運用
	DB             Pinger
	MetricsHandler http.Handler

	// Webhook
	WebhookVerifier   WebhookVerifier
	WebhookDispatcher WebhookDispatcher
	UserCounter       UserCounter

	// 購読
	SubscriptionService SubscriptionServiceInterface

	// Todo
	TodoService TodoServiceInterface

	// ロール
	RoleService RoleServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → SessionMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// Webhookと運用系のルートはセッション認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	webhookHandler := NewWebhookHandler(deps.WebhookVerifier, deps.WebhookDispatcher, deps.UserCounter, deps.Metrics, deps.Logger)
	subHandler := NewSubscriptionHandler(deps.SubscriptionService)
	todoHandler := NewTodoHandler(deps.TodoService)
	roleHandler := NewRoleHandler(deps.RoleService)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.DB))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// 署名で認証する
	r.Route("/api/webhook/register", func(r chi.Router) {
		r.Post("/", webhookHandler.Receive)
		r.Get("/", webhookHandler.Diagnostics)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.TokenVerifier, deps.Logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 購読
		r.Route("/api/subscribe", func(r chi.Router) {
			r.Get("/", subHandler.GetStatus)
			r.Post("/", subHandler.Activate)
		})

		// Todo
		r.Route("/api/todos", func(r chi.Router) {
			r.Get("/", todoHandler.List)
			r.Post("/", todoHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", todoHandler.Update)
				r.Delete("/", todoHandler.Delete)
			})
		})

		// ロール変更（専用レート制限を追加）
		r.Route("/api/admin/users/{id}/role", func(r chi.Router) {
			r.Use(deps.RateLimiter.AdminMiddleware())
			r.Post("/", roleHandler.SetRole)
			r.Delete("/", roleHandler.RemoveRole)
		})
	})

	return r
}
