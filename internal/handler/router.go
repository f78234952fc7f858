package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/fitbot/internal/metrics"
	"github.com/hitoshi/fitbot/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger      *slog.Logger
	RateLimiter *middleware.RateLimiter

	// Webhook
	Dispatcher      WebhookDispatcher
	DeliveryMetrics DeliveryMetrics

	// Fitbit連携
	Lifecycle TokenLifecycle
	Fetcher   FitbitFetcher
	Profiles  ProfileStore

	// 静的メディア配信
	MediaDir string

	// Prometheusスクレイプ
	Gatherer prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを
// 構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → RateLimit
//
// Webhookはプラットフォームからの再送を妨げないよう専用のレート制限を使う。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	webhookHandler := NewWebhookHandler(deps.Dispatcher, deps.DeliveryMetrics)
	fitbitHandler := NewFitbitHandler(deps.Lifecycle, deps.Fetcher, deps.Profiles)

	// Webhook受信（専用レート制限）
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.WebhookMiddleware())
		r.Post("/webhook", webhookHandler.Receive)
	})

	// その他のエンドポイント（API全般レート制限）
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/heartbeat", Heartbeat)

		r.Route("/fitbit", func(r chi.Router) {
			r.Get("/auth", fitbitHandler.InitAuth)
			r.Get("/callback", fitbitHandler.AuthCallback)
			r.Get("/{resource}", fitbitHandler.GetResource)
		})

		// 中継済みメディアの静的配信
		r.Handle("/downloaded/*", http.StripPrefix("/downloaded/", http.FileServer(http.Dir(deps.MediaDir))))
	})

	// Prometheusスクレイプはレート制限の外に置く
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	return r
}
