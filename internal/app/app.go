package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/fitbot/internal/config"
	"github.com/hitoshi/fitbot/internal/fitbit"
	"github.com/hitoshi/fitbot/internal/handler"
	"github.com/hitoshi/fitbot/internal/line"
	"github.com/hitoshi/fitbot/internal/logger"
	"github.com/hitoshi/fitbot/internal/metrics"
	"github.com/hitoshi/fitbot/internal/middleware"
	"github.com/hitoshi/fitbot/internal/relay"
	"github.com/hitoshi/fitbot/internal/security"
	"github.com/hitoshi/fitbot/internal/webhook"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
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
			port = "3000"
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

	return runServe(cfg)
}

// runServe はボットサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. LINEクライアントの初期化
	// 送信HTTPはSSRF防止付きクライアントを使用する
	ssrfGuard := security.NewSSRFGuard()
	lineClient := line.NewHTTPClient(line.ClientConfig{
		ChannelAccessToken: cfg.ChannelAccessToken,
		APIBaseURL:         cfg.LineAPIBaseURL,
		DataBaseURL:        cfg.LineDataBaseURL,
		Timeout:            cfg.HTTPTimeout,
		HTTPClient:         ssrfGuard.NewSafeClient(cfg.HTTPTimeout, cfg.ContentMaxSize),
	})

	// 3. Fitbitトークンライフサイクルとリソース取得の初期化
	tokenStore := fitbit.NewStore()
	tokenManager := fitbit.NewManager(tokenStore, fitbit.ManagerConfig{
		ClientID:     cfg.FitbitClientID,
		ClientSecret: cfg.FitbitClientSecret,
		RedirectURL:  cfg.BaseURL + "/fitbit/callback",
		AuthURL:      cfg.FitbitAuthURL,
		TokenURL:     cfg.FitbitTokenURL,
		Metrics:      collector,
	})
	fetcher := fitbit.NewFetcher(tokenManager, cfg.FitbitAPIBaseURL, cfg.HTTPTimeout, collector)

	// 4. メディア中継サービスの初期化
	converter := relay.NewImageMagickConverter(cfg.ConvertCommand)
	relayService := relay.NewService(lineClient, converter, ssrfGuard, collector, relay.ServiceConfig{
		MediaDir:       cfg.MediaDir,
		BaseURL:        cfg.BaseURL,
		ContentMaxSize: cfg.ContentMaxSize,
		ConvertTimeout: cfg.ConvertTimeout,
	})

	// 5. イベントディスパッチャーの初期化
	dispatcher, err := webhook.NewDispatcher(
		lineClient, fetcher, tokenManager, relayService, tokenStore, collector, cfg.BaseURL,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}

	// 6. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.WebhookRate = rate.Limit(float64(cfg.RateLimitWebhook) / 60.0)
	rateLimiterCfg.WebhookBurst = cfg.RateLimitWebhook
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:      slog.Default(),
		RateLimiter: rateLimiter,

		Dispatcher:      dispatcher,
		DeliveryMetrics: collector,

		Lifecycle: tokenManager,
		Fetcher:   fetcher,
		Profiles:  tokenStore,

		MediaDir: cfg.MediaDir,
		Gatherer: registry,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // メディア中継は変換を挟むため長めに取る
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("bot server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down bot server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("bot server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /heartbeat エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/heartbeat", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
