// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// LINE Messaging API
	ChannelAccessToken string
	LineAPIBaseURL     string // テスト用にオーバーライド可能
	LineDataBaseURL    string // コンテンツ取得用エンドポイント

	// Fitbit OAuth
	FitbitClientID     string
	FitbitClientSecret string
	FitbitAPIBaseURL   string // テスト用にオーバーライド可能
	FitbitAuthURL      string
	FitbitTokenURL     string

	// Server
	ServerPort string
	BaseURL    string

	// Media relay
	MediaDir       string
	ConvertCommand string
	ConvertTimeout time.Duration
	ContentMaxSize int64

	// Outbound HTTP
	HTTPTimeout time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitWebhook int
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.ChannelAccessToken = os.Getenv("CHANNEL_ACCESS_TOKEN")
	if cfg.ChannelAccessToken == "" {
		missing = append(missing, "CHANNEL_ACCESS_TOKEN")
	}

	cfg.FitbitClientID = os.Getenv("FITBIT_CLIENT_ID")
	if cfg.FitbitClientID == "" {
		missing = append(missing, "FITBIT_CLIENT_ID")
	}

	cfg.FitbitClientSecret = os.Getenv("FITBIT_CLIENT_SECRET")
	if cfg.FitbitClientSecret == "" {
		missing = append(missing, "FITBIT_CLIENT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:3000")
	cfg.ServerPort = getEnvString("SERVER_PORT", "3000")
	cfg.LineAPIBaseURL = getEnvString("LINE_API_BASE_URL", "https://api.line.me")
	cfg.LineDataBaseURL = getEnvString("LINE_DATA_BASE_URL", "https://api-data.line.me")
	cfg.FitbitAPIBaseURL = getEnvString("FITBIT_API_BASE_URL", "https://api.fitbit.com")
	cfg.FitbitAuthURL = getEnvString("FITBIT_AUTH_URL", "https://www.fitbit.com/oauth2/authorize")
	cfg.FitbitTokenURL = getEnvString("FITBIT_TOKEN_URL", "https://api.fitbit.com/oauth2/token")
	cfg.MediaDir = getEnvString("MEDIA_DIR", "public/downloaded")
	cfg.ConvertCommand = getEnvString("CONVERT_COMMAND", "convert")
	cfg.ConvertTimeout = getEnvDuration("CONVERT_TIMEOUT", 30*time.Second)
	cfg.ContentMaxSize = getEnvInt64("CONTENT_MAX_SIZE", 10485760)
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 10*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitWebhook = getEnvInt("RATE_LIMIT_WEBHOOK", 600)

	return cfg, nil
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
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
