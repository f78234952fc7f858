package fitbit

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/hitoshi/fitbot/internal/model"
)

// defaultScopes は認可時に要求するFitbit APIスコープの一覧。
var defaultScopes = []string{
	"activity",
	"heartrate",
	"location",
	"nutrition",
	"profile",
	"settings",
	"sleep",
	"social",
	"weight",
}

// ManagerConfig はトークンライフサイクルマネージャーの設定。
type ManagerConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なエンドポイント
	AuthURL  string
	TokenURL string

	// Scopes を指定しない場合はdefaultScopesを使用する。
	Scopes []string

	// Metrics を指定しない場合は記録を行わない。
	Metrics RefreshMetrics
}

// RefreshMetrics はトークンリフレッシュのメトリクス記録機能を定義する。
type RefreshMetrics interface {
	RecordTokenRefresh(success bool)
}

// nopRefreshMetrics はメトリクス未設定時のフォールバック。
type nopRefreshMetrics struct{}

func (nopRefreshMetrics) RecordTokenRefresh(bool) {}

// Manager はトークンのライフサイクル（取得・キャッシュ・期限検知・
// 遅延リフレッシュ）を管理する。有効なトークンまたは認可URLのいずれかを
// 返し、トークンを捏造することはない。
type Manager struct {
	store   *Store
	conf    *oauth2.Config
	metrics RefreshMetrics
	now     func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(store *Store, cfg ManagerConfig) *Manager {
	endpoint := endpoints.Fitbit
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopRefreshMetrics{}
	}
	return &Manager{
		store: store,
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		metrics: metrics,
		now:     time.Now,
	}
}

// AuthCodeURL はアイデンティティ用の認可URLを返す。
// stateに identityを載せてコールバック時の振り分けに使用する。
func (m *Manager) AuthCodeURL(identity string) string {
	return m.conf.AuthCodeURL(identity, oauth2.SetAuthURLParam("expires_in", "86400"))
}

// ResolveToken は有効なトークンまたは認可URLを返す。
//   - トークン未保持: 認可URLを返す（トークンは捏造しない）
//   - 有効期限内: 保存済みトークンをそのまま返す（ネットワーク呼び出しなし）
//   - 期限切れ: リフレッシュを1回だけ実行し、保存トークンをアトミックに
//     差し替えて新トークンを返す
//
// リフレッシュ失敗時はエントリのトークンを無効化した上で
// TokenRefreshErrorを返す。次回のResolveTokenは認可URLを再提示する。
func (m *Manager) ResolveToken(ctx context.Context, identity string) (*oauth2.Token, string, error) {
	e := m.store.entry(identity)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token == nil {
		return nil, m.AuthCodeURL(identity), nil
	}

	if e.token.Expiry.IsZero() || m.now().Before(e.token.Expiry) {
		return e.token, "", nil
	}

	// 期限切れ: リフレッシュクレデンシャルで1回だけ更新する
	refreshed, err := m.conf.TokenSource(ctx, e.token).Token()
	if err != nil {
		slog.Warn("token refresh failed",
			slog.String("identity", identity),
			slog.String("error", err.Error()),
		)
		m.metrics.RecordTokenRefresh(false)
		// 失効エントリを無効化し、次回の解決で認可URLを再提示する
		e.token = nil
		return nil, "", model.NewTokenRefreshError(identity, err)
	}

	m.metrics.RecordTokenRefresh(true)
	e.token = refreshed
	return refreshed, "", nil
}

// AuthorizeCallback は認可コードをトークンに交換してアイデンティティの
// エントリに保存し、保存したトークンを返す。使用済み・不正なコードでは
// AuthExchangeErrorを返し、ストアは変更しない。
func (m *Manager) AuthorizeCallback(ctx context.Context, identity, code string) (*oauth2.Token, error) {
	token, err := m.conf.Exchange(ctx, code)
	if err != nil {
		return nil, model.NewAuthExchangeError(identity, err)
	}

	e := m.store.entry(identity)
	e.mu.Lock()
	e.token = token
	e.mu.Unlock()

	slog.Info("fitbit authorization completed",
		slog.String("identity", identity),
		slog.Time("expiry", token.Expiry),
	)
	return token, nil
}
