// Package model はドメインモデルとエラー型を定義する。
package model

import "fmt"

// APIError はHTTPレスポンス用の統一エラーフォーマットを表す。
// クライアントに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, fitbit, relay, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnknownEvent      = "UNKNOWN_EVENT"
	ErrCodeAuthExchange      = "AUTH_EXCHANGE_FAILED"
	ErrCodeTokenRefresh      = "TOKEN_REFRESH_FAILED"
	ErrCodeFetchFailed       = "FETCH_FAILED"
	ErrCodeRelayFailed       = "RELAY_FAILED"
	ErrCodeMalformedDelivery = "MALFORMED_DELIVERY"
)

// UnknownEventError は列挙外のイベント種別またはメッセージ種別を受信した
// ことを表す。該当イベントに対しては致命的だが、バッチ全体は継続する。
type UnknownEventError struct {
	Kind    string // 未知の種別名
	Payload string // 診断用のペイロード文字列
}

// Error はerrorインターフェースを実装する。
func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown event variant %q: %s", e.Kind, e.Payload)
}

// NewUnknownEventError は未知イベントエラーを生成する。
func NewUnknownEventError(kind, payload string) *UnknownEventError {
	return &UnknownEventError{Kind: kind, Payload: payload}
}

// AuthExchangeError は認可コードからトークンへの交換失敗を表す。
// 使用済み・不正なコードによるコールバック再送で発生する。
type AuthExchangeError struct {
	Identity string
	Err      error
}

// Error はerrorインターフェースを実装する。
func (e *AuthExchangeError) Error() string {
	return fmt.Sprintf("auth code exchange failed for identity %q: %v", e.Identity, e.Err)
}

// Unwrap はラップされた原因エラーを返す。
func (e *AuthExchangeError) Unwrap() error { return e.Err }

// NewAuthExchangeError は認可交換エラーを生成する。
func NewAuthExchangeError(identity string, err error) *AuthExchangeError {
	return &AuthExchangeError{Identity: identity, Err: err}
}

// TokenRefreshError は期限切れトークンのリフレッシュ失敗を表す。
// 呼び出し元へそのまま伝播する。
type TokenRefreshError struct {
	Identity string
	Err      error
}

// Error はerrorインターフェースを実装する。
func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("token refresh failed for identity %q: %v", e.Identity, e.Err)
}

// Unwrap はラップされた原因エラーを返す。
func (e *TokenRefreshError) Unwrap() error { return e.Err }

// NewTokenRefreshError はトークンリフレッシュエラーを生成する。
func NewTokenRefreshError(identity string, err error) *TokenRefreshError {
	return &TokenRefreshError{Identity: identity, Err: err}
}

// FetchError はFitbitリソース取得の失敗を表す。
// 上流のHTTPステータスとレスポンスボディを保持する。
// トランスポート障害の場合はStatusが0になる。
type FetchError struct {
	Resource string
	Status   int
	Body     string
	Err      error
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s failed with status %d: %s", e.Resource, e.Status, e.Body)
	}
	return fmt.Sprintf("fetch %s failed: %v", e.Resource, e.Err)
}

// Unwrap はラップされた原因エラーを返す。
func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError はリソース取得エラーを生成する。
func NewFetchError(resource string, status int, body string, err error) *FetchError {
	return &FetchError{Resource: resource, Status: status, Body: body, Err: err}
}

// RelayError はコンテンツのダウンロードまたは変換の失敗を表す。
// メッセージ単位で捕捉され、同一バッチの他イベントを中断させない。
type RelayError struct {
	MessageID string
	Err       error
}

// Error はerrorインターフェースを実装する。
func (e *RelayError) Error() string {
	return fmt.Sprintf("content relay failed for message %q: %v", e.MessageID, e.Err)
}

// Unwrap はラップされた原因エラーを返す。
func (e *RelayError) Unwrap() error { return e.Err }

// NewRelayError はコンテンツ中継エラーを生成する。
func NewRelayError(messageID string, err error) *RelayError {
	return &RelayError{MessageID: messageID, Err: err}
}

// MalformedDeliveryError はWebhook配信のトップレベル形状が不正である
// ことを表す。配信全体が拒否される。
type MalformedDeliveryError struct {
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *MalformedDeliveryError) Error() string {
	return fmt.Sprintf("malformed webhook delivery: %s", e.Reason)
}

// NewMalformedDeliveryError は配信形状エラーを生成する。
func NewMalformedDeliveryError(reason string) *MalformedDeliveryError {
	return &MalformedDeliveryError{Reason: reason}
}

// NewMalformedDeliveryAPIError は配信拒否用のAPIErrorを生成する。
func NewMalformedDeliveryAPIError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeMalformedDelivery,
		Message:  fmt.Sprintf("Webhookペイロードの形式が不正です: %s", reason),
		Category: "validation",
		Action:   "eventsが配列のJSONボディを送信してください。",
	}
}

// NewAuthExchangeAPIError は認可交換失敗用のAPIErrorを生成する。
func NewAuthExchangeAPIError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthExchange,
		Message:  "認可コードの交換に失敗しました。",
		Category: "auth",
		Action:   "認可フローを最初からやり直してください。",
	}
}

// 上流レスポンスボディをAPIErrorに載せる際の上限。
const fetchErrorBodyLimit = 256

// NewFetchAPIError はリソース取得失敗用のAPIErrorを生成する。
// 上流のレスポンスボディがある場合は切り詰めてメッセージに含める。
func NewFetchAPIError(resource string, status int, body string) *APIError {
	msg := fmt.Sprintf("Fitbitリソース %s の取得に失敗しました（上流ステータス %d）。", resource, status)
	if body != "" {
		if len(body) > fetchErrorBodyLimit {
			body = body[:fetchErrorBodyLimit]
		}
		msg += fmt.Sprintf(" 上流レスポンス: %s", body)
	}
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  msg,
		Category: "fitbit",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
