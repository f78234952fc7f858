// Package webhook は受信イベントを種別ごとのハンドラーに振り分け、
// 返信と副作用を実行するディスパッチャーを提供する。
package webhook

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/fitbot/internal/fitbit"
	"github.com/hitoshi/fitbot/internal/line"
	"github.com/hitoshi/fitbot/internal/model"
)

//go:embed phrases.json
var phrasesJSON []byte

// ResourceFetcher はFitbitリソースの取得機能を定義する。fitbit.Fetcherが実装する。
type ResourceFetcher interface {
	Fetch(ctx context.Context, identity string, resource fitbit.Resource) (*fitbit.FetchResult, error)
}

// AuthURLProvider は認可URLの発行機能を定義する。fitbit.Managerが実装する。
type AuthURLProvider interface {
	AuthCodeURL(identity string) string
}

// ContentRelay はメディアコンテンツの中継機能を定義する。relay.Serviceが実装する。
type ContentRelay interface {
	Relay(ctx context.Context, msg *line.EventMessage) ([]line.SendMessage, error)
}

// ProfileCache はキャッシュ済みFitbitプロフィールの参照機能を定義する。
// fitbit.Storeが実装する。
type ProfileCache interface {
	CachedProfile(identity string) *fitbit.Profile
}

// DispatchMetrics はイベント処理のメトリクス記録機能を定義する。
type DispatchMetrics interface {
	RecordEvent(eventType string)
	RecordEventError(eventType string)
}

// nopDispatchMetrics はメトリクス未設定時のフォールバック。
type nopDispatchMetrics struct{}

func (nopDispatchMetrics) RecordEvent(string)      {}
func (nopDispatchMetrics) RecordEventError(string) {}

// イベント処理結果のステータス値。
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// EventResult は配信バッチ内の1イベントの処理結果を表す。
type EventResult struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Dispatcher は受信イベントをイベント種別・メッセージ種別・テキスト内容の
// 順に分類し、対応するハンドラーを実行する。配信をまたぐ状態は持たない。
type Dispatcher struct {
	client   line.Client
	fetcher  ResourceFetcher
	auth     AuthURLProvider
	relay    ContentRelay
	profiles ProfileCache
	metrics  DispatchMetrics
	baseURL  string
	phrases  map[string]json.RawMessage
}

// NewDispatcher はディスパッチャーを生成する。
// 定型文テーブルは埋め込みのphrases.jsonから読み込む。
// metricsがnilの場合は記録を行わない。
func NewDispatcher(client line.Client, fetcher ResourceFetcher, auth AuthURLProvider, relay ContentRelay, profiles ProfileCache, metrics DispatchMetrics, baseURL string) (*Dispatcher, error) {
	var phrases map[string]json.RawMessage
	if err := json.Unmarshal(phrasesJSON, &phrases); err != nil {
		return nil, fmt.Errorf("failed to parse phrase table: %w", err)
	}
	if metrics == nil {
		metrics = nopDispatchMetrics{}
	}
	return &Dispatcher{
		client:   client,
		fetcher:  fetcher,
		auth:     auth,
		relay:    relay,
		profiles: profiles,
		metrics:  metrics,
		baseURL:  baseURL,
		phrases:  phrases,
	}, nil
}

// HandleDelivery は配信バッチ内の全イベントを並行処理し、
// イベントごとの結果を入力順で返す。1イベントの失敗 (panicを含む) は
// 他のイベントの処理を中断しない。
func (d *Dispatcher) HandleDelivery(ctx context.Context, delivery *line.WebhookDelivery) []EventResult {
	results := make([]EventResult, len(delivery.Events))

	var wg sync.WaitGroup
	for i := range delivery.Events {
		wg.Add(1)
		go func(i int, ev line.Event) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("イベントハンドラーがpanicしました", "event_type", ev.Type, "panic", r)
					d.metrics.RecordEventError(ev.Type)
					results[i] = EventResult{Type: ev.Type, Status: StatusError, Error: fmt.Sprintf("panic: %v", r)}
				}
			}()

			if ev.Type == line.EventTypeMessage && isTestHookToken(ev.ReplyToken) {
				payload, _ := json.Marshal(ev.Message)
				slog.Info("テストフックを受信しました", "message", string(payload))
				results[i] = EventResult{Type: ev.Type, Status: StatusSkipped}
				return
			}

			d.metrics.RecordEvent(ev.Type)
			if err := d.handleEvent(ctx, &ev); err != nil {
				slog.Error("イベント処理に失敗しました", "event_type", ev.Type, "error", err)
				d.metrics.RecordEventError(ev.Type)
				results[i] = EventResult{Type: ev.Type, Status: StatusError, Error: err.Error()}
				return
			}
			results[i] = EventResult{Type: ev.Type, Status: StatusSuccess}
		}(i, delivery.Events[i])
	}
	wg.Wait()

	return results
}

// isTestHookToken はプラットフォーム検証用のダミー返信トークンかを判定する。
// 同一文字の繰り返しのみで構成されるトークンはテストフックとして扱う。
func isTestHookToken(token string) bool {
	if token == "" {
		return false
	}
	var first rune
	for i, r := range token {
		if i == 0 {
			first = r
			continue
		}
		if r != first {
			return false
		}
	}
	return true
}

// handleEvent はイベント種別に応じたハンドラーを実行する。
// 列挙外の種別は契約違反としてUnknownEventErrorを返す。
func (d *Dispatcher) handleEvent(ctx context.Context, ev *line.Event) error {
	switch ev.Type {
	case line.EventTypeMessage:
		if ev.Message == nil {
			return model.NewUnknownEventError(ev.Type, "message event without message payload")
		}
		return d.handleMessage(ctx, ev)
	case line.EventTypeFollow:
		return d.replyText(ctx, ev.ReplyToken, "Got followed event")
	case line.EventTypeUnfollow:
		slog.Info("フォローが解除されました", "user_id", ev.Source.UserID)
		return nil
	case line.EventTypeJoin:
		return d.replyText(ctx, ev.ReplyToken, "Joined "+ev.Source.Type)
	case line.EventTypeLeave:
		slog.Info("グループ/ルームから退出しました", "source_type", ev.Source.Type)
		return nil
	case line.EventTypePostback:
		return d.handlePostback(ctx, ev)
	case line.EventTypeBeacon:
		if ev.Beacon == nil {
			return model.NewUnknownEventError(ev.Type, "beacon event without beacon payload")
		}
		return d.replyText(ctx, ev.ReplyToken, "Got beacon: "+ev.Beacon.Hwid)
	default:
		payload, _ := json.Marshal(ev)
		return model.NewUnknownEventError(ev.Type, string(payload))
	}
}

// handleMessage はメッセージ種別に応じたハンドラーを実行する。
func (d *Dispatcher) handleMessage(ctx context.Context, ev *line.Event) error {
	msg := ev.Message
	switch msg.Type {
	case line.MessageTypeText:
		return d.handleText(ctx, ev, msg.Text)
	case line.MessageTypeImage, line.MessageTypeVideo, line.MessageTypeAudio:
		messages, err := d.relay.Relay(ctx, msg)
		if err != nil {
			return err
		}
		return d.client.ReplyMessage(ctx, ev.ReplyToken, messages...)
	case line.MessageTypeLocation:
		reply := line.LocationMessage{
			Type:      line.MessageTypeLocation,
			Title:     msg.Title,
			Address:   msg.Address,
			Latitude:  msg.Latitude,
			Longitude: msg.Longitude,
		}
		return d.client.ReplyMessage(ctx, ev.ReplyToken, reply)
	case line.MessageTypeSticker:
		reply := line.StickerMessage{
			Type:      line.MessageTypeSticker,
			PackageID: msg.PackageID,
			StickerID: msg.StickerID,
		}
		return d.client.ReplyMessage(ctx, ev.ReplyToken, reply)
	default:
		payload, _ := json.Marshal(msg)
		return model.NewUnknownEventError(msg.Type, string(payload))
	}
}

// handlePostback はポストバックイベントを処理する。
// 日時選択アクションのペイロードには構造化パラメーターを併記する。
func (d *Dispatcher) handlePostback(ctx context.Context, ev *line.Event) error {
	if ev.Postback == nil {
		return model.NewUnknownEventError(ev.Type, "postback event without postback payload")
	}
	data := ev.Postback.Data
	if data == "DATE" || data == "TIME" || data == "DATETIME" {
		params, err := json.Marshal(ev.Postback.Params)
		if err == nil {
			data += "(" + string(params) + ")"
		}
	}
	return d.replyText(ctx, ev.ReplyToken, "Got postback: "+data)
}

// handleText はテキスト本文をコマンドとして解釈する。
// コマンド照合は本文全体の完全一致で、大文字小文字のみ区別しない。
// どのコマンドにも一致しない場合は定型文テーブルを引き、
// それにもなければ本文をそのまま返信する。
func (d *Dispatcher) handleText(ctx context.Context, ev *line.Event, text string) error {
	switch strings.ToLower(text) {
	case "profile":
		return d.handleProfileCommand(ctx, ev)
	case "bye":
		return d.handleByeCommand(ctx, ev)
	case "fitbit":
		authURL := d.auth.AuthCodeURL(identityFor(ev.Source))
		return d.replyText(ctx, ev.ReplyToken, fitbit.AuthRequestLines(authURL)...)
	case "activity":
		return d.replyFitbitResource(ctx, ev, fitbit.ResourceActivity)
	case "sleep":
		return d.replyFitbitResource(ctx, ev, fitbit.ResourceSleep)
	default:
		return d.handleFallback(ctx, ev, text)
	}
}

// handleProfileCommand はボットプラットフォーム上の送信者プロフィールを返信する。
func (d *Dispatcher) handleProfileCommand(ctx context.Context, ev *line.Event) error {
	if ev.Source.UserID == "" {
		return d.replyText(ctx, ev.ReplyToken, "Bot can't use profile API without user ID")
	}
	profile, err := d.client.GetProfile(ctx, ev.Source.UserID)
	if err != nil {
		return fmt.Errorf("profile lookup failed: %w", err)
	}
	return d.replyText(ctx, ev.ReplyToken,
		"Display name: "+profile.DisplayName,
		"Picture: "+profile.PictureURL,
		"Status message: "+profile.StatusMessage,
	)
}

// handleByeCommand は送信元の種別に応じて退出動作を実行する。
// 1:1チャットからは退出できないため、その旨を返信する。
func (d *Dispatcher) handleByeCommand(ctx context.Context, ev *line.Event) error {
	switch ev.Source.Type {
	case line.SourceTypeUser:
		return d.replyText(ctx, ev.ReplyToken, "Bot can't leave from 1:1 chat")
	case line.SourceTypeGroup:
		if err := d.replyText(ctx, ev.ReplyToken, "Leaving group"); err != nil {
			return err
		}
		return d.client.LeaveGroup(ctx, ev.Source.GroupID)
	case line.SourceTypeRoom:
		if err := d.replyText(ctx, ev.ReplyToken, "Leaving room"); err != nil {
			return err
		}
		return d.client.LeaveRoom(ctx, ev.Source.RoomID)
	default:
		return model.NewUnknownEventError(ev.Source.Type, "unknown source type for bye command")
	}
}

// replyFitbitResource はFitbitリソースを取得して整形済みテキストを返信する。
// トークン未保持の場合は認可URLの案内を返信する。
func (d *Dispatcher) replyFitbitResource(ctx context.Context, ev *line.Event, resource fitbit.Resource) error {
	identity := identityFor(ev.Source)
	result, err := d.fetcher.Fetch(ctx, identity, resource)
	if err != nil {
		return err
	}
	if result.AuthURL != "" {
		return d.replyText(ctx, ev.ReplyToken, fitbit.AuthRequestLines(result.AuthURL)...)
	}

	displayName := ""
	if profile := d.profiles.CachedProfile(identity); profile != nil {
		displayName = profile.DisplayName
	}

	var text string
	switch r := result.Resource.(type) {
	case *fitbit.ActivitySummary:
		text = r.SummaryText(displayName)
	case *fitbit.SleepSummary:
		text = r.SummaryText(displayName)
	default:
		payload, _ := json.Marshal(result.Resource)
		text = "Fitbit Response, " + string(payload)
	}
	return d.replyText(ctx, ev.ReplyToken, text)
}

// handleFallback は定型文テーブルを引き、なければ本文をそのまま返信する。
// 定型文の照合は登録された表記そのままで行う。
func (d *Dispatcher) handleFallback(ctx context.Context, ev *line.Event, text string) error {
	if raw, ok := d.phrases[text]; ok {
		payload := strings.ReplaceAll(string(raw), "$BASE_URL", d.baseURL)
		return d.client.ReplyMessage(ctx, ev.ReplyToken, line.RawMessage(payload))
	}
	slog.Info("メッセージをエコーします", "reply_token", ev.ReplyToken, "text", text)
	return d.replyText(ctx, ev.ReplyToken, text)
}

// replyText はテキスト行をまとめて1回の返信として送信する。
func (d *Dispatcher) replyText(ctx context.Context, replyToken string, texts ...string) error {
	messages := make([]line.SendMessage, 0, len(texts))
	for _, text := range texts {
		messages = append(messages, line.NewTextMessage(text))
	}
	return d.client.ReplyMessage(ctx, replyToken, messages...)
}

// identityFor は送信元からトークンストアのアイデンティティを導出する。
// ユーザーIDを持たない送信元は既定のアイデンティティに集約される。
func identityFor(source line.Source) string {
	if source.UserID != "" {
		return source.UserID
	}
	return fitbit.DefaultIdentity
}
