package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/fitbot/internal/fitbit"
	"github.com/hitoshi/fitbot/internal/line"
	"github.com/hitoshi/fitbot/internal/model"
)

// recordedReply は送信された返信を記録する。
type recordedReply struct {
	token    string
	messages []line.SendMessage
}

// mockLineClient はline.Clientのモック。並行ディスパッチから呼ばれるため
// 記録はミューテックスで保護する。
type mockLineClient struct {
	mu           sync.Mutex
	replies      []recordedReply
	leftGroups   []string
	leftRooms    []string
	getProfileFn func(ctx context.Context, userID string) (*line.Profile, error)
	replyErr     error
}

func (m *mockLineClient) ReplyMessage(ctx context.Context, replyToken string, messages ...line.SendMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replyErr != nil {
		return m.replyErr
	}
	m.replies = append(m.replies, recordedReply{token: replyToken, messages: messages})
	return nil
}

func (m *mockLineClient) GetProfile(ctx context.Context, userID string) (*line.Profile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, userID)
	}
	return nil, errors.New("getProfileFn not set")
}

func (m *mockLineClient) GetMessageContent(ctx context.Context, messageID string) (io.ReadCloser, error) {
	return nil, errors.New("not supported in mock")
}

func (m *mockLineClient) LeaveGroup(ctx context.Context, groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leftGroups = append(m.leftGroups, groupID)
	return nil
}

func (m *mockLineClient) LeaveRoom(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leftRooms = append(m.leftRooms, roomID)
	return nil
}

func (m *mockLineClient) recordedReplies() []recordedReply {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedReply(nil), m.replies...)
}

// mockFetcher はResourceFetcherのモック。
type mockFetcher struct {
	fetchFn func(ctx context.Context, identity string, resource fitbit.Resource) (*fitbit.FetchResult, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, identity string, resource fitbit.Resource) (*fitbit.FetchResult, error) {
	return m.fetchFn(ctx, identity, resource)
}

// mockAuthProvider はAuthURLProviderのモック。
type mockAuthProvider struct {
	authURL string
}

func (m *mockAuthProvider) AuthCodeURL(identity string) string {
	return m.authURL + "?state=" + identity
}

// mockContentRelay はContentRelayのモック。
type mockContentRelay struct {
	relayFn func(ctx context.Context, msg *line.EventMessage) ([]line.SendMessage, error)
}

func (m *mockContentRelay) Relay(ctx context.Context, msg *line.EventMessage) ([]line.SendMessage, error) {
	return m.relayFn(ctx, msg)
}

// mockProfileCache はProfileCacheのモック。
type mockProfileCache struct {
	profile *fitbit.Profile
}

func (m *mockProfileCache) CachedProfile(identity string) *fitbit.Profile {
	return m.profile
}

func newTestDispatcher(t *testing.T, client *mockLineClient) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(
		client,
		&mockFetcher{fetchFn: func(ctx context.Context, identity string, resource fitbit.Resource) (*fitbit.FetchResult, error) {
			return nil, errors.New("fetchFn not set")
		}},
		&mockAuthProvider{authURL: "https://www.fitbit.com/oauth2/authorize"},
		&mockContentRelay{relayFn: func(ctx context.Context, msg *line.EventMessage) ([]line.SendMessage, error) {
			return nil, errors.New("relayFn not set")
		}},
		&mockProfileCache{},
		nil,
		"http://x",
	)
	if err != nil {
		t.Fatalf("NewDispatcher() returned error: %v", err)
	}
	return d
}

func textEvent(replyToken, text string, source line.Source) line.Event {
	return line.Event{
		Type:       line.EventTypeMessage,
		ReplyToken: replyToken,
		Source:     source,
		Message:    &line.EventMessage{ID: "m1", Type: line.MessageTypeText, Text: text},
	}
}

func handleSingle(t *testing.T, d *Dispatcher, ev line.Event) EventResult {
	t.Helper()
	results := d.HandleDelivery(context.Background(), &line.WebhookDelivery{Events: []line.Event{ev}})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	return results[0]
}

func textOf(t *testing.T, msg line.SendMessage) string {
	t.Helper()
	text, ok := msg.(line.TextMessage)
	if !ok {
		t.Fatalf("expected TextMessage, got %T", msg)
	}
	return text.Text
}

// TestByeCommandFromUser は1:1チャットでのbyeコマンドをテストする。
func TestByeCommandFromUser(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	result := handleSingle(t, d, textEvent("r1", "bye", line.Source{Type: line.SourceTypeUser, UserID: "u1"}))
	if result.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}

	replies := client.recordedReplies()
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if got := textOf(t, replies[0].messages[0]); got != "Bot can't leave from 1:1 chat" {
		t.Errorf("unexpected reply text: %s", got)
	}
	if len(client.leftGroups) != 0 || len(client.leftRooms) != 0 {
		t.Error("expected no leave calls for 1:1 chat")
	}
}

// TestByeCommandFromGroup はグループでのbyeコマンドをテストする。
// 退出通知の返信後にグループ退出が実行される。
func TestByeCommandFromGroup(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	result := handleSingle(t, d, textEvent("r1", "bye", line.Source{Type: line.SourceTypeGroup, GroupID: "g1"}))
	if result.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}

	replies := client.recordedReplies()
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if got := textOf(t, replies[0].messages[0]); got != "Leaving group" {
		t.Errorf("unexpected reply text: %s", got)
	}
	if len(client.leftGroups) != 1 || client.leftGroups[0] != "g1" {
		t.Errorf("expected leave call for g1, got %v", client.leftGroups)
	}
}

// TestByeCommandCaseInsensitive はコマンド照合が大文字小文字を
// 区別しないことをテストする。
func TestByeCommandCaseInsensitive(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	handleSingle(t, d, textEvent("r1", "BYE", line.Source{Type: line.SourceTypeUser, UserID: "u1"}))

	replies := client.recordedReplies()
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if got := textOf(t, replies[0].messages[0]); got != "Bot can't leave from 1:1 chat" {
		t.Errorf("unexpected reply text: %s", got)
	}
}

// TestProfileCommand はprofileコマンドの3行返信をテストする。
func TestProfileCommand(t *testing.T) {
	client := &mockLineClient{
		getProfileFn: func(ctx context.Context, userID string) (*line.Profile, error) {
			if userID != "u1" {
				t.Errorf("unexpected user ID: %s", userID)
			}
			return &line.Profile{
				UserID:        "u1",
				DisplayName:   "Hitoshi",
				PictureURL:    "https://profile.example.com/u1.jpg",
				StatusMessage: "hello",
			}, nil
		},
	}
	d := newTestDispatcher(t, client)

	handleSingle(t, d, textEvent("r1", "profile", line.Source{Type: line.SourceTypeUser, UserID: "u1"}))

	replies := client.recordedReplies()
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if len(replies[0].messages) != 3 {
		t.Fatalf("expected 3 message lines, got %d", len(replies[0].messages))
	}
	if got := textOf(t, replies[0].messages[0]); got != "Display name: Hitoshi" {
		t.Errorf("unexpected first line: %s", got)
	}
	if got := textOf(t, replies[0].messages[2]); got != "Status message: hello" {
		t.Errorf("unexpected third line: %s", got)
	}
}

// TestProfileCommandWithoutUserID はユーザーIDを持たない送信元での
// profileコマンドをテストする。
func TestProfileCommandWithoutUserID(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	handleSingle(t, d, textEvent("r1", "profile", line.Source{Type: line.SourceTypeGroup, GroupID: "g1"}))

	replies := client.recordedReplies()
	if got := textOf(t, replies[0].messages[0]); got != "Bot can't use profile API without user ID" {
		t.Errorf("unexpected reply text: %s", got)
	}
}

// TestFitbitCommand はfitbitコマンドが常に案内文と認可URLを返信することをテストする。
func TestFitbitCommand(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	handleSingle(t, d, textEvent("r1", "fitbit", line.Source{Type: line.SourceTypeUser, UserID: "u1"}))

	replies := client.recordedReplies()
	if len(replies[0].messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(replies[0].messages))
	}
	if got := textOf(t, replies[0].messages[0]); !strings.Contains(got, "アクセス許可") {
		t.Errorf("expected permission request preamble, got: %s", got)
	}
	if got := textOf(t, replies[0].messages[1]); got != "https://www.fitbit.com/oauth2/authorize?state=u1" {
		t.Errorf("unexpected auth URL reply: %s", got)
	}
}

// TestPhraseTableSubstitution は定型文テーブルのベースURL置換をテストする。
func TestPhraseTableSubstitution(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	handleSingle(t, d, textEvent("r1", "help", line.Source{Type: line.SourceTypeUser, UserID: "u1"}))

	replies := client.recordedReplies()
	raw, ok := replies[0].messages[0].(line.RawMessage)
	if !ok {
		t.Fatalf("expected RawMessage, got %T", replies[0].messages[0])
	}
	payload, err := raw.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() returned error: %v", err)
	}
	if !strings.Contains(string(payload), "http://x/heartbeat") {
		t.Errorf("expected base URL substitution in payload: %s", payload)
	}
	if strings.Contains(string(payload), "$BASE_URL") {
		t.Errorf("expected all placeholders substituted, got: %s", payload)
	}
}

// TestFallbackEcho は定型文テーブルに無いテキストのエコー返信をテストする。
func TestFallbackEcho(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	handleSingle(t, d, textEvent("r1", "こんばんは", line.Source{Type: line.SourceTypeUser, UserID: "u1"}))

	replies := client.recordedReplies()
	if got := textOf(t, replies[0].messages[0]); got != "こんばんは" {
		t.Errorf("expected echo reply, got %s", got)
	}
}

// TestCommandMatchIsExact は前後に空白を含むテキストがコマンドとして
// 扱われず、エコー返信になることをテストする。
func TestCommandMatchIsExact(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	handleSingle(t, d, textEvent("r1", " bye ", line.Source{Type: line.SourceTypeGroup, GroupID: "g1"}))

	replies := client.recordedReplies()
	if got := textOf(t, replies[0].messages[0]); got != " bye " {
		t.Errorf("expected echo reply, got %q", got)
	}
	if len(client.leftGroups) != 0 {
		t.Errorf("leave should not be triggered: %v", client.leftGroups)
	}
}

// TestActivityCommandWithoutToken はトークン未保持時のactivityコマンドが
// 認可URLの案内を返信することをテストする。
func TestActivityCommandWithoutToken(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)
	d.fetcher = &mockFetcher{
		fetchFn: func(ctx context.Context, identity string, resource fitbit.Resource) (*fitbit.FetchResult, error) {
			if resource != fitbit.ResourceActivity {
				t.Errorf("unexpected resource: %s", resource)
			}
			return &fitbit.FetchResult{AuthURL: "https://www.fitbit.com/oauth2/authorize?state=" + identity}, nil
		},
	}

	handleSingle(t, d, textEvent("r1", "activity", line.Source{Type: line.SourceTypeUser, UserID: "u1"}))

	replies := client.recordedReplies()
	if len(replies[0].messages) != 2 {
		t.Fatalf("expected 2 message lines, got %d", len(replies[0].messages))
	}
	if got := textOf(t, replies[0].messages[0]); !strings.Contains(got, "アクセス許可") {
		t.Errorf("unexpected preamble: %s", got)
	}
	if got := textOf(t, replies[0].messages[1]); !strings.Contains(got, "state=u1") {
		t.Errorf("unexpected auth URL line: %s", got)
	}
}

// TestActivityCommandWithToken はactivityコマンドのサマリー返信をテストする。
func TestActivityCommandWithToken(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)
	d.fetcher = &mockFetcher{
		fetchFn: func(ctx context.Context, identity string, resource fitbit.Resource) (*fitbit.FetchResult, error) {
			return &fitbit.FetchResult{Resource: &fitbit.ActivitySummary{Steps: 8000, CaloriesOut: 2100}}, nil
		},
	}
	d.profiles = &mockProfileCache{profile: &fitbit.Profile{DisplayName: "Hitoshi"}}

	handleSingle(t, d, textEvent("r1", "activity", line.Source{Type: line.SourceTypeUser, UserID: "u1"}))

	replies := client.recordedReplies()
	got := textOf(t, replies[0].messages[0])
	if !strings.HasPrefix(got, "Hitoshi's today activity summary ") {
		t.Errorf("unexpected summary prefix: %s", got)
	}
	if !strings.Contains(got, ", steps = 8000") {
		t.Errorf("expected steps line in summary: %s", got)
	}
}

// TestSleepCommandWithToken はsleepコマンドのサマリー返信をテストする。
func TestSleepCommandWithToken(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)
	d.fetcher = &mockFetcher{
		fetchFn: func(ctx context.Context, identity string, resource fitbit.Resource) (*fitbit.FetchResult, error) {
			if resource != fitbit.ResourceSleep {
				t.Errorf("unexpected resource: %s", resource)
			}
			return &fitbit.FetchResult{Resource: &fitbit.SleepSummary{TotalMinutesAsleep: 420}}, nil
		},
	}

	handleSingle(t, d, textEvent("r1", "sleep", line.Source{Type: line.SourceTypeUser, UserID: "u1"}))

	replies := client.recordedReplies()
	got := textOf(t, replies[0].messages[0])
	if !strings.HasPrefix(got, "unknown's today sleep summary ") {
		t.Errorf("unexpected summary prefix: %s", got)
	}
	if !strings.Contains(got, ", total minutes asleep = 420") {
		t.Errorf("expected asleep line in summary: %s", got)
	}
}

// TestImageMessageRelay は画像メッセージが中継結果をそのまま返信することをテストする。
func TestImageMessageRelay(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)
	d.relay = &mockContentRelay{
		relayFn: func(ctx context.Context, msg *line.EventMessage) ([]line.SendMessage, error) {
			return []line.SendMessage{
				line.NewImageMessage("http://x/downloaded/m1.jpg", "http://x/downloaded/m1-preview.jpg"),
			}, nil
		},
	}

	ev := line.Event{
		Type:       line.EventTypeMessage,
		ReplyToken: "r1",
		Source:     line.Source{Type: line.SourceTypeUser, UserID: "u1"},
		Message:    &line.EventMessage{ID: "m1", Type: line.MessageTypeImage},
	}
	result := handleSingle(t, d, ev)
	if result.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}

	replies := client.recordedReplies()
	img, ok := replies[0].messages[0].(line.ImageMessage)
	if !ok {
		t.Fatalf("expected ImageMessage, got %T", replies[0].messages[0])
	}
	if img.OriginalContentURL != "http://x/downloaded/m1.jpg" {
		t.Errorf("unexpected original URL: %s", img.OriginalContentURL)
	}
}

// TestRelayFailure は中継失敗がイベント結果のエラーとして報告され、
// 返信が送信されないことをテストする。
func TestRelayFailure(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)
	d.relay = &mockContentRelay{
		relayFn: func(ctx context.Context, msg *line.EventMessage) ([]line.SendMessage, error) {
			return nil, model.NewRelayError(msg.ID, errors.New("convert failed"))
		},
	}

	ev := line.Event{
		Type:       line.EventTypeMessage,
		ReplyToken: "r1",
		Source:     line.Source{Type: line.SourceTypeUser, UserID: "u1"},
		Message:    &line.EventMessage{ID: "m1", Type: line.MessageTypeVideo},
	}
	result := handleSingle(t, d, ev)
	if result.Status != StatusError {
		t.Fatalf("expected error result, got %+v", result)
	}
	if len(client.recordedReplies()) != 0 {
		t.Error("expected no reply on relay failure")
	}
}

// TestLocationPassthrough は位置情報メッセージの再送信をテストする。
func TestLocationPassthrough(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	ev := line.Event{
		Type:       line.EventTypeMessage,
		ReplyToken: "r1",
		Source:     line.Source{Type: line.SourceTypeUser, UserID: "u1"},
		Message: &line.EventMessage{
			ID:        "m1",
			Type:      line.MessageTypeLocation,
			Title:     "東京駅",
			Address:   "東京都千代田区丸の内1丁目",
			Latitude:  35.681236,
			Longitude: 139.767125,
		},
	}
	handleSingle(t, d, ev)

	replies := client.recordedReplies()
	loc, ok := replies[0].messages[0].(line.LocationMessage)
	if !ok {
		t.Fatalf("expected LocationMessage, got %T", replies[0].messages[0])
	}
	if loc.Title != "東京駅" || loc.Latitude != 35.681236 {
		t.Errorf("unexpected location payload: %+v", loc)
	}
}

// TestStickerPassthrough はスタンプメッセージの再送信をテストする。
func TestStickerPassthrough(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	ev := line.Event{
		Type:       line.EventTypeMessage,
		ReplyToken: "r1",
		Source:     line.Source{Type: line.SourceTypeUser, UserID: "u1"},
		Message:    &line.EventMessage{ID: "m1", Type: line.MessageTypeSticker, PackageID: "1", StickerID: "2"},
	}
	handleSingle(t, d, ev)

	replies := client.recordedReplies()
	sticker, ok := replies[0].messages[0].(line.StickerMessage)
	if !ok {
		t.Fatalf("expected StickerMessage, got %T", replies[0].messages[0])
	}
	if sticker.PackageID != "1" || sticker.StickerID != "2" {
		t.Errorf("unexpected sticker payload: %+v", sticker)
	}
}

// TestFollowEvent はフォローイベントの固定返信をテストする。
func TestFollowEvent(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	ev := line.Event{Type: line.EventTypeFollow, ReplyToken: "r1", Source: line.Source{Type: line.SourceTypeUser, UserID: "u1"}}
	handleSingle(t, d, ev)

	replies := client.recordedReplies()
	if got := textOf(t, replies[0].messages[0]); got != "Got followed event" {
		t.Errorf("unexpected reply text: %s", got)
	}
}

// TestJoinEvent は参加イベントの返信に送信元種別が含まれることをテストする。
func TestJoinEvent(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	ev := line.Event{Type: line.EventTypeJoin, ReplyToken: "r1", Source: line.Source{Type: line.SourceTypeGroup, GroupID: "g1"}}
	handleSingle(t, d, ev)

	replies := client.recordedReplies()
	if got := textOf(t, replies[0].messages[0]); got != "Joined group" {
		t.Errorf("unexpected reply text: %s", got)
	}
}

// TestUnfollowEvent はフォロー解除イベントが返信なしで成功することをテストする。
func TestUnfollowEvent(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	ev := line.Event{Type: line.EventTypeUnfollow, Source: line.Source{Type: line.SourceTypeUser, UserID: "u1"}}
	result := handleSingle(t, d, ev)
	if result.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(client.recordedReplies()) != 0 {
		t.Error("expected no reply for unfollow event")
	}
}

// TestPostbackWithDateParams は日時選択ポストバックのパラメーター併記をテストする。
func TestPostbackWithDateParams(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	ev := line.Event{
		Type:       line.EventTypePostback,
		ReplyToken: "r1",
		Source:     line.Source{Type: line.SourceTypeUser, UserID: "u1"},
		Postback:   &line.Postback{Data: "DATE", Params: map[string]string{"date": "2026-09-01"}},
	}
	handleSingle(t, d, ev)

	replies := client.recordedReplies()
	got := textOf(t, replies[0].messages[0])
	if got != `Got postback: DATE({"date":"2026-09-01"})` {
		t.Errorf("unexpected postback reply: %s", got)
	}
}

// TestPostbackPlainData は通常ポストバックの返信をテストする。
func TestPostbackPlainData(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	ev := line.Event{
		Type:       line.EventTypePostback,
		ReplyToken: "r1",
		Source:     line.Source{Type: line.SourceTypeUser, UserID: "u1"},
		Postback:   &line.Postback{Data: "action=buy"},
	}
	handleSingle(t, d, ev)

	replies := client.recordedReplies()
	if got := textOf(t, replies[0].messages[0]); got != "Got postback: action=buy" {
		t.Errorf("unexpected postback reply: %s", got)
	}
}

// TestBeaconEvent はビーコンイベントの返信をテストする。
func TestBeaconEvent(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	ev := line.Event{
		Type:       line.EventTypeBeacon,
		ReplyToken: "r1",
		Source:     line.Source{Type: line.SourceTypeUser, UserID: "u1"},
		Beacon:     &line.Beacon{Hwid: "hw1", Type: "enter"},
	}
	handleSingle(t, d, ev)

	replies := client.recordedReplies()
	if got := textOf(t, replies[0].messages[0]); got != "Got beacon: hw1" {
		t.Errorf("unexpected beacon reply: %s", got)
	}
}

// TestUnknownEventKind は列挙外のイベント種別がエラー結果になることをテストする。
func TestUnknownEventKind(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	ev := line.Event{Type: "videoPlay", ReplyToken: "r1", Source: line.Source{Type: line.SourceTypeUser, UserID: "u1"}}
	result := handleSingle(t, d, ev)
	if result.Status != StatusError {
		t.Fatalf("expected error result for unknown event kind, got %+v", result)
	}
	if !strings.Contains(result.Error, "videoPlay") {
		t.Errorf("expected error to identify the unknown kind: %s", result.Error)
	}
}

// TestUnknownMessageKind は列挙外のメッセージ種別がエラー結果になることをテストする。
func TestUnknownMessageKind(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	ev := line.Event{
		Type:       line.EventTypeMessage,
		ReplyToken: "r1",
		Source:     line.Source{Type: line.SourceTypeUser, UserID: "u1"},
		Message:    &line.EventMessage{ID: "m1", Type: "imagemap"},
	}
	result := handleSingle(t, d, ev)
	if result.Status != StatusError {
		t.Fatalf("expected error result for unknown message kind, got %+v", result)
	}
	if !strings.Contains(result.Error, "imagemap") {
		t.Errorf("expected error to identify the unknown kind: %s", result.Error)
	}
}

// TestTestHookTokenSkipped は同一文字の繰り返しトークンを持つメッセージが
// 返信なしでスキップされることをテストする。
func TestTestHookTokenSkipped(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	result := handleSingle(t, d, textEvent("00000000000000000000000000000000", "hello", line.Source{Type: line.SourceTypeUser, UserID: "u1"}))
	if result.Status != StatusSkipped {
		t.Fatalf("expected skipped result, got %+v", result)
	}
	if len(client.recordedReplies()) != 0 {
		t.Error("expected no reply for test hook event")
	}
}

// TestIsTestHookToken はテストフックトークン判定をテストする。
func TestIsTestHookToken(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"", false},
		{"0", true},
		{"00000000", true},
		{"ffffffff", true},
		{"0f0f0f0f", false},
		{"a1b2c3d4e5", false},
	}
	for _, tt := range tests {
		if got := isTestHookToken(tt.token); got != tt.want {
			t.Errorf("isTestHookToken(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

// TestBatchIsolation は3イベント中2番目の失敗が他イベントの処理を
// 中断しないことをテストする。
func TestBatchIsolation(t *testing.T) {
	client := &mockLineClient{}
	d := newTestDispatcher(t, client)

	delivery := &line.WebhookDelivery{Events: []line.Event{
		textEvent("r1", "hello", line.Source{Type: line.SourceTypeUser, UserID: "u1"}),
		{
			Type:       line.EventTypeMessage,
			ReplyToken: "r2",
			Source:     line.Source{Type: line.SourceTypeUser, UserID: "u1"},
			Message:    &line.EventMessage{ID: "m2", Type: "imagemap"},
		},
		textEvent("r3", "hello", line.Source{Type: line.SourceTypeUser, UserID: "u1"}),
	}}

	results := d.HandleDelivery(context.Background(), delivery)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Status != StatusSuccess {
		t.Errorf("expected first event to succeed, got %+v", results[0])
	}
	if results[1].Status != StatusError {
		t.Errorf("expected second event to fail, got %+v", results[1])
	}
	if results[2].Status != StatusSuccess {
		t.Errorf("expected third event to succeed, got %+v", results[2])
	}
	if len(client.recordedReplies()) != 2 {
		t.Errorf("expected 2 replies, got %d", len(client.recordedReplies()))
	}
}

// TestPhraseTableParsing は埋め込み定型文テーブルが有効なJSONであることをテストする。
func TestPhraseTableParsing(t *testing.T) {
	var phrases map[string]json.RawMessage
	if err := json.Unmarshal(phrasesJSON, &phrases); err != nil {
		t.Fatalf("phrases.json is not valid JSON: %v", err)
	}
	if _, ok := phrases["ping"]; !ok {
		t.Error("expected ping entry in phrase table")
	}
}
