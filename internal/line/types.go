// Package line はLINE Messaging APIのWebhookイベント型と送信クライアントを提供する。
// 署名検証などのプラットフォームSDK機能は外部協調者として扱い、
// 本パッケージはディスパッチに必要なイベント形状と送信APIのみを定義する。
package line

import (
	"encoding/json"

	"github.com/hitoshi/fitbot/internal/model"
)

// イベント種別
const (
	EventTypeMessage  = "message"
	EventTypeFollow   = "follow"
	EventTypeUnfollow = "unfollow"
	EventTypeJoin     = "join"
	EventTypeLeave    = "leave"
	EventTypePostback = "postback"
	EventTypeBeacon   = "beacon"
)

// メッセージ種別
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeVideo    = "video"
	MessageTypeAudio    = "audio"
	MessageTypeLocation = "location"
	MessageTypeSticker  = "sticker"
)

// 送信元種別
const (
	SourceTypeUser  = "user"
	SourceTypeGroup = "group"
	SourceTypeRoom  = "room"
)

// コンテンツ提供元種別
const (
	ContentProviderLine     = "line"
	ContentProviderExternal = "external"
)

// Source はイベントの送信元（ユーザー・グループ・ルーム）を表す。
type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// ContentProvider はメディアコンテンツのホスト元を表す。
// Typeがlineの場合はコンテンツAPI経由で取得し、
// externalの場合は提供元URLをそのまま利用する。
type ContentProvider struct {
	Type               string `json:"type"`
	OriginalContentURL string `json:"originalContentUrl,omitempty"`
	PreviewImageURL    string `json:"previewImageUrl,omitempty"`
}

// EventMessage は受信メッセージのタグ付きユニオンを表す。
// Typeに応じて有効なフィールドが決まる。列挙外のTypeは
// パース時には保持され、ディスパッチ時にエラーとして扱われる。
type EventMessage struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Text            string          `json:"text,omitempty"`
	Duration        int             `json:"duration,omitempty"`
	Title           string          `json:"title,omitempty"`
	Address         string          `json:"address,omitempty"`
	Latitude        float64         `json:"latitude,omitempty"`
	Longitude       float64         `json:"longitude,omitempty"`
	PackageID       string          `json:"packageId,omitempty"`
	StickerID       string          `json:"stickerId,omitempty"`
	ContentProvider ContentProvider `json:"contentProvider,omitempty"`
}

// Postback はポストバックイベントのペイロードを表す。
type Postback struct {
	Data   string            `json:"data"`
	Params map[string]string `json:"params,omitempty"`
}

// Beacon はビーコンイベントのペイロードを表す。
type Beacon struct {
	Hwid string `json:"hwid"`
	Type string `json:"type"`
}

// Event はWebhookで配信されるイベントのタグ付きユニオンを表す。
// ReplyTokenは1回限り・期限付きの返信用ハンドル。
type Event struct {
	Type       string        `json:"type"`
	ReplyToken string        `json:"replyToken,omitempty"`
	Source     Source        `json:"source"`
	Timestamp  int64         `json:"timestamp,omitempty"`
	Message    *EventMessage `json:"message,omitempty"`
	Postback   *Postback     `json:"postback,omitempty"`
	Beacon     *Beacon       `json:"beacon,omitempty"`
}

// WebhookDelivery は1回のWebhook配信の全体を表す。
type WebhookDelivery struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// ParseDelivery はWebhook配信のJSONボディをパースする。
// eventsが配列でない等のトップレベル形状の不正は
// MalformedDeliveryErrorとして配信全体を拒否する。
func ParseDelivery(body []byte) (*WebhookDelivery, error) {
	var probe struct {
		Destination string          `json:"destination"`
		Events      json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, model.NewMalformedDeliveryError("invalid JSON body")
	}
	if len(probe.Events) == 0 {
		return nil, model.NewMalformedDeliveryError("events field is missing")
	}
	// json.Unmarshalはnullを空スライスとして受理してしまうため明示的に拒否する
	if string(probe.Events) == "null" {
		return nil, model.NewMalformedDeliveryError("events is not an array")
	}

	var events []Event
	if err := json.Unmarshal(probe.Events, &events); err != nil {
		return nil, model.NewMalformedDeliveryError("events is not an array")
	}

	return &WebhookDelivery{
		Destination: probe.Destination,
		Events:      events,
	}, nil
}

// Profile はLINEプラットフォーム上のユーザープロフィールを表す。
type Profile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl"`
	StatusMessage string `json:"statusMessage"`
}

// SendMessage は返信として送信可能なメッセージユニットを表す。
type SendMessage interface {
	sendMessage()
}

// TextMessage はテキストメッセージを表す。
type TextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (TextMessage) sendMessage() {}

// NewTextMessage はテキストメッセージを生成する。
func NewTextMessage(text string) TextMessage {
	return TextMessage{Type: MessageTypeText, Text: text}
}

// ImageMessage は画像メッセージを表す。URLは絶対URLでなければならない。
type ImageMessage struct {
	Type               string `json:"type"`
	OriginalContentURL string `json:"originalContentUrl"`
	PreviewImageURL    string `json:"previewImageUrl"`
}

func (ImageMessage) sendMessage() {}

// NewImageMessage は画像メッセージを生成する。
func NewImageMessage(originalContentURL, previewImageURL string) ImageMessage {
	return ImageMessage{
		Type:               MessageTypeImage,
		OriginalContentURL: originalContentURL,
		PreviewImageURL:    previewImageURL,
	}
}

// VideoMessage は動画メッセージを表す。
type VideoMessage struct {
	Type               string `json:"type"`
	OriginalContentURL string `json:"originalContentUrl"`
	PreviewImageURL    string `json:"previewImageUrl"`
}

func (VideoMessage) sendMessage() {}

// NewVideoMessage は動画メッセージを生成する。
func NewVideoMessage(originalContentURL, previewImageURL string) VideoMessage {
	return VideoMessage{
		Type:               MessageTypeVideo,
		OriginalContentURL: originalContentURL,
		PreviewImageURL:    previewImageURL,
	}
}

// AudioMessage は音声メッセージを表す。プレビューは持たない。
type AudioMessage struct {
	Type               string `json:"type"`
	OriginalContentURL string `json:"originalContentUrl"`
	Duration           int    `json:"duration"`
}

func (AudioMessage) sendMessage() {}

// NewAudioMessage は音声メッセージを生成する。
func NewAudioMessage(originalContentURL string, duration int) AudioMessage {
	return AudioMessage{
		Type:               MessageTypeAudio,
		OriginalContentURL: originalContentURL,
		Duration:           duration,
	}
}

// LocationMessage は位置情報メッセージを表す。
type LocationMessage struct {
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (LocationMessage) sendMessage() {}

// StickerMessage はスタンプメッセージを表す。
type StickerMessage struct {
	Type      string `json:"type"`
	PackageID string `json:"packageId"`
	StickerID string `json:"stickerId"`
}

func (StickerMessage) sendMessage() {}

// RawMessage は定型文テーブルなどの生JSONペイロードをそのまま送信する
// メッセージユニット。内容の妥当性は作成者の責任とする。
type RawMessage json.RawMessage

func (RawMessage) sendMessage() {}

// MarshalJSON は保持する生JSONをそのまま出力する。
func (m RawMessage) MarshalJSON() ([]byte, error) {
	return json.RawMessage(m).MarshalJSON()
}
