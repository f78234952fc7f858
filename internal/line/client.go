package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultAPIBaseURL  = "https://api.line.me"
	defaultDataBaseURL = "https://api-data.line.me"
)

// Client はLINE Messaging APIの送信側操作のインターフェース。
// ディスパッチャーとコンテンツ中継から利用する。
type Client interface {
	// ReplyMessage は返信トークンに紐づくメッセージ送信を行う。
	ReplyMessage(ctx context.Context, replyToken string, messages ...SendMessage) error
	// GetProfile はユーザーのプロフィールを取得する。
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	// GetMessageContent はメッセージのバイナリコンテンツのストリームを返す。
	// 呼び出し側がCloseする責任を持つ。
	GetMessageContent(ctx context.Context, messageID string) (io.ReadCloser, error)
	// LeaveGroup はグループから退出する。
	LeaveGroup(ctx context.Context, groupID string) error
	// LeaveRoom はルームから退出する。
	LeaveRoom(ctx context.Context, roomID string) error
}

// ClientConfig はHTTPClientの設定。
type ClientConfig struct {
	ChannelAccessToken string
	APIBaseURL         string        // テスト用にオーバーライド可能
	DataBaseURL        string        // コンテンツ取得用エンドポイント
	Timeout            time.Duration // 送信HTTPのタイムアウト

	// HTTPClient を指定した場合はそのクライアントで送信する。
	// 未指定の場合はTimeout付きのデフォルトクライアントを使用する。
	HTTPClient *http.Client
}

// HTTPClient はLINE Messaging APIへのHTTP実装。
type HTTPClient struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewHTTPClient はHTTPClientを生成する。
func NewHTTPClient(config ClientConfig) *HTTPClient {
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if config.DataBaseURL == "" {
		config.DataBaseURL = defaultDataBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.Timeout,
		}
	}
	return &HTTPClient{
		config:     config,
		httpClient: httpClient,
	}
}

// replyRequest は返信APIのリクエストボディ。
type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []SendMessage `json:"messages"`
}

// ReplyMessage は返信トークンに紐づくメッセージ送信を行う。
// 期限切れトークンは上流の4xxとしてエラーになる（クラッシュはしない）。
func (c *HTTPClient) ReplyMessage(ctx context.Context, replyToken string, messages ...SendMessage) error {
	body, err := json.Marshal(replyRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal reply request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIBaseURL+"/v2/bot/message/reply", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.ChannelAccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reply request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("reply failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// GetProfile はユーザーのプロフィールを取得する。
func (c *HTTPClient) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.APIBaseURL+"/v2/bot/profile/"+userID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.ChannelAccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile response: %w", err)
	}

	return &profile, nil
}

// GetMessageContent はメッセージのバイナリコンテンツのストリームを返す。
func (c *HTTPClient) GetMessageContent(ctx context.Context, messageID string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.DataBaseURL+"/v2/bot/message/"+messageID+"/content", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create content request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.ChannelAccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("content request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("content fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	return resp.Body, nil
}

// LeaveGroup はグループから退出する。
func (c *HTTPClient) LeaveGroup(ctx context.Context, groupID string) error {
	return c.postLeave(ctx, "/v2/bot/group/"+groupID+"/leave")
}

// LeaveRoom はルームから退出する。
func (c *HTTPClient) LeaveRoom(ctx context.Context, roomID string) error {
	return c.postLeave(ctx, "/v2/bot/room/"+roomID+"/leave")
}

func (c *HTTPClient) postLeave(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create leave request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.ChannelAccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("leave request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("leave failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// compile-time interface check
var _ Client = (*HTTPClient)(nil)
