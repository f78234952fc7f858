// Package relay はメッセージ内のメディアコンテンツを取得し、
// 返信で参照可能な公開URLに変換する中継機能を提供する。
package relay

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hitoshi/fitbot/internal/line"
	"github.com/hitoshi/fitbot/internal/model"
	"github.com/hitoshi/fitbot/internal/security"
)

// ContentDownloader はプラットフォームがホストするメッセージコンテンツの
// 取得機能を定義する。line.Clientが実装する。
type ContentDownloader interface {
	GetMessageContent(ctx context.Context, messageID string) (io.ReadCloser, error)
}

// Converter はメディアファイルからプレビュー画像を生成する変換器を定義する。
// 本番ではImageMagickのconvertコマンドを使用し、テストではモックに差し替える。
type Converter interface {
	// PreviewImage は画像ファイルから縮小プレビューJPEGを生成する。
	PreviewImage(ctx context.Context, src, dst string) error
	// PreviewVideo は動画ファイルの先頭フレームからプレビューJPEGを生成する。
	PreviewVideo(ctx context.Context, src, dst string) error
}

// RelayMetrics は中継処理のメトリクス記録機能を定義する。
type RelayMetrics interface {
	RecordRelayFailure()
}

// nopRelayMetrics はメトリクス未設定時のフォールバック。
type nopRelayMetrics struct{}

func (nopRelayMetrics) RecordRelayFailure() {}

// ServiceConfig は中継サービスの設定を表す。
type ServiceConfig struct {
	MediaDir       string        // ダウンロード先ディレクトリ
	BaseURL        string        // 公開URLの組み立てに使用するベースURL
	ContentMaxSize int64         // ダウンロードサイズ上限 (バイト)
	ConvertTimeout time.Duration // 変換コマンドのタイムアウト
}

// Service はメディアコンテンツの中継処理を実装する。
type Service struct {
	downloader     ContentDownloader
	converter      Converter
	guard          security.SSRFGuardService
	metrics        RelayMetrics
	mediaDir       string
	baseURL        string
	contentMaxSize int64
	convertTimeout time.Duration
}

// NewService は中継サービスを生成する。
// metricsがnilの場合は記録を行わない。
func NewService(downloader ContentDownloader, converter Converter, guard security.SSRFGuardService, metrics RelayMetrics, cfg ServiceConfig) *Service {
	if metrics == nil {
		metrics = nopRelayMetrics{}
	}
	if cfg.ConvertTimeout <= 0 {
		cfg.ConvertTimeout = 30 * time.Second
	}
	return &Service{
		downloader:     downloader,
		converter:      converter,
		guard:          guard,
		metrics:        metrics,
		mediaDir:       cfg.MediaDir,
		baseURL:        cfg.BaseURL,
		contentMaxSize: cfg.ContentMaxSize,
		convertTimeout: cfg.ConvertTimeout,
	}
}

// Relay はメディアメッセージを処理し、返信用のメッセージ列を返す。
// プラットフォームがホストするコンテンツはダウンロードしてプレビューを生成し、
// 外部プロバイダーのコンテンツはURL検証の上でそのまま再利用する。
// 失敗時はmodel.RelayErrorを返し、部分的な結果は返さない。
func (s *Service) Relay(ctx context.Context, msg *line.EventMessage) ([]line.SendMessage, error) {
	messages, err := s.relay(ctx, msg)
	if err != nil {
		s.metrics.RecordRelayFailure()
		return nil, model.NewRelayError(msg.ID, err)
	}
	return messages, nil
}

func (s *Service) relay(ctx context.Context, msg *line.EventMessage) ([]line.SendMessage, error) {
	if msg.ContentProvider.Type == line.ContentProviderExternal {
		return s.relayExternal(msg)
	}

	// メッセージIDはローカルパスの組み立てに使うため、
	// MediaDir外を指せる識別子は拒否する
	if err := validateMessageID(msg.ID); err != nil {
		return nil, err
	}

	switch msg.Type {
	case line.MessageTypeImage:
		return s.relayImage(ctx, msg)
	case line.MessageTypeVideo:
		return s.relayVideo(ctx, msg)
	case line.MessageTypeAudio:
		return s.relayAudio(ctx, msg)
	default:
		return nil, fmt.Errorf("unsupported message type for relay: %s", msg.Type)
	}
}

// validateMessageID はパス要素として安全なメッセージIDかを検証する。
func validateMessageID(id string) error {
	if id == "" {
		return fmt.Errorf("empty message ID")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid message ID: %q", id)
	}
	return nil
}

// relayExternal は外部プロバイダーがホストするコンテンツを処理する。
// ダウンロードと変換は行わず、提供元URLを検証した上で再利用する。
func (s *Service) relayExternal(msg *line.EventMessage) ([]line.SendMessage, error) {
	original := msg.ContentProvider.OriginalContentURL
	if err := s.guard.ValidateURL(original); err != nil {
		return nil, fmt.Errorf("external content URL rejected: %w", err)
	}
	preview := msg.ContentProvider.PreviewImageURL
	if preview != "" {
		if err := s.guard.ValidateURL(preview); err != nil {
			return nil, fmt.Errorf("external preview URL rejected: %w", err)
		}
	}

	switch msg.Type {
	case line.MessageTypeImage:
		if preview == "" {
			preview = original
		}
		return []line.SendMessage{line.NewImageMessage(original, preview)}, nil
	case line.MessageTypeVideo:
		return []line.SendMessage{line.NewVideoMessage(original, preview)}, nil
	case line.MessageTypeAudio:
		return []line.SendMessage{line.NewAudioMessage(original, msg.Duration)}, nil
	default:
		return nil, fmt.Errorf("unsupported message type for relay: %s", msg.Type)
	}
}

// relayImage は画像コンテンツをダウンロードし、縮小プレビューを生成する。
func (s *Service) relayImage(ctx context.Context, msg *line.EventMessage) ([]line.SendMessage, error) {
	srcPath, err := s.download(ctx, msg.ID, "jpg")
	if err != nil {
		return nil, err
	}

	previewPath := filepath.Join(s.mediaDir, msg.ID+"-preview.jpg")
	convertCtx, cancel := context.WithTimeout(ctx, s.convertTimeout)
	defer cancel()
	if err := s.converter.PreviewImage(convertCtx, srcPath, previewPath); err != nil {
		return nil, fmt.Errorf("preview generation failed: %w", err)
	}

	return []line.SendMessage{
		line.NewImageMessage(s.publicURL(srcPath), s.publicURL(previewPath)),
	}, nil
}

// relayVideo は動画コンテンツをダウンロードし、先頭フレームのプレビューを生成する。
func (s *Service) relayVideo(ctx context.Context, msg *line.EventMessage) ([]line.SendMessage, error) {
	srcPath, err := s.download(ctx, msg.ID, "mp4")
	if err != nil {
		return nil, err
	}

	previewPath := filepath.Join(s.mediaDir, msg.ID+"-preview.jpg")
	convertCtx, cancel := context.WithTimeout(ctx, s.convertTimeout)
	defer cancel()
	if err := s.converter.PreviewVideo(convertCtx, srcPath, previewPath); err != nil {
		return nil, fmt.Errorf("preview generation failed: %w", err)
	}

	return []line.SendMessage{
		line.NewVideoMessage(s.publicURL(srcPath), s.publicURL(previewPath)),
	}, nil
}

// relayAudio は音声コンテンツをダウンロードする。プレビューは生成しない。
func (s *Service) relayAudio(ctx context.Context, msg *line.EventMessage) ([]line.SendMessage, error) {
	srcPath, err := s.download(ctx, msg.ID, "m4a")
	if err != nil {
		return nil, err
	}
	return []line.SendMessage{
		line.NewAudioMessage(s.publicURL(srcPath), msg.Duration),
	}, nil
}

// download はメッセージコンテンツをMediaDir配下にストリームコピーする。
// ストリームの途中失敗やサイズ上限超過の場合は部分ファイルを削除してエラーを返す。
func (s *Service) download(ctx context.Context, messageID, ext string) (string, error) {
	body, err := s.downloader.GetMessageContent(ctx, messageID)
	if err != nil {
		return "", fmt.Errorf("content download failed: %w", err)
	}
	defer body.Close()

	if err := os.MkdirAll(s.mediaDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create media dir: %w", err)
	}

	dstPath := filepath.Join(s.mediaDir, messageID+"."+ext)
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to create media file: %w", err)
	}

	reader := io.Reader(body)
	if s.contentMaxSize > 0 {
		reader = io.LimitReader(body, s.contentMaxSize+1)
	}
	written, err := io.Copy(dst, reader)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.contentMaxSize > 0 && written > s.contentMaxSize {
		err = fmt.Errorf("content exceeds size limit of %d bytes", s.contentMaxSize)
	}
	if err != nil {
		os.Remove(dstPath)
		return "", fmt.Errorf("content copy failed: %w", err)
	}

	return dstPath, nil
}

// publicURL はローカルファイルパスから公開用の絶対URLを組み立てる。
func (s *Service) publicURL(localPath string) string {
	return strings.TrimRight(s.baseURL, "/") + "/downloaded/" + filepath.Base(localPath)
}
