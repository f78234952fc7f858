// Package handler はHTTPエンドポイントのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/hitoshi/fitbot/internal/line"
	"github.com/hitoshi/fitbot/internal/middleware"
	"github.com/hitoshi/fitbot/internal/model"
	"github.com/hitoshi/fitbot/internal/webhook"
)

// リクエストボディの読み込み上限。Webhook配信のJSONには十分な大きさ。
const maxWebhookBodySize = 1 << 20

// WebhookDispatcher はWebhookハンドラーが必要とするディスパッチャーの
// インターフェース。webhook.Dispatcherが実装する。
type WebhookDispatcher interface {
	HandleDelivery(ctx context.Context, delivery *line.WebhookDelivery) []webhook.EventResult
}

// DeliveryMetrics はWebhook配信の受信記録機能を定義する。
type DeliveryMetrics interface {
	RecordDelivery()
}

// nopDeliveryMetrics はメトリクス未設定時のフォールバック。
type nopDeliveryMetrics struct{}

func (nopDeliveryMetrics) RecordDelivery() {}

// WebhookHandler はWebhook受信のHTTPハンドラー。
type WebhookHandler struct {
	dispatcher WebhookDispatcher
	metrics    DeliveryMetrics
}

// NewWebhookHandler はWebhookHandlerを生成する。
// metricsがnilの場合は記録を行わない。
func NewWebhookHandler(dispatcher WebhookDispatcher, metrics DeliveryMetrics) *WebhookHandler {
	if metrics == nil {
		metrics = nopDeliveryMetrics{}
	}
	return &WebhookHandler{dispatcher: dispatcher, metrics: metrics}
}

// webhookResponse はWebhook配信に対するレスポンスボディ。
type webhookResponse struct {
	Status  string                `json:"status"`
	Results []webhook.EventResult `json:"results"`
}

// Receive はWebhook配信を処理する。
// POST /webhook
//
// トップレベル形状が不正な配信は400で拒否する。イベント単位の失敗は
// per-event結果に変換され、配信全体は200で応答する。
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	deliveryID := uuid.NewString()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMalformedDeliveryAPIError("failed to read request body"))
		return
	}

	delivery, err := line.ParseDelivery(body)
	if err != nil {
		var malformed *model.MalformedDeliveryError
		if errors.As(err, &malformed) {
			slog.Warn("不正なWebhook配信を拒否しました",
				slog.String("delivery_id", deliveryID),
				slog.String("reason", malformed.Reason),
			)
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMalformedDeliveryAPIError(malformed.Reason))
			return
		}
		middleware.WriteInternalServerError(w)
		return
	}

	h.metrics.RecordDelivery()
	if delivery.Destination != "" {
		slog.Info("Webhook配信を受信しました",
			slog.String("delivery_id", deliveryID),
			slog.String("destination", delivery.Destination),
			slog.Int("event_count", len(delivery.Events)),
		)
	}

	results := h.dispatcher.HandleDelivery(r.Context(), delivery)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(webhookResponse{
		Status:  "success",
		Results: results,
	})
}

// Heartbeat は死活監視エンドポイントを処理する。
// GET /heartbeat
func Heartbeat(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "success",
		"message": "working",
	})
}
