// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ディスパッチャーやサービス層から利用する。
type MetricsCollector interface {
	RecordDelivery()
	RecordEvent(eventType string)
	RecordEventError(eventType string)
	RecordFetchLatency(duration time.Duration)
	RecordFetchStatus(statusCode int)
	RecordTokenRefresh(success bool)
	RecordRelayFailure()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	deliveries   prometheus.Counter
	events       *prometheus.CounterVec
	eventErrors  *prometheus.CounterVec
	fetchLatency prometheus.Histogram
	fetchStatus  *prometheus.CounterVec
	tokenRefresh *prometheus.CounterVec
	relayFail    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitbot_webhook_deliveries_total",
			Help: "受信したWebhook配信の合計数",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitbot_webhook_events_total",
			Help: "イベント種別ごとの処理イベント数",
		}, []string{"event_type"}),
		eventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitbot_webhook_event_errors_total",
			Help: "イベント種別ごとの処理失敗数",
		}, []string{"event_type"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fitbot_fitbit_fetch_latency_seconds",
			Help:    "Fitbitリソース取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		fetchStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitbot_fitbit_fetch_status_total",
			Help: "Fitbit APIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitbot_fitbit_token_refresh_total",
			Help: "トークンリフレッシュの結果別実行数",
		}, []string{"result"}),
		relayFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitbot_relay_fail_total",
			Help: "コンテンツ中継失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.deliveries,
		c.events,
		c.eventErrors,
		c.fetchLatency,
		c.fetchStatus,
		c.tokenRefresh,
		c.relayFail,
	)

	return c
}

// RecordDelivery はWebhook配信の受信を記録する。
func (c *Collector) RecordDelivery() {
	c.deliveries.Inc()
}

// RecordEvent はイベントの処理開始を記録する。
func (c *Collector) RecordEvent(eventType string) {
	c.events.WithLabelValues(eventType).Inc()
}

// RecordEventError はイベントの処理失敗を記録する。
func (c *Collector) RecordEventError(eventType string) {
	c.eventErrors.WithLabelValues(eventType).Inc()
}

// RecordFetchLatency はFitbitリソース取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordFetchStatus はFitbit APIのHTTPステータスコードを記録する。
func (c *Collector) RecordFetchStatus(statusCode int) {
	c.fetchStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordTokenRefresh はトークンリフレッシュの実行結果を記録する。
func (c *Collector) RecordTokenRefresh(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.tokenRefresh.WithLabelValues(result).Inc()
}

// RecordRelayFailure はコンテンツ中継の失敗を記録する。
func (c *Collector) RecordRelayFailure() {
	c.relayFail.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
