// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証ストア・Webhook・自動保存・ミドルウェアから利用する。
type MetricsCollector interface {
	RecordAuthAction(action, outcome string)
	RecordWebhookEvent(eventType, outcome string)
	RecordAutosave(status string)
	RecordHTTPStatus(statusCode int)
	RecordWebhookEventsPurged(count int64)
	RecordPanic(route string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authActions   *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
	autosave      *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
	webhookPurged prometheus.Counter
	panics        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_auth_actions_total",
			Help: "認証アクションの結果別の合計数",
		}, []string{"action", "outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_webhook_events_total",
			Help: "決済Webhookイベントの種別・結果別の合計数",
		}, []string{"event_type", "outcome"}),
		autosave: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_autosave_transitions_total",
			Help: "自動保存の状態遷移の合計数",
		}, []string{"status"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		webhookPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_webhook_events_purged_total",
			Help: "保持期間を過ぎて削除されたWebhookイベント記録の合計数",
		}),
		panics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_http_panics_total",
			Help: "ハンドラーで回復したpanicのルート別の合計数",
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.authActions,
		c.webhookEvents,
		c.autosave,
		c.httpStatus,
		c.webhookPurged,
		c.panics,
	)

	return c
}

// RecordAuthAction は認証アクションの結果を記録する。
func (c *Collector) RecordAuthAction(action, outcome string) {
	c.authActions.WithLabelValues(action, outcome).Inc()
}

// RecordWebhookEvent はWebhookイベントの処理結果を記録する。
func (c *Collector) RecordWebhookEvent(eventType, outcome string) {
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordAutosave は自動保存の状態遷移を記録する。
func (c *Collector) RecordAutosave(status string) {
	c.autosave.WithLabelValues(status).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordWebhookEventsPurged は削除したWebhookイベント記録の件数を記録する。
func (c *Collector) RecordWebhookEventsPurged(count int64) {
	c.webhookPurged.Add(float64(count))
}

// RecordPanic はpanicが発生したルートを記録する。ルートが不明な場合は"unknown"。
func (c *Collector) RecordPanic(route string) {
	if route == "" {
		route = "unknown"
	}
	c.panics.WithLabelValues(route).Inc()
}

var _ MetricsCollector = (*Collector)(nil)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
