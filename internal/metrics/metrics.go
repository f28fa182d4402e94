// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 集約エンジンから利用する。
type MetricsCollector interface {
	RecordSourceFetch(kind string, success bool)
	RecordFetchLatency(kind string, duration time.Duration)
	RecordTokenRefresh(success bool)
	RecordAggregation(outcome string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	sourceFetch  *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec
	tokenRefresh *prometheus.CounterVec
	aggregations *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sourceFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calman_source_fetch_total",
			Help: "カレンダーソースフェッチの結果別合計数",
		}, []string{"kind", "result"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "calman_source_fetch_latency_seconds",
			Help:    "カレンダーソースフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calman_token_refresh_total",
			Help: "トークンリフレッシュ交換の結果別合計数",
		}, []string{"result"}),
		aggregations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calman_aggregations_total",
			Help: "カレンダー集約呼び出しの結果別合計数",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.sourceFetch,
		c.fetchLatency,
		c.tokenRefresh,
		c.aggregations,
	)

	return c
}

// RecordSourceFetch はソースフェッチの結果を記録する。
func (c *Collector) RecordSourceFetch(kind string, success bool) {
	c.sourceFetch.WithLabelValues(kind, resultLabel(success)).Inc()
}

// RecordFetchLatency はソースフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(kind string, duration time.Duration) {
	c.fetchLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordTokenRefresh はトークンリフレッシュ交換の結果を記録する。
func (c *Collector) RecordTokenRefresh(success bool) {
	c.tokenRefresh.WithLabelValues(resultLabel(success)).Inc()
}

// RecordAggregation は集約呼び出しの結果を記録する。
// outcomeには "success", "auth_expired", "primary_failed", "invalid" 等を指定する。
func (c *Collector) RecordAggregation(outcome string) {
	c.aggregations.WithLabelValues(outcome).Inc()
}

// resultLabel は成功/失敗をラベル値に変換する。
func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Handler は/metricsエンドポイントのHTTPハンドラーを返す。
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
