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
// Webhookディスパッチャーやサービス層、ミドルウェアから利用する。
type MetricsCollector interface {
	RecordWebhookEvent(eventType, outcome string)
	RecordSignatureFailure()
	RecordSubscriptionActivated()
	RecordSubscriptionsExpired(count int)
	RecordTodoOperation(op string)
	RecordRoleChange(action, outcome string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	webhookEvents   *prometheus.CounterVec
	signatureFail   prometheus.Counter
	activations     prometheus.Counter
	expirations     prometheus.Counter
	todoOps         *prometheus.CounterVec
	roleChanges     *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	requestDuration prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtodo_webhook_events_total",
			Help: "種別・結果別のWebhookイベント数",
		}, []string{"type", "outcome"}),
		signatureFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subtodo_webhook_signature_failures_total",
			Help: "Webhook署名検証失敗の合計数",
		}),
		activations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subtodo_subscription_activations_total",
			Help: "購読有効化の合計数",
		}),
		expirations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subtodo_subscription_expirations_total",
			Help: "期限切れにより失効した購読の合計数",
		}),
		todoOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtodo_todo_operations_total",
			Help: "操作別のTodo変更数",
		}, []string{"op"}),
		roleChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtodo_role_changes_total",
			Help: "操作・結果別のロール変更数",
		}, []string{"action", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtodo_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "subtodo_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.webhookEvents,
		c.signatureFail,
		c.activations,
		c.expirations,
		c.todoOps,
		c.roleChanges,
		c.httpStatus,
		c.requestDuration,
	)

	return c
}

// RecordWebhookEvent はWebhookイベントの処理結果を記録する。
func (c *Collector) RecordWebhookEvent(eventType, outcome string) {
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordSignatureFailure は署名検証失敗を記録する。
func (c *Collector) RecordSignatureFailure() {
	c.signatureFail.Inc()
}

// RecordSubscriptionActivated は購読の有効化を記録する。
func (c *Collector) RecordSubscriptionActivated() {
	c.activations.Inc()
}

// RecordSubscriptionsExpired は失効した購読数を記録する。
func (c *Collector) RecordSubscriptionsExpired(count int) {
	if count > 0 {
		c.expirations.Add(float64(count))
	}
}

// RecordTodoOperation はTodoの変更操作を記録する。
func (c *Collector) RecordTodoOperation(op string) {
	c.todoOps.WithLabelValues(op).Inc()
}

// RecordRoleChange はロール変更の結果を記録する。
func (c *Collector) RecordRoleChange(action, outcome string) {
	c.roleChanges.WithLabelValues(action, outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はHTTPリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestDuration.Observe(duration.Seconds())
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordWebhookEvent(string, string)  {}
func (NopCollector) RecordSignatureFailure()            {}
func (NopCollector) RecordSubscriptionActivated()       {}
func (NopCollector) RecordSubscriptionsExpired(int)     {}
func (NopCollector) RecordTodoOperation(string)         {}
func (NopCollector) RecordRoleChange(string, string)    {}
func (NopCollector) RecordHTTPStatus(int)               {}
func (NopCollector) RecordRequestLatency(time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
