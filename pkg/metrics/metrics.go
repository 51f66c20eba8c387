package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 指标管理器
type Metrics struct {
	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 业务指标
	panicEventsTotal    *prometheus.CounterVec
	notificationsTotal  prometheus.Counter
	skippedContacts     prometheus.Counter
	statusUpdatesTotal  *prometheus.CounterVec
	cascadeApplied      prometheus.Counter
	realtimeConnections prometheus.Gauge
}

// NewMetrics 创建指标管理器
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		panicEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "panic_events_total",
				Help: "Panic events triggered, by situation",
			},
			[]string{"situation"},
		),
		notificationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "panic_notifications_total",
				Help: "In-app notifications created during panic fan-out",
			},
		),
		skippedContacts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "panic_skipped_contacts_total",
				Help: "Emergency contacts skipped during fan-out (no matching account)",
			},
		),
		statusUpdatesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_status_updates_total",
				Help: "Alert status updates, by resolution path",
			},
			[]string{"path"},
		),
		cascadeApplied: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "alert_cascade_applied_total",
				Help: "Linked alerts updated after a panic event resolution",
			},
		),
		realtimeConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "realtime_connections",
				Help: "Currently open realtime connections",
			},
		),
	}
}

// RecordHTTPRequest 记录一次HTTP请求
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPanicEvent 记录一次求助触发
func (m *Metrics) RecordPanicEvent(situation string) {
	m.panicEventsTotal.WithLabelValues(situation).Inc()
}

// RecordNotifications 记录扩散产生的通知数与跳过的联系人数
func (m *Metrics) RecordNotifications(created, skipped int) {
	m.notificationsTotal.Add(float64(created))
	m.skippedContacts.Add(float64(skipped))
}

// RecordStatusUpdate 记录一次状态更新及其路由路径
func (m *Metrics) RecordStatusUpdate(path string) {
	m.statusUpdatesTotal.WithLabelValues(path).Inc()
}

// RecordCascade 记录一次级联状态更新
func (m *Metrics) RecordCascade() {
	m.cascadeApplied.Inc()
}

// SetRealtimeConnections 更新实时连接数
func (m *Metrics) SetRealtimeConnections(n int64) {
	m.realtimeConnections.Set(float64(n))
}
