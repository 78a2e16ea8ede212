package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exposes metrics through Prometheus collectors.
// It owns all collectors for audit jobs, queue state, and webhook delivery.
type PrometheusRecorder struct {
	auditsSubmitted prometheus.Counter
	auditsCompleted prometheus.Counter
	auditsFailed    *prometheus.CounterVec
	auditDuration   prometheus.Histogram
	queueDepth      prometheus.Gauge
	workersBusy     prometheus.Gauge

	webhookDeliveries      *prometheus.CounterVec
	webhookAttempts        *prometheus.CounterVec
	webhookAttemptDuration prometheus.Histogram
	webhooksDisabled       prometheus.Counter

	quotaRejections prometheus.Counter
	apiKeyAuths     *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewPrometheus registers the collectors against the provided registry.
func NewPrometheus(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		auditsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitegauge_audits_submitted_total",
			Help: "Total audit jobs admitted to the queue.",
		}),
		auditsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitegauge_audits_completed_total",
			Help: "Total audit jobs that completed successfully.",
		}),
		auditsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitegauge_audits_failed_total",
			Help: "Total audit jobs that failed, partitioned by reason.",
		}, []string{"reason"}),
		auditDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitegauge_audit_duration_seconds",
			Help:    "Wall time per terminal audit job.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitegauge_queue_depth",
			Help: "Current number of audit jobs waiting for a worker.",
		}),
		workersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitegauge_workers_busy",
			Help: "Current number of workers executing a job.",
		}),
		webhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitegauge_webhook_deliveries_total",
			Help: "Completed delivery sequences partitioned by outcome.",
		}, []string{"status"}),
		webhookAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitegauge_webhook_attempts_total",
			Help: "Individual delivery attempts partitioned by outcome.",
		}, []string{"status"}),
		webhookAttemptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitegauge_webhook_attempt_duration_seconds",
			Help:    "Duration of individual webhook delivery attempts.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		webhooksDisabled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitegauge_webhooks_disabled_total",
			Help: "Subscriptions auto-disabled after crossing the failure ceiling.",
		}),
		quotaRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitegauge_quota_rejections_total",
			Help: "Audit submissions rejected by the quota gate.",
		}),
		apiKeyAuths: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitegauge_api_key_auth_total",
			Help: "API key authentication results.",
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitegauge_http_requests_total",
			Help: "HTTP requests partitioned by method, route pattern, and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitegauge_http_request_duration_seconds",
			Help:    "HTTP request latency partitioned by method and route pattern.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
	}
	for _, collector := range []prometheus.Collector{
		r.auditsSubmitted,
		r.auditsCompleted,
		r.auditsFailed,
		r.auditDuration,
		r.queueDepth,
		r.workersBusy,
		r.webhookDeliveries,
		r.webhookAttempts,
		r.webhookAttemptDuration,
		r.webhooksDisabled,
		r.quotaRejections,
		r.apiKeyAuths,
		r.httpRequests,
		r.httpDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

// IncAuditSubmitted increments the submitted counter.
func (r *PrometheusRecorder) IncAuditSubmitted() {
	r.auditsSubmitted.Inc()
}

// IncAuditCompleted increments the completed counter.
func (r *PrometheusRecorder) IncAuditCompleted() {
	r.auditsCompleted.Inc()
}

// IncAuditFailed increments the failed counter for the given reason.
func (r *PrometheusRecorder) IncAuditFailed(reason string) {
	r.auditsFailed.WithLabelValues(reason).Inc()
}

// ObserveAuditDuration records an audit job duration.
func (r *PrometheusRecorder) ObserveAuditDuration(duration time.Duration) {
	r.auditDuration.Observe(duration.Seconds())
}

// SetQueueDepth records the current backlog depth.
func (r *PrometheusRecorder) SetQueueDepth(depth int64) {
	r.queueDepth.Set(float64(depth))
}

// SetWorkersBusy records the number of busy workers.
func (r *PrometheusRecorder) SetWorkersBusy(busy int64) {
	r.workersBusy.Set(float64(busy))
}

// IncWebhookDelivery increments the delivery counter for the given status.
func (r *PrometheusRecorder) IncWebhookDelivery(status string) {
	r.webhookDeliveries.WithLabelValues(status).Inc()
}

// IncWebhookAttempt increments the attempt counter for the given status.
func (r *PrometheusRecorder) IncWebhookAttempt(status string) {
	r.webhookAttempts.WithLabelValues(status).Inc()
}

// ObserveWebhookAttemptDuration records a delivery attempt duration.
func (r *PrometheusRecorder) ObserveWebhookAttemptDuration(duration time.Duration) {
	r.webhookAttemptDuration.Observe(duration.Seconds())
}

// IncWebhookDisabled increments the auto-disable counter.
func (r *PrometheusRecorder) IncWebhookDisabled() {
	r.webhooksDisabled.Inc()
}

// IncQuotaRejected increments the quota rejection counter.
func (r *PrometheusRecorder) IncQuotaRejected() {
	r.quotaRejections.Inc()
}

// IncAPIKeyAuth increments the auth counter for the given status.
func (r *PrometheusRecorder) IncAPIKeyAuth(status string) {
	r.apiKeyAuths.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest records one HTTP request and its latency.
func (r *PrometheusRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
