// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Audit job metrics
	IncAuditSubmitted()
	IncAuditCompleted()
	IncAuditFailed(reason string) // reason: "error" or "timeout"
	ObserveAuditDuration(duration time.Duration)
	SetQueueDepth(depth int64)
	SetWorkersBusy(busy int64)

	// Webhook delivery metrics
	IncWebhookDelivery(status string) // status: "delivered" or "exhausted"
	IncWebhookAttempt(status string)  // status: "success" or "failed"
	ObserveWebhookAttemptDuration(duration time.Duration)
	IncWebhookDisabled()

	// Admission and auth metrics
	IncQuotaRejected()
	IncAPIKeyAuth(status string) // status: "success", "cached", "failed"

	// HTTP metrics. route is the route pattern, not the raw path,
	// to keep label cardinality bounded.
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
