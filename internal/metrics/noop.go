package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncAuditSubmitted is a no-op.
func (n *NoopRecorder) IncAuditSubmitted() {}

// IncAuditCompleted is a no-op.
func (n *NoopRecorder) IncAuditCompleted() {}

// IncAuditFailed is a no-op.
func (n *NoopRecorder) IncAuditFailed(reason string) {}

// ObserveAuditDuration is a no-op.
func (n *NoopRecorder) ObserveAuditDuration(duration time.Duration) {}

// SetQueueDepth is a no-op.
func (n *NoopRecorder) SetQueueDepth(depth int64) {}

// SetWorkersBusy is a no-op.
func (n *NoopRecorder) SetWorkersBusy(busy int64) {}

// IncWebhookDelivery is a no-op.
func (n *NoopRecorder) IncWebhookDelivery(status string) {}

// IncWebhookAttempt is a no-op.
func (n *NoopRecorder) IncWebhookAttempt(status string) {}

// ObserveWebhookAttemptDuration is a no-op.
func (n *NoopRecorder) ObserveWebhookAttemptDuration(duration time.Duration) {}

// IncWebhookDisabled is a no-op.
func (n *NoopRecorder) IncWebhookDisabled() {}

// IncQuotaRejected is a no-op.
func (n *NoopRecorder) IncQuotaRejected() {}

// IncAPIKeyAuth is a no-op.
func (n *NoopRecorder) IncAPIKeyAuth(status string) {}

// ObserveHTTPRequest is a no-op.
func (n *NoopRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {}
