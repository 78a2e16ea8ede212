package metrics

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	AuditsSubmitted        uint64
	AuditsCompleted        uint64
	AuditsFailed           map[string]uint64
	AuditDurationCount     uint64
	AuditDurationTotalNs   int64
	QueueDepth             int64
	WorkersBusy            int64
	WebhookDeliveries      map[string]uint64
	WebhookAttempts        map[string]uint64
	WebhookAttemptCount    uint64
	WebhookAttemptTotalNs  int64
	WebhooksDisabled       uint64
	QuotaRejections        uint64
	APIKeyAuths            map[string]uint64
	HTTPRequests           map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	auditsSubmitted       uint64
	auditsCompleted       uint64
	auditDurationCount    uint64
	auditDurationTotalNs  int64
	queueDepth            int64
	workersBusy           int64
	webhookAttemptCount   uint64
	webhookAttemptTotalNs int64
	webhooksDisabled      uint64
	quotaRejections       uint64

	mu                sync.Mutex
	auditsFailed      map[string]uint64
	webhookDeliveries map[string]uint64
	webhookAttempts   map[string]uint64
	apiKeyAuths       map[string]uint64
	httpRequests      map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		auditsFailed:      make(map[string]uint64),
		webhookDeliveries: make(map[string]uint64),
		webhookAttempts:   make(map[string]uint64),
		apiKeyAuths:       make(map[string]uint64),
		httpRequests:      make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	failed := copyCounts(m.auditsFailed)
	deliveries := copyCounts(m.webhookDeliveries)
	attempts := copyCounts(m.webhookAttempts)
	auths := copyCounts(m.apiKeyAuths)
	requests := copyCounts(m.httpRequests)
	m.mu.Unlock()

	return Snapshot{
		AuditsSubmitted:       atomic.LoadUint64(&m.auditsSubmitted),
		AuditsCompleted:       atomic.LoadUint64(&m.auditsCompleted),
		AuditsFailed:          failed,
		AuditDurationCount:    atomic.LoadUint64(&m.auditDurationCount),
		AuditDurationTotalNs:  atomic.LoadInt64(&m.auditDurationTotalNs),
		QueueDepth:            atomic.LoadInt64(&m.queueDepth),
		WorkersBusy:           atomic.LoadInt64(&m.workersBusy),
		WebhookDeliveries:     deliveries,
		WebhookAttempts:       attempts,
		WebhookAttemptCount:   atomic.LoadUint64(&m.webhookAttemptCount),
		WebhookAttemptTotalNs: atomic.LoadInt64(&m.webhookAttemptTotalNs),
		WebhooksDisabled:      atomic.LoadUint64(&m.webhooksDisabled),
		QuotaRejections:       atomic.LoadUint64(&m.quotaRejections),
		APIKeyAuths:           auths,
		HTTPRequests:          requests,
	}
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// IncAuditSubmitted increments the submitted counter.
func (m *InMemoryRecorder) IncAuditSubmitted() {
	atomic.AddUint64(&m.auditsSubmitted, 1)
}

// IncAuditCompleted increments the completed counter.
func (m *InMemoryRecorder) IncAuditCompleted() {
	atomic.AddUint64(&m.auditsCompleted, 1)
}

// IncAuditFailed increments the failed counter for the given reason.
func (m *InMemoryRecorder) IncAuditFailed(reason string) {
	m.mu.Lock()
	m.auditsFailed[reason]++
	m.mu.Unlock()
}

// ObserveAuditDuration records an audit job duration.
func (m *InMemoryRecorder) ObserveAuditDuration(duration time.Duration) {
	atomic.AddUint64(&m.auditDurationCount, 1)
	atomic.AddInt64(&m.auditDurationTotalNs, duration.Nanoseconds())
}

// SetQueueDepth records the current backlog depth.
func (m *InMemoryRecorder) SetQueueDepth(depth int64) {
	atomic.StoreInt64(&m.queueDepth, depth)
}

// SetWorkersBusy records the number of busy workers.
func (m *InMemoryRecorder) SetWorkersBusy(busy int64) {
	atomic.StoreInt64(&m.workersBusy, busy)
}

// IncWebhookDelivery increments the delivery counter for the given status.
func (m *InMemoryRecorder) IncWebhookDelivery(status string) {
	m.mu.Lock()
	m.webhookDeliveries[status]++
	m.mu.Unlock()
}

// IncWebhookAttempt increments the attempt counter for the given status.
func (m *InMemoryRecorder) IncWebhookAttempt(status string) {
	m.mu.Lock()
	m.webhookAttempts[status]++
	m.mu.Unlock()
}

// ObserveWebhookAttemptDuration records a delivery attempt duration.
func (m *InMemoryRecorder) ObserveWebhookAttemptDuration(duration time.Duration) {
	atomic.AddUint64(&m.webhookAttemptCount, 1)
	atomic.AddInt64(&m.webhookAttemptTotalNs, duration.Nanoseconds())
}

// IncWebhookDisabled increments the auto-disable counter.
func (m *InMemoryRecorder) IncWebhookDisabled() {
	atomic.AddUint64(&m.webhooksDisabled, 1)
}

// IncQuotaRejected increments the quota rejection counter.
func (m *InMemoryRecorder) IncQuotaRejected() {
	atomic.AddUint64(&m.quotaRejections, 1)
}

// IncAPIKeyAuth increments the auth counter for the given status.
func (m *InMemoryRecorder) IncAPIKeyAuth(status string) {
	m.mu.Lock()
	m.apiKeyAuths[status]++
	m.mu.Unlock()
}

// ObserveHTTPRequest increments the request counter keyed by method, route,
// and status.
func (m *InMemoryRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	key := method + " " + route + " " + strconv.Itoa(status)
	m.mu.Lock()
	m.httpRequests[key]++
	m.mu.Unlock()
}
