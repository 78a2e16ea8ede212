package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestInMemoryRecorder_Counters(t *testing.T) {
	rec := NewInMemory()

	rec.IncAuditSubmitted()
	rec.IncAuditSubmitted()
	rec.IncAuditCompleted()
	rec.IncAuditFailed("timeout")
	rec.IncAuditFailed("error")
	rec.IncAuditFailed("error")
	rec.SetQueueDepth(5)
	rec.SetWorkersBusy(2)
	rec.IncWebhookDelivery("delivered")
	rec.IncWebhookDelivery("exhausted")
	rec.IncWebhookAttempt("failed")
	rec.IncWebhookDisabled()
	rec.IncQuotaRejected()
	rec.ObserveAuditDuration(2 * time.Second)
	rec.ObserveHTTPRequest("POST", "/v1/audits", 202, 10*time.Millisecond)
	rec.ObserveHTTPRequest("POST", "/v1/audits", 202, 12*time.Millisecond)

	snap := rec.Snapshot()

	if snap.AuditsSubmitted != 2 {
		t.Errorf("AuditsSubmitted = %d, want 2", snap.AuditsSubmitted)
	}
	if snap.AuditsCompleted != 1 {
		t.Errorf("AuditsCompleted = %d, want 1", snap.AuditsCompleted)
	}
	if snap.AuditsFailed["error"] != 2 || snap.AuditsFailed["timeout"] != 1 {
		t.Errorf("AuditsFailed = %v", snap.AuditsFailed)
	}
	if snap.QueueDepth != 5 {
		t.Errorf("QueueDepth = %d, want 5", snap.QueueDepth)
	}
	if snap.WorkersBusy != 2 {
		t.Errorf("WorkersBusy = %d, want 2", snap.WorkersBusy)
	}
	if snap.WebhookDeliveries["delivered"] != 1 || snap.WebhookDeliveries["exhausted"] != 1 {
		t.Errorf("WebhookDeliveries = %v", snap.WebhookDeliveries)
	}
	if snap.WebhooksDisabled != 1 {
		t.Errorf("WebhooksDisabled = %d, want 1", snap.WebhooksDisabled)
	}
	if snap.QuotaRejections != 1 {
		t.Errorf("QuotaRejections = %d, want 1", snap.QuotaRejections)
	}
	if snap.AuditDurationCount != 1 || snap.AuditDurationTotalNs != (2*time.Second).Nanoseconds() {
		t.Errorf("duration = count %d total %d", snap.AuditDurationCount, snap.AuditDurationTotalNs)
	}
	if snap.HTTPRequests["POST /v1/audits 202"] != 2 {
		t.Errorf("HTTPRequests = %v", snap.HTTPRequests)
	}
}

func TestInMemoryRecorder_ConcurrentUse(t *testing.T) {
	rec := NewInMemory()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rec.IncAuditSubmitted()
				rec.IncWebhookAttempt("success")
				rec.IncAPIKeyAuth("cached")
			}
		}()
	}
	wg.Wait()

	snap := rec.Snapshot()
	if snap.AuditsSubmitted != 1000 {
		t.Errorf("AuditsSubmitted = %d, want 1000", snap.AuditsSubmitted)
	}
	if snap.WebhookAttempts["success"] != 1000 {
		t.Errorf("WebhookAttempts[success] = %d, want 1000", snap.WebhookAttempts["success"])
	}
	if snap.APIKeyAuths["cached"] != 1000 {
		t.Errorf("APIKeyAuths[cached] = %d, want 1000", snap.APIKeyAuths["cached"])
	}
}

func TestSnapshot_IsolatedFromRecorder(t *testing.T) {
	rec := NewInMemory()
	rec.IncAuditFailed("error")

	snap := rec.Snapshot()
	snap.AuditsFailed["error"] = 99

	if rec.Snapshot().AuditsFailed["error"] != 1 {
		t.Error("mutating a snapshot must not affect the recorder")
	}
}
