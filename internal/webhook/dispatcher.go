package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sitegauge/sitegauge/internal/metrics"
	"github.com/sitegauge/sitegauge/internal/model"
	"github.com/sitegauge/sitegauge/internal/safeurl"
)

// bookkeepTimeout bounds the storage writes that record a sequence
// outcome. They run on a fresh context so an aborted delivery still
// gets its counters persisted.
const bookkeepTimeout = 10 * time.Second

// SubscriptionStore is the slice of the repository the dispatcher needs.
type SubscriptionStore interface {
	ListActiveForEvent(ctx context.Context, userID string, event model.EventType) ([]*model.Subscription, error)
	MarkTriggered(ctx context.Context, id string, at time.Time) error
	RecordExhaustion(ctx context.Context, id string, at time.Time, ceiling int) (int, bool, error)
}

// Dispatcher delivers events to matching subscriptions. Each
// subscription gets its own delivery sequence: up to maxRetries POST
// attempts with doubling backoff, then an exhaustion record that can
// disable the subscription at the failure ceiling.
type Dispatcher struct {
	store   SubscriptionStore
	client  *http.Client
	logger  *slog.Logger
	metrics metrics.Recorder

	maxRetries     int
	baseDelay      time.Duration
	attemptTimeout time.Duration
	failureCeiling int

	// rootCtx outlives Trigger callers; forced shutdown cancels it to
	// abort backoff sleeps and in-flight attempts.
	rootCtx context.Context
	abort   context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher creates a webhook dispatcher with default retry policy.
func NewDispatcher(store SubscriptionStore, logger *slog.Logger, recorder metrics.Recorder) *Dispatcher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	rootCtx, abort := context.WithCancel(context.Background())
	return &Dispatcher{
		store:          store,
		client:         NewHTTPClient(DefaultAttemptTimeout),
		logger:         logger.With("component", "webhook.dispatcher"),
		metrics:        recorder,
		maxRetries:     DefaultMaxRetries,
		baseDelay:      DefaultBaseDelay,
		attemptTimeout: DefaultAttemptTimeout,
		failureCeiling: DefaultFailureCeiling,
		rootCtx:        rootCtx,
		abort:          abort,
	}
}

// SetMaxRetries overrides the attempts per delivery sequence.
func (d *Dispatcher) SetMaxRetries(n int) {
	if n > 0 {
		d.maxRetries = n
	}
}

// SetBaseDelay overrides the first backoff delay.
func (d *Dispatcher) SetBaseDelay(delay time.Duration) {
	if delay > 0 {
		d.baseDelay = delay
	}
}

// SetAttemptTimeout overrides the per-attempt HTTP budget.
func (d *Dispatcher) SetAttemptTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.attemptTimeout = timeout
		d.client = NewHTTPClient(timeout)
	}
}

// SetFailureCeiling overrides the auto-disable threshold.
func (d *Dispatcher) SetFailureCeiling(n int) {
	if n > 0 {
		d.failureCeiling = n
	}
}

// Trigger fans an event out to the user's active matching subscriptions.
// It returns once the sequences are started; delivery outcomes surface
// through logs, metrics, and the subscription failure counters. Users
// without subscriptions cost one indexed query and nothing else.
func (d *Dispatcher) Trigger(ctx context.Context, userID string, event model.EventType, data map[string]any) {
	subs, err := d.store.ListActiveForEvent(ctx, userID, event)
	if err != nil {
		d.logger.Error("failed to list subscriptions",
			"user_id", userID,
			"event", string(event),
			"error", err,
		)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload := model.WebhookPayload{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("failed to marshal payload",
			"event", string(event),
			"error", err,
		)
		return
	}

	for _, sub := range subs {
		d.wg.Add(1)
		go func(sub *model.Subscription) {
			defer d.wg.Done()
			d.deliver(sub, event, body)
		}(sub)
	}
}

// Shutdown waits for running delivery sequences to finish. If the
// context expires first, remaining sequences are aborted. Call only
// after the event consumer has stopped issuing triggers.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("webhook dispatcher shutdown timed out, aborting deliveries")
		d.abort()
		<-done
		return ctx.Err()
	}
}

// deliver runs one delivery sequence against one subscription.
func (d *Dispatcher) deliver(sub *model.Subscription, event model.EventType, body []byte) {
	deliveryID := ulid.Make().String()
	signature := Sign(sub.Secret, body)

	logger := d.logger.With(
		"subscription_id", sub.ID,
		"delivery_id", deliveryID,
		"event", string(event),
		"target_host", safeurl.ExtractHost(sub.TargetURL),
	)

	var lastStatus int
	var lastErr string

	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		if attempt > 1 {
			if !d.sleep(RetryDelay(d.baseDelay, attempt-1)) {
				logger.Warn("delivery abandoned during shutdown", "attempts", attempt-1)
				return
			}
		}

		status, err := d.attempt(sub.TargetURL, body, HTTPHeaders{
			Signature:  signature,
			Event:      string(event),
			DeliveryID: deliveryID,
		})
		if err == nil {
			d.metrics.IncWebhookAttempt("success")
			d.metrics.IncWebhookDelivery("delivered")
			logger.Info("webhook delivered",
				"attempt", attempt,
				"http_status", status,
			)

			ctx, cancel := context.WithTimeout(context.Background(), bookkeepTimeout)
			if err := d.store.MarkTriggered(ctx, sub.ID, time.Now().UTC()); err != nil {
				logger.Error("failed to mark subscription triggered", "error", err)
			}
			cancel()
			return
		}

		d.metrics.IncWebhookAttempt("failure")
		lastStatus = status
		lastErr = err.Error()
		logger.Warn("webhook attempt failed",
			"attempt", attempt,
			"http_status", status,
			"error", err,
		)

		if d.rootCtx.Err() != nil {
			logger.Warn("delivery abandoned during shutdown", "attempts", attempt)
			return
		}
	}

	d.metrics.IncWebhookDelivery("exhausted")

	ctx, cancel := context.WithTimeout(context.Background(), bookkeepTimeout)
	defer cancel()
	failures, active, err := d.store.RecordExhaustion(ctx, sub.ID, time.Now().UTC(), d.failureCeiling)
	if err != nil {
		logger.Error("failed to record exhaustion", "error", err)
		return
	}

	logger.Warn("webhook delivery exhausted",
		"attempts", d.maxRetries,
		"failure_count", failures,
		"last_http_status", lastStatus,
		"last_error", lastErr,
	)

	if !active {
		d.metrics.IncWebhookDisabled()
		logger.Warn("subscription disabled after repeated failures",
			"failure_count", failures,
		)
	}
}

// attempt sends one POST. Any response outside 2xx counts as a failure.
func (d *Dispatcher) attempt(targetURL string, body []byte, headers HTTPHeaders) (int, error) {
	ctx, cancel := context.WithTimeout(d.rootCtx, d.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	SetWebhookHeaders(req, headers)

	start := time.Now()
	resp, err := d.client.Do(req)
	d.metrics.ObserveWebhookAttemptDuration(time.Since(start))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// Drain body to allow connection reuse
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode)
}

// sleep waits the backoff delay, returning false if aborted.
func (d *Dispatcher) sleep(delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-d.rootCtx.Done():
		return false
	}
}
