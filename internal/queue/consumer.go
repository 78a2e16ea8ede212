package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sitegauge/sitegauge/internal/model"
)

// DefaultOpTimeout bounds each storage call made while handling one
// terminal event.
const DefaultOpTimeout = 10 * time.Second

// ConsumerStore is the slice of the storage gateway the consumer needs.
type ConsumerStore interface {
	CompleteAudit(ctx context.Context, auditID string, results json.RawMessage, finishedAt time.Time) error
	FailAudit(ctx context.Context, auditID string, detail string, finishedAt time.Time) error
	IncrementAuditCount(ctx context.Context, userID string) error
}

// Notifier receives webhook trigger requests. Trigger must not block on
// delivery and must never report delivery failures back to the caller.
type Notifier interface {
	Trigger(ctx context.Context, userID string, event model.EventType, data map[string]any)
}

// Consumer is the single task that handles terminal events in order:
// storage update first, counter increment on completion, webhook
// trigger last. A storage failure suppresses the webhook for that job.
type Consumer struct {
	store     ConsumerStore
	notifier  Notifier
	logger    *slog.Logger
	opTimeout time.Duration

	started bool
	done    chan struct{}
	mu      sync.Mutex
}

// NewConsumer creates a terminal-event consumer.
func NewConsumer(store ConsumerStore, notifier Notifier, logger *slog.Logger) *Consumer {
	return &Consumer{
		store:     store,
		notifier:  notifier,
		logger:    logger.With("component", "queue.consumer"),
		opTimeout: DefaultOpTimeout,
	}
}

// SetOpTimeout overrides the per-operation storage timeout.
func (c *Consumer) SetOpTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.opTimeout = timeout
	}
}

// Run consumes events until the channel is closed. Each event is handled
// with a fresh context so shutdown cancellation cannot break the
// storage-before-webhook ordering for an event already received.
func (c *Consumer) Run(events <-chan Event) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("consumer already started")
	}
	c.started = true
	c.done = make(chan struct{})
	c.mu.Unlock()

	defer close(c.done)

	c.logger.Info("terminal event consumer started")
	for ev := range events {
		c.handle(ev)
	}
	c.logger.Info("terminal event consumer stopped")
	return nil
}

// Shutdown waits for the consumer to drain remaining events. The queue
// must be shut down first so the event channel closes.
func (c *Consumer) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	done := c.done
	c.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.logger.Warn("consumer shutdown timed out")
		return ctx.Err()
	}
}

func (c *Consumer) handle(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
	defer cancel()

	switch ev.Kind {
	case EventCompleted:
		c.handleCompleted(ctx, ev)
	case EventFailed:
		c.handleFailed(ctx, ev)
	default:
		c.logger.Error("unknown terminal event kind", "kind", string(ev.Kind), "audit_id", ev.AuditID)
	}
}

func (c *Consumer) handleCompleted(ctx context.Context, ev Event) {
	if err := c.store.CompleteAudit(ctx, ev.AuditID, ev.Results, ev.FinishedAt); err != nil {
		c.logger.Error("failed to persist audit results, webhook suppressed",
			"audit_id", ev.AuditID,
			"error", err,
		)
		return
	}

	if err := c.store.IncrementAuditCount(ctx, ev.UserID); err != nil {
		c.logger.Error("failed to increment audit counter, webhook suppressed",
			"audit_id", ev.AuditID,
			"user_id", ev.UserID,
			"error", err,
		)
		return
	}

	c.notifier.Trigger(ctx, ev.UserID, model.EventAuditCompleted, map[string]any{
		"audit_id": ev.AuditID,
		"user_id":  ev.UserID,
		"url":      ev.URL,
		"results":  ev.Results,
	})
}

func (c *Consumer) handleFailed(ctx context.Context, ev Event) {
	detail := "audit failed"
	if ev.Err != nil {
		detail = ev.Err.Error()
	}

	if err := c.store.FailAudit(ctx, ev.AuditID, detail, ev.FinishedAt); err != nil {
		c.logger.Error("failed to persist audit failure, webhook suppressed",
			"audit_id", ev.AuditID,
			"error", err,
		)
		return
	}

	c.notifier.Trigger(ctx, ev.UserID, model.EventAuditFailed, map[string]any{
		"audit_id": ev.AuditID,
		"user_id":  ev.UserID,
		"url":      ev.URL,
		"error":    detail,
	})
}
