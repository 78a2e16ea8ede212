// Package queue runs admitted audit jobs on a bounded worker pool and
// publishes one terminal event per job.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sitegauge/sitegauge/internal/metrics"
	"github.com/sitegauge/sitegauge/internal/model"
)

const (
	// DefaultConcurrency is the default worker pool size.
	DefaultConcurrency = 2

	// DefaultJobTimeout is the default per-job executor budget.
	DefaultJobTimeout = 5 * time.Minute

	// eventBuffer bounds the terminal event channel. Workers block on a
	// full buffer, which backpressures the pool instead of dropping events.
	eventBuffer = 64
)

// ErrJobTimeout marks a job that exceeded the executor budget.
var ErrJobTimeout = errors.New("audit job timed out")

// ErrJobAborted marks a job cancelled by forced shutdown.
var ErrJobAborted = errors.New("audit job aborted")

// Job is one admitted audit submission.
type Job struct {
	AuditID     string
	UserID      string
	URL         string
	Options     model.AuditOptions
	SubmittedAt time.Time
}

// Executor produces the results payload for a job. Implementations must
// honor context cancellation on a best-effort basis; one that ignores it
// leaks work but never blocks the pool.
type Executor interface {
	Execute(ctx context.Context, job Job) (json.RawMessage, error)
}

// Store is the slice of the storage gateway the queue needs.
type Store interface {
	MarkAuditRunning(ctx context.Context, auditID string, startedAt time.Time) error
}

// EventKind distinguishes the two terminal outcomes.
type EventKind string

const (
	EventCompleted EventKind = "auditCompleted"
	EventFailed    EventKind = "auditFailed"
)

// Event is the terminal notification for one job. Exactly one Event is
// published per submitted job.
type Event struct {
	Kind       EventKind
	AuditID    string
	UserID     string
	URL        string
	Results    json.RawMessage // Kind == EventCompleted
	Err        error           // Kind == EventFailed
	FinishedAt time.Time
}

// Queue dispatches jobs FIFO to a fixed-size worker pool.
// Submit never blocks; jobs beyond the pool size wait in order.
type Queue struct {
	executor    Executor
	store       Store
	logger      *slog.Logger
	metrics     metrics.Recorder
	concurrency int
	timeout     time.Duration

	mu      sync.Mutex
	backlog []Job
	wake    chan struct{}
	events  chan Event
	busy    int64

	// jobCtx shields in-flight executions from run-context cancellation
	// so graceful shutdown lets them finish.
	jobCtx    context.Context
	jobCancel context.CancelFunc

	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
	lifecycle sync.Mutex
}

// NewQueue creates a queue. Non-positive concurrency or timeout fall
// back to the defaults.
func NewQueue(executor Executor, store Store, concurrency int, timeout time.Duration, logger *slog.Logger, recorder metrics.Recorder) *Queue {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	jobCtx, jobCancel := context.WithCancel(context.Background())
	return &Queue{
		executor:    executor,
		store:       store,
		logger:      logger.With("component", "queue"),
		metrics:     recorder,
		concurrency: concurrency,
		timeout:     timeout,
		wake:        make(chan struct{}, 1),
		events:      make(chan Event, eventBuffer),
		jobCtx:      jobCtx,
		jobCancel:   jobCancel,
	}
}

// Events returns the terminal event channel. It is closed after Run
// returns, once every worker has exited.
func (q *Queue) Events() <-chan Event {
	return q.events
}

// Submit enqueues an admitted job. It never blocks and never rejects;
// admission control happens upstream at the quota gate.
func (q *Queue) Submit(job Job) {
	q.mu.Lock()
	q.backlog = append(q.backlog, job)
	depth := int64(len(q.backlog))
	q.mu.Unlock()

	q.metrics.IncAuditSubmitted()
	q.metrics.SetQueueDepth(depth)
	q.signal()
}

// Depth returns the number of jobs waiting for a worker.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Run starts the worker pool. Blocks until the context is cancelled and
// all workers have exited, then closes the event channel.
func (q *Queue) Run(ctx context.Context) error {
	q.lifecycle.Lock()
	if q.started {
		q.lifecycle.Unlock()
		return errors.New("queue already started")
	}
	q.started = true
	q.done = make(chan struct{})
	ctx, q.cancel = context.WithCancel(ctx)
	q.lifecycle.Unlock()

	defer close(q.done)
	defer close(q.events)

	q.logger.Info("audit queue started",
		"concurrency", q.concurrency,
		"job_timeout", q.timeout.String(),
	)

	var wg sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			q.worker(ctx, id)
		}(i + 1)
	}
	wg.Wait()

	q.logger.Info("audit queue stopped")
	return nil
}

// Shutdown stops the pool, letting in-flight jobs finish. Jobs still in
// the backlog are abandoned; they remain queued in storage for operator
// reconciliation. If the context expires first, in-flight executions are
// force-cancelled.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.lifecycle.Lock()
	if !q.started {
		q.lifecycle.Unlock()
		return nil
	}
	cancel := q.cancel
	done := q.done
	q.lifecycle.Unlock()

	q.logger.Info("audit queue shutdown initiated", "backlog", q.Depth())

	if cancel != nil {
		cancel()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.logger.Warn("audit queue shutdown timed out, aborting in-flight jobs")
		q.jobCancel()
		<-done
		return ctx.Err()
	}
}

// worker pulls jobs until the context is cancelled.
func (q *Queue) worker(ctx context.Context, id int) {
	logger := q.logger.With("worker_id", id)
	for {
		job, ok := q.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		q.execute(job, logger)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// dequeue pops the oldest job. When more work remains it re-signals so
// another idle worker wakes up.
func (q *Queue) dequeue() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.backlog) == 0 {
		return Job{}, false
	}
	job := q.backlog[0]
	q.backlog = q.backlog[1:]
	q.metrics.SetQueueDepth(int64(len(q.backlog)))
	if len(q.backlog) > 0 {
		q.signal()
	}
	return job, true
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// execute runs one job to its terminal state and emits exactly one event.
func (q *Queue) execute(job Job, logger *slog.Logger) {
	q.metrics.SetWorkersBusy(atomic.AddInt64(&q.busy, 1))
	defer func() {
		q.metrics.SetWorkersBusy(atomic.AddInt64(&q.busy, -1))
	}()

	start := time.Now()
	if err := q.store.MarkAuditRunning(q.jobCtx, job.AuditID, start.UTC()); err != nil {
		// The job still runs; status catches up at the terminal write.
		logger.Warn("failed to mark audit running",
			"audit_id", job.AuditID,
			"error", err,
		)
	}

	results, err := q.invoke(job)

	finished := time.Now().UTC()
	q.metrics.ObserveAuditDuration(time.Since(start))

	if err != nil {
		reason := "error"
		if errors.Is(err, ErrJobTimeout) {
			reason = "timeout"
		}
		q.metrics.IncAuditFailed(reason)
		logger.Info("audit failed",
			"audit_id", job.AuditID,
			"reason", reason,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		q.events <- Event{
			Kind:       EventFailed,
			AuditID:    job.AuditID,
			UserID:     job.UserID,
			URL:        job.URL,
			Err:        err,
			FinishedAt: finished,
		}
		return
	}

	q.metrics.IncAuditCompleted()
	logger.Info("audit completed",
		"audit_id", job.AuditID,
		"duration_ms", time.Since(start).Milliseconds(),
		"result_bytes", len(results),
	)
	q.events <- Event{
		Kind:       EventCompleted,
		AuditID:    job.AuditID,
		UserID:     job.UserID,
		URL:        job.URL,
		Results:    results,
		FinishedAt: finished,
	}
}

// invoke runs the executor under the per-job timeout. The executor call
// runs in its own goroutine so an implementation that ignores
// cancellation cannot hold the worker past the budget.
func (q *Queue) invoke(job Job) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(q.jobCtx, q.timeout)
	defer cancel()

	type outcome struct {
		results json.RawMessage
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		results, err := q.executor.Execute(ctx, job)
		ch <- outcome{results, err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w after %s", ErrJobTimeout, q.timeout)
			}
			if errors.Is(out.err, context.Canceled) {
				return nil, fmt.Errorf("%w during shutdown", ErrJobAborted)
			}
			return nil, out.err
		}
		return out.results, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("%w during shutdown", ErrJobAborted)
		}
		return nil, fmt.Errorf("%w after %s", ErrJobTimeout, q.timeout)
	}
}
