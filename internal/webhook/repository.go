package webhook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/sitegauge/sitegauge/internal/model"
)

// Repository handles webhook subscription persistence.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new webhook repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateSubscription inserts a new subscription.
func (r *Repository) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	query := `
		INSERT INTO webhook_subscriptions (
			id, user_id, target_url, secret, events, active,
			failure_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	events := make([]string, len(sub.Events))
	for i, et := range sub.Events {
		events[i] = string(et)
	}

	_, err := r.db.ExecContext(ctx, query,
		sub.ID,
		sub.UserID,
		sub.TargetURL,
		sub.Secret,
		pq.Array(events),
		sub.Active,
		sub.FailureCount,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook subscription: %w", err)
	}
	return nil
}

// GetSubscription retrieves a subscription by ID.
func (r *Repository) GetSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	query := `
		SELECT id, user_id, target_url, secret, events, active,
			   failure_count, last_triggered_at, created_at, updated_at
		FROM webhook_subscriptions
		WHERE id = $1
	`

	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query webhook subscription: %w", err)
	}
	return sub, nil
}

// ListSubscriptionsByUser retrieves all subscriptions owned by a user.
func (r *Repository) ListSubscriptionsByUser(ctx context.Context, userID string) ([]*model.Subscription, error) {
	query := `
		SELECT id, user_id, target_url, secret, events, active,
			   failure_count, last_triggered_at, created_at, updated_at
		FROM webhook_subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions by user: %w", err)
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

// ListActiveForEvent retrieves the user's active subscriptions covering
// the given event, oldest first so fan-out order is stable.
func (r *Repository) ListActiveForEvent(ctx context.Context, userID string, event model.EventType) ([]*model.Subscription, error) {
	query := `
		SELECT id, user_id, target_url, secret, events, active,
			   failure_count, last_triggered_at, created_at, updated_at
		FROM webhook_subscriptions
		WHERE user_id = $1
		  AND active = true
		  AND $2 = ANY(events)
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, userID, string(event))
	if err != nil {
		return nil, fmt.Errorf("query active subscriptions: %w", err)
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

// UpdateEvents replaces the subscribed event set.
func (r *Repository) UpdateEvents(ctx context.Context, id string, events []model.EventType) error {
	query := `
		UPDATE webhook_subscriptions
		SET events = $2, updated_at = $3
		WHERE id = $1
	`

	strs := make([]string, len(events))
	for i, et := range events {
		strs[i] = string(et)
	}

	result, err := r.db.ExecContext(ctx, query, id, pq.Array(strs), time.Now())
	if err != nil {
		return fmt.Errorf("update subscription events: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// DeleteSubscription removes a subscription permanently.
func (r *Repository) DeleteSubscription(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete webhook subscription: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// MarkTriggered records a successful delivery.
func (r *Repository) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE webhook_subscriptions
		SET last_triggered_at = $2, updated_at = $2
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("mark subscription triggered: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// RecordExhaustion bumps the failure counter after a delivery sequence
// ran out of attempts, disabling the subscription once the counter
// reaches the ceiling. The increment, the comparison, and the disable
// happen in one statement so concurrent sequences cannot lose counts.
// Returns the new counter and whether the subscription is still active.
func (r *Repository) RecordExhaustion(ctx context.Context, id string, at time.Time, ceiling int) (int, bool, error) {
	query := `
		UPDATE webhook_subscriptions
		SET failure_count = failure_count + 1,
			last_triggered_at = $2,
			active = CASE WHEN failure_count + 1 >= $3 THEN false ELSE active END,
			updated_at = $2
		WHERE id = $1
		RETURNING failure_count, active
	`

	var failureCount int
	var active bool
	err := r.db.QueryRowContext(ctx, query, id, at, ceiling).Scan(&failureCount, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, ErrSubscriptionNotFound
	}
	if err != nil {
		return 0, false, fmt.Errorf("record subscription exhaustion: %w", err)
	}
	return failureCount, active, nil
}

// Reactivate re-enables a subscription and clears its failure counter.
// This is the only path that resets the counter.
func (r *Repository) Reactivate(ctx context.Context, id string) error {
	query := `
		UPDATE webhook_subscriptions
		SET active = true, failure_count = 0, updated_at = $2
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("reactivate subscription: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// Deactivate pauses a subscription without touching the failure counter.
func (r *Repository) Deactivate(ctx context.Context, id string) error {
	query := `
		UPDATE webhook_subscriptions
		SET active = false, updated_at = $2
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// CountSubscriptionsByUser returns the user's subscription count.
func (r *Repository) CountSubscriptionsByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM webhook_subscriptions WHERE user_id = $1`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*model.Subscription, error) {
	var sub model.Subscription
	var events []string

	if err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.TargetURL,
		&sub.Secret,
		pq.Array(&events),
		&sub.Active,
		&sub.FailureCount,
		&sub.LastTriggeredAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	); err != nil {
		return nil, err
	}

	sub.Events = make([]model.EventType, len(events))
	for i, et := range events {
		sub.Events[i] = model.EventType(et)
	}
	return &sub, nil
}

func scanSubscriptions(rows *sql.Rows) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
