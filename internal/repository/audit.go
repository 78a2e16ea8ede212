package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sitegauge/sitegauge/internal/model"
)

// Common errors for audit repository operations.
var (
	ErrAuditNotFound = errors.New("audit not found")
)

// CreateAudit inserts a new audit in the queued state.
func (r *Repository) CreateAudit(ctx context.Context, audit *model.Audit) error {
	optionsJSON, err := json.Marshal(audit.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal audit options: %w", err)
	}

	query := `
		INSERT INTO audits (
			id, user_id, url, client_name, status, options, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.pool.Exec(ctx, query,
		audit.ID,
		audit.UserID,
		audit.URL,
		audit.ClientName,
		audit.Status,
		optionsJSON,
		audit.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create audit: %w", err)
	}

	return nil
}

// GetAuditByID retrieves an audit by its ID.
func (r *Repository) GetAuditByID(ctx context.Context, id string) (*model.Audit, error) {
	query := auditSelect + ` WHERE id = $1`

	audit, err := scanAudit(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAuditNotFound
		}
		return nil, fmt.Errorf("failed to get audit by ID: %w", err)
	}

	return audit, nil
}

// GetUserAudits retrieves a page of the user's audits, newest first,
// along with the total count.
func (r *Repository) GetUserAudits(ctx context.Context, userID string, limit, offset int) ([]*model.Audit, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audits WHERE user_id = $1`, userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count audits: %w", err)
	}

	query := auditSelect + `
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audits: %w", err)
	}
	defer rows.Close()

	var audits []*model.Audit
	for rows.Next() {
		audit, err := scanAudit(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit: %w", err)
		}
		audits = append(audits, audit)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating audits: %w", err)
	}

	return audits, total, nil
}

// MarkAuditRunning transitions a queued audit to running. The queued
// guard keeps a job from being marked twice.
func (r *Repository) MarkAuditRunning(ctx context.Context, auditID string, startedAt time.Time) error {
	query := `
		UPDATE audits
		SET status = $2, started_at = $3
		WHERE id = $1 AND status = $4
	`

	result, err := r.pool.Exec(ctx, query,
		auditID, model.AuditStatusRunning, startedAt, model.AuditStatusQueued,
	)
	if err != nil {
		return fmt.Errorf("failed to mark audit running: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAuditNotFound
	}

	return nil
}

// CompleteAudit records the results and transitions the audit to
// completed.
func (r *Repository) CompleteAudit(ctx context.Context, auditID string, results json.RawMessage, finishedAt time.Time) error {
	query := `
		UPDATE audits
		SET status = $2, results = $3, completed_at = $4
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		auditID, model.AuditStatusCompleted, []byte(results), finishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to complete audit: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAuditNotFound
	}

	return nil
}

// FailAudit records the error detail and transitions the audit to
// failed.
func (r *Repository) FailAudit(ctx context.Context, auditID string, detail string, finishedAt time.Time) error {
	query := `
		UPDATE audits
		SET status = $2, error_detail = $3, completed_at = $4
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		auditID, model.AuditStatusFailed, detail, finishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to fail audit: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAuditNotFound
	}

	return nil
}

// DeleteAudit removes an audit and its results permanently.
func (r *Repository) DeleteAudit(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM audits WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete audit: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAuditNotFound
	}

	return nil
}

const auditSelect = `
	SELECT id, user_id, url, client_name, status, options, results,
		   error_detail, created_at, started_at, completed_at
	FROM audits`

// scanAudit scans a single row into an Audit model.
func scanAudit(row pgx.Row) (*model.Audit, error) {
	var (
		audit       model.Audit
		optionsJSON []byte
		resultsJSON []byte
	)

	err := row.Scan(
		&audit.ID,
		&audit.UserID,
		&audit.URL,
		&audit.ClientName,
		&audit.Status,
		&optionsJSON,
		&resultsJSON,
		&audit.ErrorDetail,
		&audit.CreatedAt,
		&audit.StartedAt,
		&audit.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(optionsJSON) > 0 {
		if err := json.Unmarshal(optionsJSON, &audit.Options); err != nil {
			return nil, fmt.Errorf("unmarshal audit options: %w", err)
		}
	}
	if len(resultsJSON) > 0 {
		audit.Results = json.RawMessage(resultsJSON)
	}

	return &audit, nil
}
