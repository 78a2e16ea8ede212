// Package model defines domain entities for the application.
package model

import (
	"encoding/json"
	"time"
)

// AuditStatus represents the lifecycle state of an audit job.
type AuditStatus string

const (
	AuditStatusQueued    AuditStatus = "queued"
	AuditStatusRunning   AuditStatus = "running"
	AuditStatusCompleted AuditStatus = "completed"
	AuditStatusFailed    AuditStatus = "failed"
)

// IsTerminal returns true if the status is a terminal state.
func (s AuditStatus) IsTerminal() bool {
	return s == AuditStatusCompleted || s == AuditStatusFailed
}

// AuditOptions tunes executor behaviour for a single audit job.
// The core treats it as an opaque pass-through to the executor.
type AuditOptions struct {
	Pages      []string `json:"pages,omitempty"`       // Extra page paths beyond the target URL
	UserAgent  string   `json:"user_agent,omitempty"`  // Override fetch user agent
	SkipChecks []string `json:"skip_checks,omitempty"` // Check IDs to skip
}

// PageCount returns the number of pages the audit will cover.
func (o AuditOptions) PageCount() int {
	return 1 + len(o.Pages)
}

// Audit represents a single web-quality audit job.
// Status transitions are owned by the job queue; the submitting caller
// never mutates an audit after creation.
type Audit struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	URL         string          `json:"url"`
	ClientName  string          `json:"client_name,omitempty"`
	Status      AuditStatus     `json:"status"`
	Options     AuditOptions    `json:"options"`
	Results     json.RawMessage `json:"results,omitempty"` // Opaque executor output
	ErrorDetail string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// AuditCreateRequest represents a request to submit a new audit.
type AuditCreateRequest struct {
	URL        string       `json:"url"`
	ClientName string       `json:"client_name,omitempty"`
	Options    AuditOptions `json:"options,omitempty"`
}

// AuditCreateResponse acknowledges an admitted submission.
type AuditCreateResponse struct {
	AuditID string      `json:"audit_id"`
	Status  AuditStatus `json:"status"`
}

// AuditResponse represents the API response for an audit.
type AuditResponse struct {
	ID          string          `json:"id"`
	URL         string          `json:"url"`
	ClientName  string          `json:"client_name,omitempty"`
	Status      AuditStatus     `json:"status"`
	Results     json.RawMessage `json:"results,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ToResponse converts an Audit to AuditResponse.
func (a *Audit) ToResponse() AuditResponse {
	return AuditResponse{
		ID:          a.ID,
		URL:         a.URL,
		ClientName:  a.ClientName,
		Status:      a.Status,
		Results:     a.Results,
		Error:       a.ErrorDetail,
		CreatedAt:   a.CreatedAt,
		StartedAt:   a.StartedAt,
		CompletedAt: a.CompletedAt,
	}
}

// AuditListResponse represents a paginated audit listing.
type AuditListResponse struct {
	Audits []AuditResponse `json:"audits"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
	Total  int             `json:"total"`
}
