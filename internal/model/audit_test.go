package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestAuditStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status AuditStatus
		want   bool
	}{
		{AuditStatusQueued, false},
		{AuditStatusRunning, false},
		{AuditStatusCompleted, true},
		{AuditStatusFailed, true},
		{AuditStatus("bogus"), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()

			if got := tt.status.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuditOptions_PageCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		pages []string
		want  int
	}{
		{"target only", nil, 1},
		{"one extra page", []string{"/pricing"}, 2},
		{"several pages", []string{"/pricing", "/about", "/contact"}, 4},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := AuditOptions{Pages: tt.pages}
			if got := opts.PageCount(); got != tt.want {
				t.Errorf("PageCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAudit_ToResponse(t *testing.T) {
	t.Parallel()

	now := time.Now()
	completed := now.Add(2 * time.Second)
	audit := &Audit{
		ID:          "aud_123",
		UserID:      "usr_456",
		URL:         "https://example.com",
		ClientName:  "Acme Corp",
		Status:      AuditStatusCompleted,
		Results:     json.RawMessage(`{"score":87}`),
		CreatedAt:   now,
		CompletedAt: &completed,
	}

	resp := audit.ToResponse()
	if resp.ID != audit.ID {
		t.Errorf("ID = %s, want %s", resp.ID, audit.ID)
	}
	if resp.Status != AuditStatusCompleted {
		t.Errorf("Status = %s, want completed", resp.Status)
	}
	if string(resp.Results) != `{"score":87}` {
		t.Errorf("Results = %s, want {\"score\":87}", resp.Results)
	}
	if resp.CompletedAt == nil || !resp.CompletedAt.Equal(completed) {
		t.Error("CompletedAt not carried through")
	}
}

func TestAudit_ToResponse_FailedCarriesError(t *testing.T) {
	t.Parallel()

	audit := &Audit{
		ID:          "aud_123",
		Status:      AuditStatusFailed,
		ErrorDetail: "audit timed out after 300000ms",
	}

	resp := audit.ToResponse()
	if resp.Error != audit.ErrorDetail {
		t.Errorf("Error = %s, want %s", resp.Error, audit.ErrorDetail)
	}
	if resp.Results != nil {
		t.Error("Results should be empty for failed audit")
	}
}
