package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sitegauge/sitegauge/internal/model"
	"github.com/sitegauge/sitegauge/internal/testutil"
)

func TestRepository_CreateAndGetAudit(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	audit := testutil.NewTestAudit(t, testutil.UniqueID("user"))
	audit.ClientName = "Acme Corp"
	audit.Options = model.AuditOptions{
		Pages:      []string{"/about", "/pricing"},
		UserAgent:  "CustomBot/1.0",
		SkipChecks: []string{"compression"},
	}

	if err := repo.CreateAudit(ctx, audit); err != nil {
		t.Fatalf("create audit: %v", err)
	}

	retrieved, err := repo.GetAuditByID(ctx, audit.ID)
	if err != nil {
		t.Fatalf("get audit: %v", err)
	}

	if retrieved.UserID != audit.UserID {
		t.Errorf("user ID = %q, want %q", retrieved.UserID, audit.UserID)
	}
	if retrieved.URL != audit.URL {
		t.Errorf("URL = %q, want %q", retrieved.URL, audit.URL)
	}
	if retrieved.ClientName != "Acme Corp" {
		t.Errorf("client name = %q, want Acme Corp", retrieved.ClientName)
	}
	if retrieved.Status != model.AuditStatusQueued {
		t.Errorf("status = %q, want queued", retrieved.Status)
	}
	if len(retrieved.Options.Pages) != 2 || retrieved.Options.Pages[0] != "/about" {
		t.Errorf("options pages = %v, want round-trip", retrieved.Options.Pages)
	}
	if retrieved.Options.UserAgent != "CustomBot/1.0" {
		t.Errorf("options user agent = %q, want round-trip", retrieved.Options.UserAgent)
	}
	if retrieved.Results != nil {
		t.Error("results should be empty before completion")
	}
	if retrieved.StartedAt != nil || retrieved.CompletedAt != nil {
		t.Error("timestamps should be unset before the job runs")
	}
}

func TestRepository_GetAuditMissing(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	if _, err := repo.GetAuditByID(ctx, "audit-missing"); !errors.Is(err, ErrAuditNotFound) {
		t.Errorf("expected ErrAuditNotFound, got %v", err)
	}
}

func TestRepository_AuditLifecycleCompleted(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	audit := testutil.NewTestAudit(t, testutil.UniqueID("user"))
	if err := repo.CreateAudit(ctx, audit); err != nil {
		t.Fatalf("create audit: %v", err)
	}

	startedAt := time.Now().UTC().Truncate(time.Millisecond)
	if err := repo.MarkAuditRunning(ctx, audit.ID, startedAt); err != nil {
		t.Fatalf("mark running: %v", err)
	}

	running, err := repo.GetAuditByID(ctx, audit.ID)
	if err != nil {
		t.Fatalf("get audit: %v", err)
	}
	if running.Status != model.AuditStatusRunning {
		t.Errorf("status = %q, want running", running.Status)
	}
	if running.StartedAt == nil || !running.StartedAt.Equal(startedAt) {
		t.Errorf("started at = %v, want %v", running.StartedAt, startedAt)
	}

	results := testutil.NewTestResults(t, 87)
	finishedAt := startedAt.Add(3 * time.Second)
	if err := repo.CompleteAudit(ctx, audit.ID, results, finishedAt); err != nil {
		t.Fatalf("complete audit: %v", err)
	}

	completed, err := repo.GetAuditByID(ctx, audit.ID)
	if err != nil {
		t.Fatalf("get audit: %v", err)
	}
	if completed.Status != model.AuditStatusCompleted {
		t.Errorf("status = %q, want completed", completed.Status)
	}
	if completed.CompletedAt == nil || !completed.CompletedAt.Equal(finishedAt) {
		t.Errorf("completed at = %v, want %v", completed.CompletedAt, finishedAt)
	}

	var doc struct {
		Score int `json:"score"`
	}
	if err := json.Unmarshal(completed.Results, &doc); err != nil {
		t.Fatalf("results are not valid JSON: %v", err)
	}
	if doc.Score != 87 {
		t.Errorf("results score = %d, want 87", doc.Score)
	}
}

func TestRepository_AuditLifecycleFailed(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	audit := testutil.NewTestAudit(t, testutil.UniqueID("user"))
	if err := repo.CreateAudit(ctx, audit); err != nil {
		t.Fatalf("create audit: %v", err)
	}
	if err := repo.MarkAuditRunning(ctx, audit.ID, time.Now().UTC()); err != nil {
		t.Fatalf("mark running: %v", err)
	}

	finishedAt := time.Now().UTC().Truncate(time.Millisecond)
	if err := repo.FailAudit(ctx, audit.ID, "job timed out after 5m0s", finishedAt); err != nil {
		t.Fatalf("fail audit: %v", err)
	}

	failed, err := repo.GetAuditByID(ctx, audit.ID)
	if err != nil {
		t.Fatalf("get audit: %v", err)
	}
	if failed.Status != model.AuditStatusFailed {
		t.Errorf("status = %q, want failed", failed.Status)
	}
	if failed.ErrorDetail != "job timed out after 5m0s" {
		t.Errorf("error detail = %q, want the failure cause", failed.ErrorDetail)
	}
	if failed.Results != nil {
		t.Error("failed audit should carry no results")
	}
}

func TestRepository_MarkRunningOnlyFromQueued(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	audit := testutil.NewTestAudit(t, testutil.UniqueID("user"))
	if err := repo.CreateAudit(ctx, audit); err != nil {
		t.Fatalf("create audit: %v", err)
	}

	if err := repo.MarkAuditRunning(ctx, audit.ID, time.Now().UTC()); err != nil {
		t.Fatalf("first mark running: %v", err)
	}
	if err := repo.MarkAuditRunning(ctx, audit.ID, time.Now().UTC()); !errors.Is(err, ErrAuditNotFound) {
		t.Errorf("second mark running should find no queued row, got %v", err)
	}
}

func TestRepository_GetUserAudits(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	owner := testutil.UniqueID("owner")
	for i := 0; i < 5; i++ {
		audit := testutil.NewTestAudit(t, owner)
		audit.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Millisecond)
		if err := repo.CreateAudit(ctx, audit); err != nil {
			t.Fatalf("create audit (%d): %v", i, err)
		}
		time.Sleep(1 * time.Millisecond)
	}
	if err := repo.CreateAudit(ctx, testutil.NewTestAudit(t, testutil.UniqueID("other"))); err != nil {
		t.Fatalf("create other audit: %v", err)
	}

	page, total, err := repo.GetUserAudits(ctx, owner, 2, 0)
	if err != nil {
		t.Fatalf("get user audits: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Fatalf("page = %d audits, want 2", len(page))
	}
	if page[0].CreatedAt.Before(page[1].CreatedAt) {
		t.Error("audits should be listed newest first")
	}

	tail, total, err := repo.GetUserAudits(ctx, owner, 10, 4)
	if err != nil {
		t.Fatalf("get user audits tail: %v", err)
	}
	if total != 5 {
		t.Errorf("tail total = %d, want 5", total)
	}
	if len(tail) != 1 {
		t.Errorf("tail = %d audits, want 1", len(tail))
	}

	empty, total, err := repo.GetUserAudits(ctx, "user-nobody", 10, 0)
	if err != nil {
		t.Fatalf("get audits for unknown user: %v", err)
	}
	if total != 0 || len(empty) != 0 {
		t.Errorf("unknown user should have no audits, got %d/%d", len(empty), total)
	}
}

func TestRepository_DeleteAudit(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	audit := testutil.NewTestAudit(t, testutil.UniqueID("user"))
	if err := repo.CreateAudit(ctx, audit); err != nil {
		t.Fatalf("create audit: %v", err)
	}

	if err := repo.DeleteAudit(ctx, audit.ID); err != nil {
		t.Fatalf("delete audit: %v", err)
	}

	if _, err := repo.GetAuditByID(ctx, audit.ID); !errors.Is(err, ErrAuditNotFound) {
		t.Errorf("expected ErrAuditNotFound after delete, got %v", err)
	}
	if err := repo.DeleteAudit(ctx, audit.ID); !errors.Is(err, ErrAuditNotFound) {
		t.Errorf("expected ErrAuditNotFound on double delete, got %v", err)
	}
}
