// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sitegauge/sitegauge/internal/cache"
	"github.com/sitegauge/sitegauge/internal/metrics"
	"github.com/sitegauge/sitegauge/internal/middleware"
	"github.com/sitegauge/sitegauge/internal/model"
	"github.com/sitegauge/sitegauge/internal/queue"
	"github.com/sitegauge/sitegauge/internal/quota"
	"github.com/sitegauge/sitegauge/internal/repository"
	"github.com/sitegauge/sitegauge/internal/safeurl"
)

// Service errors.
var (
	ErrAuditNotFound = errors.New("audit not found")
	ErrUserNotFound  = errors.New("user not found")
)

// PageBudgetError reports a submission asking for more pages than the
// caller's plan covers.
type PageBudgetError struct {
	Limit     int
	Requested int
}

func (e *PageBudgetError) Error() string {
	return fmt.Sprintf("audit covers %d pages, plan allows %d", e.Requested, e.Limit)
}

// AuditService handles audit submission and retrieval.
type AuditService struct {
	repo    *repository.Repository
	cache   *cache.Cache
	queue   *queue.Queue
	gate    *quota.Gate
	metrics metrics.Recorder
}

// NewAuditService creates a new AuditService.
func NewAuditService(repo *repository.Repository, cache *cache.Cache, q *queue.Queue, gate *quota.Gate, recorder metrics.Recorder) *AuditService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AuditService{
		repo:    repo,
		cache:   cache,
		queue:   q,
		gate:    gate,
		metrics: recorder,
	}
}

// SubmitAuditInput defines input for submitting an audit.
type SubmitAuditInput struct {
	UserID     string
	URL        string
	ClientName string
	Options    model.AuditOptions
}

// SubmitAudit validates a submission, admits it against the caller's
// monthly quota, persists the audit in queued state, and hands it to the
// job queue. The acknowledged audit runs asynchronously.
func (s *AuditService) SubmitAudit(ctx context.Context, input SubmitAuditInput) (*model.AuditCreateResponse, error) {
	if err := s.validateSubmission(input); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	// Per-plan page budget (target URL plus extra pages)
	cfg := model.PlanConfigFor(user.Plan)
	if pages := input.Options.PageCount(); pages > cfg.MaxURLs {
		return nil, &PageBudgetError{Limit: cfg.MaxURLs, Requested: pages}
	}

	// Quota gate: only completed audits count, so a rejected or failed
	// submission never consumes quota.
	decision := s.gate.Admit(user)
	if err := decision.Err(); err != nil {
		s.metrics.IncQuotaRejected()
		return nil, err
	}

	audit := &model.Audit{
		ID:         ulid.Make().String(),
		UserID:     user.ID,
		URL:        input.URL,
		ClientName: input.ClientName,
		Status:     model.AuditStatusQueued,
		Options:    input.Options,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.CreateAudit(ctx, audit); err != nil {
		return nil, fmt.Errorf("failed to create audit: %w", err)
	}

	// Submit only after the row exists; workers mark it running by ID.
	s.queue.Submit(queue.Job{
		AuditID:     audit.ID,
		UserID:      audit.UserID,
		URL:         audit.URL,
		Options:     audit.Options,
		SubmittedAt: audit.CreatedAt,
	})

	return &model.AuditCreateResponse{
		AuditID: audit.ID,
		Status:  model.AuditStatusQueued,
	}, nil
}

// GetAudit retrieves an audit by ID, scoped to its owner. Audits owned by
// other users are reported as not found.
func (s *AuditService) GetAudit(ctx context.Context, userID, auditID string) (*model.AuditResponse, error) {
	// Step 1: Try cache
	cached, err := s.cache.GetAudit(ctx, userID, auditID)
	if err == nil {
		return cached, nil
	}

	// Step 2: Check negative cache; Redis errors fall through to the DB
	if errors.Is(err, cache.ErrCacheMiss) {
		isNegative, _ := s.cache.IsNegativelyCached(ctx, userID, auditID)
		if isNegative {
			return nil, ErrAuditNotFound
		}
	}

	// Step 3: DB lookup
	audit, err := s.repo.GetAuditByID(ctx, auditID)
	if err != nil {
		if errors.Is(err, repository.ErrAuditNotFound) {
			_ = s.cache.SetNegativeCache(ctx, userID, auditID)
			return nil, ErrAuditNotFound
		}
		return nil, err
	}

	// Ownership check: a foreign audit is indistinguishable from a
	// missing one, including in the negative cache.
	if audit.UserID != userID {
		_ = s.cache.SetNegativeCache(ctx, userID, auditID)
		return nil, ErrAuditNotFound
	}

	// Step 4: Backfill cache
	resp := audit.ToResponse()
	if err := s.cache.SetAudit(ctx, userID, &resp); err != nil {
		_ = err // Log but don't fail
	}

	return &resp, nil
}

// ListAuditsInput defines input for listing audits.
type ListAuditsInput struct {
	UserID string
	Limit  int
	Offset int
}

// ListAudits retrieves a page of the caller's audits, newest first.
func (s *AuditService) ListAudits(ctx context.Context, input ListAuditsInput) (*model.AuditListResponse, error) {
	// Set defaults
	if input.Limit <= 0 || input.Limit > 100 {
		input.Limit = 20
	}
	if input.Offset < 0 {
		input.Offset = 0
	}

	audits, total, err := s.repo.GetUserAudits(ctx, input.UserID, input.Limit, input.Offset)
	if err != nil {
		return nil, err
	}

	resp := &model.AuditListResponse{
		Audits: make([]model.AuditResponse, 0, len(audits)),
		Limit:  input.Limit,
		Offset: input.Offset,
		Total:  total,
	}
	for _, audit := range audits {
		resp.Audits = append(resp.Audits, audit.ToResponse())
	}

	return resp, nil
}

// DeleteAudit removes an audit owned by the caller. Queued and running
// audits may be deleted; the worker's final status write then fails
// against the missing row and the result webhook is suppressed.
func (s *AuditService) DeleteAudit(ctx context.Context, userID, auditID string) error {
	audit, err := s.repo.GetAuditByID(ctx, auditID)
	if err != nil {
		if errors.Is(err, repository.ErrAuditNotFound) {
			return ErrAuditNotFound
		}
		return err
	}

	if audit.UserID != userID {
		return ErrAuditNotFound
	}

	if err := s.repo.DeleteAudit(ctx, auditID); err != nil {
		if errors.Is(err, repository.ErrAuditNotFound) {
			return ErrAuditNotFound
		}
		return err
	}

	// Invalidate cache
	if err := s.cache.DeleteAudit(ctx, userID, auditID); err != nil {
		_ = err // Log but don't fail
	}

	return nil
}

// validateSubmission rejects malformed or unsafe submissions before any
// database work.
func (s *AuditService) validateSubmission(input SubmitAuditInput) error {
	if err := middleware.ValidateAuditURL(input.URL); err != nil {
		return err
	}

	if err := middleware.ValidateClientName(input.ClientName); err != nil {
		return err
	}

	if err := middleware.ValidatePages(input.Options.Pages); err != nil {
		return err
	}

	// SSRF guard: audits may target plain HTTP and odd ports, but never
	// loopback, private, or link-local addresses.
	return safeurl.Validate(input.URL, safeurl.AuditPolicy)
}
