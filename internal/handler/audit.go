package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sitegauge/sitegauge/internal/auth"
	"github.com/sitegauge/sitegauge/internal/middleware"
	"github.com/sitegauge/sitegauge/internal/model"
	"github.com/sitegauge/sitegauge/internal/quota"
	"github.com/sitegauge/sitegauge/internal/safeurl"
	"github.com/sitegauge/sitegauge/internal/service"
)

// AuditHandler handles HTTP requests for audit operations.
type AuditHandler struct {
	svc    *service.AuditService
	logger *slog.Logger
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(svc *service.AuditService, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		svc:    svc,
		logger: logger.With("handler", "audit"),
	}
}

// Create handles POST /v1/audits.
// Admitted submissions are acknowledged with 202 and run asynchronously.
func (h *AuditHandler) Create(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req model.AuditCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	resp, err := h.svc.SubmitAudit(r.Context(), service.SubmitAuditInput{
		UserID:     authCtx.UserID,
		URL:        req.URL,
		ClientName: req.ClientName,
		Options:    req.Options,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("audit_submitted",
		"audit_id", resp.AuditID,
		"user_id", authCtx.UserID,
		"target_host", safeurl.ExtractHost(req.URL),
		"pages", req.Options.PageCount(),
	)

	writeJSON(w, http.StatusAccepted, resp)
}

// Get handles GET /v1/audits/{auditID}.
func (h *AuditHandler) Get(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	auditID := chi.URLParam(r, "auditID")
	if auditID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "Audit ID is required")
		return
	}

	resp, err := h.svc.GetAudit(r.Context(), authCtx.UserID, auditID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// List handles GET /v1/audits.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	query := r.URL.Query()

	limit := 20
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	offset := 0
	if o := query.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed > 0 {
			offset = parsed
		}
	}

	resp, err := h.svc.ListAudits(r.Context(), service.ListAuditsInput{
		UserID: authCtx.UserID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /v1/audits/{auditID}.
func (h *AuditHandler) Delete(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	auditID := chi.URLParam(r, "auditID")
	if auditID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "Audit ID is required")
		return
	}

	if err := h.svc.DeleteAudit(r.Context(), authCtx.UserID, auditID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("audit_deleted", "audit_id", auditID, "user_id", authCtx.UserID)

	w.WriteHeader(http.StatusNoContent)
}

// handleServiceError maps service errors to HTTP responses.
func (h *AuditHandler) handleServiceError(w http.ResponseWriter, err error) {
	var budgetErr *service.PageBudgetError
	var quotaErr *quota.ExceededError

	switch {
	case errors.Is(err, service.ErrAuditNotFound):
		writeError(w, http.StatusNotFound, "AUDIT_NOT_FOUND", "Audit not found")
	case errors.Is(err, service.ErrUserNotFound):
		// Authenticated context for a deleted account
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Account no longer exists")
	case errors.As(err, &quotaErr):
		writeError(w, http.StatusTooManyRequests, "QUOTA_EXCEEDED",
			"Monthly audit quota exceeded ("+strconv.Itoa(quotaErr.Used)+"/"+strconv.Itoa(quotaErr.Limit)+")")
	case errors.As(err, &budgetErr):
		writeError(w, http.StatusUnprocessableEntity, "PAGE_BUDGET_EXCEEDED", budgetErr.Error())
	case errors.Is(err, middleware.ErrAuditURLInvalid):
		writeError(w, http.StatusBadRequest, "INVALID_URL", "Audit URL is invalid")
	case errors.Is(err, middleware.ErrAuditURLTooLong):
		writeError(w, http.StatusBadRequest, "URL_TOO_LONG", "Audit URL exceeds maximum length")
	case errors.Is(err, middleware.ErrAuditURLUnsafe):
		writeError(w, http.StatusBadRequest, "UNSAFE_URL", "Audit URL uses an unsafe scheme")
	case errors.Is(err, middleware.ErrClientNameInvalid), errors.Is(err, middleware.ErrClientNameTooLong):
		writeError(w, http.StatusBadRequest, "INVALID_CLIENT_NAME", "Client name is invalid")
	case errors.Is(err, middleware.ErrTooManyPages):
		writeError(w, http.StatusBadRequest, "TOO_MANY_PAGES", "Too many page entries")
	case errors.Is(err, middleware.ErrPageEntryInvalid):
		writeError(w, http.StatusBadRequest, "INVALID_PAGE_ENTRY", "A page entry is invalid")
	case errors.Is(err, safeurl.ErrLocalhostBlocked), errors.Is(err, safeurl.ErrPrivateIP),
		errors.Is(err, safeurl.ErrInvalidScheme), errors.Is(err, safeurl.ErrInvalidURL),
		errors.Is(err, safeurl.ErrEmptyHost), errors.Is(err, safeurl.ErrInvalidPort):
		writeError(w, http.StatusBadRequest, "UNSAFE_URL", "Audit URL targets a blocked address")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "An internal error occurred")
	}
}
