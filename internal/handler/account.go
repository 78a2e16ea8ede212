package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sitegauge/sitegauge/internal/auth"
	"github.com/sitegauge/sitegauge/internal/cache"
	"github.com/sitegauge/sitegauge/internal/middleware"
	"github.com/sitegauge/sitegauge/internal/model"
	"github.com/sitegauge/sitegauge/internal/quota"
	"github.com/sitegauge/sitegauge/internal/repository"
)

// AccountHandler handles registration, login, key rotation, and usage.
type AccountHandler struct {
	repo      *repository.Repository
	cache     *cache.Cache
	gate      *quota.Gate
	logger    *slog.Logger
	keyLength int
}

// NewAccountHandler creates a new AccountHandler. keyLength is the
// entropy byte count for generated API keys.
func NewAccountHandler(repo *repository.Repository, cache *cache.Cache, gate *quota.Gate, logger *slog.Logger, keyLength int) *AccountHandler {
	return &AccountHandler{
		repo:      repo,
		cache:     cache,
		gate:      gate,
		logger:    logger.With("handler", "account"),
		keyLength: keyLength,
	}
}

// Register handles POST /v1/account/register. Public endpoint.
// The response carries the account's API key in plaintext; it is not
// recoverable afterwards, only replaceable via rotation.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := middleware.ValidateEmail(email); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_EMAIL", "Email address is invalid")
		return
	}

	if err := middleware.ValidatePassword(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PASSWORD", err.Error())
		return
	}

	plan := req.Plan
	if plan == "" {
		plan = model.PlanFree
	}
	if !model.IsValidPlan(plan) {
		writeError(w, http.StatusBadRequest, "INVALID_PLAN", "Unknown plan: "+req.Plan)
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "An internal error occurred")
		return
	}

	key, err := auth.GenerateAPIKey(h.keyLength)
	if err != nil {
		h.logger.Error("failed to generate API key", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "An internal error occurred")
		return
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           ulid.Make().String(),
		Email:        email,
		PasswordHash: passwordHash,
		Plan:         plan,
		AuditCount:   0,
		PeriodStart:  monthStart(now),
		APIKeyHash:   key.Hash,
		APIKeyPrefix: key.Prefix,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "An account with this email already exists")
			return
		}
		h.logger.Error("failed to create user", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "An internal error occurred")
		return
	}

	h.logger.Info("account_registered",
		"user_id", user.ID,
		"plan", user.Plan,
		"key_prefix", user.APIKeyPrefix,
	)

	// Plaintext key is shown once only
	writeJSON(w, http.StatusCreated, model.RegisterResponse{
		User:   user.ToResponse(),
		APIKey: key.Plaintext,
	})
}

// Login handles POST /v1/account/login. Public endpoint; verifies the
// account password and returns the profile. The API key itself is never
// re-shown.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	// Same response for unknown email and wrong password
	user, err := h.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
			return
		}
		h.logger.Error("failed to load user", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "An internal error occurred")
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
		return
	}

	h.logger.Info("account_login", "user_id", user.ID)

	writeJSON(w, http.StatusOK, user.ToResponse())
}

// RotateKey handles POST /v1/account/rotate-key. Replaces the account's
// API key; the old key stops authenticating immediately.
func (h *AccountHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := auth.AuthFromContext(ctx)
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	key, err := auth.GenerateAPIKey(h.keyLength)
	if err != nil {
		h.logger.Error("failed to generate API key", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "An internal error occurred")
		return
	}

	if err := h.repo.UpdateAPIKey(ctx, authCtx.UserID, key.Hash, key.Prefix); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Account no longer exists")
			return
		}
		h.logger.Error("failed to rotate API key", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "An internal error occurred")
		return
	}

	// Drop cached auth contexts so the old key stops working now, not
	// at TTL expiry
	if err := h.cache.InvalidateUserAuthContexts(ctx, authCtx.UserID); err != nil {
		h.logger.Warn("failed to invalidate auth cache", "user_id", authCtx.UserID, "error", err)
	}

	h.logger.Info("api_key_rotated",
		"user_id", authCtx.UserID,
		"old_prefix", authCtx.KeyPrefix,
		"new_prefix", key.Prefix,
	)

	writeJSON(w, http.StatusOK, model.RotateKeyResponse{
		APIKey:       key.Plaintext,
		APIKeyPrefix: key.Prefix,
		RotatedAt:    time.Now().UTC(),
	})
}

// Usage handles GET /v1/account/usage.
func (h *AccountHandler) Usage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := auth.AuthFromContext(ctx)
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	user, err := h.repo.GetUserByID(ctx, authCtx.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Account no longer exists")
			return
		}
		h.logger.Error("failed to load user", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "An internal error occurred")
		return
	}

	decision := h.gate.Admit(user)
	remaining := decision.Limit - decision.Used
	if remaining < 0 {
		remaining = 0
	}

	writeJSON(w, http.StatusOK, model.UsageResponse{
		Plan:        user.Plan,
		Limit:       decision.Limit,
		Used:        decision.Used,
		Remaining:   remaining,
		PeriodStart: user.PeriodStart,
		Features:    model.PlanConfigFor(user.Plan).Features,
	})
}

// monthStart returns the first instant of t's month in UTC. Billing
// periods anchor here; the external reset tick compares against it.
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
