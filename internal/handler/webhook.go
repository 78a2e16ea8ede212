package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/sitegauge/sitegauge/internal/auth"
	"github.com/sitegauge/sitegauge/internal/middleware"
	"github.com/sitegauge/sitegauge/internal/model"
	"github.com/sitegauge/sitegauge/internal/safeurl"
	"github.com/sitegauge/sitegauge/internal/webhook"
)

// maxSubscriptionsPerUser caps active plus inactive subscriptions per
// account. Delivery fans out to every matching subscription, so the cap
// bounds the per-event work.
const maxSubscriptionsPerUser = 10

// WebhookHandler handles webhook subscription management endpoints.
type WebhookHandler struct {
	repo         *webhook.Repository
	logger       *slog.Logger
	secretLength int
}

// NewWebhookHandler creates a new webhook handler. secretLength is the
// entropy byte count for generated signing secrets; non-positive values
// fall back to the signer default.
func NewWebhookHandler(repo *webhook.Repository, logger *slog.Logger, secretLength int) *WebhookHandler {
	return &WebhookHandler{
		repo:         repo,
		logger:       logger.With("handler", "webhook"),
		secretLength: secretLength,
	}
}

// requireWebhooks authorizes the request and checks the plan's webhook
// feature. Writes the error response and returns nil when the caller
// may not manage subscriptions.
func (h *WebhookHandler) requireWebhooks(w http.ResponseWriter, r *http.Request) *model.AuthContext {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return nil
	}

	if !authCtx.HasFeature(model.FeatureWebhooks) {
		writeError(w, http.StatusForbidden, "FEATURE_NOT_AVAILABLE",
			"Webhooks are not included in the "+authCtx.Plan+" plan")
		return nil
	}

	return authCtx
}

// ownedSubscription loads the subscription from the URL and verifies
// ownership. A foreign subscription reads as 404 to prevent enumeration.
func (h *WebhookHandler) ownedSubscription(w http.ResponseWriter, r *http.Request, authCtx *model.AuthContext) *model.Subscription {
	id := chi.URLParam(r, "webhookID")
	sub, err := h.repo.GetSubscription(r.Context(), id)
	if err != nil {
		if errors.Is(err, webhook.ErrSubscriptionNotFound) {
			writeError(w, http.StatusNotFound, "WEBHOOK_NOT_FOUND", "Webhook not found")
			return nil
		}
		h.logger.Error("failed to get subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "An internal error occurred")
		return nil
	}

	if sub.UserID != authCtx.UserID {
		writeError(w, http.StatusNotFound, "WEBHOOK_NOT_FOUND", "Webhook not found")
		return nil
	}

	return sub
}

// Create handles POST /v1/webhooks.
func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := h.requireWebhooks(w, r)
	if authCtx == nil {
		return
	}

	var req model.SubscriptionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := middleware.ValidateWebhookURL(req.TargetURL); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_URL", "Webhook URL is invalid")
		return
	}

	// Subscriber endpoints must be public HTTPS on the default port
	if err := safeurl.Validate(req.TargetURL, safeurl.WebhookPolicy); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_URL", "Webhook URL must be a public HTTPS endpoint")
		return
	}

	events := req.Events
	if len(events) == 0 {
		events = model.ValidEventTypes
	}
	for _, et := range events {
		if !model.IsValidEventType(et) {
			writeError(w, http.StatusBadRequest, "INVALID_EVENT_TYPE", "Invalid event type: "+string(et))
			return
		}
	}

	count, err := h.repo.CountSubscriptionsByUser(ctx, authCtx.UserID)
	if err != nil {
		h.logger.Error("failed to count subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "An internal error occurred")
		return
	}
	if count >= maxSubscriptionsPerUser {
		writeError(w, http.StatusUnprocessableEntity, "SUBSCRIPTION_LIMIT",
			"Subscription limit reached; delete an existing webhook first")
		return
	}

	secret, err := webhook.GenerateSecret(h.secretLength)
	if err != nil {
		h.logger.Error("failed to generate secret", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "An internal error occurred")
		return
	}

	now := time.Now().UTC()
	sub := &model.Subscription{
		ID:        ulid.Make().String(),
		UserID:    authCtx.UserID,
		TargetURL: req.TargetURL,
		Secret:    secret,
		Events:    events,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.repo.CreateSubscription(ctx, sub); err != nil {
		h.logger.Error("failed to create subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "An internal error occurred")
		return
	}

	h.logger.Info("webhook_created",
		"webhook_id", sub.ID,
		"user_id", authCtx.UserID,
		"target_host", safeurl.ExtractHost(sub.TargetURL),
		"events", len(sub.Events),
	)

	// Return with secret (only shown once!)
	writeJSON(w, http.StatusCreated, model.SubscriptionCreateResponse{
		SubscriptionResponse: sub.ToResponse(),
		Secret:               secret,
	})
}

// List handles GET /v1/webhooks.
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	authCtx := h.requireWebhooks(w, r)
	if authCtx == nil {
		return
	}

	subs, err := h.repo.ListSubscriptionsByUser(r.Context(), authCtx.UserID)
	if err != nil {
		h.logger.Error("failed to list subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "An internal error occurred")
		return
	}

	resp := make([]model.SubscriptionResponse, len(subs))
	for i, sub := range subs {
		resp[i] = sub.ToResponse()
	}

	writeJSON(w, http.StatusOK, map[string]any{"webhooks": resp})
}

// Get handles GET /v1/webhooks/{webhookID}.
func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	authCtx := h.requireWebhooks(w, r)
	if authCtx == nil {
		return
	}

	sub := h.ownedSubscription(w, r, authCtx)
	if sub == nil {
		return
	}

	writeJSON(w, http.StatusOK, sub.ToResponse())
}

// Delete handles DELETE /v1/webhooks/{webhookID}.
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	authCtx := h.requireWebhooks(w, r)
	if authCtx == nil {
		return
	}

	sub := h.ownedSubscription(w, r, authCtx)
	if sub == nil {
		return
	}

	if err := h.repo.DeleteSubscription(r.Context(), sub.ID); err != nil {
		h.logger.Error("failed to delete subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "An internal error occurred")
		return
	}

	h.logger.Info("webhook_deleted", "webhook_id", sub.ID, "user_id", authCtx.UserID)

	w.WriteHeader(http.StatusNoContent)
}

// Activate handles POST /v1/webhooks/{webhookID}/activate.
// Reactivation is the explicit owner reset: it clears the failure
// counter accumulated before an auto-disable.
func (h *WebhookHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := h.requireWebhooks(w, r)
	if authCtx == nil {
		return
	}

	sub := h.ownedSubscription(w, r, authCtx)
	if sub == nil {
		return
	}

	if err := h.repo.Reactivate(ctx, sub.ID); err != nil {
		h.logger.Error("failed to reactivate subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "An internal error occurred")
		return
	}

	h.logger.Info("webhook_reactivated",
		"webhook_id", sub.ID,
		"user_id", authCtx.UserID,
		"prior_failures", sub.FailureCount,
	)

	sub.Active = true
	sub.FailureCount = 0
	writeJSON(w, http.StatusOK, sub.ToResponse())
}

// Deactivate handles POST /v1/webhooks/{webhookID}/deactivate.
// Pausing keeps the failure counter; only Activate resets it.
func (h *WebhookHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := h.requireWebhooks(w, r)
	if authCtx == nil {
		return
	}

	sub := h.ownedSubscription(w, r, authCtx)
	if sub == nil {
		return
	}

	if err := h.repo.Deactivate(ctx, sub.ID); err != nil {
		h.logger.Error("failed to deactivate subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "An internal error occurred")
		return
	}

	h.logger.Info("webhook_deactivated", "webhook_id", sub.ID, "user_id", authCtx.UserID)

	sub.Active = false
	writeJSON(w, http.StatusOK, sub.ToResponse())
}
