package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/sitegauge/sitegauge/internal/middleware"
	"github.com/sitegauge/sitegauge/internal/model"
	"github.com/sitegauge/sitegauge/internal/testutil"
	"github.com/sitegauge/sitegauge/internal/webhook"
)

func TestWebhookCreate_ListDelete(t *testing.T) {
	ctx, repo, webhookHandler := newWebhookTestEnv(t)

	user := testutil.NewTestUserWithPlan(t, testutil.UniqueEmail("hooks"), model.PlanPro)
	router := newWebhookRouter(webhookHandler, user)

	body := []byte(`{"target_url":"https://203.0.113.9/hooks"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created model.SubscriptionCreateResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected non-empty subscription ID")
	}
	if !strings.HasPrefix(created.Secret, "whs_") {
		t.Fatalf("expected whs_ secret prefix, got %q", created.Secret)
	}
	if !created.Active {
		t.Error("new subscription should be active")
	}
	// Omitted events default to every event type.
	if len(created.Events) != len(model.ValidEventTypes) {
		t.Fatalf("expected %d default events, got %v", len(model.ValidEventTypes), created.Events)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/v1/webhooks", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)

	if listRec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", listRec.Code, listRec.Body.String())
	}
	if bytes.Contains(listRec.Body.Bytes(), []byte(created.Secret)) {
		t.Fatal("secret must not appear after creation")
	}

	var page struct {
		Webhooks []model.SubscriptionResponse `json:"webhooks"`
	}
	if err := json.NewDecoder(listRec.Body).Decode(&page); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(page.Webhooks) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(page.Webhooks))
	}
	if page.Webhooks[0].ID != created.ID {
		t.Fatalf("expected subscription %q, got %q", created.ID, page.Webhooks[0].ID)
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/v1/webhooks/"+created.ID, nil)
	delRec := httptest.NewRecorder()
	router.ServeHTTP(delRec, delReq)

	if delRec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", delRec.Code, delRec.Body.String())
	}

	if _, err := repo.GetSubscription(ctx, created.ID); err == nil {
		t.Fatal("expected subscription gone from storage")
	}
}

func TestWebhookCreate_FeatureGate(t *testing.T) {
	_, _, webhookHandler := newWebhookTestEnv(t)

	user := testutil.NewTestUser(t, testutil.UniqueEmail("free"))
	router := newWebhookRouter(webhookHandler, user)

	body := []byte(`{"target_url":"https://203.0.113.9/hooks"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d: %s", rec.Code, rec.Body.String())
	}

	var apiErr APIError
	if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if apiErr.Error.Code != "FEATURE_NOT_AVAILABLE" {
		t.Fatalf("expected code FEATURE_NOT_AVAILABLE, got %q", apiErr.Error.Code)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/v1/webhooks", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)

	if listRec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for list, got %d", listRec.Code)
	}
}

func TestWebhookCreate_InvalidTarget(t *testing.T) {
	_, _, webhookHandler := newWebhookTestEnv(t)

	user := testutil.NewTestUserWithPlan(t, testutil.UniqueEmail("target"), model.PlanPro)
	router := newWebhookRouter(webhookHandler, user)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{
			name:     "plain http",
			body:     `{"target_url":"http://203.0.113.9/hooks"}`,
			wantCode: "INVALID_URL",
		},
		{
			name:     "non-default port",
			body:     `{"target_url":"https://203.0.113.9:8443/hooks"}`,
			wantCode: "INVALID_URL",
		},
		{
			name:     "localhost",
			body:     `{"target_url":"https://127.0.0.1/hooks"}`,
			wantCode: "INVALID_URL",
		},
		{
			name:     "private network",
			body:     `{"target_url":"https://192.168.1.5/hooks"}`,
			wantCode: "INVALID_URL",
		},
		{
			name:     "url too long",
			body:     `{"target_url":"https://203.0.113.9/` + strings.Repeat("h", middleware.MaxWebhookURLLength) + `"}`,
			wantCode: "INVALID_URL",
		},
		{
			name:     "unknown event type",
			body:     `{"target_url":"https://203.0.113.9/hooks","events":["audit.paused"]}`,
			wantCode: "INVALID_EVENT_TYPE",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/webhooks", bytes.NewReader([]byte(test.body)))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
			}

			var apiErr APIError
			if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if apiErr.Error.Code != test.wantCode {
				t.Fatalf("expected code %q, got %q", test.wantCode, apiErr.Error.Code)
			}
		})
	}
}

func TestWebhookActivate_ResetsFailures(t *testing.T) {
	ctx, repo, webhookHandler := newWebhookTestEnv(t)

	user := testutil.NewTestUserWithPlan(t, testutil.UniqueEmail("revive"), model.PlanPro)
	router := newWebhookRouter(webhookHandler, user)

	sub := testutil.NewTestSubscription(t, user.ID)
	if err := repo.CreateSubscription(ctx, sub); err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	// Exhaust retries until the ceiling auto-disables the subscription.
	ceiling := 3
	for i := 0; i < ceiling; i++ {
		count, disabled, err := repo.RecordExhaustion(ctx, sub.ID, time.Now().UTC(), ceiling)
		if err != nil {
			t.Fatalf("record exhaustion %d: %v", i, err)
		}
		if i == ceiling-1 && !disabled {
			t.Fatalf("expected auto-disable at failure %d", count)
		}
	}

	stored, err := repo.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if stored.Active {
		t.Fatal("subscription should be disabled before reactivation")
	}
	if stored.FailureCount != ceiling {
		t.Fatalf("expected failure count %d, got %d", ceiling, stored.FailureCount)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/"+sub.ID+"/activate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp model.SubscriptionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Active {
		t.Error("reactivated subscription should be active")
	}
	if resp.FailureCount != 0 {
		t.Errorf("reactivation should clear failures, got %d", resp.FailureCount)
	}

	stored, err = repo.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get subscription after activate: %v", err)
	}
	if !stored.Active || stored.FailureCount != 0 {
		t.Fatalf("expected active with 0 failures, got active=%v failures=%d", stored.Active, stored.FailureCount)
	}
}

func TestWebhookDeactivate_KeepsFailures(t *testing.T) {
	ctx, repo, webhookHandler := newWebhookTestEnv(t)

	user := testutil.NewTestUserWithPlan(t, testutil.UniqueEmail("pause"), model.PlanPro)
	router := newWebhookRouter(webhookHandler, user)

	sub := testutil.NewTestSubscription(t, user.ID)
	if err := repo.CreateSubscription(ctx, sub); err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, _, err := repo.RecordExhaustion(ctx, sub.ID, time.Now().UTC(), 10); err != nil {
			t.Fatalf("record exhaustion %d: %v", i, err)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/"+sub.ID+"/deactivate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp model.SubscriptionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Active {
		t.Error("deactivated subscription should be inactive")
	}

	// Pausing preserves the failure history.
	stored, err := repo.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if stored.Active {
		t.Error("subscription should stay inactive")
	}
	if stored.FailureCount != 2 {
		t.Fatalf("expected failure count 2, got %d", stored.FailureCount)
	}
}

func TestWebhookGet_ForeignSubscriptionHidden(t *testing.T) {
	ctx, repo, webhookHandler := newWebhookTestEnv(t)

	owner := testutil.NewTestUserWithPlan(t, testutil.UniqueEmail("owner"), model.PlanPro)
	stranger := testutil.NewTestUserWithPlan(t, testutil.UniqueEmail("stranger"), model.PlanPro)

	sub := testutil.NewTestSubscription(t, owner.ID)
	if err := repo.CreateSubscription(ctx, sub); err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	strangerRouter := newWebhookRouter(webhookHandler, stranger)
	req := httptest.NewRequest(http.MethodGet, "/v1/webhooks/"+sub.ID, nil)
	rec := httptest.NewRecorder()
	strangerRouter.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d: %s", rec.Code, rec.Body.String())
	}

	var apiErr APIError
	if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if apiErr.Error.Code != "WEBHOOK_NOT_FOUND" {
		t.Fatalf("expected code WEBHOOK_NOT_FOUND, got %q", apiErr.Error.Code)
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/v1/webhooks/"+sub.ID, nil)
	delRec := httptest.NewRecorder()
	strangerRouter.ServeHTTP(delRec, delReq)

	if delRec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for foreign delete, got %d", delRec.Code)
	}

	// Still present for the owner.
	ownerRouter := newWebhookRouter(webhookHandler, owner)
	ownerReq := httptest.NewRequest(http.MethodGet, "/v1/webhooks/"+sub.ID, nil)
	ownerRec := httptest.NewRecorder()
	ownerRouter.ServeHTTP(ownerRec, ownerReq)

	if ownerRec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for owner, got %d: %s", ownerRec.Code, ownerRec.Body.String())
	}
}

func TestWebhookCreate_SubscriptionLimit(t *testing.T) {
	ctx, repo, webhookHandler := newWebhookTestEnv(t)

	user := testutil.NewTestUserWithPlan(t, testutil.UniqueEmail("limit"), model.PlanPro)
	router := newWebhookRouter(webhookHandler, user)

	for i := 0; i < maxSubscriptionsPerUser; i++ {
		sub := testutil.NewTestSubscription(t, user.ID)
		sub.ID = fmt.Sprintf("%s-%d", sub.ID, i)
		if err := repo.CreateSubscription(ctx, sub); err != nil {
			t.Fatalf("create subscription %d: %v", i, err)
		}
	}

	body := []byte(`{"target_url":"https://203.0.113.9/hooks"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", rec.Code, rec.Body.String())
	}

	var apiErr APIError
	if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if apiErr.Error.Code != "SUBSCRIPTION_LIMIT" {
		t.Fatalf("expected code SUBSCRIPTION_LIMIT, got %q", apiErr.Error.Code)
	}
}

func newWebhookRouter(h *WebhookHandler, user *model.User) *chi.Mux {
	router := chi.NewRouter()
	router.Use(authInjector(user))
	router.Post("/v1/webhooks", h.Create)
	router.Get("/v1/webhooks", h.List)
	router.Get("/v1/webhooks/{webhookID}", h.Get)
	router.Delete("/v1/webhooks/{webhookID}", h.Delete)
	router.Post("/v1/webhooks/{webhookID}/activate", h.Activate)
	router.Post("/v1/webhooks/{webhookID}/deactivate", h.Deactivate)
	return router
}

func newWebhookTestEnv(t *testing.T) (context.Context, *webhook.Repository, *WebhookHandler) {
	t.Helper()

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	t.Cleanup(pool.Close)

	unlock, err := testutil.AcquireDBLock(ctx, pool)
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetWebhooksSchema(ctx, pool); err != nil {
		t.Fatalf("reset webhooks schema: %v", err)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	repo := webhook.NewRepository(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	webhookHandler := NewWebhookHandler(repo, logger, 32)

	return ctx, repo, webhookHandler
}
