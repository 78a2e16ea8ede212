package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sitegauge/sitegauge/internal/auth"
	"github.com/sitegauge/sitegauge/internal/cache"
	"github.com/sitegauge/sitegauge/internal/model"
)

type fakeRateLimiter struct {
	result *cache.RateLimitResult
	err    error

	userCalls int
	ipCalls   int
	lastKey   string
	lastRate  int
	lastBurst int
}

func (f *fakeRateLimiter) CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*cache.RateLimitResult, error) {
	f.userCalls++
	f.lastKey = userID
	f.lastRate = ratePerMinute
	f.lastBurst = burst
	return f.result, f.err
}

func (f *fakeRateLimiter) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*cache.RateLimitResult, error) {
	f.ipCalls++
	f.lastKey = ip
	f.lastRate = ratePerSecond
	f.lastBurst = burst
	return f.result, f.err
}

// runRateLimitAPI sends one request through RateLimitAPI, optionally with an
// auth context for the given plan.
func runRateLimitAPI(cfg RateLimitConfig, plan string) (*httptest.ResponseRecorder, bool) {
	nextCalled := false
	handler := RateLimitAPI(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/audits", nil)
	if plan != "" {
		ctx := auth.ContextWithAuth(req.Context(), &model.AuthContext{
			UserID: "user-rl-test",
			Plan:   plan,
		})
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, nextCalled
}

func TestRateLimitAPI_Allowed(t *testing.T) {
	limiter := &fakeRateLimiter{result: &cache.RateLimitResult{
		Allowed:   true,
		Remaining: 42,
		ResetAt:   time.Now().Add(time.Minute),
	}}
	cfg := RateLimitConfig{Logger: discardLogger(), Limiter: limiter, APIEnabled: true}

	rec, nextCalled := runRateLimitAPI(cfg, model.PlanPro)

	if !nextCalled {
		t.Fatal("next handler not called for allowed request")
	}
	if limiter.userCalls != 1 {
		t.Errorf("limiter calls = %d, want 1", limiter.userCalls)
	}
	if limiter.lastKey != "user-rl-test" {
		t.Errorf("limiter key = %q, want user ID", limiter.lastKey)
	}
	if limiter.lastRate != 600 || limiter.lastBurst != 50 {
		t.Errorf("limiter rate/burst = %d/%d, want pro plan 600/50", limiter.lastRate, limiter.lastBurst)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "600" {
		t.Errorf("X-RateLimit-Limit = %q, want 600", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "42" {
		t.Errorf("X-RateLimit-Remaining = %q, want 42", got)
	}
}

func TestRateLimitAPI_Denied(t *testing.T) {
	limiter := &fakeRateLimiter{result: &cache.RateLimitResult{
		Allowed:    false,
		Remaining:  0,
		ResetAt:    time.Now().Add(30 * time.Second),
		RetryAfter: 30 * time.Second,
	}}
	cfg := RateLimitConfig{Logger: discardLogger(), Limiter: limiter, APIEnabled: true}

	rec, nextCalled := runRateLimitAPI(cfg, model.PlanFree)

	if nextCalled {
		t.Error("next handler called for denied request")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q, want 30", got)
	}
	if !strings.Contains(rec.Body.String(), `"code":"RATE_LIMITED"`) {
		t.Errorf("body = %s, want RATE_LIMITED error", rec.Body.String())
	}
}

func TestRateLimitAPI_UnlimitedPlan(t *testing.T) {
	limiter := &fakeRateLimiter{}
	cfg := RateLimitConfig{Logger: discardLogger(), Limiter: limiter, APIEnabled: true}

	rec, nextCalled := runRateLimitAPI(cfg, model.PlanEnterprise)

	if !nextCalled {
		t.Fatal("next handler not called for unlimited plan")
	}
	if limiter.userCalls != 0 {
		t.Errorf("limiter calls = %d, want 0 for unlimited plan", limiter.userCalls)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "" {
		t.Errorf("X-RateLimit-Limit = %q, want unset for unlimited plan", got)
	}
}

func TestRateLimitAPI_FailsOpen(t *testing.T) {
	limiter := &fakeRateLimiter{err: errors.New("redis unreachable")}
	cfg := RateLimitConfig{Logger: discardLogger(), Limiter: limiter, APIEnabled: true}

	_, nextCalled := runRateLimitAPI(cfg, model.PlanFree)

	if !nextCalled {
		t.Error("next handler not called when limiter errors; should fail open")
	}
}

func TestRateLimitAPI_Disabled(t *testing.T) {
	limiter := &fakeRateLimiter{}
	cfg := RateLimitConfig{Logger: discardLogger(), Limiter: limiter, APIEnabled: false}

	_, nextCalled := runRateLimitAPI(cfg, model.PlanFree)

	if !nextCalled {
		t.Error("next handler not called when limiting disabled")
	}
	if limiter.userCalls != 0 {
		t.Errorf("limiter calls = %d, want 0 when disabled", limiter.userCalls)
	}
}

func TestRateLimitAPI_NoAuthContext(t *testing.T) {
	limiter := &fakeRateLimiter{}
	cfg := RateLimitConfig{Logger: discardLogger(), Limiter: limiter, APIEnabled: true}

	_, nextCalled := runRateLimitAPI(cfg, "")

	if !nextCalled {
		t.Error("next handler not called without auth context")
	}
	if limiter.userCalls != 0 {
		t.Errorf("limiter calls = %d, want 0 without auth context", limiter.userCalls)
	}
}

func TestRateLimitIP_Denied(t *testing.T) {
	limiter := &fakeRateLimiter{result: &cache.RateLimitResult{
		Allowed:    false,
		RetryAfter: 5 * time.Second,
	}}
	cfg := RateLimitConfig{
		Logger:      discardLogger(),
		Limiter:     limiter,
		AuthEnabled: true,
		AuthRPS:     5,
		AuthBurst:   10,
	}

	handler := RateLimitIP(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler called for denied request")
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if limiter.lastKey != "203.0.113.9" {
		t.Errorf("limiter key = %q, want client IP from X-Forwarded-For", limiter.lastKey)
	}
	if limiter.lastRate != 5 || limiter.lastBurst != 10 {
		t.Errorf("limiter rate/burst = %d/%d, want 5/10", limiter.lastRate, limiter.lastBurst)
	}
}

func TestRateLimitIP_Allowed(t *testing.T) {
	limiter := &fakeRateLimiter{result: &cache.RateLimitResult{Allowed: true, Remaining: 9}}
	cfg := RateLimitConfig{
		Logger:      discardLogger(),
		Limiter:     limiter,
		AuthEnabled: true,
		AuthRPS:     5,
		AuthBurst:   10,
	}

	nextCalled := false
	handler := RateLimitIP(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !nextCalled {
		t.Error("next handler not called for allowed request")
	}
	if limiter.ipCalls != 1 {
		t.Errorf("limiter calls = %d, want 1", limiter.ipCalls)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xri        string
		remoteAddr string
		want       string
	}{
		{
			name:       "X-Forwarded-For single",
			xff:        "203.0.113.5",
			remoteAddr: "10.0.0.1:1234",
			want:       "203.0.113.5",
		},
		{
			name:       "X-Forwarded-For chain takes first",
			xff:        "203.0.113.5,198.51.100.2,10.0.0.1",
			remoteAddr: "10.0.0.1:1234",
			want:       "203.0.113.5",
		},
		{
			name:       "X-Real-IP fallback",
			xri:        "198.51.100.7",
			remoteAddr: "10.0.0.1:1234",
			want:       "198.51.100.7",
		},
		{
			name:       "RemoteAddr fallback strips port",
			remoteAddr: "192.0.2.33:5678",
			want:       "192.0.2.33",
		},
		{
			name:       "RemoteAddr without port kept as is",
			remoteAddr: "192.0.2.33",
			want:       "192.0.2.33",
		},
		{
			name:       "IPv6 RemoteAddr strips brackets and port",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}

			got := getClientIP(req)
			if got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
