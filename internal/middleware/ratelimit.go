package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sitegauge/sitegauge/internal/auth"
	"github.com/sitegauge/sitegauge/internal/cache"
)

// RateLimiter is the token bucket backend (Redis in production).
type RateLimiter interface {
	CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
	CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter RateLimiter
	// API rate limiting (per user, limits from the plan)
	APIEnabled bool
	// IP rate limiting for the unauthenticated register/login endpoints
	AuthEnabled bool
	AuthRPS     int // Requests per second
	AuthBurst   int
}

// RateLimitAPI returns middleware that rate limits API requests per user.
// The rate and burst come from the user's plan; a plan with
// RequestsPerMinute 0 is unlimited. Must be applied after Auth middleware.
func RateLimitAPI(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.APIEnabled {
				next.ServeHTTP(w, r)
				return
			}

			authCtx := auth.AuthFromContext(r.Context())
			if authCtx == nil {
				// No auth context - should not happen if Auth middleware ran first
				next.ServeHTTP(w, r)
				return
			}

			planCfg := authCtx.RateLimitConfig()
			if planCfg.RequestsPerMinute == 0 {
				// Unlimited plan
				setRateLimitHeaders(w, 0, 0, time.Now())
				next.ServeHTTP(w, r)
				return
			}

			result, err := cfg.Limiter.CheckUserRateLimit(
				r.Context(),
				authCtx.UserID,
				planCfg.RequestsPerMinute,
				planCfg.Burst,
			)
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("user_id", authCtx.UserID),
				)
				// Fail open - allow request
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, planCfg.RequestsPerMinute, result.Remaining, result.ResetAt)

			if !result.Allowed {
				denyRateLimited(w, r, cfg.Logger, "api", result.RetryAfter,
					slog.String("user_id", authCtx.UserID),
					slog.String("plan", authCtx.Plan),
					slog.String("ip", r.RemoteAddr),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitIP returns middleware that rate limits requests per IP.
// Used for the unauthenticated register/login endpoints to slow down
// credential stuffing and account spam.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.AuthEnabled {
				next.ServeHTTP(w, r)
				return
			}

			ip := getClientIP(r)

			result, err := cfg.Limiter.CheckIPRateLimit(
				r.Context(),
				ip,
				cfg.AuthRPS,
				cfg.AuthBurst,
			)
			if err != nil {
				cfg.Logger.Error("IP rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("ip", ip),
				)
				// Fail open - allow request
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				denyRateLimited(w, r, cfg.Logger, "auth", result.RetryAfter,
					slog.String("ip", ip),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// setRateLimitHeaders sets standard rate limit response headers.
func setRateLimitHeaders(w http.ResponseWriter, limit int, remaining int64, resetAt time.Time) {
	if limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
	}
}

// denyRateLimited logs the rejection and writes the 429 envelope with a
// Retry-After header. scope distinguishes plan buckets from IP buckets
// in the logs; extra attrs identify the bucket owner.
func denyRateLimited(w http.ResponseWriter, r *http.Request, logger *slog.Logger, scope string, retryAfter time.Duration, extra ...slog.Attr) {
	seconds := int(retryAfter.Seconds())

	attrs := append([]slog.Attr{
		slog.String("type", scope),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.Int64("retry_after_seconds", int64(seconds)),
		slog.String("request_id", GetRequestID(r.Context())),
	}, extra...)
	logger.LogAttrs(r.Context(), slog.LevelWarn, "rate limit exceeded", attrs...)

	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	msg := fmt.Sprintf(`{"error":{"code":"RATE_LIMITED","message":"Rate limit exceeded. Retry after %d seconds."}}`, seconds)
	_, _ = w.Write([]byte(msg))
}

// getClientIP resolves the client address used for bucket keying.
// Proxy headers win over the socket address; the socket port is
// stripped so a reconnect does not grant a fresh bucket.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
