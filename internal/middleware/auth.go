package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sitegauge/sitegauge/internal/auth"
	"github.com/sitegauge/sitegauge/internal/metrics"
	"github.com/sitegauge/sitegauge/internal/model"
)

const (
	// minAuthDuration is the floor for failed auth responses. All failure
	// paths take at least this long, so an unknown prefix cannot be told
	// apart from a bad secret by timing.
	minAuthDuration = 200 * time.Millisecond
)

// UserSource resolves an API key lookup prefix to candidate users.
type UserSource interface {
	GetUsersByAPIKeyPrefix(ctx context.Context, prefix string) ([]*model.User, error)
}

// AuthCache caches resolved auth contexts between requests.
type AuthCache interface {
	GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error)
	SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger  *slog.Logger
	Users   UserSource
	Cache   AuthCache
	Metrics metrics.Recorder
}

// Auth returns a middleware that authenticates API requests.
// It extracts the API key from the Authorization header, verifies it
// against the stored argon2 hash (through the auth context cache), and
// injects the auth context into the request.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.NewNoop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			fail := func(reason string) {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", reason),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				recorder.IncAPIKeyAuth("failed")
				padAuthFailure(start)
				writeAuthError(w)
			}

			// Extract key from header
			key := extractAPIKey(r)
			if key == "" {
				fail("missing_key")
				return
			}

			// Validate key format
			parsed, err := auth.ParseAPIKey(key)
			if err != nil {
				fail("invalid_format")
				return
			}

			// Check cache first
			cacheKey := auth.QuickHash(key)
			authCtx, _ := cfg.Cache.GetAuthContext(r.Context(), cacheKey)

			if authCtx != nil {
				recorder.IncAPIKeyAuth("cached")
				cfg.Logger.Debug("authentication successful",
					slog.String("user_id", authCtx.UserID),
					slog.String("key_prefix", authCtx.KeyPrefix),
					slog.Bool("cache_hit", true),
					slog.String("request_id", GetRequestID(r.Context())),
				)

				ctx := auth.ContextWithAuth(r.Context(), authCtx)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			// Cache miss - lookup candidate users by prefix
			candidates, err := cfg.Users.GetUsersByAPIKeyPrefix(r.Context(), parsed.Prefix)
			if err != nil {
				cfg.Logger.Error("database error during auth",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				recorder.IncAPIKeyAuth("failed")
				padAuthFailure(start)
				writeAuthError(w)
				return
			}

			// Verify against each candidate (prefixes are not unique)
			var matched *model.User
			for _, u := range candidates {
				ok, err := auth.VerifyPassword(key, u.APIKeyHash)
				if err != nil {
					continue
				}
				if ok {
					matched = u
					break
				}
			}

			if matched == nil {
				fail("invalid_key")
				return
			}

			authCtx = &model.AuthContext{
				UserID:    matched.ID,
				KeyPrefix: matched.APIKeyPrefix,
				Plan:      matched.Plan,
			}

			// Cache the result
			_ = cfg.Cache.SetAuthContext(r.Context(), cacheKey, authCtx)

			recorder.IncAPIKeyAuth("success")
			cfg.Logger.Info("authentication successful",
				slog.String("user_id", authCtx.UserID),
				slog.String("key_prefix", authCtx.KeyPrefix),
				slog.String("plan", authCtx.Plan),
				slog.Bool("cache_hit", false),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			ctx := auth.ContextWithAuth(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// padAuthFailure sleeps until the failure timing floor is reached.
func padAuthFailure(start time.Time) {
	if elapsed := time.Since(start); elapsed < minAuthDuration {
		time.Sleep(minAuthDuration - elapsed)
	}
}

// extractAPIKey extracts the API key from the request.
// Supports both "Authorization: Bearer <key>" and "X-API-Key: <key>" headers.
func extractAPIKey(r *http.Request) string {
	// Try Authorization header first
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
	}

	// Fall back to X-API-Key header
	return r.Header.Get("X-API-Key")
}

// writeAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Invalid or missing API key"}}`))
}
