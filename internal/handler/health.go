package handler

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	checks map[string]HealthChecker
}

// NewHealthHandler creates a HealthHandler over the Postgres and Redis
// dependencies. Pass nil for either if it is not configured.
func NewHealthHandler(db, cache HealthChecker) *HealthHandler {
	return &HealthHandler{
		checks: map[string]HealthChecker{
			"postgres": db,
			"redis":    cache,
		},
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is the liveness probe: 200 whenever the process serves HTTP.
// No dependency checks.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz is the readiness probe: 200 only when every dependency
// answers a ping, 503 otherwise so the load balancer stops routing.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	healthy := true

	for name, checker := range h.checks {
		if checker == nil {
			results[name] = "not configured"
			continue
		}
		if err := checker.Ping(ctx); err != nil {
			results[name] = "error: " + err.Error()
			healthy = false
		} else {
			results[name] = "ok"
		}
	}

	status := "ok"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, HealthResponse{
		Status: status,
		Checks: results,
	})
}
