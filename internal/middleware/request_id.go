// Package middleware provides HTTP middleware components.
package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

// RequestIDHeader is the HTTP header for request ID.
const RequestIDHeader = "X-Request-ID"

// TraceIDHeader is the HTTP header for trace ID.
const TraceIDHeader = "X-Trace-ID"

// Context keys are unexported types so other packages go through the
// Get helpers.
type requestIDKey struct{}
type traceIDKey struct{}

// inboundIDPattern bounds the shape of caller-supplied IDs. Anything else
// is replaced so arbitrary header content never reaches log fields.
var inboundIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// RequestID tags every request with an ID echoed in the response.
// A well-formed inbound X-Request-ID is kept so callers can correlate
// retries; anything else is replaced with a fresh UUID. The trace ID is
// optional and dropped when malformed.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := sanitizeID(r.Header.Get(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		w.Header().Set(RequestIDHeader, requestID)

		if traceID := sanitizeID(r.Header.Get(TraceIDHeader)); traceID != "" {
			ctx = context.WithValue(ctx, traceIDKey{}, traceID)
			w.Header().Set(TraceIDHeader, traceID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sanitizeID returns id when it matches the bounded shape, else "".
func sanitizeID(id string) string {
	if inboundIDPattern.MatchString(id) {
		return id
	}
	return ""
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// GetTraceID retrieves the trace ID from context.
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}
