package middleware

import (
	"net/http"
)

// SecurityConfig holds configuration for the security header middleware.
type SecurityConfig struct {
	// IsDevelopment disables HSTS so local plain-HTTP setups keep working.
	IsDevelopment bool
}

// DefaultSecurityConfig returns production settings.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		IsDevelopment: false,
	}
}

// staticSecurityHeaders are applied to every response. The API serves
// JSON only, so the browser-facing policies can be maximally strict:
// nothing embeds these responses, nothing scripts against them.
var staticSecurityHeaders = map[string]string{
	"X-Content-Type-Options":       "nosniff",
	"X-Frame-Options":              "DENY",
	"X-XSS-Protection":             "0",
	"Referrer-Policy":              "strict-origin-when-cross-origin",
	"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
	"Permissions-Policy":           "geolocation=(), microphone=(), camera=(), payment=(), usb=()",
	"Cross-Origin-Opener-Policy":   "same-origin",
	"Cross-Origin-Resource-Policy": "same-origin",
	"Cache-Control":                "no-store",
}

// Security returns a middleware that applies security headers to all
// responses. Apply it early in the chain so error paths get the
// headers too. HSTS (one year, includeSubDomains, preload) is added
// only outside development.
func Security(cfg SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for name, value := range staticSecurityHeaders {
				h.Set(name, value)
			}
			if !cfg.IsDevelopment {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
			}
			h.Del("Server")

			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize returns a middleware that rejects oversized request
// bodies. A declared Content-Length over the limit is refused up
// front; bodies without one are capped by MaxBytesReader, which
// closes the connection once the limit is crossed mid-read.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.ContentLength > maxBytes {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				_, _ = w.Write([]byte(`{"error":{"code":"PAYLOAD_TOO_LARGE","message":"Request body too large"}}`))
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			next.ServeHTTP(w, r)
		})
	}
}
