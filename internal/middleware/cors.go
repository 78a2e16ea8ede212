package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds CORS configuration options.
type CORSConfig struct {
	// AllowedOrigins lists origins allowed to make cross-origin
	// requests. Entries may be exact ("https://app.sitegauge.io"),
	// wildcard subdomains ("*.sitegauge.io"), or "*" for any origin.
	// Empty means no cross-origin access.
	AllowedOrigins []string

	// AllowedMethods specifies the allowed HTTP methods.
	AllowedMethods []string

	// AllowedHeaders specifies the allowed request headers.
	AllowedHeaders []string

	// ExposedHeaders specifies which response headers the browser can
	// read.
	ExposedHeaders []string

	// AllowCredentials permits cookies and Authorization on
	// cross-origin requests. Never combine with a "*" origin.
	AllowCredentials bool

	// MaxAge is how long (seconds) browsers may cache the preflight.
	MaxAge int
}

// DefaultCORSConfig returns production-safe CORS defaults: no origins
// until configured, the API's own request and rate-limit headers
// allowed and exposed.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Content-Type",
			"Authorization",
			"X-API-Key",
			"X-Request-ID",
			"Accept",
			"Accept-Language",
		},
		ExposedHeaders: []string{
			"X-Request-ID",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
		},
		AllowCredentials: false,
		MaxAge:           86400,
	}
}

// originPolicy is the compiled form of AllowedOrigins: exact matches
// in a map, wildcard entries reduced to their domain suffixes.
type originPolicy struct {
	exact    map[string]bool
	suffixes []string
}

func compileOriginPolicy(origins []string) originPolicy {
	p := originPolicy{exact: make(map[string]bool, len(origins))}
	for _, origin := range origins {
		lower := strings.ToLower(origin)
		if rest, ok := strings.CutPrefix(lower, "*"); ok {
			// "*.sitegauge.io" keeps ".sitegauge.io"
			p.suffixes = append(p.suffixes, rest)
			continue
		}
		p.exact[lower] = true
	}
	return p
}

// allows reports whether the Origin header value matches the policy.
// Matching is case-insensitive. A wildcard suffix requires a scheme
// and at least one subdomain label in front of it, so "*.sitegauge.io"
// matches "https://staging.sitegauge.io" but neither
// "https://evilsitegauge.io" nor "https://.sitegauge.io".
func (p originPolicy) allows(origin string) bool {
	lower := strings.ToLower(origin)
	if p.exact[lower] {
		return true
	}
	for _, suffix := range p.suffixes {
		if !strings.HasSuffix(lower, suffix) {
			continue
		}
		head := strings.TrimSuffix(lower, suffix)
		if idx := strings.Index(head, "://"); idx >= 0 && len(head) > idx+3 {
			return true
		}
	}
	return false
}

// CORS returns a middleware that handles cross-origin requests,
// including preflights. Disallowed origins get no CORS headers (the
// browser blocks the response); disallowed preflights get 403.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	policy := compileOriginPolicy(cfg.AllowedOrigins)

	methodsStr := strings.Join(cfg.AllowedMethods, ", ")
	headersStr := strings.Join(cfg.AllowedHeaders, ", ")
	exposedStr := strings.Join(cfg.ExposedHeaders, ", ")
	maxAgeStr := ""
	if cfg.MaxAge > 0 {
		maxAgeStr = strconv.Itoa(cfg.MaxAge)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Absent Origin means same-origin; nothing to negotiate
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Responses differ per origin; caches must key on it
			w.Header().Add("Vary", "Origin")

			if !policy.allows(origin) {
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			if exposedStr != "" {
				w.Header().Set("Access-Control-Expose-Headers", exposedStr)
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", methodsStr)
				w.Header().Set("Access-Control-Allow-Headers", headersStr)
				if maxAgeStr != "" {
					w.Header().Set("Access-Control-Max-Age", maxAgeStr)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
