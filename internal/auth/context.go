// Package auth provides authentication utilities for API keys.
package auth

import (
	"context"

	"github.com/sitegauge/sitegauge/internal/model"
)

// authContextKey is unexported so only this package can place auth
// state in a context.
type authContextKey struct{}

// ContextWithAuth returns a context carrying the authenticated caller.
// The auth middleware attaches it once per request after key verification.
func ContextWithAuth(ctx context.Context, authCtx *model.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, authCtx)
}

// AuthFromContext returns the authenticated caller, or nil when the
// request never passed through the auth middleware. Handlers treat nil
// as an internal error; public endpoints never call this.
func AuthFromContext(ctx context.Context) *model.AuthContext {
	authCtx, _ := ctx.Value(authContextKey{}).(*model.AuthContext)
	return authCtx
}
