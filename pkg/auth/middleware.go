// Package auth guards internal hooks with optional shared keys.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/bturcanu/crmbridge/pkg/types"
)

type contextKey string

const callerKey contextKey = "caller"

// CallerFromContext returns the authenticated caller, or "" when the route
// is open.
func CallerFromContext(ctx context.Context) string {
	v, _ := ctx.Value(callerKey).(string)
	return v
}

// RequireKey returns middleware that admits requests carrying a known key
// in X-API-Key, an Authorization bearer token, or the "key" query
// parameter for senders that cannot set headers. With no keys configured
// every request passes.
func RequireKey(keys *KeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !keys.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := presentedKey(r)
			if key == "" {
				types.ErrUnauthorized("missing API key").WriteJSON(w)
				return
			}
			caller, ok := keys.Lookup(key)
			if !ok {
				types.ErrUnauthorized("invalid API key").WriteJSON(w)
				return
			}
			ctx := context.WithValue(r.Context(), callerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func presentedKey(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return bearer
	}
	return r.URL.Query().Get("key")
}
