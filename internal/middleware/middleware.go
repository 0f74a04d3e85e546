// Package middleware holds the HTTP control plane's cross-cutting request
// handling: service-token authentication and tenant resolution.
//
// Grounded on the teacher's internal/middleware/maintenance.go (a single
// func(http.Handler) http.Handler wrapping the whole router) and
// internal/handlers/auth.go's AuthMiddleware shape (extract credential,
// reject with a JSON error body, otherwise inject context and call next),
// adapted from per-user JWT validation to the single shared-secret model
// spec §6.4's SERVICE_AUTH_TOKEN implies.
package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const tenantContextKey contextKey = "tenantID"

// ServiceAuth rejects any request whose Authorization header doesn't carry
// the exact shared token, compared in constant time so response latency
// can't leak how many prefix bytes matched.
func ServiceAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				respondError(w, http.StatusUnauthorized, "missing or invalid service token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TenantFromHeader resolves the tenant the request operates on from
// X-Tenant-ID, the control plane's equivalent of the teacher's
// per-request user lookup (there, the JWT subject; here, there is no
// end-user session, so the caller — the operator dashboard/backend — names
// the tenant explicitly). Requests missing it get a 400, not a panic
// downstream when a handler assumes a non-empty tenant ID.
func TenantFromHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get("X-Tenant-ID")
		if tenantID == "" {
			respondError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
			return
		}
		ctx := context.WithValue(r.Context(), tenantContextKey, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantID reads the tenant ID TenantFromHeader stashed in the request
// context. Returns "" if the middleware never ran.
func TenantID(r *http.Request) string {
	v, _ := r.Context().Value(tenantContextKey).(string)
	return v
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
