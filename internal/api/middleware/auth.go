package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/kiffhq/kiff/internal/tenant"
)

// Tenancy requires X-Tenant-ID and X-User-ID headers on every request
// and installs them in the request context. Tenant identity is trusted
// from the gateway in front of this service.
func Tenancy(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := uuid.Parse(r.Header.Get("X-Tenant-ID"))
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "missing or invalid X-Tenant-ID header")
			return
		}
		userID, err := uuid.Parse(r.Header.Get("X-User-ID"))
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "missing or invalid X-User-ID header")
			return
		}

		ctx := tenant.WithUser(tenant.WithTenant(r.Context(), tenantID), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminOnly gates operator routes behind a shared key. An empty
// configured key refuses everything.
func AdminOnly(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get("X-Admin-Key")
			if adminKey == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(adminKey)) != 1 {
				writeAuthError(w, http.StatusForbidden, "admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
