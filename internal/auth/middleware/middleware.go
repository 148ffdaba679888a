// Package middleware turns bearer tokens into a request principal.
package middleware

import (
	"net/http"
	"strings"

	"github.com/mesapos/mesa-backend/internal/auth/jwt"
	"github.com/mesapos/mesa-backend/pkg/config"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/httputil"
	"github.com/mesapos/mesa-backend/pkg/tenant"
)

// Authenticate validates the Authorization bearer token and installs the
// principal into the request context. Every route behind it can rely on
// tenant.FromContext.
func Authenticate(manager *jwt.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := claimsFromRequest(manager, r)
			if err != nil {
				httputil.Error(w, r, err)
				return
			}

			ctx := tenant.WithContext(r.Context(), tenant.Principal{
				UserID:   claims.UserID,
				TenantID: claims.TenantID,
				Role:     claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant rejects requests whose principal carries no tenant. Used
// on all routes except platform administration.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := tenant.TenantID(r.Context()); err != nil {
			httputil.Error(w, r, errors.Forbidden("tenant context required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole allows only the listed roles through.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := tenant.Role(r.Context())
			if role == "" {
				httputil.Error(w, r, errors.Unauthenticated("not authenticated"))
				return
			}
			if _, ok := allowed[role]; !ok {
				httputil.Error(w, r, errors.Forbidden("insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TenantOverride lets a super-admin act within a tenant by sending
// X-Tenant-ID. Only honored outside production and only for tokens that
// carry no tenant of their own.
func TenantOverride(environment string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if environment == config.EnvProduction {
				next.ServeHTTP(w, r)
				return
			}
			override := r.Header.Get("X-Tenant-ID")
			if override == "" {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := tenant.FromContext(r.Context())
			if !ok || principal.TenantID != "" {
				next.ServeHTTP(w, r)
				return
			}
			principal.TenantID = override
			next.ServeHTTP(w, r.WithContext(tenant.WithContext(r.Context(), principal)))
		})
	}
}

func claimsFromRequest(manager *jwt.Manager, r *http.Request) (*jwt.Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, errors.Unauthenticated("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, errors.Unauthenticated("malformed authorization header")
	}
	return manager.ValidateAccessToken(parts[1])
}
