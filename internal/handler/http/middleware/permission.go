package middleware

import (
	"fmt"
	"net/http"

	"github.com/busfleet/payroll-backend-go/internal/domain/auth"
	"github.com/busfleet/payroll-backend-go/internal/handler/http/response"
	"github.com/go-chi/jwtauth/v5"
)

// RequirePermission checks the token's permissions claim, falling back to
// the permissions of its role.
func RequirePermission(permission auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, claims, err := jwtauth.FromContext(r.Context())
			if err != nil {
				response.Forbidden(w, fmt.Sprintf("Insufficient permissions: required '%s'", permission))
				return
			}

			if granted(claims, permission) {
				next.ServeHTTP(w, r)
				return
			}

			role, _ := claims["role"].(string)
			response.Forbidden(w, fmt.Sprintf("Insufficient permissions: required '%s', but user role is '%s'", permission, role))
		})
	}
}

func granted(claims map[string]interface{}, permission auth.Permission) bool {
	if raw, ok := claims["permissions"]; ok {
		for _, p := range auth.ParsePermissions(raw) {
			if p == permission {
				return true
			}
		}
		return false
	}

	role, ok := claims["role"].(string)
	if !ok {
		return false
	}
	return auth.HasPermission(auth.Role(role), permission)
}
