package auth

import (
	"log/slog"
	"net/http"
)

// RBAC gates admin-only routes. The attendance domain has exactly two
// roles, so a single admin check replaces a permission matrix.
type RBAC struct {
	logger *slog.Logger
}

func NewRBAC(logger *slog.Logger) *RBAC {
	return &RBAC{logger: logger}
}

func (ra *RBAC) RequireAdmin() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok || user == nil {
				ra.logger.Warn("authorization check failed: user not found in context")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !user.IsAdmin() {
				ra.logger.Warn("authorization check failed: admin role required",
					"user_id", user.ID, "role", user.Role)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
