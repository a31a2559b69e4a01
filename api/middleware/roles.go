package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/certify-backend/api/responses"
	"github.com/angelmondragon/certify-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/certify-backend/pkg/errors"
	"github.com/angelmondragon/certify-backend/pkg/logger"
)

// RequireRole rejects callers whose system role is not role. It must run after Auth.
func RequireRole(role enums.SystemRole, logg *logger.Logger) func(http.Handler) http.Handler {
	return RequireAnyRole(logg, role)
}

// RequireAnyRole rejects callers whose system role is none of roles. It must run after Auth.
func RequireAnyRole(logg *logger.Logger, roles ...enums.SystemRole) func(http.Handler) http.Handler {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	message := strings.Join(names, " or ") + " role required"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			current := RoleFromContext(r.Context())
			for _, role := range roles {
				if current == string(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, message))
		})
	}
}
