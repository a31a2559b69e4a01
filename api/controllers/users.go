package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/certify-backend/api/responses"
	"github.com/angelmondragon/certify-backend/api/validators"
	"github.com/angelmondragon/certify-backend/internal/auth"
	pkgerrors "github.com/angelmondragon/certify-backend/pkg/errors"
	"github.com/angelmondragon/certify-backend/pkg/logger"
)

// AssignUserRole lets an admin grant or withdraw the issuer and admin roles.
// The target picks up the new role on its next login or refresh.
func AssignUserRole(svc auth.RoleService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "role service unavailable"))
			return
		}

		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "id")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
			return
		}

		var body auth.AssignRoleRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := svc.AssignRole(r.Context(), actor.UserID, userID, body.Role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, user)
	}
}
