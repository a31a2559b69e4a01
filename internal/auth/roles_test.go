package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/certify-backend/internal/users"
	"github.com/angelmondragon/certify-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/certify-backend/pkg/errors"
	"github.com/angelmondragon/certify-backend/pkg/migrate/migratetest"
)

func TestAssignRolePromotesUser(t *testing.T) {
	client := migratetest.OpenSQLite(t)
	repo := users.NewRepository(client.DB())
	svc, err := NewRoleService(repo)
	require.NoError(t, err)

	ctx := context.Background()
	user, err := repo.Create(ctx, users.CreateUserDTO{
		Email:        "lecturer@example.com",
		PasswordHash: "hash",
		FirstName:    "Ada",
		LastName:     "Lovelace",
	})
	require.NoError(t, err)
	adminID := uuid.New()

	updated, err := svc.AssignRole(ctx, adminID, user.ID, "Issuer")
	require.NoError(t, err)
	assert.Equal(t, string(enums.SystemRoleIssuer), updated.SystemRole)

	stored, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, string(enums.SystemRoleIssuer), stored.SystemRole)

	_, err = svc.AssignRole(ctx, adminID, user.ID, "owner")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	_, err = svc.AssignRole(ctx, adminID, uuid.New(), "issuer")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)

	_, err = svc.AssignRole(ctx, user.ID, user.ID, "admin")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "got %v", err)
}
