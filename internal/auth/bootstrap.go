package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/certify-backend/internal/users"
	"github.com/angelmondragon/certify-backend/pkg/config"
	"github.com/angelmondragon/certify-backend/pkg/enums"
	"github.com/angelmondragon/certify-backend/pkg/security"
	"gorm.io/gorm"
)

// EnsureAdmin makes sure the configured bootstrap account exists with the admin role.
// An existing account keeps its password and is only promoted.
func EnsureAdmin(ctx context.Context, repo *users.Repository, bootstrap config.BootstrapConfig, passwordCfg config.PasswordConfig) (*users.UserDTO, error) {
	if repo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if !bootstrap.Enabled() {
		return nil, nil
	}

	existing, err := repo.FindByEmail(ctx, bootstrap.AdminEmail)
	switch {
	case err == nil:
		if existing.SystemRole != string(enums.SystemRoleAdmin) {
			if err := repo.UpdateSystemRole(ctx, existing.ID, string(enums.SystemRoleAdmin)); err != nil {
				return nil, fmt.Errorf("promote bootstrap admin: %w", err)
			}
			existing.SystemRole = string(enums.SystemRoleAdmin)
		}
		return users.FromModel(existing), nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("lookup bootstrap admin: %w", err)
	}

	hash, err := security.HashPassword(bootstrap.AdminPassword, passwordCfg)
	if err != nil {
		return nil, fmt.Errorf("hash bootstrap admin password: %w", err)
	}
	user, err := repo.Create(ctx, users.CreateUserDTO{
		Email:        bootstrap.AdminEmail,
		PasswordHash: hash,
		FirstName:    "Registry",
		LastName:     "Admin",
		SystemRole:   enums.SystemRoleAdmin,
	})
	if err != nil {
		return nil, fmt.Errorf("create bootstrap admin: %w", err)
	}
	return users.FromModel(user), nil
}
