package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/certify-backend/internal/users"
	"github.com/angelmondragon/certify-backend/pkg/db/models"
	"github.com/angelmondragon/certify-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/certify-backend/pkg/errors"
)

// RoleService changes system roles. Callers must already be admins.
type RoleService interface {
	AssignRole(ctx context.Context, actorID, userID uuid.UUID, role string) (*users.UserDTO, error)
}

type roleRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateSystemRole(ctx context.Context, id uuid.UUID, role string) error
}

type roleService struct {
	users roleRepository
}

// NewRoleService builds the role assignment service.
func NewRoleService(repo roleRepository) (RoleService, error) {
	if repo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	return &roleService{users: repo}, nil
}

func (s *roleService) AssignRole(ctx context.Context, actorID, userID uuid.UUID, role string) (*users.UserDTO, error) {
	parsed, err := enums.ParseSystemRole(role)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role").
			WithDetails(map[string]string{"role": "is not a supported role"})
	}
	if actorID == userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admins cannot change their own role")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user.SystemRole == string(parsed) {
		return users.FromModel(user), nil
	}

	if err := s.users.UpdateSystemRole(ctx, user.ID, string(parsed)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update role")
	}
	user.SystemRole = string(parsed)
	return users.FromModel(user), nil
}
