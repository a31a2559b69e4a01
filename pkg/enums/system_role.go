package enums

import (
	"fmt"
	"strings"
)

// SystemRole is the platform-wide role carried in access tokens.
type SystemRole string

const (
	SystemRoleAdmin  SystemRole = "admin"
	SystemRoleIssuer SystemRole = "issuer"
	SystemRoleUser   SystemRole = "user"
)

var validSystemRoles = []SystemRole{
	SystemRoleAdmin,
	SystemRoleIssuer,
	SystemRoleUser,
}

// String implements fmt.Stringer.
func (r SystemRole) String() string {
	return string(r)
}

// IsValid reports whether the value matches a known system role.
func (r SystemRole) IsValid() bool {
	for _, candidate := range validSystemRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseSystemRole converts raw input into SystemRole.
func ParseSystemRole(value string) (SystemRole, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validSystemRoles {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid system role %q", value)
}
