package auth

import "errors"

// Role represents an authorisation tier.
type Role string

const (
	// RoleUser is a household member: read and operate lights.
	RoleUser Role = "user"

	// RoleAdmin manages the device catalogue: sync, commissioning and
	// decommissioning.
	RoleAdmin Role = "admin"

	// RoleOwner has everything admin can do plus adapter administration.
	RoleOwner Role = "owner"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleUser, RoleAdmin, RoleOwner}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrForbidden    = errors.New("insufficient permissions")
)
