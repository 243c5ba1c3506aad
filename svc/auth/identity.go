package auth

import (
	"slices"

	"github.com/google/uuid"
)

// Role is the caller's role within the marketplace.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleGuest  Role = "guest"
)

var knownRoles = []Role{RoleOwner, RoleAdmin, RoleMember, RoleGuest}

// ParseRole returns ErrInvalidRole for values outside the known set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !slices.Contains(knownRoles, r) {
		return "", ErrInvalidRole
	}
	return r, nil
}

func (r Role) String() string { return string(r) }

// Identity is the authenticated caller as resolved by the session gate.
type Identity struct {
	AccountID uuid.UUID
	Email     string
	Role      Role
}

// CanManageTwoFactor reports whether the caller may enroll, disable or
// regenerate second factors for their own account. Guests cannot.
func (i Identity) CanManageTwoFactor() bool {
	switch i.Role {
	case RoleOwner, RoleAdmin, RoleMember:
		return i.AccountID != uuid.Nil
	default:
		return false
	}
}
