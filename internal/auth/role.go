package auth

import (
	"fmt"
	"strings"
)

// Role is an ordered role strength granted per user per company.
// Root is not a Role: it is a property of the acting identity.
type Role int8

const (
	RoleMember Role = iota + 1
	RoleAdmin
	RoleSuper
)

func (r Role) String() string {
	switch r {
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	case RoleSuper:
		return "super"
	default:
		return fmt.Sprintf("role(%d)", int8(r))
	}
}

// Valid reports whether r names a grantable role.
func (r Role) Valid() bool {
	return r >= RoleMember && r <= RoleSuper
}

// ParseRole maps a wire name to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "member":
		return RoleMember, nil
	case "admin":
		return RoleAdmin, nil
	case "super":
		return RoleSuper, nil
	default:
		return 0, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
}
