package domain

import dErrors "vitalis/pkg/domain-errors"

// Role is the application role of an actor. Audit entries record it alongside
// the actor id; admin-only operations check it at the transport boundary.
type Role string

const (
	RolePatient   Role = "patient"
	RoleClinician Role = "clinician"
	RoleAdmin     Role = "admin"
	// RoleSystem is used for actions with no human caller.
	RoleSystem Role = "system"
)

var validRoles = map[Role]bool{
	RolePatient:   true,
	RoleClinician: true,
	RoleAdmin:     true,
	RoleSystem:    true,
}

// ParseRole constructs a Role from external input such as a token claim.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !validRoles[r] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role: "+s)
	}
	return r, nil
}

// IsAdmin reports whether the role may perform administrative operations.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}
