package model

import (
	"strings"

	"github.com/google/uuid"
)

// Role names stored in users.role
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// Viewer is the authenticated identity a feed is rendered for.
type Viewer struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}

// RoleSet is the set of role names treated as privileged operators.
type RoleSet map[string]struct{}

func NewRoleSet(roles ...string) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			s[r] = struct{}{}
		}
	}
	return s
}

// DefaultAdminRoles treats both admin tiers as privileged.
func DefaultAdminRoles() RoleSet {
	return NewRoleSet(RoleAdmin, RoleSuperAdmin)
}

func (s RoleSet) Contains(role string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(role))]
	return ok
}
