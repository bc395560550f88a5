// File: internal/access/role.go
package access

import "strings"

// Role is a subscription tier. Tiers are totally ordered VIEW < TALK < CREATE.
type Role string

const (
	RoleView   Role = "VIEW"
	RoleTalk   Role = "TALK"
	RoleCreate Role = "CREATE"
)

// Roles lists every tier in ascending order.
var Roles = []Role{RoleView, RoleTalk, RoleCreate}

// Rank returns the position of r in the tier order, or -1 for an unknown role.
func Rank(r Role) int {
	switch r {
	case RoleView:
		return 0
	case RoleTalk:
		return 1
	case RoleCreate:
		return 2
	default:
		return -1
	}
}

// Valid reports whether r is one of the known tiers.
func (r Role) Valid() bool {
	return Rank(r) >= 0
}

// AtLeast reports whether r is ranked at or above min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && Rank(r) >= Rank(min)
}

func (r Role) String() string {
	return string(r)
}

// ParseRole normalizes raw and returns the matching tier.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(raw)))
	return r, r.Valid()
}
