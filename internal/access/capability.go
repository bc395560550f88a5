// File: internal/access/capability.go
package access

import "sort"

// Capability names a role-gated feature.
type Capability string

const (
	// CapBrowse covers listing and reading content.
	CapBrowse Capability = "browse"
	// CapPaidContent unlocks paid content previews.
	CapPaidContent Capability = "paid_content"
	// CapJoinPaidSession allows joining paid live sessions and discussions.
	CapJoinPaidSession Capability = "join_paid_session"
	// CapTalk allows speaking in discussions and live sessions.
	CapTalk Capability = "talk"
	// CapCreateContent allows publishing any content kind.
	CapCreateContent Capability = "create_content"
	// CapViewEarnings exposes creator earnings.
	CapViewEarnings Capability = "view_earnings"
)

var minimumRole = map[Capability]Role{
	CapBrowse:          RoleView,
	CapPaidContent:     RoleTalk,
	CapJoinPaidSession: RoleTalk,
	CapTalk:            RoleTalk,
	CapCreateContent:   RoleCreate,
	CapViewEarnings:    RoleCreate,
}

// MinimumRole returns the lowest tier granted cap. Unknown capabilities report false.
func MinimumRole(cap Capability) (Role, bool) {
	r, ok := minimumRole[cap]
	return r, ok
}

// CanAccess reports whether role is granted cap. Unknown roles and capabilities are denied.
func CanAccess(cap Capability, role Role) bool {
	min, ok := minimumRole[cap]
	if !ok {
		return false
	}
	return role.AtLeast(min)
}

// Capabilities returns the full grant table for role.
func Capabilities(role Role) map[Capability]bool {
	out := make(map[Capability]bool, len(minimumRole))
	for cap := range minimumRole {
		out[cap] = CanAccess(cap, role)
	}
	return out
}

// AllCapabilities lists every known capability in a stable order.
func AllCapabilities() []Capability {
	caps := make([]Capability, 0, len(minimumRole))
	for cap := range minimumRole {
		caps = append(caps, cap)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}
