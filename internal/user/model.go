// File: internal/user/model.go
package user

import (
	"live_learning_backend/internal/access"
	"live_learning_backend/internal/profile"
)

// UpdateMeRequest carries the editable profile fields. Omitted fields are left unchanged.
type UpdateMeRequest = profile.Details

// MeResponse is the signed-in user's profile with the features it unlocks.
type MeResponse struct {
	Profile      *profile.UserProfile       `json:"profile"`
	Capabilities map[access.Capability]bool `json:"capabilities"`
}

// CapabilityResponse describes one role-gated feature for the current user.
type CapabilityResponse struct {
	Capability   access.Capability `json:"capability"`
	RequiredRole access.Role       `json:"requiredRole"`
	Granted      bool              `json:"granted"`
}

// CapabilitiesResponse lists every capability for the current role.
type CapabilitiesResponse struct {
	Role         access.Role          `json:"role"`
	Roles        []access.Role        `json:"roles"`
	Capabilities []CapabilityResponse `json:"capabilities"`
}

// ToMeResponse builds the response for p.
func ToMeResponse(p *profile.UserProfile) MeResponse {
	return MeResponse{
		Profile:      p,
		Capabilities: access.Capabilities(p.Role),
	}
}

// ToCapabilitiesResponse builds the capability table for role.
func ToCapabilitiesResponse(role access.Role) CapabilitiesResponse {
	caps := access.AllCapabilities()
	out := CapabilitiesResponse{
		Role:         role,
		Roles:        access.Roles,
		Capabilities: make([]CapabilityResponse, 0, len(caps)),
	}
	for _, cap := range caps {
		min, _ := access.MinimumRole(cap)
		out.Capabilities = append(out.Capabilities, CapabilityResponse{
			Capability:   cap,
			RequiredRole: min,
			Granted:      access.CanAccess(cap, role),
		})
	}
	return out
}
