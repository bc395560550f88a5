// File: internal/auth/model.go
package auth

import (
	"time"

	"live_learning_backend/internal/access"
	"live_learning_backend/internal/identity"
	"live_learning_backend/internal/profile"
	"live_learning_backend/internal/session"
)

// RegisterRequest is the sign-up form.
type RegisterRequest struct {
	Email            string `json:"email" binding:"required"`
	Password         string `json:"password" binding:"required"`
	FullName         string `json:"fullName" binding:"max=120"`
	Phone            string `json:"phone" binding:"max=32"`
	Address          string `json:"address" binding:"max=255"`
	Interest         string `json:"interest" binding:"max=255"`
	SubscriptionPlan string `json:"subscriptionPlan" binding:"required"`
}

func (r RegisterRequest) registration() session.Registration {
	return session.Registration{
		FullName:         r.FullName,
		Phone:            r.Phone,
		Address:          r.Address,
		Interest:         r.Interest,
		SubscriptionPlan: r.SubscriptionPlan,
	}
}

// LoginRequest defines the structure for login requests.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// GoogleLoginRequest carries a Google ID token obtained by the client.
type GoogleLoginRequest struct {
	Credential string `json:"credential" binding:"required"`
}

// TokenResponse is the bearer token handed to clients.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SessionResponse is the public view of a session.
type SessionResponse struct {
	SessionID    string                     `json:"sessionId"`
	State        session.State              `json:"state"`
	Loading      bool                       `json:"loading"`
	Identity     *identity.Identity         `json:"identity"`
	Profile      *profile.UserProfile       `json:"profile"`
	Error        string                     `json:"error,omitempty"`
	Capabilities map[access.Capability]bool `json:"capabilities,omitempty"`
}

// AuthResponse is returned by every successful sign-in.
type AuthResponse struct {
	Profile *profile.UserProfile `json:"profile"`
	Token   *TokenResponse       `json:"token"`
	Session SessionResponse      `json:"session"`
}

// ToSessionResponse converts a snapshot for the API.
func ToSessionResponse(sid string, snap session.Snapshot) SessionResponse {
	resp := SessionResponse{
		SessionID: sid,
		State:     snap.State,
		Loading:   snap.Loading,
		Identity:  snap.Identity,
		Profile:   snap.Profile,
	}
	if snap.Error != nil {
		resp.Error = snap.Error.Error()
	}
	if snap.State == session.StateReady && snap.Profile != nil {
		resp.Capabilities = access.Capabilities(snap.Profile.Role)
	}
	return resp
}
