// File: internal/session/state.go
package session

import (
	"errors"

	"live_learning_backend/internal/identity"
	"live_learning_backend/internal/profile"
)

// State is the lifecycle position of a session.
type State string

const (
	StateInitializing    State = "initializing"
	StateUnauthenticated State = "unauthenticated"
	StateProfileLoading  State = "profile_loading"
	StateReady           State = "ready"
	StateProfileMissing  State = "profile_missing"
)

// Settled reports whether no transition is pending from s on its own.
func (s State) Settled() bool {
	switch s {
	case StateUnauthenticated, StateReady, StateProfileMissing:
		return true
	default:
		return false
	}
}

var (
	// ErrProfileMissing means the identity is authenticated but has no profile.
	ErrProfileMissing = errors.New("session: no profile for authenticated identity")
	// ErrNotSignedIn is returned by operations that need a Ready session.
	ErrNotSignedIn = errors.New("session: not signed in")
	// ErrSignedOut means the account signed out after the session authenticated.
	ErrSignedOut = errors.New("session: account signed out since this session began")
	// ErrDisposed is returned by operations on a disposed Manager.
	ErrDisposed = errors.New("session: disposed")
)

// Snapshot is an immutable view of a session.
type Snapshot struct {
	State    State
	Identity *identity.Identity
	Profile  *profile.UserProfile
	// Loading is true while an operation or profile load is in flight.
	Loading bool
	Error   error
}

// Authenticated reports whether an identity is attached.
func (s Snapshot) Authenticated() bool {
	return s.Identity != nil
}

// Registration carries the sign-up form besides email and password.
type Registration struct {
	FullName         string
	Phone            string
	Address          string
	Interest         string
	SubscriptionPlan string
}
