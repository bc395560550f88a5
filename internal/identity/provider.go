// File: internal/identity/provider.go
package identity

import (
	"context"
	"errors"
	"time"
)

// Provider IDs recorded on identities.
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google.com"
)

var (
	// ErrAccountNotFound is returned when no account matches the email.
	ErrAccountNotFound = errors.New("identity: account not found")
	// ErrAccountDisabled is returned when the account exists but may not sign in.
	ErrAccountDisabled = errors.New("identity: account disabled")
	// ErrWrongCredential is returned when the password does not match.
	ErrWrongCredential = errors.New("identity: wrong credential")
	// ErrEmailInUse is returned by CreateAccount for a taken email.
	ErrEmailInUse = errors.New("identity: email already in use")
	// ErrInvalidCredential is returned for federated credentials that fail verification.
	ErrInvalidCredential = errors.New("identity: invalid federated credential")
	// ErrFederationUnavailable is returned when federated sign-in is not configured.
	ErrFederationUnavailable = errors.New("identity: federated sign-in is not configured")
)

// Identity is an authenticated account as reported by the provider.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	ProviderID  string `json:"providerId"`
	// IsNew is set when the call that returned the identity also created it.
	IsNew bool `json:"-"`
	// ValidAfter is the account's last sign-out. Sessions that authenticated
	// before it are void. Zero when the account was never signed out.
	ValidAfter time.Time `json:"-"`
}

// Event reports a change of the signed-in identity for UID. A nil Identity means signed out.
type Event struct {
	UID      string
	Identity *Identity
	// Origin is empty for events raised in this process.
	Origin string
}

// SignedOut reports whether the event clears the identity.
func (e Event) SignedOut() bool {
	return e.Identity == nil
}

// Provider is the external identity service.
type Provider interface {
	CreateAccount(ctx context.Context, email, password string) (*Identity, error)
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	// SignInFederated exchanges a federated ID token for an identity, creating it on first use.
	SignInFederated(ctx context.Context, credential string) (*Identity, error)
	SignOut(ctx context.Context, uid string) error
	DeleteAccount(ctx context.Context, uid string) error
	Lookup(ctx context.Context, uid string) (*Identity, error)
	// Watch subscribes to session-change events. The returned func unsubscribes.
	Watch() (<-chan Event, func())
}
