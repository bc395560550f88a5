// File: internal/identity/verifier.go
package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

const (
	googleIssuer  = "https://accounts.google.com"
	googleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
)

// TokenVerifier verifies federated ID tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*FederatedClaims, error)
}

// GoogleTokenVerifier verifies Google ID tokens issued for one OAuth client.
type GoogleTokenVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewGoogleTokenVerifier builds a verifier whose signing keys are fetched lazily.
func NewGoogleTokenVerifier(ctx context.Context, clientID string) *GoogleTokenVerifier {
	keySet := oidc.NewRemoteKeySet(ctx, googleJWKSURL)
	return &GoogleTokenVerifier{
		verifier: oidc.NewVerifier(googleIssuer, keySet, &oidc.Config{ClientID: clientID}),
	}
}

// Verify checks signature, issuer, audience and expiry and returns the claims.
func (g *GoogleTokenVerifier) Verify(ctx context.Context, rawIDToken string) (*FederatedClaims, error) {
	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to extract claims: %v", ErrInvalidCredential, err)
	}

	return &FederatedClaims{
		Subject:       idToken.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
	}, nil
}
