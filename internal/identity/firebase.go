// File: internal/identity/firebase.go
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

// assertionRequestURI is the continue URI the assertion endpoint requires; it is not followed.
const assertionRequestURI = "http://localhost"

// FirebaseProvider delegates accounts to Firebase Authentication.
type FirebaseProvider struct {
	authClient *auth.Client
	toolkit    *identitytoolkit.Service
	notifier   *Notifier
	logger     *zap.Logger
}

// NewFirebaseProvider creates a FirebaseProvider. webAPIKey is the project's
// browser key, needed by the Identity Toolkit password endpoint.
func NewFirebaseProvider(ctx context.Context, authClient *auth.Client, webAPIKey string, notifier *Notifier, logger *zap.Logger) (*FirebaseProvider, error) {
	toolkit, err := identitytoolkit.NewService(ctx, option.WithAPIKey(webAPIKey))
	if err != nil {
		return nil, fmt.Errorf("creating identity toolkit client: %w", err)
	}
	return &FirebaseProvider{
		authClient: authClient,
		toolkit:    toolkit,
		notifier:   notifier,
		logger:     logger.Named("identity.firebase"),
	}, nil
}

func identityFromRecord(u *auth.UserRecord) *Identity {
	ident := &Identity{
		UID:         u.UID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		ProviderID:  ProviderPassword,
	}
	if len(u.ProviderUserInfo) > 0 {
		ident.ProviderID = u.ProviderUserInfo[0].ProviderID
	}
	if u.TokensValidAfterMillis > 0 {
		ident.ValidAfter = time.UnixMilli(u.TokensValidAfterMillis)
	}
	return ident
}

// CreateAccount creates a Firebase email/password user.
func (p *FirebaseProvider) CreateAccount(ctx context.Context, email, password string) (*Identity, error) {
	params := (&auth.UserToCreate{}).
		Email(normalizeEmail(email)).
		Password(password)

	u, err := p.authClient.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return nil, ErrEmailInUse
		}
		p.logger.Error("Firebase CreateUser failed", zap.Error(err))
		return nil, fmt.Errorf("creating firebase user: %w", err)
	}

	ident := identityFromRecord(u)
	ident.IsNew = true
	p.notifier.Publish(Event{UID: ident.UID, Identity: ident})
	return ident, nil
}

// SignIn verifies an email and password through the Identity Toolkit API.
func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	req := &identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             normalizeEmail(email),
		Password:          password,
		ReturnSecureToken: true,
	}
	resp, err := p.toolkit.Relyingparty.VerifyPassword(req).Context(ctx).Do()
	if err != nil {
		return nil, mapPasswordError(err)
	}

	ident := &Identity{
		UID:         resp.LocalId,
		Email:       resp.Email,
		DisplayName: resp.DisplayName,
		ProviderID:  ProviderPassword,
	}
	p.notifier.Publish(Event{UID: ident.UID, Identity: ident})
	return ident, nil
}

// mapPasswordError translates Identity Toolkit error codes into provider errors.
func mapPasswordError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("verifying password: %w", err)
	}
	code := gerr.Message
	if i := strings.IndexAny(code, " :"); i > 0 {
		code = code[:i]
	}
	switch code {
	case "EMAIL_NOT_FOUND":
		return ErrAccountNotFound
	case "USER_DISABLED":
		return ErrAccountDisabled
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		return ErrWrongCredential
	default:
		return fmt.Errorf("verifying password: %w", err)
	}
}

// SignInFederated exchanges a Google ID token for a Firebase user through
// the Identity Toolkit assertion endpoint, creating the user on first use.
func (p *FirebaseProvider) SignInFederated(ctx context.Context, credential string) (*Identity, error) {
	if credential == "" {
		return nil, ErrInvalidCredential
	}
	req := &identitytoolkit.IdentitytoolkitRelyingpartyVerifyAssertionRequest{
		PostBody:            url.Values{"id_token": {credential}, "providerId": {ProviderGoogle}}.Encode(),
		RequestUri:          assertionRequestURI,
		ReturnSecureToken:   true,
		ReturnIdpCredential: true,
	}
	resp, err := p.toolkit.Relyingparty.VerifyAssertion(req).Context(ctx).Do()
	if err != nil {
		p.logger.Warn("Federated assertion rejected", zap.Error(err))
		return nil, mapAssertionError(err)
	}

	ident := &Identity{
		UID:         resp.LocalId,
		Email:       resp.Email,
		DisplayName: resp.DisplayName,
		ProviderID:  resp.ProviderId,
		IsNew:       resp.IsNewUser,
	}
	if ident.DisplayName == "" {
		ident.DisplayName = resp.FullName
	}
	if ident.ProviderID == "" {
		ident.ProviderID = ProviderGoogle
	}
	p.notifier.Publish(Event{UID: ident.UID, Identity: ident})
	return ident, nil
}

func mapAssertionError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code >= 400 && gerr.Code < 500 {
		return fmt.Errorf("%w: %s", ErrInvalidCredential, gerr.Message)
	}
	return fmt.Errorf("verifying federated assertion: %w", err)
}

// SignOut revokes the user's refresh tokens, ending every client session.
func (p *FirebaseProvider) SignOut(ctx context.Context, uid string) error {
	defer p.notifier.Publish(Event{UID: uid})
	if err := p.authClient.RevokeRefreshTokens(ctx, uid); err != nil {
		p.logger.Error("Failed to revoke refresh tokens", zap.Error(err), zap.String("uid", uid))
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return nil
}

// DeleteAccount removes the Firebase user.
func (p *FirebaseProvider) DeleteAccount(ctx context.Context, uid string) error {
	if err := p.authClient.DeleteUser(ctx, uid); err != nil {
		if auth.IsUserNotFound(err) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("deleting firebase user: %w", err)
	}
	p.notifier.Publish(Event{UID: uid})
	return nil
}

// Lookup fetches the Firebase user record for uid.
func (p *FirebaseProvider) Lookup(ctx context.Context, uid string) (*Identity, error) {
	u, err := p.authClient.GetUser(ctx, uid)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("loading firebase user: %w", err)
	}
	return identityFromRecord(u), nil
}

// Watch subscribes to session-change events.
func (p *FirebaseProvider) Watch() (<-chan Event, func()) {
	return p.notifier.Subscribe()
}
