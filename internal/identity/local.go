// File: internal/identity/local.go
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// LocalProvider keeps accounts in the application database.
type LocalProvider struct {
	db         *gorm.DB
	notifier   *Notifier
	verifier   TokenVerifier
	bcryptCost int
	logger     *zap.Logger
}

// NewLocalProvider creates a LocalProvider. verifier may be nil, which disables federated sign-in.
func NewLocalProvider(db *gorm.DB, notifier *Notifier, verifier TokenVerifier, bcryptCost int, logger *zap.Logger) *LocalProvider {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &LocalProvider{
		db:         db,
		notifier:   notifier,
		verifier:   verifier,
		bcryptCost: bcryptCost,
		logger:     logger.Named("identity.local"),
	}
}

// Migrate creates the credentials table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Credential{}); err != nil {
		return fmt.Errorf("migrating credentials: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *LocalProvider) findByEmail(ctx context.Context, email string) (*Credential, error) {
	var cred Credential
	err := p.db.WithContext(ctx).Where("email = ?", email).First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("looking up credential: %w", err)
	}
	return &cred, nil
}

// CreateAccount registers a password account and signs it in.
func (p *LocalProvider) CreateAccount(ctx context.Context, email, password string) (*Identity, error) {
	email = normalizeEmail(email)

	if _, err := p.findByEmail(ctx, email); err == nil {
		return nil, ErrEmailInUse
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	cred := &Credential{
		Email:        email,
		PasswordHash: string(hash),
		Provider:     ProviderPassword,
	}
	if err := p.db.WithContext(ctx).Create(cred).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("creating credential: %w", err)
	}

	ident := cred.toIdentity()
	ident.IsNew = true
	p.logger.Info("Account created", zap.String("uid", ident.UID))
	p.notifier.Publish(Event{UID: ident.UID, Identity: ident})
	return ident, nil
}

// SignIn checks an email and password.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	cred, err := p.findByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if cred.PasswordHash == "" {
		// Federated-only account.
		return nil, ErrWrongCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrWrongCredential
		}
		return nil, fmt.Errorf("comparing password: %w", err)
	}

	ident := cred.toIdentity()
	p.notifier.Publish(Event{UID: ident.UID, Identity: ident})
	return ident, nil
}

// SignInFederated verifies a Google ID token. An existing account with the same
// email is linked to the Google subject instead of creating a second account.
func (p *LocalProvider) SignInFederated(ctx context.Context, credential string) (*Identity, error) {
	if p.verifier == nil {
		return nil, ErrFederationUnavailable
	}
	claims, err := p.verifier.Verify(ctx, credential)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidCredential)
	}

	var (
		cred  Credential
		isNew bool
	)
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("subject = ?", claims.Subject).First(&cred).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		email := normalizeEmail(claims.Email)
		if email != "" && claims.EmailVerified {
			err = tx.Where("email = ?", email).First(&cred).Error
			if err == nil {
				return tx.Model(&cred).Update("subject", claims.Subject).Error
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}
		if email == "" {
			email = claims.Subject + "@" + ProviderGoogle
		}

		subject := claims.Subject
		cred = Credential{
			Email:       email,
			Provider:    ProviderGoogle,
			Subject:     &subject,
			DisplayName: claims.Name,
		}
		isNew = true
		return tx.Create(&cred).Error
	})
	if err != nil {
		return nil, fmt.Errorf("federated sign-in: %w", err)
	}

	ident := cred.toIdentity()
	if ident.DisplayName == "" {
		ident.DisplayName = claims.Name
	}
	ident.IsNew = isNew
	p.notifier.Publish(Event{UID: ident.UID, Identity: ident})
	return ident, nil
}

// SignOut ends every session of uid. The sign-out time is stored so that
// sessions rebuilt later from older tokens are refused.
func (p *LocalProvider) SignOut(ctx context.Context, uid string) error {
	defer p.notifier.Publish(Event{UID: uid})
	id, err := uuid.Parse(uid)
	if err != nil {
		return nil
	}
	err = p.db.WithContext(ctx).Model(&Credential{}).
		Where("id = ?", id).
		Update("signed_out_at", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("recording sign-out: %w", err)
	}
	return nil
}

// DeleteAccount removes the credential and signs it out.
func (p *LocalProvider) DeleteAccount(ctx context.Context, uid string) error {
	id, err := uuid.Parse(uid)
	if err != nil {
		return ErrAccountNotFound
	}
	res := p.db.WithContext(ctx).Delete(&Credential{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("deleting credential: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	p.logger.Info("Account deleted", zap.String("uid", uid))
	p.notifier.Publish(Event{UID: uid})
	return nil
}

// Lookup returns the identity for uid.
func (p *LocalProvider) Lookup(ctx context.Context, uid string) (*Identity, error) {
	id, err := uuid.Parse(uid)
	if err != nil {
		return nil, ErrAccountNotFound
	}
	var cred Credential
	if err := p.db.WithContext(ctx).First(&cred, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("looking up credential: %w", err)
	}
	return cred.toIdentity(), nil
}

// Watch subscribes to session-change events.
func (p *LocalProvider) Watch() (<-chan Event, func()) {
	return p.notifier.Subscribe()
}
