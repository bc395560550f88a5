// File: internal/identity/model.go
package identity

import (
	"time"

	"live_learning_backend/internal/common"
)

// Credential is a locally managed account.
type Credential struct {
	common.BaseModel
	Email        string  `gorm:"type:varchar(320);uniqueIndex;not null"`
	PasswordHash string  `gorm:"type:varchar(255)"`
	Provider     string  `gorm:"type:varchar(32);not null"`
	Subject      *string `gorm:"type:varchar(255);uniqueIndex"`
	DisplayName  string  `gorm:"type:varchar(255)"`
	// SignedOutAt voids every session that authenticated before it.
	SignedOutAt *time.Time
}

// TableName specifies the table name for the Credential model.
func (Credential) TableName() string {
	return "credentials"
}

func (c *Credential) toIdentity() *Identity {
	ident := &Identity{
		UID:         c.ID.String(),
		Email:       c.Email,
		DisplayName: c.DisplayName,
		ProviderID:  c.Provider,
	}
	if c.SignedOutAt != nil {
		ident.ValidAfter = *c.SignedOutAt
	}
	return ident
}

// FederatedClaims are the verified claims of a federated ID token.
type FederatedClaims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}
