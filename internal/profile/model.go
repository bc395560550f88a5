// File: internal/profile/model.go
package profile

import (
	"time"

	"live_learning_backend/internal/access"
	"live_learning_backend/internal/docstore"
)

// Collection holds one profile document per identity, keyed by uid.
const Collection = "users"

// UserProfile is the application record for an identity.
type UserProfile struct {
	ID               string      `json:"uid"`
	FullName         string      `json:"fullName"`
	Email            string      `json:"email"`
	Phone            string      `json:"phone"`
	Address          string      `json:"address"`
	Interest         string      `json:"interest"`
	SubscriptionPlan access.Role `json:"subscriptionPlan"`
	Role             access.Role `json:"role"`
	CreatedAt        string      `json:"createdAt"`
}

// DefaultDisplayName is used for federated profiles without a name.
const DefaultDisplayName = "User"

// NewProfile builds a profile with role and plan both set to plan.
func NewProfile(uid string, plan access.Role, now time.Time) *UserProfile {
	return &UserProfile{
		ID:               uid,
		SubscriptionPlan: plan,
		Role:             plan,
		CreatedAt:        now.UTC().Format(time.RFC3339),
	}
}

// Details are the free-text fields an owner may edit.
type Details struct {
	FullName *string `json:"fullName,omitempty" binding:"omitempty,max=120"`
	Phone    *string `json:"phone,omitempty" binding:"omitempty,max=32"`
	Address  *string `json:"address,omitempty" binding:"omitempty,max=255"`
	Interest *string `json:"interest,omitempty" binding:"omitempty,max=255"`
}

// Empty reports whether no field is set.
func (d Details) Empty() bool {
	return d.FullName == nil && d.Phone == nil && d.Address == nil && d.Interest == nil
}

func (d Details) toDocument() docstore.Document {
	doc := docstore.Document{}
	if d.FullName != nil {
		doc["fullName"] = *d.FullName
	}
	if d.Phone != nil {
		doc["phone"] = *d.Phone
	}
	if d.Address != nil {
		doc["address"] = *d.Address
	}
	if d.Interest != nil {
		doc["interest"] = *d.Interest
	}
	return doc
}

func (p *UserProfile) toDocument() docstore.Document {
	return docstore.Document{
		"uid":              p.ID,
		"fullName":         p.FullName,
		"email":            p.Email,
		"phone":            p.Phone,
		"address":          p.Address,
		"interest":         p.Interest,
		"subscriptionPlan": string(p.SubscriptionPlan),
		"role":             string(p.Role),
		"createdAt":        p.CreatedAt,
	}
}

func fromDocument(snap *docstore.Snapshot) *UserProfile {
	d := snap.Data
	id := d.String("uid")
	if id == "" {
		id = snap.ID
	}
	return &UserProfile{
		ID:               id,
		FullName:         d.String("fullName"),
		Email:            d.String("email"),
		Phone:            d.String("phone"),
		Address:          d.String("address"),
		Interest:         d.String("interest"),
		SubscriptionPlan: access.Role(d.String("subscriptionPlan")),
		Role:             access.Role(d.String("role")),
		CreatedAt:        d.String("createdAt"),
	}
}
