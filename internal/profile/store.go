// File: internal/profile/store.go
package profile

import (
	"context"
	"errors"
	"fmt"

	"live_learning_backend/internal/docstore"
)

// ErrNotFound is returned when no profile exists for a uid.
var ErrNotFound = errors.New("profile: not found")

// Store reads and writes profiles in the document store.
type Store struct {
	docs docstore.Store
}

// NewStore creates a profile Store.
func NewStore(docs docstore.Store) *Store {
	return &Store{docs: docs}
}

// Get loads the profile for uid.
func (s *Store) Get(ctx context.Context, uid string) (*UserProfile, error) {
	snap, err := s.docs.Get(ctx, Collection, uid)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading profile %s: %w", uid, err)
	}
	return fromDocument(snap), nil
}

// Create writes p under its uid.
func (s *Store) Create(ctx context.Context, p *UserProfile) error {
	if p.ID == "" {
		return errors.New("profile: uid is required")
	}
	if err := s.docs.Set(ctx, Collection, p.ID, p.toDocument()); err != nil {
		return fmt.Errorf("writing profile %s: %w", p.ID, err)
	}
	return nil
}

// UpdateDetails merges the free-text fields and returns the updated profile.
// Identity, role, plan and creation time are never touched.
func (s *Store) UpdateDetails(ctx context.Context, uid string, d Details) (*UserProfile, error) {
	if !d.Empty() {
		if err := s.docs.Update(ctx, Collection, uid, d.toDocument()); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("updating profile %s: %w", uid, err)
		}
	}
	return s.Get(ctx, uid)
}

// Delete removes the profile for uid.
func (s *Store) Delete(ctx context.Context, uid string) error {
	if err := s.docs.Delete(ctx, Collection, uid); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting profile %s: %w", uid, err)
	}
	return nil
}
