package session

import (
	"context"
	"testing"
	"time"

	"live_learning_backend/internal/docstore"
	"live_learning_backend/internal/identity"
	"live_learning_backend/internal/profile"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// mockProvider is a testify mock of identity.Provider backed by a real Notifier.
type mockProvider struct {
	mock.Mock
	notifier *identity.Notifier
}

func newMockProvider() *mockProvider {
	return &mockProvider{notifier: identity.NewNotifier()}
}

func identityResult(args mock.Arguments) (*identity.Identity, error) {
	ident, _ := args.Get(0).(*identity.Identity)
	return ident, args.Error(1)
}

func (m *mockProvider) CreateAccount(ctx context.Context, email, password string) (*identity.Identity, error) {
	return identityResult(m.Called(ctx, email, password))
}

func (m *mockProvider) SignIn(ctx context.Context, email, password string) (*identity.Identity, error) {
	return identityResult(m.Called(ctx, email, password))
}

func (m *mockProvider) SignInFederated(ctx context.Context, credential string) (*identity.Identity, error) {
	return identityResult(m.Called(ctx, credential))
}

func (m *mockProvider) SignOut(ctx context.Context, uid string) error {
	return m.Called(ctx, uid).Error(0)
}

func (m *mockProvider) DeleteAccount(ctx context.Context, uid string) error {
	return m.Called(ctx, uid).Error(0)
}

func (m *mockProvider) Lookup(ctx context.Context, uid string) (*identity.Identity, error) {
	return identityResult(m.Called(ctx, uid))
}

func (m *mockProvider) Watch() (<-chan identity.Event, func()) {
	return m.notifier.Subscribe()
}

// mockProfiles is a testify mock of ProfileStore.
type mockProfiles struct {
	mock.Mock
}

func (m *mockProfiles) Get(ctx context.Context, uid string) (*profile.UserProfile, error) {
	args := m.Called(ctx, uid)
	p, _ := args.Get(0).(*profile.UserProfile)
	return p, args.Error(1)
}

func (m *mockProfiles) Create(ctx context.Context, p *profile.UserProfile) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockProfiles) UpdateDetails(ctx context.Context, uid string, d profile.Details) (*profile.UserProfile, error) {
	args := m.Called(ctx, uid, d)
	p, _ := args.Get(0).(*profile.UserProfile)
	return p, args.Error(1)
}

func (m *mockProfiles) Delete(ctx context.Context, uid string) error {
	return m.Called(ctx, uid).Error(0)
}

type stubVerifier map[string]*identity.FederatedClaims

func (s stubVerifier) Verify(ctx context.Context, raw string) (*identity.FederatedClaims, error) {
	c, ok := s[raw]
	if !ok {
		return nil, identity.ErrInvalidCredential
	}
	return c, nil
}

// stack is a real provider and profile store on an in-memory database.
type stack struct {
	provider *identity.LocalProvider
	notifier *identity.Notifier
	profiles *profile.Store
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, identity.Migrate(db))
	require.NoError(t, docstore.Migrate(db))

	n := identity.NewNotifier()
	verifier := stubVerifier{
		"google-ok":       {Subject: "g-1", Email: "g@example.com", EmailVerified: true, Name: "Gee"},
		"google-nameless": {Subject: "g-2", Email: "anon@example.com", EmailVerified: true},
	}
	return &stack{
		provider: identity.NewLocalProvider(db, n, verifier, bcrypt.MinCost, zap.NewNop()),
		notifier: n,
		profiles: profile.NewStore(docstore.NewGORMStore(db)),
	}
}

func (s *stack) manager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(s.provider, s.profiles, zap.NewNop(), Options{CallTimeout: 5 * time.Second})
	require.NoError(t, m.Init(context.Background()))
	t.Cleanup(m.Dispose)
	return m
}

func settled(t *testing.T, m *Manager) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := m.AwaitSettled(ctx)
	require.NoError(t, err)
	return snap
}

func newMockManager(t *testing.T, p *mockProvider, profiles ProfileStore) *Manager {
	t.Helper()
	m := NewManager(p, profiles, zap.NewNop(), Options{CallTimeout: time.Second})
	require.NoError(t, m.Init(context.Background()))
	t.Cleanup(m.Dispose)
	return m
}
