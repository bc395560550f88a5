package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"live_learning_backend/internal/access"
	"live_learning_backend/internal/common"
	"live_learning_backend/internal/identity"
	"live_learning_backend/internal/profile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManager_InitSettlesUnauthenticated(t *testing.T) {
	m := NewManager(newMockProvider(), new(mockProfiles), zap.NewNop(), Options{})
	assert.Equal(t, StateInitializing, m.Snapshot().State)
	assert.True(t, m.Snapshot().Loading)

	require.NoError(t, m.Init(context.Background()))
	defer m.Dispose()

	snap := settled(t, m)
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Nil(t, snap.Identity)
	assert.Nil(t, snap.Profile)
}

func TestRegister_ShortPasswordRejectedBeforeProvider(t *testing.T) {
	p := newMockProvider()
	profiles := new(mockProfiles)
	m := newMockManager(t, p, profiles)

	_, err := m.RegisterWithEmail(context.Background(), "a@b.com", "abcde", Registration{SubscriptionPlan: "VIEW"})

	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindValidation))
	p.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything, mock.Anything)
	profiles.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)

	snap := m.Snapshot()
	assert.Nil(t, snap.Identity)
	assert.Nil(t, snap.Profile)
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Equal(t, err, snap.Error)
}

func TestRegister_ValidationCases(t *testing.T) {
	m := newMockManager(t, newMockProvider(), new(mockProfiles))
	tests := []struct {
		name  string
		email string
		plan  string
	}{
		{"malformed email", "not-an-email", "VIEW"},
		{"empty email", "", "VIEW"},
		{"unknown plan", "a@b.com", "PREMIUM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.RegisterWithEmail(context.Background(), tt.email, "abcdef", Registration{SubscriptionPlan: tt.plan})
			assert.True(t, common.IsKind(err, common.KindValidation))
		})
	}
}

func TestRegister_TalkPlanSetsRoleAndPlan(t *testing.T) {
	s := newStack(t)
	m := s.manager(t)
	ctx := context.Background()

	p, err := m.RegisterWithEmail(ctx, "a@b.com", "abcdef", Registration{
		FullName:         "Ada",
		Phone:            "555",
		SubscriptionPlan: "TALK",
	})
	require.NoError(t, err)
	assert.Equal(t, access.RoleTalk, p.Role)
	assert.Equal(t, access.RoleTalk, p.SubscriptionPlan)

	stored, err := s.profiles.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, access.RoleTalk, stored.Role)
	assert.Equal(t, access.RoleTalk, stored.SubscriptionPlan)
	assert.Equal(t, "a@b.com", stored.Email)
	_, err = time.Parse(time.RFC3339, stored.CreatedAt)
	assert.NoError(t, err)

	snap := settled(t, m)
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, p.ID, snap.Identity.UID)
}

func TestRegister_ProfileWriteFailureRollsBackIdentity(t *testing.T) {
	p := newMockProvider()
	profiles := new(mockProfiles)
	m := newMockManager(t, p, profiles)
	ctx := context.Background()

	p.On("CreateAccount", mock.Anything, "a@b.com", "abcdef").
		Return(&identity.Identity{UID: "u1", Email: "a@b.com", IsNew: true}, nil).Once()
	profiles.On("Create", mock.Anything, mock.AnythingOfType("*profile.UserProfile")).
		Return(errors.New("store unavailable")).Once()
	p.On("DeleteAccount", mock.Anything, "u1").Return(nil).Once()

	_, err := m.RegisterWithEmail(ctx, "a@b.com", "abcdef", Registration{SubscriptionPlan: "CREATE"})

	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindRegistration))
	p.AssertExpectations(t)
	profiles.AssertExpectations(t)

	snap := settled(t, m)
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Nil(t, snap.Identity)
}

func TestRegister_ProviderFailureIsRegistrationError(t *testing.T) {
	s := newStack(t)
	m := s.manager(t)
	ctx := context.Background()

	_, err := m.RegisterWithEmail(ctx, "a@b.com", "abcdef", Registration{SubscriptionPlan: "VIEW"})
	require.NoError(t, err)
	require.NoError(t, m.Logout(ctx))

	_, err = m.RegisterWithEmail(ctx, "a@b.com", "abcdef", Registration{SubscriptionPlan: "VIEW"})
	require.Error(t, err)
	appErr, ok := common.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.KindRegistration, appErr.Kind)
	assert.ErrorIs(t, err, identity.ErrEmailInUse)
}

func TestLoginWithGoogle_NewIdentityGetsViewProfile(t *testing.T) {
	s := newStack(t)
	m := s.manager(t)

	p, err := m.LoginWithGoogle(context.Background(), "google-ok")
	require.NoError(t, err)
	assert.Equal(t, access.RoleView, p.Role)
	assert.Equal(t, access.RoleView, p.SubscriptionPlan)
	assert.Equal(t, "Gee", p.FullName)
	assert.Equal(t, "g@example.com", p.Email)
	assert.Equal(t, StateReady, settled(t, m).State)
}

func TestLoginWithGoogle_DefaultsDisplayName(t *testing.T) {
	s := newStack(t)
	m := s.manager(t)

	p, err := m.LoginWithGoogle(context.Background(), "google-nameless")
	require.NoError(t, err)
	assert.Equal(t, profile.DefaultDisplayName, p.FullName)
	assert.Equal(t, "", p.Phone)
	assert.Equal(t, "", p.Address)
	assert.Equal(t, "", p.Interest)
}

func TestLoginWithGoogle_ExistingProfileIsKept(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	first := s.manager(t)
	p1, err := first.LoginWithGoogle(ctx, "google-ok")
	require.NoError(t, err)

	second := s.manager(t)
	p2, err := second.LoginWithGoogle(ctx, "google-ok")
	require.NoError(t, err)
	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, p1.CreatedAt, p2.CreatedAt)
}

func TestLoginWithGoogle_RejectedCredential(t *testing.T) {
	s := newStack(t)
	m := s.manager(t)

	_, err := m.LoginWithGoogle(context.Background(), "forged")
	appErr, ok := common.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.KindAuthentication, appErr.Kind)
	assert.Equal(t, common.ReasonWrongCredential, appErr.Reason)
	assert.Nil(t, m.Snapshot().Identity)
}

func TestLogin_ErrorReasons(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	_, err := s.manager(t).RegisterWithEmail(ctx, "a@b.com", "abcdef", Registration{SubscriptionPlan: "VIEW"})
	require.NoError(t, err)

	m := s.manager(t)
	_, err = m.LoginWithEmail(ctx, "nobody@b.com", "abcdef")
	appErr, ok := common.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.ReasonNoSuchAccount, appErr.Reason)
	assert.Equal(t, "User not found", appErr.Message)

	_, err = m.LoginWithEmail(ctx, "a@b.com", "zzzzzz")
	appErr, ok = common.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.ReasonWrongCredential, appErr.Reason)
	assert.Equal(t, "Incorrect password", appErr.Message)
}

func TestLogin_UnknownProviderFailure(t *testing.T) {
	p := newMockProvider()
	m := newMockManager(t, p, new(mockProfiles))
	p.On("SignIn", mock.Anything, "a@b.com", "abcdef").Return(nil, errors.New("network down")).Once()

	_, err := m.LoginWithEmail(context.Background(), "a@b.com", "abcdef")
	appErr, ok := common.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.KindAuthentication, appErr.Kind)
	assert.Equal(t, common.ReasonUnknown, appErr.Reason)
}

func TestLogin_MissingProfile(t *testing.T) {
	p := newMockProvider()
	profiles := new(mockProfiles)
	m := newMockManager(t, p, profiles)

	p.On("SignIn", mock.Anything, "a@b.com", "abcdef").Return(&identity.Identity{UID: "u1", Email: "a@b.com"}, nil).Once()
	profiles.On("Get", mock.Anything, "u1").Return(nil, profile.ErrNotFound).Once()

	_, err := m.LoginWithEmail(context.Background(), "a@b.com", "abcdef")
	assert.ErrorIs(t, err, ErrProfileMissing)

	snap := settled(t, m)
	assert.Equal(t, StateProfileMissing, snap.State)
	require.NotNil(t, snap.Identity)
	assert.Nil(t, snap.Profile)
}

func TestLogout_ClearsIdentityAndProfileTogether(t *testing.T) {
	s := newStack(t)
	m := s.manager(t)
	ctx := context.Background()

	_, err := m.RegisterWithEmail(ctx, "a@b.com", "abcdef", Registration{SubscriptionPlan: "CREATE"})
	require.NoError(t, err)

	updates, cancel := m.Subscribe()
	defer cancel()

	require.NoError(t, m.Logout(ctx))

	snap := m.Snapshot()
	assert.Nil(t, snap.Identity)
	assert.Nil(t, snap.Profile)
	assert.Equal(t, StateUnauthenticated, snap.State)

	// No published snapshot ever carries one without the other.
	for {
		select {
		case u := <-updates:
			assert.Equal(t, u.Identity == nil, u.Profile == nil, "partial snapshot in state %s", u.State)
			if u.State == StateUnauthenticated && !u.Loading {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("no settled snapshot after logout")
		}
	}
}

func TestLogout_ProviderFailureStillClears(t *testing.T) {
	p := newMockProvider()
	profiles := new(mockProfiles)
	m := newMockManager(t, p, profiles)
	ctx := context.Background()

	ident := &identity.Identity{UID: "u1", Email: "a@b.com"}
	p.On("SignIn", mock.Anything, "a@b.com", "abcdef").Return(ident, nil).Once()
	profiles.On("Get", mock.Anything, "u1").Return(profile.NewProfile("u1", access.RoleView, time.Now()), nil).Once()
	p.On("SignOut", mock.Anything, "u1").Return(errors.New("revoke failed")).Once()

	_, err := m.LoginWithEmail(ctx, "a@b.com", "abcdef")
	require.NoError(t, err)

	err = m.Logout(ctx)
	assert.Error(t, err)

	snap := m.Snapshot()
	assert.Nil(t, snap.Identity)
	assert.Nil(t, snap.Profile)
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Error(t, snap.Error)

	m.ClearError()
	assert.NoError(t, m.Snapshot().Error)
}

func TestScenario_RegisterLoginWrongPassword(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	registering := s.manager(t)
	registered, err := registering.RegisterWithEmail(ctx, "a@b.com", "abcdef", Registration{SubscriptionPlan: "VIEW"})
	require.NoError(t, err)

	m := s.manager(t)
	loggedIn, err := m.LoginWithEmail(ctx, "a@b.com", "abcdef")
	require.NoError(t, err)
	assert.Equal(t, registered, loggedIn)

	before := settled(t, m)

	_, err = m.LoginWithEmail(ctx, "a@b.com", "wrong-password")
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindAuthentication))

	after := settled(t, m)
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, before.Identity, after.Identity)
	assert.Equal(t, before.Profile, after.Profile)
}

func TestEvents_SignOutElsewhereClearsSession(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	phone := s.manager(t)
	p, err := phone.RegisterWithEmail(ctx, "a@b.com", "abcdef", Registration{SubscriptionPlan: "TALK"})
	require.NoError(t, err)

	laptop := s.manager(t)
	_, err = laptop.LoginWithEmail(ctx, "a@b.com", "abcdef")
	require.NoError(t, err)

	require.NoError(t, s.provider.SignOut(ctx, p.ID))

	assert.Eventually(t, func() bool {
		snap := phone.Snapshot()
		return snap.State == StateUnauthenticated && snap.Identity == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return laptop.Snapshot().State == StateUnauthenticated
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEvents_SignInElsewhereRetriesMissingProfile(t *testing.T) {
	p := newMockProvider()
	profiles := new(mockProfiles)
	m := newMockManager(t, p, profiles)
	ctx := context.Background()

	ident := &identity.Identity{UID: "u1", Email: "a@b.com"}
	p.On("SignIn", mock.Anything, "a@b.com", "abcdef").Return(ident, nil).Once()
	profiles.On("Get", mock.Anything, "u1").Return(nil, profile.ErrNotFound).Once()
	_, err := m.LoginWithEmail(ctx, "a@b.com", "abcdef")
	require.ErrorIs(t, err, ErrProfileMissing)

	profiles.On("Get", mock.Anything, "u1").Return(profile.NewProfile("u1", access.RoleTalk, time.Now()), nil).Once()
	p.notifier.Publish(identity.Event{UID: "u1", Identity: ident})

	assert.Eventually(t, func() bool {
		return m.Snapshot().State == StateReady
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAwaitSettled_TimesOutWhileOperationRuns(t *testing.T) {
	p := newMockProvider()
	m := newMockManager(t, p, new(mockProfiles))
	release := make(chan time.Time)

	p.On("SignIn", mock.Anything, "a@b.com", "abcdef").
		WaitUntil(release).
		Return(nil, identity.ErrWrongCredential).Once()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.LoginWithEmail(context.Background(), "a@b.com", "abcdef")
	}()

	assert.Eventually(t, func() bool { return m.Snapshot().Loading }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	snap, err := m.AwaitSettled(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, snap.Loading)

	close(release)
	<-done
	assert.Equal(t, StateUnauthenticated, settled(t, m).State)
}

func TestDispose_CancelsAndRejectsOperations(t *testing.T) {
	p := newMockProvider()
	m := NewManager(p, new(mockProfiles), zap.NewNop(), Options{})
	require.NoError(t, m.Init(context.Background()))

	updates, _ := m.Subscribe()
	m.Dispose()
	m.Dispose()

	for range updates {
	}
	_, err := m.LoginWithEmail(context.Background(), "a@b.com", "abcdef")
	assert.ErrorIs(t, err, ErrDisposed)
	assert.ErrorIs(t, m.Init(context.Background()), ErrDisposed)
}

func TestUpdateDetails_RefreshesSessionProfile(t *testing.T) {
	s := newStack(t)
	m := s.manager(t)
	ctx := context.Background()

	created, err := m.RegisterWithEmail(ctx, "a@b.com", "abcdef", Registration{FullName: "Ada", SubscriptionPlan: "TALK"})
	require.NoError(t, err)

	name := "Ada L."
	interest := "math"
	updated, err := m.UpdateDetails(ctx, profile.Details{FullName: &name, Interest: &interest})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", updated.FullName)
	assert.Equal(t, "math", updated.Interest)
	assert.Equal(t, created.Role, updated.Role)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	snap := m.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, "Ada L.", snap.Profile.FullName)
}

func TestUpdateDetails_RequiresReadySession(t *testing.T) {
	profiles := new(mockProfiles)
	m := newMockManager(t, newMockProvider(), profiles)

	_, err := m.UpdateDetails(context.Background(), profile.Details{})
	assert.ErrorIs(t, err, ErrNotSignedIn)
	profiles.AssertNotCalled(t, "UpdateDetails", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateDetails_StoreFailureIsWriteError(t *testing.T) {
	p := newMockProvider()
	profiles := new(mockProfiles)
	m := newMockManager(t, p, profiles)
	ctx := context.Background()

	ident := &identity.Identity{UID: "u1", Email: "a@b.com"}
	p.On("SignIn", mock.Anything, "a@b.com", "abcdef").Return(ident, nil)
	profiles.On("Get", mock.Anything, "u1").Return(&profile.UserProfile{ID: "u1", FullName: "Ada", Role: access.RoleView}, nil)
	profiles.On("UpdateDetails", mock.Anything, "u1", mock.Anything).Return(nil, errors.New("store down"))

	_, err := m.LoginWithEmail(ctx, "a@b.com", "abcdef")
	require.NoError(t, err)

	name := "Other"
	_, err = m.UpdateDetails(ctx, profile.Details{FullName: &name})
	assert.True(t, common.IsKind(err, common.KindWrite))

	snap := m.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, "Ada", snap.Profile.FullName)
	assert.Error(t, snap.Error)
}

func TestRestore_RefusesSessionOlderThanSignOut(t *testing.T) {
	p := newMockProvider()
	profiles := new(mockProfiles)
	m := newMockManager(t, p, profiles)
	signedOut := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	p.On("Lookup", mock.Anything, "u1").
		Return(&identity.Identity{UID: "u1", Email: "a@b.com", ValidAfter: signedOut}, nil)

	err := m.Restore(context.Background(), "u1", signedOut.Add(-time.Minute))
	assert.ErrorIs(t, err, ErrSignedOut)
	assert.Equal(t, StateUnauthenticated, m.Snapshot().State)
	assert.Nil(t, m.Snapshot().Identity)
	profiles.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)

	profiles.On("Get", mock.Anything, "u1").Return(profile.NewProfile("u1", access.RoleView, signedOut), nil).Once()
	require.NoError(t, m.Restore(context.Background(), "u1", signedOut.Add(time.Minute)))
	assert.Equal(t, StateReady, settled(t, m).State)
	profiles.AssertExpectations(t)
}

func TestLoginWithGoogle_ReusesExistingProfile(t *testing.T) {
	p := newMockProvider()
	profiles := new(mockProfiles)
	m := newMockManager(t, p, profiles)
	existing := profile.NewProfile("u1", access.RoleCreate, time.Now())

	p.On("SignInFederated", mock.Anything, "cred").Return(&identity.Identity{UID: "u1", Email: "a@b.com"}, nil).Once()
	profiles.On("Get", mock.Anything, "u1").Return(existing, nil).Once()

	got, err := m.LoginWithGoogle(context.Background(), "cred")
	require.NoError(t, err)
	assert.Equal(t, access.RoleCreate, got.Role)
	assert.Equal(t, StateReady, settled(t, m).State)
	profiles.AssertNumberOfCalls(t, "Get", 1)
	profiles.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestLoginWithGoogle_SurfacesProfileStoreFailure(t *testing.T) {
	p := newMockProvider()
	profiles := new(mockProfiles)
	m := newMockManager(t, p, profiles)

	p.On("SignInFederated", mock.Anything, "cred").Return(&identity.Identity{UID: "u1", Email: "a@b.com"}, nil).Once()
	profiles.On("Get", mock.Anything, "u1").Return(nil, errors.New("store unavailable")).Once()

	_, err := m.LoginWithGoogle(context.Background(), "cred")
	require.Error(t, err)
	assert.ErrorContains(t, err, "store unavailable")
	profiles.AssertNumberOfCalls(t, "Get", 1)
	profiles.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Equal(t, StateProfileMissing, settled(t, m).State)
}

func TestLogin_DisabledAccount(t *testing.T) {
	p := newMockProvider()
	m := newMockManager(t, p, new(mockProfiles))
	p.On("SignIn", mock.Anything, "a@b.com", "abcdef").Return(nil, identity.ErrAccountDisabled).Once()

	_, err := m.LoginWithEmail(context.Background(), "a@b.com", "abcdef")
	appErr, ok := common.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.ReasonUnknown, appErr.Reason)
	assert.Equal(t, "Account is disabled", appErr.Message)
}
