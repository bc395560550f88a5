package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"live_learning_backend/internal/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(s *stack, ttl time.Duration) *Registry {
	return NewRegistry(func() *Manager {
		return NewManager(s.provider, s.profiles, zap.NewNop(), Options{CallTimeout: 5 * time.Second})
	}, ttl, zap.NewNop())
}

func TestRegistry_CreateGetRemove(t *testing.T) {
	s := newStack(t)
	r := newTestRegistry(s, time.Minute)
	defer r.Close()

	sid, m, err := r.Create(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, sid)
	assert.Equal(t, StateUnauthenticated, settled(t, m).State)

	got, ok := r.Get(sid)
	require.True(t, ok)
	assert.Same(t, m, got)

	r.Remove(sid)
	_, ok = r.Get(sid)
	assert.False(t, ok)
	assert.ErrorIs(t, m.Init(context.Background()), ErrDisposed)
}

func TestRegistry_ResumeRestoresReadySession(t *testing.T) {
	s := newStack(t)
	r := newTestRegistry(s, time.Minute)
	defer r.Close()
	ctx := context.Background()

	sid, m, err := r.Create(ctx)
	require.NoError(t, err)
	p, err := m.RegisterWithEmail(ctx, "a@b.com", "abcdef", Registration{SubscriptionPlan: "CREATE"})
	require.NoError(t, err)

	// Simulate a restart: the registry forgets the session, the token survives.
	authTime := time.Now()
	r.Remove(sid)

	var wg sync.WaitGroup
	resumed := make([]*Manager, 4)
	for i := range resumed {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := r.Resume(ctx, sid, p.ID, authTime)
			assert.NoError(t, err)
			resumed[i] = got
		}(i)
	}
	wg.Wait()

	for _, got := range resumed[1:] {
		assert.Same(t, resumed[0], got)
	}
	snap := settled(t, resumed[0])
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, p.ID, snap.Profile.ID)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ResumeUnknownAccount(t *testing.T) {
	s := newStack(t)
	r := newTestRegistry(s, time.Minute)
	defer r.Close()

	_, err := r.Resume(context.Background(), "sid-1", "00000000-0000-0000-0000-000000000001", time.Now())
	assert.ErrorIs(t, err, identity.ErrAccountNotFound)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ExpiryDisposesSession(t *testing.T) {
	s := newStack(t)
	r := newTestRegistry(s, 50*time.Millisecond)
	defer r.Close()

	_, m, err := r.Create(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return m.Init(context.Background()) == ErrDisposed
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRegistry_SignOutOutlivesIdleEviction(t *testing.T) {
	s := newStack(t)
	r := newTestRegistry(s, 200*time.Millisecond)
	defer r.Close()
	ctx := context.Background()

	sidA, a, err := r.Create(ctx)
	require.NoError(t, err)
	p, err := a.RegisterWithEmail(ctx, "a@b.com", "abcdef", Registration{SubscriptionPlan: "VIEW"})
	require.NoError(t, err)

	sidB, b, err := r.Create(ctx)
	require.NoError(t, err)
	_, err = b.LoginWithEmail(ctx, "a@b.com", "abcdef")
	require.NoError(t, err)
	authB := time.Now()

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, a.Logout(ctx))
	r.Remove(sidA)

	resumed, err := r.Resume(ctx, sidB, p.ID, authB)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return resumed.Snapshot().State == StateUnauthenticated
	}, time.Second, 10*time.Millisecond)

	// Idle expiry drops the cleared session; the token is still unexpired.
	assert.Eventually(t, func() bool { return r.Len() == 0 }, 2*time.Second, 20*time.Millisecond)

	_, err = r.Resume(ctx, sidB, p.ID, authB)
	assert.ErrorIs(t, err, ErrSignedOut)
	assert.Equal(t, 0, r.Len())

	// A sign-in after the sign-out is unaffected.
	sidC, c, err := r.Create(ctx)
	require.NoError(t, err)
	_, err = c.LoginWithEmail(ctx, "a@b.com", "abcdef")
	require.NoError(t, err)
	authC := time.Now()
	r.Remove(sidC)

	restored, err := r.Resume(ctx, sidC, p.ID, authC)
	require.NoError(t, err)
	assert.Equal(t, StateReady, settled(t, restored).State)
}
