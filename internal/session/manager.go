// File: internal/session/manager.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"live_learning_backend/internal/access"
	"live_learning_backend/internal/common"
	"live_learning_backend/internal/identity"
	"live_learning_backend/internal/profile"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

// ProfileStore is the subset of profile.Store the session needs.
type ProfileStore interface {
	Get(ctx context.Context, uid string) (*profile.UserProfile, error)
	Create(ctx context.Context, p *profile.UserProfile) error
	UpdateDetails(ctx context.Context, uid string, d profile.Details) (*profile.UserProfile, error)
	Delete(ctx context.Context, uid string) error
}

// Options tunes a Manager.
type Options struct {
	// CallTimeout bounds each provider or store call. Zero disables the bound.
	CallTimeout time.Duration
	// Now is the clock used for createdAt; defaults to time.Now.
	Now func() time.Time
}

// Manager owns the identity and profile of one client session. All
// operations are serialized; reads go through Snapshot.
type Manager struct {
	provider identity.Provider
	profiles ProfileStore
	logger   *zap.Logger
	opts     Options
	validate *validator.Validate

	ctx     context.Context
	cancel  context.CancelFunc
	sem     chan struct{}
	done    chan struct{}
	unwatch func()

	initOnce    sync.Once
	disposeOnce sync.Once

	mu       sync.Mutex
	state    State
	ident    *identity.Identity
	prof     *profile.UserProfile
	busy     bool
	lastErr  error
	gen      uint64
	changed  chan struct{}
	subs     map[int]chan Snapshot
	nextSub  int
	disposed bool
}

// NewManager creates a Manager in the Initializing state. Call Init before use.
func NewManager(provider identity.Provider, profiles ProfileStore, logger *zap.Logger, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		provider: provider,
		profiles: profiles,
		logger:   logger.Named("session"),
		opts:     opts,
		validate: validator.New(),
		ctx:      ctx,
		cancel:   cancel,
		sem:      make(chan struct{}, 1),
		done:     make(chan struct{}),
		state:    StateInitializing,
		changed:  make(chan struct{}),
		subs:     make(map[int]chan Snapshot),
	}
}

// Init attaches to the provider's session-change stream and settles the
// session as Unauthenticated.
func (m *Manager) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	started := false
	m.initOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.disposed {
			return
		}
		events, unwatch := m.provider.Watch()
		m.unwatch = unwatch
		go m.watch(events)
		if m.state == StateInitializing {
			m.state = StateUnauthenticated
		}
		m.publishLocked()
		started = true
	})
	if !started && m.isDisposed() {
		return ErrDisposed
	}
	return nil
}

// Dispose detaches from the provider, cancels in-flight calls and closes
// every subscription. It is safe to call more than once.
func (m *Manager) Dispose() {
	m.disposeOnce.Do(func() {
		m.mu.Lock()
		m.disposed = true
		for id, ch := range m.subs {
			close(ch)
			delete(m.subs, id)
		}
		unwatch := m.unwatch
		m.mu.Unlock()

		m.cancel()
		if unwatch != nil {
			unwatch()
			<-m.done
		}
	})
}

func (m *Manager) isDisposed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposed
}

// Snapshot returns the current session view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:   m.state,
		Loading: m.busy || m.state == StateProfileLoading || m.state == StateInitializing,
		Error:   m.lastErr,
	}
	if m.ident != nil {
		ident := *m.ident
		snap.Identity = &ident
	}
	if m.prof != nil {
		prof := *m.prof
		snap.Profile = &prof
	}
	return snap
}

// Subscribe streams snapshots, starting with the current one. A slow reader
// only sees the latest snapshot. The returned func unsubscribes.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if m.disposed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.snapshotLocked()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// AwaitSettled blocks until no operation is in flight and the state is
// settled, or ctx ends. The last observed snapshot is always returned.
func (m *Manager) AwaitSettled(ctx context.Context) (Snapshot, error) {
	for {
		m.mu.Lock()
		snap := m.snapshotLocked()
		changed := m.changed
		disposed := m.disposed
		m.mu.Unlock()

		if !snap.Loading && snap.State.Settled() {
			return snap, nil
		}
		if disposed {
			return snap, ErrDisposed
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// ClearError drops the last recorded error.
func (m *Manager) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastErr == nil {
		return
	}
	m.lastErr = nil
	m.publishLocked()
}

func (m *Manager) publishLocked() {
	close(m.changed)
	m.changed = make(chan struct{})

	snap := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// acquire takes the operation slot and returns the generation it started in.
func (m *Manager) acquire(ctx context.Context) (uint64, error) {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-m.ctx.Done():
		return 0, ErrDisposed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		<-m.sem
		return 0, ErrDisposed
	}
	m.busy = true
	m.publishLocked()
	return m.gen, nil
}

// release applies the operation's result unless the session was cleared
// or disposed meanwhile, then frees the slot.
func (m *Manager) release(gen uint64, apply func()) {
	m.mu.Lock()
	if apply != nil && !m.disposed && m.gen == gen {
		apply()
	}
	m.busy = false
	if !m.disposed {
		m.publishLocked()
	}
	m.mu.Unlock()
	<-m.sem
}

// callContext bounds one provider or store call by the call timeout and by Dispose.
func (m *Manager) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if m.opts.CallTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, m.opts.CallTimeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	stop := context.AfterFunc(m.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (m *Manager) recordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
	m.publishLocked()
}

// clearLocked drops identity and profile together.
func (m *Manager) clearLocked() {
	m.ident = nil
	m.prof = nil
	m.state = StateUnauthenticated
}

func (m *Manager) validateRegistration(email, password string, reg Registration) (access.Role, error) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return "", common.NewValidationError(fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	if err := m.validate.Var(email, "required,email"); err != nil {
		return "", common.NewValidationError("Email address is not valid")
	}
	plan, ok := access.ParseRole(reg.SubscriptionPlan)
	if !ok {
		return "", common.NewValidationError("Subscription plan must be one of VIEW, TALK or CREATE")
	}
	return plan, nil
}

// RegisterWithEmail creates an identity and its profile and signs the
// session in. Input is validated before any provider call. If the profile
// cannot be written the new identity is deleted again.
func (m *Manager) RegisterWithEmail(ctx context.Context, email, password string, reg Registration) (*profile.UserProfile, error) {
	plan, err := m.validateRegistration(email, password, reg)
	if err != nil {
		m.recordError(err)
		return nil, err
	}

	gen, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := m.callContext(ctx)
	defer cancel()

	ident, err := m.provider.CreateAccount(callCtx, email, password)
	if err != nil {
		msg := "Registration failed"
		if errors.Is(err, identity.ErrEmailInUse) {
			msg = "Email is already registered"
		}
		appErr := common.NewRegistrationError(msg, err)
		m.release(gen, func() { m.lastErr = appErr })
		return nil, appErr
	}

	p := profile.NewProfile(ident.UID, plan, m.opts.Now())
	p.FullName = reg.FullName
	p.Email = ident.Email
	p.Phone = reg.Phone
	p.Address = reg.Address
	p.Interest = reg.Interest

	if err := m.profiles.Create(callCtx, p); err != nil {
		m.logger.Error("Profile write failed after account creation, rolling back",
			zap.String("uid", ident.UID), zap.Error(err))
		m.rollbackAccount(ident.UID)
		appErr := common.NewRegistrationError("Could not save profile", err)
		m.release(gen, func() { m.lastErr = appErr })
		return nil, appErr
	}

	m.logger.Info("Registered", zap.String("uid", ident.UID), zap.String("plan", string(plan)))
	m.release(gen, func() {
		m.ident = ident
		m.prof = p
		m.state = StateReady
		m.lastErr = nil
	})
	out := *p
	return &out, nil
}

// rollbackAccount deletes an identity whose profile could not be written.
// It runs detached from the caller's context, which may already be done.
func (m *Manager) rollbackAccount(uid string) {
	timeout := m.opts.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := m.provider.DeleteAccount(ctx, uid); err != nil && !errors.Is(err, identity.ErrAccountNotFound) {
		m.logger.Error("Rollback of orphaned identity failed", zap.String("uid", uid), zap.Error(err))
	}
}

func authenticationError(err error) *common.AppError {
	switch {
	case errors.Is(err, identity.ErrAccountNotFound):
		return common.NewAuthenticationError(common.ReasonNoSuchAccount, "User not found", err)
	case errors.Is(err, identity.ErrAccountDisabled):
		return common.NewAuthenticationError(common.ReasonUnknown, "Account is disabled", err)
	case errors.Is(err, identity.ErrWrongCredential):
		return common.NewAuthenticationError(common.ReasonWrongCredential, "Incorrect password", err)
	case errors.Is(err, identity.ErrInvalidCredential):
		return common.NewAuthenticationError(common.ReasonWrongCredential, "Sign-in credential was rejected", err)
	default:
		return common.NewAuthenticationError(common.ReasonUnknown, "Login failed", err)
	}
}

// LoginWithEmail signs in with a password. On failure the session keeps
// its previous identity and profile.
func (m *Manager) LoginWithEmail(ctx context.Context, email, password string) (*profile.UserProfile, error) {
	if email == "" || password == "" {
		err := common.NewValidationError("Email and password are required")
		m.recordError(err)
		return nil, err
	}

	gen, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := m.callContext(ctx)
	defer cancel()

	ident, err := m.provider.SignIn(callCtx, email, password)
	if err != nil {
		appErr := authenticationError(err)
		m.logger.Debug("Login rejected", zap.String("reason", appErr.Reason))
		m.release(gen, func() { m.lastErr = appErr })
		return nil, appErr
	}

	return m.finishSignIn(callCtx, gen, ident)
}

// finishSignIn loads the profile for a freshly authenticated identity and commits.
func (m *Manager) finishSignIn(ctx context.Context, gen uint64, ident *identity.Identity) (*profile.UserProfile, error) {
	p, err := m.loadProfile(ctx, gen, ident.UID)
	return m.settleSignIn(gen, ident, p, err)
}

// loadProfile moves the session to ProfileLoading and reads the profile.
func (m *Manager) loadProfile(ctx context.Context, gen uint64, uid string) (*profile.UserProfile, error) {
	m.mu.Lock()
	if m.gen == gen {
		m.state = StateProfileLoading
		m.publishLocked()
	}
	m.mu.Unlock()
	return m.profiles.Get(ctx, uid)
}

// settleSignIn commits the outcome of a profile read for ident.
func (m *Manager) settleSignIn(gen uint64, ident *identity.Identity, p *profile.UserProfile, err error) (*profile.UserProfile, error) {
	if err != nil {
		loadErr := err
		if errors.Is(err, profile.ErrNotFound) {
			loadErr = ErrProfileMissing
			m.logger.Warn("Authenticated identity has no profile", zap.String("uid", ident.UID))
		} else {
			loadErr = fmt.Errorf("loading profile: %w", err)
			m.logger.Error("Profile load failed", zap.String("uid", ident.UID), zap.Error(err))
		}
		m.release(gen, func() {
			m.ident = ident
			m.prof = nil
			m.state = StateProfileMissing
			m.lastErr = loadErr
		})
		return nil, loadErr
	}

	m.release(gen, func() {
		m.ident = ident
		m.prof = p
		m.state = StateReady
		m.lastErr = nil
	})
	out := *p
	return &out, nil
}

// LoginWithGoogle signs in with a federated credential. A first sign-in
// creates a VIEW profile from the identity's display name and email.
func (m *Manager) LoginWithGoogle(ctx context.Context, credential string) (*profile.UserProfile, error) {
	if credential == "" {
		err := common.NewValidationError("Credential is required")
		m.recordError(err)
		return nil, err
	}

	gen, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := m.callContext(ctx)
	defer cancel()

	ident, err := m.provider.SignInFederated(callCtx, credential)
	if err != nil {
		appErr := authenticationError(err)
		m.release(gen, func() { m.lastErr = appErr })
		return nil, appErr
	}

	existing, err := m.profiles.Get(callCtx, ident.UID)
	if errors.Is(err, profile.ErrNotFound) {
		p := profile.NewProfile(ident.UID, access.RoleView, m.opts.Now())
		p.FullName = ident.DisplayName
		if p.FullName == "" {
			p.FullName = profile.DefaultDisplayName
		}
		p.Email = ident.Email

		if err := m.profiles.Create(callCtx, p); err != nil {
			m.logger.Error("Federated profile write failed", zap.String("uid", ident.UID), zap.Error(err))
			if ident.IsNew {
				m.rollbackAccount(ident.UID)
			}
			appErr := common.NewRegistrationError("Could not save profile", err)
			m.release(gen, func() { m.lastErr = appErr })
			return nil, appErr
		}
		m.logger.Info("Created profile for federated identity", zap.String("uid", ident.UID))
		m.release(gen, func() {
			m.ident = ident
			m.prof = p
			m.state = StateReady
			m.lastErr = nil
		})
		out := *p
		return &out, nil
	}

	return m.settleSignIn(gen, ident, existing, err)
}

// Logout signs out at the provider and clears identity and profile
// together. Local state is cleared even when the provider call fails; that
// failure is returned and kept as the last error.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	var uid string
	if m.ident != nil {
		uid = m.ident.UID
	}
	m.mu.Unlock()

	gen, err := m.acquire(ctx)
	if err != nil {
		m.forceClear(err)
		return err
	}
	callCtx, cancel := m.callContext(ctx)
	defer cancel()

	var signOutErr error
	if uid != "" {
		if err := m.provider.SignOut(callCtx, uid); err != nil {
			m.logger.Warn("Provider sign-out failed; clearing session anyway", zap.String("uid", uid), zap.Error(err))
			signOutErr = fmt.Errorf("signing out: %w", err)
		}
	}

	m.release(gen, func() {
		m.clearLocked()
		m.gen++
		m.lastErr = signOutErr
	})
	return signOutErr
}

// UpdateDetails edits the free-text fields of the signed-in profile and
// keeps the session's copy in step with the store.
func (m *Manager) UpdateDetails(ctx context.Context, d profile.Details) (*profile.UserProfile, error) {
	gen, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	ready := m.state == StateReady && m.ident != nil
	var uid string
	if ready {
		uid = m.ident.UID
	}
	m.mu.Unlock()
	if !ready {
		m.release(gen, nil)
		return nil, ErrNotSignedIn
	}

	callCtx, cancel := m.callContext(ctx)
	defer cancel()

	p, err := m.profiles.UpdateDetails(callCtx, uid, d)
	if err != nil {
		appErr := common.NewWriteError("Could not update profile", err)
		m.release(gen, func() { m.lastErr = appErr })
		return nil, appErr
	}
	m.release(gen, func() {
		m.prof = p
		m.lastErr = nil
	})
	out := *p
	return &out, nil
}

// forceClear clears the session without the operation slot. Any operation
// still running will not commit.
func (m *Manager) forceClear(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}
	m.clearLocked()
	m.gen++
	m.lastErr = cause
	m.publishLocked()
}

// Restore resumes the session for uid, as if the provider had reported
// that identity as signed in. authTime is when the session originally
// authenticated; a sign-out of the account after that time voids it.
func (m *Manager) Restore(ctx context.Context, uid string, authTime time.Time) error {
	gen, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	callCtx, cancel := m.callContext(ctx)
	defer cancel()

	ident, err := m.provider.Lookup(callCtx, uid)
	if err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			m.release(gen, func() { m.clearLocked() })
			return err
		}
		m.release(gen, func() { m.lastErr = err })
		return fmt.Errorf("restoring session: %w", err)
	}
	if signedOutSince(ident, authTime) {
		m.logger.Info("Refusing to restore session that predates sign-out", zap.String("uid", uid))
		m.release(gen, func() { m.clearLocked() })
		return ErrSignedOut
	}

	_, err = m.finishSignIn(callCtx, gen, ident)
	return err
}

// signedOutSince compares at millisecond precision, the finest both
// session tokens and Firebase revocation times carry.
func signedOutSince(ident *identity.Identity, authTime time.Time) bool {
	if ident.ValidAfter.IsZero() {
		return false
	}
	return authTime.UnixMilli() < ident.ValidAfter.UnixMilli()
}

func (m *Manager) watch(events <-chan identity.Event) {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handleEvent(ev)
		}
	}
}

// handleEvent reacts to a provider event for this session's identity:
// sign-out clears, a sign-in loads the profile unless it is already loaded.
func (m *Manager) handleEvent(ev identity.Event) {
	if !m.holds(ev.UID) || (!ev.SignedOut() && m.Snapshot().State == StateReady) {
		return
	}

	gen, err := m.acquire(m.ctx)
	if err != nil {
		return
	}
	if !m.holds(ev.UID) {
		m.release(gen, nil)
		return
	}
	if !ev.SignedOut() && m.Snapshot().State == StateReady {
		m.release(gen, nil)
		return
	}

	if ev.SignedOut() {
		m.logger.Info("Identity signed out elsewhere", zap.String("uid", ev.UID), zap.String("origin", ev.Origin))
		m.release(gen, func() {
			m.clearLocked()
			m.gen++
		})
		return
	}

	callCtx, cancel := m.callContext(m.ctx)
	defer cancel()
	if _, err := m.finishSignIn(callCtx, gen, ev.Identity); err != nil {
		m.logger.Debug("Profile reload after provider event failed", zap.String("uid", ev.UID), zap.Error(err))
	}
}

func (m *Manager) holds(uid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ident != nil && m.ident.UID == uid
}
