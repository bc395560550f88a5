// File: internal/session/registry.go
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Factory builds an un-initialized Manager.
type Factory func() *Manager

type pendingRestore struct {
	done    chan struct{}
	manager *Manager
	err     error
}

// Registry maps session ids to live Managers. Idle sessions expire and are disposed.
type Registry struct {
	cache   *cache.Cache
	factory Factory
	idleTTL time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]*pendingRestore
}

// NewRegistry creates a Registry whose entries expire after idleTTL without access.
func NewRegistry(factory Factory, idleTTL time.Duration, logger *zap.Logger) *Registry {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	cleanup := idleTTL / 2
	if cleanup > 5*time.Minute {
		cleanup = 5 * time.Minute
	}
	r := &Registry{
		cache:   cache.New(idleTTL, cleanup),
		factory: factory,
		idleTTL: idleTTL,
		logger:  logger.Named("session.registry"),
		pending: make(map[string]*pendingRestore),
	}
	r.cache.OnEvicted(func(sid string, v interface{}) {
		if m, ok := v.(*Manager); ok {
			m.Dispose()
			r.logger.Debug("Session disposed", zap.String("sid", sid))
		}
	})
	return r
}

// Create starts a new unauthenticated session.
func (r *Registry) Create(ctx context.Context) (string, *Manager, error) {
	m := r.factory()
	if err := m.Init(ctx); err != nil {
		m.Dispose()
		return "", nil, err
	}
	sid := uuid.NewString()
	r.cache.SetDefault(sid, m)
	return sid, m, nil
}

// Get returns the live session for sid and extends its idle deadline.
func (r *Registry) Get(sid string) (*Manager, bool) {
	v, ok := r.cache.Get(sid)
	if !ok {
		return nil, false
	}
	m := v.(*Manager)
	r.cache.SetDefault(sid, m)
	return m, true
}

// Resume returns the session for sid, rebuilding it for uid when it is no
// longer in memory. authTime is when the session authenticated, as carried by
// its token. Concurrent resumes of one sid share a single restore.
func (r *Registry) Resume(ctx context.Context, sid, uid string, authTime time.Time) (*Manager, error) {
	r.mu.Lock()
	if m, ok := r.Get(sid); ok {
		r.mu.Unlock()
		return m, nil
	}
	if p, ok := r.pending[sid]; ok {
		r.mu.Unlock()
		select {
		case <-p.done:
			return p.manager, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p := &pendingRestore{done: make(chan struct{})}
	r.pending[sid] = p
	r.mu.Unlock()

	m := r.factory()
	err := m.Init(ctx)
	if err == nil {
		err = m.Restore(ctx, uid, authTime)
	}
	if errors.Is(err, ErrProfileMissing) {
		// The session exists; its state tells callers the profile is missing.
		err = nil
	}

	r.mu.Lock()
	delete(r.pending, sid)
	if err != nil {
		m.Dispose()
		p.err = err
	} else {
		r.cache.SetDefault(sid, m)
		p.manager = m
		r.logger.Debug("Session restored", zap.String("sid", sid), zap.String("uid", uid))
	}
	r.mu.Unlock()
	close(p.done)
	return p.manager, p.err
}

// Remove disposes and forgets the session.
func (r *Registry) Remove(sid string) {
	r.cache.Delete(sid)
}

// Len returns the number of live sessions, including expired ones not yet swept.
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

// Close disposes every session.
func (r *Registry) Close() {
	for sid := range r.cache.Items() {
		r.cache.Delete(sid)
	}
}
