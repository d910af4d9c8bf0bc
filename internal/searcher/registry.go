package searcher

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/textsearch/pkg/errors"
)

// DefaultSession is used when a caller does not name a session.
const DefaultSession = "default"

const (
	maxSessionIDLength = 64
	invalidateTimeout  = 2 * time.Second
)

// Registry owns one Service per session. Services are created on first use
// and evicted once idle for longer than the configured TTL.
type Registry struct {
	index  config.IndexConfig
	search config.SearchConfig
	deps   Deps
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Service
}

func NewRegistry(icfg config.IndexConfig, scfg config.SearchConfig, deps Deps) *Registry {
	return &Registry{
		index:    icfg,
		search:   scfg,
		deps:     deps,
		now:      time.Now,
		logger:   slog.Default().With("component", "session-registry"),
		sessions: make(map[string]*Service),
	}
}

// Get returns the Service for session, creating it if needed. An empty
// session selects DefaultSession.
func (r *Registry) Get(session string) (*Service, error) {
	if session == "" {
		session = DefaultSession
	}
	if err := ValidateSessionID(session); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if svc, ok := r.sessions[session]; ok {
		// Touched under mu so a concurrent Sweep cannot evict it before
		// the caller uses it.
		svc.touchAt(r.now())
		return svc, nil
	}
	if r.search.MaxSessions > 0 && len(r.sessions) >= r.search.MaxSessions {
		return nil, apperrors.Newf(apperrors.ErrCapacityExceeded, http.StatusServiceUnavailable,
			"session limit of %d reached", r.search.MaxSessions)
	}
	svc := NewService(session, r.index, r.search, r.deps)
	svc.touchAt(r.now())
	r.sessions[session] = svc
	r.deps.Metrics.SetActiveSessions(len(r.sessions))
	r.logger.Info("session created", "session", session, "active", len(r.sessions))
	return svc, nil
}

// Lookup returns an existing Service without creating one.
func (r *Registry) Lookup(session string) (*Service, error) {
	if session == "" {
		session = DefaultSession
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	svc, ok := r.sessions[session]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrSessionNotFound, http.StatusNotFound, "session %q", session)
	}
	return svc, nil
}

// Drop closes and forgets session. It reports whether the session existed.
func (r *Registry) Drop(session string) bool {
	r.mu.Lock()
	svc, ok := r.sessions[session]
	if ok {
		delete(r.sessions, session)
		r.deps.Metrics.SetActiveSessions(len(r.sessions))
	}
	r.mu.Unlock()
	if ok {
		svc.Close()
		r.invalidate(session)
		r.logger.Info("session dropped", "session", session)
	}
	return ok
}

// Sessions lists active session ids in sorted order.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sweep evicts sessions idle for longer than the session TTL and returns
// how many were removed. A non-positive TTL disables eviction.
func (r *Registry) Sweep() int {
	if r.search.SessionTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.search.SessionTTL)
	var idle []*Service
	r.mu.Lock()
	for id, svc := range r.sessions {
		if svc.LastUsed().Before(cutoff) {
			idle = append(idle, svc)
			delete(r.sessions, id)
		}
	}
	active := len(r.sessions)
	r.mu.Unlock()

	for _, svc := range idle {
		svc.Close()
		r.invalidate(svc.Session())
		r.logger.Info("idle session evicted", "session", svc.Session(), "last_used", svc.LastUsed())
	}
	if len(idle) > 0 {
		r.deps.Metrics.SetActiveSessions(active)
	}
	return len(idle)
}

// invalidate drops the cached results of a discarded session. The epoch in
// every key already hides them from a recreated session; this reclaims the
// space.
func (r *Registry) invalidate(session string) {
	if r.deps.Cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()
	if _, err := r.deps.Cache.Invalidate(ctx, session); err != nil {
		r.logger.Warn("cache invalidation failed", "session", session, "error", err)
	}
}

// StartSweeper runs Sweep every SweepInterval until ctx is cancelled.
func (r *Registry) StartSweeper(ctx context.Context) {
	if r.search.SweepInterval <= 0 || r.search.SessionTTL <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(r.search.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

// Close drops every session.
func (r *Registry) Close() {
	for _, id := range r.Sessions() {
		r.Drop(id)
	}
}

// ValidateSessionID accepts 1-64 characters from [A-Za-z0-9._-]. Session
// ids become part of cache keys, so glob characters are rejected.
func ValidateSessionID(id string) error {
	if id == "" || len(id) > maxSessionIDLength {
		return apperrors.Invalid("session id must be 1-%d characters", maxSessionIDLength)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
		default:
			return apperrors.Invalid("session id contains invalid character %q", r)
		}
	}
	return nil
}
