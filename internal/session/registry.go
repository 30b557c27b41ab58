package session

import (
	"errors"
	"sync"
	"time"
)

// ErrDuplicateSession is returned by Create when session_id already names an
// active session.
var ErrDuplicateSession = errors.New("session: duplicate session_id")

// ErrCapacityExhausted is returned by Create when admission control rejects
// the new session (spec.md §4.6, maps to error{kind=capacity_exhausted}).
var ErrCapacityExhausted = errors.New("session: capacity exhausted")

// ErrNotOrphan is returned by Adopt when the target session isn't currently
// ORPHAN.
var ErrNotOrphan = errors.New("session: not orphan")

// Registry is the process-wide concurrent map of session_id -> *Session,
// with admission control and periodic orphan reaping (spec.md §4.6).
// Guarded by a single RWMutex over the map plus a per-key counter map;
// per-session mutation is guarded by the Session's own mutex, following the
// fine-grained-locking split the retrieval pack's RTMP stream registry uses
// (a registry-level lock for membership, per-entry locks for content).
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byAPIKey map[string]int

	globalCap int
	perKeyCap int
}

// NewRegistry creates an empty Registry with the given admission caps.
func NewRegistry(globalCap, perKeyCap int) *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		byAPIKey:  make(map[string]int),
		globalCap: globalCap,
		perKeyCap: perKeyCap,
	}
}

// Create admits a new session if under both the global and per-API-key cap
// and no active session already owns id. The double-checked pattern below
// mirrors the pack's stream registry: a cheap read-locked existence check,
// then a write-locked admission decision.
func (r *Registry) Create(s *Session) error {
	r.mu.RLock()
	if _, exists := r.sessions[s.ID]; exists {
		r.mu.RUnlock()
		return ErrDuplicateSession
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; exists {
		return ErrDuplicateSession
	}
	if r.globalCap > 0 && len(r.sessions) >= r.globalCap {
		return ErrCapacityExhausted
	}
	if r.perKeyCap > 0 && r.byAPIKey[s.APIKey] >= r.perKeyCap {
		return ErrCapacityExhausted
	}

	r.sessions[s.ID] = s
	r.byAPIKey[s.APIKey]++
	return nil
}

// Lookup returns the session for id, or nil if absent.
func (r *Registry) Lookup(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// MarkOrphan transitions the session to ORPHAN. No-op if id is unknown.
func (r *Registry) MarkOrphan(id string) error {
	s := r.Lookup(id)
	if s == nil {
		return nil
	}
	return s.OnTransportGone()
}

// Adopt re-attaches a resumed session: it must currently be ORPHAN. The
// caller supplies resumeToDraining to pick the right post-adopt state (see
// Session.OnResume).
func (r *Registry) Adopt(id string, resumeToDraining bool) (*Session, error) {
	s := r.Lookup(id)
	if s == nil {
		return nil, ErrNotOrphan
	}
	if s.State() != StateOrphan {
		return nil, ErrNotOrphan
	}
	if err := s.OnResume(resumeToDraining); err != nil {
		return nil, err
	}
	return s, nil
}

// Remove deletes a session from the registry and decrements its API key's
// count. Called once a session reaches CLOSED.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	r.byAPIKey[s.APIKey]--
	if r.byAPIKey[s.APIKey] <= 0 {
		delete(r.byAPIKey, s.APIKey)
	}
}

// Reap sweeps every ORPHAN session whose grace period has expired, closes
// it, and removes it from the registry. Intended to run on a periodic
// ticker from cmd/gateway.
func (r *Registry) Reap(grace time.Duration) []string {
	r.mu.RLock()
	var candidates []*Session
	for _, s := range r.sessions {
		if s.State() == StateOrphan && s.OrphanExpired(grace) {
			candidates = append(candidates, s)
		}
	}
	r.mu.RUnlock()

	var reaped []string
	for _, s := range candidates {
		_ = s.CloseFromOrphan()
		r.Remove(s.ID)
		reaped = append(reaped, s.ID)
	}
	return reaped
}

// ActiveCount returns the number of sessions currently tracked (any state
// except CLOSED, since CLOSED sessions are removed immediately).
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
