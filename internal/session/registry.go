package session

import (
	"sort"
	"sync"
)

// Registry holds the live sessions keyed by session id. Values are
// copied in and out so callers never share memory with the map.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]CallSession
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]CallSession)}
}

func (r *Registry) Insert(s CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.SessionID]; ok {
		return ErrSessionExists
	}
	r.sessions[s.SessionID] = s
	return nil
}

func (r *Registry) Get(id string) (CallSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Update applies fn to the stored session under the lock. It reports
// whether the session existed.
func (r *Registry) Update(id string, fn func(*CallSession)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	fn(&s)
	r.sessions[id] = s
	return true
}

func (r *Registry) Remove(id string) (CallSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// Snapshot returns all live sessions ordered by start time, oldest
// first, with the session id as tie-breaker.
func (r *Registry) Snapshot() []CallSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CallSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
