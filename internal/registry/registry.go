// Package registry holds the process-wide session map. It owns the
// SessionLedgers: each ledger is wrapped in a Session handle carrying the
// per-session lock that serializes mutation against reads, since the ledgers
// themselves are not internally synchronized.
package registry

import (
	"sort"
	"sync"

	"github.com/okian/pitwall/internal/domain/timing"
)

// Session pairs a ledger with its coordinating lock. Mutations go through
// Update, reads through View; Swap replaces the ledger wholesale for
// snapshot resync.
type Session struct {
	mu     sync.RWMutex
	ledger *timing.SessionLedger
}

// Update runs fn with exclusive access to the ledger.
func (s *Session) Update(fn func(*timing.SessionLedger)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.ledger)
}

// View runs fn with shared read access to the ledger.
func (s *Session) View(fn func(*timing.SessionLedger)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.ledger)
}

// Swap replaces the session's ledger, discarding all prior state.
func (s *Session) Swap(ledger *timing.SessionLedger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = ledger
}

// Registry maps session ids to active sessions. Join and Leave may race
// with lookups from other goroutines, so the map is guarded.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Join returns the session for id, creating an empty one on first call.
// Idempotent: joining an active session does not reset its state.
func (r *Registry) Join(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := &Session{ledger: timing.NewSessionLedger(id)}
	r.sessions[id] = s
	return s
}

// Leave removes the session and discards all contained state. No-op if the
// session is absent.
func (r *Registry) Leave(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Get returns the session for id without side effects.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the active session ids in ascending order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DeviceCount returns the total number of devices tracked across all
// sessions.
func (r *Registry) DeviceCount() int {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	total := 0
	for _, s := range sessions {
		s.View(func(l *timing.SessionLedger) {
			total += l.DeviceCount()
		})
	}
	return total
}
