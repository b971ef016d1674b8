package websocket

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks live sessions per auction. The lock spans only map
// mutation and snapshotting, never network I/O.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[uuid.UUID]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]map[uuid.UUID]*Session),
	}
}

// Add registers a session under its auction.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byAuction, ok := r.sessions[s.auctionID]
	if !ok {
		byAuction = make(map[uuid.UUID]*Session)
		r.sessions[s.auctionID] = byAuction
	}
	byAuction[s.id] = s
}

// Remove drops a session; empty auction buckets are reclaimed.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byAuction, ok := r.sessions[s.auctionID]
	if !ok {
		return
	}
	delete(byAuction, s.id)
	if len(byAuction) == 0 {
		delete(r.sessions, s.auctionID)
	}
}

// Count returns the number of live sessions across all auctions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, byAuction := range r.sessions {
		n += len(byAuction)
	}
	return n
}

// CountAuction returns the number of live sessions on one auction.
func (r *Registry) CountAuction(auctionID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[auctionID])
}

// snapshot copies the current session set so callers can iterate without
// holding the lock.
func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, byAuction := range r.sessions {
		for _, s := range byAuction {
			out = append(out, s)
		}
	}
	return out
}

// Drain closes every live session. Used on shutdown; sessions unregister
// themselves as their goroutines unwind.
func (r *Registry) Drain() {
	for _, s := range r.snapshot() {
		s.Close()
	}
}
