package renderapi

import (
	"sync"
	"time"

	"github.com/goliatone/go-nbexport/nbexport"
)

// DefaultSessionTTL is how long an idle session keeps its scoped service.
const DefaultSessionTTL = 30 * time.Minute

// sessionRegistry memoizes per-session services so a client's attempt log
// survives across requests. Idle sessions are pruned on access.
type sessionRegistry struct {
	mu      sync.Mutex
	base    nbexport.Service
	ttl     time.Duration
	clock   func() time.Time
	entries map[string]*sessionEntry
}

type sessionEntry struct {
	service  nbexport.Service
	lastSeen time.Time
}

func newSessionRegistry(base nbexport.Service, ttl time.Duration, clock func() time.Time) *sessionRegistry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &sessionRegistry{
		base:    base,
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]*sessionEntry),
	}
}

// For returns the service scoped to id, creating it on first use. An empty id
// returns the shared base service.
func (r *sessionRegistry) For(id string) nbexport.Service {
	if r == nil || r.base == nil {
		return nil
	}
	if id == "" {
		return r.base
	}

	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, entry := range r.entries {
		if now.Sub(entry.lastSeen) > r.ttl {
			delete(r.entries, key)
		}
	}

	entry, ok := r.entries[id]
	if !ok {
		entry = &sessionEntry{service: r.base.Session(id)}
		r.entries[id] = entry
	}
	entry.lastSeen = now
	return entry.service
}

// Len reports the live session count.
func (r *sessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
