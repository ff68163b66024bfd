package pipeline

import (
	"sync"
	"time"
)

// DefaultGuardTTL bounds how long a stranded pipeline can block its user's
// next scheduled run. It comfortably exceeds a full paging sweep plus the
// provider retry budget.
const DefaultGuardTTL = 2 * time.Hour

// Guard is a per-user single-flight lock held from dispatch through cleanup,
// so two scheduler ticks cannot interleave one user's pipeline stages. Held
// entries expire after the TTL in case a crash strands a run mid-flight.
type Guard struct {
	mu   sync.Mutex
	held map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewGuard(ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	return &Guard{
		held: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Acquire claims the user's pipeline slot. It returns false when a run is
// already in flight and its hold has not expired.
func (g *Guard) Acquire(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if acquiredAt, ok := g.held[userID]; ok && now.Sub(acquiredAt) < g.ttl {
		return false
	}
	g.held[userID] = now
	return true
}

// Release frees the user's pipeline slot. Releasing an unheld slot is a
// no-op, so cleanup can release unconditionally.
func (g *Guard) Release(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, userID)
}
