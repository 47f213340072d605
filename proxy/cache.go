package proxy

import (
	"sync"
	"time"
)

// TTLCache throttles repeated control-plane calls per team. A stale read only
// costs one redundant check or one skipped bump inside the TTL window, so a
// plain mutex-guarded map is all the safety this needs. Entries are never
// evicted; a process restart clears them.
type TTLCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
}

func NewTTLCache(ttl time.Duration) *TTLCache {
	return &TTLCache{
		ttl:     ttl,
		entries: make(map[string]time.Time),
	}
}

// ShouldRefresh reports whether no refresh happened for team inside the TTL.
func (c *TTLCache) ShouldRefresh(team string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.entries[team]
	return !ok || now.Sub(last) > c.ttl
}

func (c *TTLCache) MarkRefreshed(team string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[team] = now
}
