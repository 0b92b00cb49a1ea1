package dedup

import (
	"log"
	"sync"
	"time"
)

// DefaultTTL covers Telegram's webhook retry window.
const DefaultTTL = 10 * time.Minute

// UpdateCache remembers Telegram update ids so a redelivered webhook is
// handled once.
type UpdateCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[int]time.Time
}

// NewUpdateCache creates an empty cache; a non-positive ttl means DefaultTTL.
func NewUpdateCache(ttl time.Duration) *UpdateCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &UpdateCache{
		ttl:  ttl,
		now:  time.Now,
		seen: make(map[int]time.Time),
	}
}

// Seen records the update id and reports whether it was already recorded
// within the TTL.
// Mutex is required because Go maps are NOT thread-safe
func (c *UpdateCache) Seen(updateID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if at, exists := c.seen[updateID]; exists && now.Sub(at) < c.ttl {
		return true
	}

	c.prune(now)
	c.seen[updateID] = now
	return false
}

// Forget drops the update id so a redelivery is handled again.
func (c *UpdateCache) Forget(updateID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seen, updateID)
}

func (c *UpdateCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// prune drops expired ids; callers hold the lock.
func (c *UpdateCache) prune(now time.Time) {
	removed := 0
	for id, at := range c.seen {
		if now.Sub(at) >= c.ttl {
			delete(c.seen, id)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("🧹 Expired %d seen updates (%d kept)", removed, len(c.seen))
	}
}
