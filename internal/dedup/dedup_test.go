package dedup

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUpdateCacheSeen(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := NewUpdateCache(time.Minute)
	cache.now = func() time.Time { return now }

	assert.False(t, cache.Seen(1), "first delivery")
	assert.True(t, cache.Seen(1), "redelivery")
	assert.False(t, cache.Seen(2))

	now = now.Add(30 * time.Second)
	assert.True(t, cache.Seen(1))

	now = now.Add(time.Minute)
	assert.False(t, cache.Seen(1), "expired id is handled again")
	assert.Equal(t, 1, cache.Len(), "id 2 pruned")
}

func TestUpdateCacheDefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, NewUpdateCache(0).ttl)
}

func TestUpdateCacheConcurrent(t *testing.T) {
	cache := NewUpdateCache(time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !cache.Seen(42) {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
}

func TestUpdateCacheForget(t *testing.T) {
	cache := NewUpdateCache(time.Minute)

	assert.False(t, cache.Seen(5))
	cache.Forget(5)
	assert.Equal(t, 0, cache.Len())
	assert.False(t, cache.Seen(5), "forgotten id is handled again")
	assert.True(t, cache.Seen(5))

	cache.Forget(99)
	assert.Equal(t, 1, cache.Len())
}
