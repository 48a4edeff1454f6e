package cache

import (
	"context"
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time // zero means the entry never expires
}

func (i item[V]) expired(at time.Time) bool {
	return !i.expiresAt.IsZero() && !at.Before(i.expiresAt)
}

// TTLCache is a goroutine-safe map with per-entry expiry. Expired entries are
// hidden from readers immediately and reclaimed by PurgeExpired or the janitor.
type TTLCache[K comparable, V any] struct {
	mu         sync.RWMutex
	items      map[K]item[V]
	defaultTTL time.Duration
}

// NewTTLCache returns an empty cache. A defaultTTL <= 0 means entries set
// without an explicit ttl never expire.
func NewTTLCache[K comparable, V any](defaultTTL time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		items:      make(map[K]item[V]),
		defaultTTL: defaultTTL,
	}
}

// now is swapped out by tests.
var now = time.Now

func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || it.expired(now()) {
		var zero V
		return zero, false
	}
	return it.value, true
}

func (c *TTLCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	var exp time.Time
	if ttl > 0 {
		exp = now().Add(ttl)
	}

	c.mu.Lock()
	c.items[key] = item[V]{value: value, expiresAt: exp}
	c.mu.Unlock()
}

func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	at := now()
	n := 0
	for _, it := range c.items {
		if !it.expired(at) {
			n++
		}
	}
	return n
}

func (c *TTLCache[K, V]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	at := now()
	removed := 0
	for k, it := range c.items {
		if it.expired(at) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// RunJanitor purges expired entries every interval until ctx is cancelled.
func (c *TTLCache[K, V]) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.PurgeExpired()
		}
	}
}

var _ Cache[string, int] = (*TTLCache[string, int])(nil)
