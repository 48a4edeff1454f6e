package cache

import "time"

// Cache is a small key-value store whose entries may expire.
type Cache[K comparable, V any] interface {
	// Get returns the value stored under key if it has not expired.
	Get(key K) (V, bool)

	// Set stores value under key. A ttl <= 0 uses the cache default.
	Set(key K, value V, ttl time.Duration)

	// Delete removes key if present.
	Delete(key K)

	// Len returns the number of live entries.
	Len() int

	// PurgeExpired drops every expired entry and reports how many were removed.
	PurgeExpired() int
}
