// Package cache provides a TTL-memoizing key/value cache for note and
// folder listings. Correctness beats hit rate: any successful mutation
// anywhere in the system calls InvalidateAll before reporting success.
package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Clock abstracts time for tests.
type Clock func() time.Time

type entry[T any] struct {
	value    T
	expireAt time.Time
}

// Cache is a process-wide TTL cache guarded by a single mutex; it is read
// and invalidated from arbitrary call paths.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[string]entry[T]
	now     Clock
}

// New creates a cache using the given clock (nil means time.Now).
func New[T any](now Clock) *Cache[T] {
	if now == nil {
		now = time.Now
	}
	return &Cache[T]{
		entries: make(map[string]entry[T]),
		now:     now,
	}
}

// Get returns the cached value for key if it exists and has not expired.
// Expired entries are discarded lazily.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if !c.now().Before(e.expireAt) {
		delete(c.entries, key)
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the given TTL and returns it.
func (c *Cache[T]) Set(key string, value T, ttl time.Duration) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[T]{value: value, expireAt: c.now().Add(ttl)}
	return value
}

// InvalidateAll drops every entry.
func (c *Cache[T]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[T])
}

// Len returns the number of live entries (expired ones may still count
// until touched).
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Key builds a deterministic cache key from a prefix and the exact filter
// parameters that produce the listing. Map iteration order must not leak
// into the key, so pairs are sorted by name before serialization.
func Key(prefix string, params map[string]any) string {
	if len(params) == 0 {
		return prefix
	}
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteByte('{')
	for i, k := range names {
		if i > 0 {
			sb.WriteByte(',')
		}
		v, err := json.Marshal(params[k])
		if err != nil {
			v = []byte(fmt.Sprintf("%q", fmt.Sprint(params[k])))
		}
		sb.WriteString(fmt.Sprintf("%q:%s", k, v))
	}
	sb.WriteByte('}')
	return sb.String()
}
