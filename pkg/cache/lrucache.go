package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type lruCacheItem[K comparable, V any] struct {
	key     K
	value   V
	missing bool
	expires time.Time
}

// InMemoryLRUCache is a size-bounded, thread-safe cache with least recently
// used eviction. Entries expire after ttl, so changes at the source show up
// eventually. Keys the fallback reports as ErrNotFound are remembered as
// missing for the same ttl.
type InMemoryLRUCache[K comparable, V any] struct {
	maxSize  int
	ttl      time.Duration
	fallback Fetcher[K, V]

	mu    sync.Mutex
	ll    *list.List
	cache map[K]*list.Element
}

// NewInMemoryLRUCache creates an LRU cache holding at most maxSize entries.
// A zero ttl keeps entries until they are evicted.
func NewInMemoryLRUCache[K comparable, V any](maxSize int, ttl time.Duration, fallback Fetcher[K, V]) (*InMemoryLRUCache[K, V], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("maxSize must be greater than 0")
	}
	if fallback == nil {
		return nil, fmt.Errorf("fallback cannot be nil")
	}
	return &InMemoryLRUCache[K, V]{
		maxSize:  maxSize,
		ttl:      ttl,
		fallback: fallback,
		ll:       list.New(),
		cache:    make(map[K]*list.Element),
	}, nil
}

// Fetch returns the cached entry for key or loads it from the fallback.
func (c *InMemoryLRUCache[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var zero V

	c.mu.Lock()
	if elem, ok := c.cache[key]; ok {
		item := elem.Value.(*lruCacheItem[K, V])
		if item.expires.IsZero() || time.Now().Before(item.expires) {
			c.ll.MoveToFront(elem)
			c.mu.Unlock()
			if item.missing {
				return zero, fmt.Errorf("key '%v': %w", key, ErrNotFound)
			}
			return item.value, nil
		}
		c.ll.Remove(elem)
		delete(c.cache, key)
	}
	c.mu.Unlock()

	value, err := c.fallback.Fetch(ctx, key)
	missing := errors.Is(err, ErrNotFound)
	if err != nil && !missing {
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.ll.Remove(elem)
	}
	item := &lruCacheItem[K, V]{key: key, value: value, missing: missing}
	if c.ttl > 0 {
		item.expires = time.Now().Add(c.ttl)
	}
	c.cache[key] = c.ll.PushFront(item)
	if c.ll.Len() > c.maxSize {
		c.evict()
	}
	return value, err
}

// Len reports the number of cached entries.
func (c *InMemoryLRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// evict removes the least recently used item. Callers hold c.mu.
func (c *InMemoryLRUCache[K, V]) evict() {
	if back := c.ll.Back(); back != nil {
		item := c.ll.Remove(back).(*lruCacheItem[K, V])
		delete(c.cache, item.key)
	}
}

// Close closes the fallback.
func (c *InMemoryLRUCache[K, V]) Close() error {
	return c.fallback.Close()
}
