package cache

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryCache is a thread-safe map of values set explicitly, typically
// loaded from a file at startup. Keys it does not hold are passed to an
// optional fallback; fallback results are not stored, so the fallback keeps
// its own expiry policy.
type InMemoryCache[K comparable, V any] struct {
	mu       sync.RWMutex
	data     map[K]V
	fallback Fetcher[K, V]
}

// NewInMemoryCache creates an in-memory cache. fallback may be nil.
func NewInMemoryCache[K comparable, V any](fallback Fetcher[K, V]) *InMemoryCache[K, V] {
	return &InMemoryCache[K, V]{
		data:     make(map[K]V),
		fallback: fallback,
	}
}

// Set stores value under key.
func (c *InMemoryCache[K, V]) Set(_ context.Context, key K, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

// Fetch returns the stored value, or asks the fallback on a miss.
func (c *InMemoryCache[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	c.mu.RLock()
	value, ok := c.data[key]
	c.mu.RUnlock()
	if ok {
		return value, nil
	}

	if c.fallback == nil {
		var zero V
		return zero, fmt.Errorf("key '%v': %w", key, ErrNotFound)
	}
	return c.fallback.Fetch(ctx, key)
}

// Close closes the fallback, if any.
func (c *InMemoryCache[K, V]) Close() error {
	if c.fallback == nil {
		return nil
	}
	return c.fallback.Close()
}
