package cache_test

import (
	"context"
	"fmt"
	"sync/atomic"
)

// mockFetcher is a test double for the cache.Fetcher interface.
type mockFetcher[K comparable, V any] struct {
	FetchFunc  func(ctx context.Context, key K) (V, error)
	callCount  atomic.Int32
	closeCount atomic.Int32
}

func (m *mockFetcher[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	m.callCount.Add(1)
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, key)
	}
	var zero V
	return zero, fmt.Errorf("mock fetcher not implemented")
}

func (m *mockFetcher[K, V]) Close() error {
	m.closeCount.Add(1)
	return nil
}
