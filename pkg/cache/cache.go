// Package cache provides generic read-through caches used to look up device
// metadata without a round trip per message.
package cache

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned, possibly wrapped, when a key has no value in the
// cache or any of its fallbacks.
var ErrNotFound = errors.New("not found")

// Fetcher retrieves a value by key. Caches are Fetchers themselves and take
// another Fetcher as their fallback, so they can be chained.
type Fetcher[K comparable, V any] interface {
	Fetch(ctx context.Context, key K) (V, error)
	io.Closer
}
