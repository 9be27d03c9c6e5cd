// Package enrichment adds per-device tags to writes from an external lookup.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-mqttinflux/pkg/cache"
	"github.com/illmade-knight/go-mqttinflux/pkg/telemetry"
	"github.com/rs/zerolog"
)

// Fetcher looks up data by key.
type Fetcher[K any, V any] func(ctx context.Context, key K) (V, error)

// NewDeviceTagSource returns a telemetry.TagSource backed by fetcher. Each
// lookup is bounded by timeout (zero means no bound). A device with no entry
// gets no extra tags. Lookup failures are logged and also yield no extra
// tags; they never cause a message to be dropped.
func NewDeviceTagSource(
	fetcher Fetcher[string, map[string]string],
	timeout time.Duration,
	logger zerolog.Logger,
) (telemetry.TagSource, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	tagLogger := logger.With().Str("component", "DeviceTagSource").Logger()

	return func(ctx context.Context, device string) map[string]string {
		if device == "" {
			return nil
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		tags, err := fetcher(ctx, device)
		if err != nil {
			if !errors.Is(err, cache.ErrNotFound) {
				tagLogger.Warn().Err(err).Str("device", device).Msg("Failed to fetch device tags, writing without them.")
			}
			return nil
		}
		return tags
	}, nil
}
