package main

import (
	"context"

	"github.com/illmade-knight/go-mqttinflux/pkg/cache"
	"github.com/illmade-knight/go-mqttinflux/pkg/enrichment"
	"github.com/illmade-knight/go-mqttinflux/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// newDeviceTagStore builds the lookup behind device tag enrichment: entries
// from tagFile first, then Redis through an LRU. It returns nil when neither
// is configured. An unreachable Redis is logged and left out; a bad tag file
// is an error.
func newDeviceTagStore(
	ctx context.Context,
	tagFile string,
	redisCfg *cache.RedisConfig,
	reg prometheus.Registerer,
	logger zerolog.Logger,
) (cache.Fetcher[string, map[string]string], error) {
	var fallback cache.Fetcher[string, map[string]string]

	if redisCfg != nil {
		redisCache, err := cache.NewRedisCache[string, map[string]string](ctx, redisCfg, logger)
		if err != nil {
			logger.Warn().Err(err).Str("redis_address", redisCfg.Addr).Msg("Redis unavailable, continuing without Redis device tags.")
		} else {
			lru, err := cache.NewInMemoryLRUCache[string, map[string]string](deviceCacheSize, deviceCacheTTL, redisCache)
			if err != nil {
				_ = redisCache.Close()
				return nil, err
			}
			if reg != nil {
				if err := metrics.RegisterCacheSize(reg, lru.Len); err != nil {
					_ = lru.Close()
					return nil, err
				}
			}
			fallback = lru
		}
	}

	if tagFile == "" {
		return fallback, nil
	}
	store, err := enrichment.LoadDeviceTagStore(ctx, tagFile, fallback)
	if err != nil {
		if fallback != nil {
			_ = fallback.Close()
		}
		return nil, err
	}
	logger.Info().Str("file", tagFile).Msg("Loaded static device tags.")
	return store, nil
}
