package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix is prepended to every key, e.g. "device:".
	KeyPrefix string
}

// Env constants for Redis settings.
const (
	RedisAddr      = "REDIS_ADDR"
	RedisPassword  = "REDIS_PASSWORD"
	RedisDB        = "REDIS_DB"
	RedisKeyPrefix = "REDIS_KEY_PREFIX"
)

// LoadRedisConfigWithEnv reads Redis settings from the environment. It
// returns nil when REDIS_ADDR is unset, meaning Redis is not in use.
func LoadRedisConfigWithEnv() *RedisConfig {
	addr := os.Getenv(RedisAddr)
	if addr == "" {
		return nil
	}
	cfg := &RedisConfig{
		Addr:      addr,
		Password:  os.Getenv(RedisPassword),
		KeyPrefix: "device:",
	}
	if p, ok := os.LookupEnv(RedisKeyPrefix); ok {
		cfg.KeyPrefix = p
	}
	if db := os.Getenv(RedisDB); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.DB = n
		}
	}
	return cfg
}

// RedisCache is a read-only Fetcher over JSON values stored in Redis. Values
// are maintained by whoever owns the data; the bridge never writes them.
type RedisCache[K comparable, V any] struct {
	redisClient *redis.Client
	keyPrefix   string
	logger      zerolog.Logger
}

// NewRedisCache connects to Redis and pings it before returning.
func NewRedisCache[K comparable, V any](ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisCache[K, V], error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	return &RedisCache[K, V]{
		redisClient: rdb,
		keyPrefix:   cfg.KeyPrefix,
		logger:      logger.With().Str("component", "RedisCache").Logger(),
	}, nil
}

// Fetch reads and unmarshals the value stored under key. A missing key
// yields ErrNotFound.
func (c *RedisCache[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var zero V
	stringKey := c.keyPrefix + fmt.Sprintf("%v", key)

	cachedData, err := c.redisClient.Get(ctx, stringKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, fmt.Errorf("key '%s': %w", stringKey, ErrNotFound)
		}
		return zero, fmt.Errorf("redis get failed for key %s: %w", stringKey, err)
	}

	var value V
	if err := json.Unmarshal([]byte(cachedData), &value); err != nil {
		return zero, fmt.Errorf("failed to unmarshal data for key %s: %w", stringKey, err)
	}
	c.logger.Debug().Str("key", stringKey).Msg("Redis cache hit.")
	return value, nil
}

// Close closes the Redis client connection.
func (c *RedisCache[K, V]) Close() error {
	if c.redisClient != nil {
		c.logger.Info().Msg("Closing Redis client connection...")
		return c.redisClient.Close()
	}
	return nil
}
