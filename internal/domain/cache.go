package domain

import (
	"context"
	"time"
)

// Cache defines the interface for connector-side caching. Each connector
// owns one namespace; entries are keyed by subject identifier. A cache
// miss is (nil, nil); connectors must fall back to a live fetch and
// must never fail the caller on a cache read error.
type Cache interface {
	// Get retrieves a value. Returns nil, nil when the key is absent
	// or expired.
	Get(ctx context.Context, namespace string, key string) ([]byte, error)

	// Set stores a value with the namespace's TTL.
	Set(ctx context.Context, namespace string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, namespace string, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
