package domain

import (
	"context"
	"time"
)

// Cache memoizes scoring results. Scoring is a pure function of its
// inputs, so a cached result is always identical to a fresh one.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetResult retrieves a memoized risk result.
	GetResult(ctx context.Context, fingerprint string) (*RiskResult, error)

	// SetResult memoizes a risk result.
	SetResult(ctx context.Context, fingerprint string, result *RiskResult, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory", "redis" or "none"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis

	// ResultTTL is how long a scored result stays memoized
	ResultTTL time.Duration
}
