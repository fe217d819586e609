package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetCurrentScore retrieves a cached current-score record.
	// Returns nil, nil on a miss.
	GetCurrentScore(ctx context.Context, patientID string) (*RiskScore, error)

	// SetCurrentScore caches the current-score record for a patient.
	// Rewritten on every successful calculation.
	SetCurrentScore(ctx context.Context, patientID string, score *RiskScore, ttl time.Duration) error

	// InvalidateCurrentScore drops the cached record for a patient.
	InvalidateCurrentScore(ctx context.Context, patientID string) error

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
