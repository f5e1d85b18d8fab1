package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations. Supports two-phase
// caching: local LRU (Community) + Redis (Pro). All methods require tenantID
// for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache. Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetPrediction retrieves a cached prediction summary by trip ID.
	GetPrediction(ctx context.Context, tenantID string, tripID string) (*PredictionSummary, error)

	// SetPrediction caches a prediction summary for fast repeat lookups.
	SetPrediction(ctx context.Context, tenantID string, tripID string, summary *PredictionSummary, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the new
	// value. Used by the rider history service for trips-today fast paths.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// GetCounter reads a counter without mutating it. Returns ok=false when
	// the counter does not exist or its window has expired.
	GetCounter(ctx context.Context, tenantID string, key string) (value int64, ok bool, err error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// PredictionSummary is the compact cached form of a scoring result.
type PredictionSummary struct {
	PredictionID string    `json:"predictionId"`
	TripID       string    `json:"tripId"`
	SubjectID    string    `json:"subjectId"`
	Overall      float64   `json:"overall"`
	FraudScore   float64   `json:"fraudScore"`
	RiskLevel    RiskLevel `json:"riskLevel"`
	Timestamp    string    `json:"timestamp"`
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
