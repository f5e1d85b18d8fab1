package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. All methods require
// tenantID for strict multi-tenancy isolation. Nothing on the scoring hot
// path blocks on the repository; writes that fail are logged and never
// invalidate an already-returned score.
type Repository interface {
	// Feature snapshot operations. Snapshots feed the clustering job and the
	// rider history service.
	SaveSnapshot(ctx context.Context, tenantID string, fv *FeatureVector) error
	GetSnapshot(ctx context.Context, tenantID string, tripID string) (*FeatureVector, error)
	GetSnapshotsBySubject(ctx context.Context, tenantID string, subjectID string, since time.Time) ([]*FeatureVector, error)
	GetSnapshotsSince(ctx context.Context, tenantID string, since time.Time, limit int) ([]*FeatureVector, error)

	// Prediction operations
	SavePrediction(ctx context.Context, tenantID string, result *ScoreResult) error
	GetPrediction(ctx context.Context, tenantID string, predictionID string) (*ScoreResult, error)

	// Alert audit trail. The in-memory alert store is authoritative for the
	// operational window; this is the durable copy.
	SaveAlert(ctx context.Context, tenantID string, alert *AnomalyAlert) error
	MarkAlertResolved(ctx context.Context, tenantID string, alertID string, falsePositive bool) error

	// Custom archetype persistence
	SaveArchetype(ctx context.Context, tenantID string, archetype *CustomArchetype) error
	ListArchetypes(ctx context.Context, tenantID string) ([]*CustomArchetype, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CustomArchetype is an operator-defined fraud archetype whose signature is a
// CEL expression over the prediction instead of a static signal set.
type CustomArchetype struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Severity    string    `json:"severity"`
	Confidence  float64   `json:"confidence"`
	Expression  string    `json:"expression"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
