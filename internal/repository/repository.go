// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xpress-ops/riskcore/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveSnapshot stores a feature vector snapshot with tenant isolation.
// Re-submitting the same trip overwrites the previous snapshot.
func (r *SQLRepository) SaveSnapshot(ctx context.Context, tenantID string, fv *domain.FeatureVector) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if fv == nil || fv.TripID == "" {
		return fmt.Errorf("%w: tripID is required", ErrInvalidInput)
	}

	features, err := json.Marshal(fv)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	query := `
		INSERT INTO feature_snapshots (
			trip_id, tenant_id, subject_id, timestamp, created_at, features
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(trip_id, tenant_id) DO UPDATE SET
			subject_id = excluded.subject_id,
			timestamp = excluded.timestamp,
			features = excluded.features
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		fv.TripID, tenantID, fv.SubjectID,
		fv.Timestamp, time.Now().UTC(), string(features),
	)
	return err
}

// GetSnapshot retrieves a feature vector by trip ID with tenant isolation.
func (r *SQLRepository) GetSnapshot(ctx context.Context, tenantID string, tripID string) (*domain.FeatureVector, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT features
		FROM feature_snapshots
		WHERE tenant_id = ? AND trip_id = ?
	`

	var features string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, tripID).Scan(&features)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var fv domain.FeatureVector
	if err := json.Unmarshal([]byte(features), &fv); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", tripID, err)
	}

	return &fv, nil
}

// GetSnapshotsBySubject retrieves snapshots for a subject with tenant isolation.
func (r *SQLRepository) GetSnapshotsBySubject(ctx context.Context, tenantID string, subjectID string, since time.Time) ([]*domain.FeatureVector, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT features
		FROM feature_snapshots
		WHERE tenant_id = ? AND subject_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, subjectID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// GetSnapshotsSince retrieves the most recent snapshots across all subjects,
// capped at limit. Feeds the periodic clustering job.
func (r *SQLRepository) GetSnapshotsSince(ctx context.Context, tenantID string, since time.Time, limit int) ([]*domain.FeatureVector, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT features
		FROM feature_snapshots
		WHERE tenant_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

func scanSnapshots(rows *sql.Rows) ([]*domain.FeatureVector, error) {
	var snapshots []*domain.FeatureVector
	for rows.Next() {
		var features string
		if err := rows.Scan(&features); err != nil {
			return nil, err
		}

		var fv domain.FeatureVector
		if err := json.Unmarshal([]byte(features), &fv); err != nil {
			return nil, fmt.Errorf("failed to parse snapshot: %w", err)
		}
		snapshots = append(snapshots, &fv)
	}

	return snapshots, rows.Err()
}

// SavePrediction stores a scoring result with tenant isolation.
func (r *SQLRepository) SavePrediction(ctx context.Context, tenantID string, result *domain.ScoreResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if result == nil || result.Prediction == nil || result.Anomaly == nil {
		return fmt.Errorf("%w: incomplete score result", ErrInvalidInput)
	}

	anomaly, _ := json.Marshal(result.Anomaly)
	prediction, _ := json.Marshal(result.Prediction)

	p := result.Prediction

	query := `
		INSERT INTO predictions (
			id, tenant_id, trip_id, subject_id, overall, fraud_score,
			risk_level, timestamp, anomaly, prediction
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, tenantID, p.TripID, p.SubjectID,
		result.Anomaly.Overall, p.FraudScore,
		string(p.RiskLevel), p.Timestamp,
		string(anomaly), string(prediction),
	)
	return err
}

// GetPrediction retrieves a scoring result by prediction ID with tenant isolation.
func (r *SQLRepository) GetPrediction(ctx context.Context, tenantID string, predictionID string) (*domain.ScoreResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT anomaly, prediction
		FROM predictions
		WHERE tenant_id = ? AND id = ?
	`

	var anomaly, prediction string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, predictionID).Scan(&anomaly, &prediction)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var result domain.ScoreResult
	if err := json.Unmarshal([]byte(anomaly), &result.Anomaly); err != nil {
		return nil, fmt.Errorf("failed to parse anomaly for %s: %w", predictionID, err)
	}
	if err := json.Unmarshal([]byte(prediction), &result.Prediction); err != nil {
		return nil, fmt.Errorf("failed to parse prediction for %s: %w", predictionID, err)
	}

	return &result, nil
}

// SaveAlert stores an alert in the durable audit trail with tenant isolation.
func (r *SQLRepository) SaveAlert(ctx context.Context, tenantID string, alert *domain.AnomalyAlert) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if alert == nil || alert.ID == "" {
		return fmt.Errorf("%w: alert ID is required", ErrInvalidInput)
	}

	features, _ := json.Marshal(alert.Features)

	resolved := 0
	if alert.Resolved {
		resolved = 1
	}
	falsePositive := 0
	if alert.FalsePositive {
		falsePositive = 1
	}

	query := `
		INSERT INTO alerts (
			id, tenant_id, type, severity, subject_id, description,
			features, confidence, timestamp, resolved, false_positive
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, tenantID, alert.Type, alert.Severity,
		alert.SubjectID, alert.Description,
		string(features), alert.Confidence, alert.Timestamp,
		resolved, falsePositive,
	)
	return err
}

// MarkAlertResolved flags an alert as resolved in the audit trail.
func (r *SQLRepository) MarkAlertResolved(ctx context.Context, tenantID string, alertID string, falsePositive bool) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	fp := 0
	if falsePositive {
		fp = 1
	}

	query := `
		UPDATE alerts
		SET resolved = 1, false_positive = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), fp, tenantID, alertID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveArchetype stores a custom fraud archetype with tenant isolation.
// Saving an existing ID updates the stored definition in place.
func (r *SQLRepository) SaveArchetype(ctx context.Context, tenantID string, archetype *domain.CustomArchetype) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if archetype == nil || archetype.ID == "" {
		return fmt.Errorf("%w: archetype ID is required", ErrInvalidInput)
	}
	if archetype.Expression == "" {
		return fmt.Errorf("%w: archetype expression is required", ErrInvalidInput)
	}

	enabled := 0
	if archetype.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO archetypes (
			id, tenant_id, name, description, severity, confidence,
			expression, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			severity = excluded.severity,
			confidence = excluded.confidence,
			expression = excluded.expression,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		archetype.ID, tenantID, archetype.Name, archetype.Description,
		archetype.Severity, archetype.Confidence,
		archetype.Expression, enabled,
		now, now,
	)
	return err
}

// ListArchetypes retrieves all custom archetypes for a tenant, disabled ones
// included. The pattern matcher decides what to load.
func (r *SQLRepository) ListArchetypes(ctx context.Context, tenantID string) ([]*domain.CustomArchetype, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, severity, confidence,
			   expression, enabled, created_at, updated_at
		FROM archetypes
		WHERE tenant_id = ?
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var archetypes []*domain.CustomArchetype
	for rows.Next() {
		var a domain.CustomArchetype
		var enabled int

		if err := rows.Scan(
			&a.ID, &a.TenantID, &a.Name, &a.Description,
			&a.Severity, &a.Confidence,
			&a.Expression, &enabled,
			&a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}

		a.Enabled = enabled == 1
		archetypes = append(archetypes, &a)
	}

	return archetypes, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
