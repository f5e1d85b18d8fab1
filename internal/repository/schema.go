package repository

// Schema definitions for the Riskcore database.
// Compatible with both SQLite and PostgreSQL.

const schemaFeatureSnapshots = `
CREATE TABLE IF NOT EXISTS feature_snapshots (
    trip_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    features TEXT NOT NULL,
    PRIMARY KEY (trip_id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_tenant ON feature_snapshots(tenant_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_subject ON feature_snapshots(tenant_id, subject_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON feature_snapshots(tenant_id, timestamp);
`

const schemaPredictions = `
CREATE TABLE IF NOT EXISTS predictions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    overall REAL NOT NULL,
    fraud_score REAL NOT NULL,
    risk_level TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    anomaly TEXT NOT NULL,
    prediction TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_predictions_tenant ON predictions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_predictions_trip ON predictions(tenant_id, trip_id);
CREATE INDEX IF NOT EXISTS idx_predictions_subject ON predictions(tenant_id, subject_id);
CREATE INDEX IF NOT EXISTS idx_predictions_risk ON predictions(tenant_id, risk_level);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    type TEXT NOT NULL,
    severity TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    description TEXT,
    features TEXT NOT NULL,
    confidence REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    resolved INTEGER NOT NULL DEFAULT 0,
    false_positive INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_alerts_tenant ON alerts(tenant_id);
CREATE INDEX IF NOT EXISTS idx_alerts_subject ON alerts(tenant_id, subject_id);
CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(tenant_id, severity);
CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON alerts(tenant_id, timestamp);
`

// schemaArchetypes defines operator-authored fraud archetypes with CEL
// expression signatures. Compatible with both SQLite and PostgreSQL.
const schemaArchetypes = `
CREATE TABLE IF NOT EXISTS archetypes (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    severity TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0.7,
    expression TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_archetypes_tenant ON archetypes(tenant_id);
CREATE INDEX IF NOT EXISTS idx_archetypes_enabled ON archetypes(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaFeatureSnapshots,
		schemaPredictions,
		schemaAlerts,
		schemaArchetypes,
	}
}
