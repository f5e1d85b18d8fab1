package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xpress-ops/riskcore/internal/domain"
)

// AlertSink receives alerts raised when the overall anomaly score crosses the
// alert threshold.
type AlertSink interface {
	Append(alert *domain.AnomalyAlert)
}

// ClusterIndex answers whether a cluster-space vector falls inside a known
// high-risk cluster. Implemented by the cluster engine.
type ClusterIndex interface {
	HighRiskMember(vector []float64) bool
}

// clusterBoost is added to the geographical and behavioral dimensions when
// the vector lands in a high-risk cluster.
const clusterBoost = 0.15

// Engine runs the full scoring pipeline: validate, normalize, score the five
// dimensions, apply cluster feedback, aggregate, run the ensemble, explain,
// and raise alerts. The engine is safe for concurrent use; per-call state
// never escapes the call.
type Engine struct {
	cfg        domain.ScoringConfig
	normalizer *Normalizer
	ensemble   *EnsembleScorer
	clusters   ClusterIndex
	alerts     AlertSink
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewEngine builds a scoring engine. clusters, alerts, and override may be
// nil; the corresponding stages are then skipped.
func NewEngine(cfg domain.ScoringConfig, clusters ClusterIndex, alerts AlertSink, override ModelOverride, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:        cfg,
		normalizer: NewNormalizer(),
		ensemble:   NewEnsembleScorer(override),
		clusters:   clusters,
		alerts:     alerts,
		logger:     logger,
		tracer:     otel.Tracer("riskcore/scoring"),
	}
}

// Score evaluates one feature vector. hist may be nil, in which case neutral
// history is substituted and no temporal rule fires.
func (e *Engine) Score(ctx context.Context, fv *domain.FeatureVector, hist *domain.RiderHistory) (*domain.ScoreResult, error) {
	if err := fv.Validate(); err != nil {
		return nil, err
	}
	if hist == nil {
		hist = domain.NeutralHistory()
	}

	ctx, span := e.tracer.Start(ctx, "scoring.Score",
		trace.WithAttributes(
			attribute.String("riskcore.trip_id", fv.TripID),
			attribute.String("riskcore.subject_id", fv.SubjectID),
		))
	defer span.End()

	normalized := e.normalizer.Vector(fv)

	var results [5]dimensionResult
	var wg sync.WaitGroup
	wg.Add(5)
	go func() { defer wg.Done(); results[0] = scoreTemporal(fv, hist) }()
	go func() { defer wg.Done(); results[1] = scoreBehavioral(fv) }()
	go func() { defer wg.Done(); results[2] = scoreGeographical(fv) }()
	go func() { defer wg.Done(); results[3] = scoreFinancial(fv, e.cfg.ExpectedFarePerKm) }()
	go func() { defer wg.Done(); results[4] = scoreNetwork(fv, e.cfg.HomeCountry) }()
	wg.Wait()

	dims := domain.DimensionScores{
		Temporal:     results[0].Score,
		Behavioral:   results[1].Score,
		Geographical: results[2].Score,
		Financial:    results[3].Score,
		Network:      results[4].Score,
	}
	var signals []domain.Signal
	for _, r := range results {
		signals = append(signals, r.Signals...)
	}

	if e.clusters != nil && e.clusters.HighRiskMember(ClusterVector(normalized)) {
		dims.Geographical = clamp01(dims.Geographical + clusterBoost)
		dims.Behavioral = clamp01(dims.Behavioral + clusterBoost)
		signals = appendSignal(signals, domain.SignalHighRiskCluster)
	}

	overall, confidence := aggregate(dims)

	anomaly := &domain.AnomalyScore{
		Overall:     overall,
		Dimensions:  dims,
		Confidence:  confidence,
		Explanation: buildExplanation(dims),
		Signals:     signals,
	}

	prediction := e.ensemble.Score(fv, normalized, signals)
	prediction.Reasons = buildReasons(prediction.Signals)
	prediction.FeatureImportance = buildImportance(normalized)

	span.SetAttributes(
		attribute.Float64("riskcore.overall", overall),
		attribute.Float64("riskcore.fraud_score", prediction.FraudScore),
		attribute.String("riskcore.risk_level", string(prediction.RiskLevel)),
	)

	if overall > domain.AlertThreshold && e.alerts != nil {
		e.raiseAlert(ctx, fv, anomaly)
	}

	return &domain.ScoreResult{Anomaly: anomaly, Prediction: prediction}, nil
}

func (e *Engine) raiseAlert(ctx context.Context, fv *domain.FeatureVector, anomaly *domain.AnomalyScore) {
	dimension := dominantDimension(anomaly.Dimensions)
	alert := &domain.AnomalyAlert{
		ID:          uuid.New().String(),
		Type:        string(dimension),
		Severity:    domain.AlertSeverityFor(anomaly.Overall),
		SubjectID:   fv.SubjectID,
		TenantID:    fv.TenantID,
		Description: fmt.Sprintf("%s anomaly %.2f on trip %s", dimension, anomaly.Overall, fv.TripID),
		Features:    anomaly.Signals,
		Confidence:  anomaly.Confidence,
		Timestamp:   time.Now().UTC(),
	}
	e.alerts.Append(alert)
	e.logger.WarnContext(ctx, "anomaly alert raised",
		"alert_id", alert.ID,
		"subject_id", alert.SubjectID,
		"severity", alert.Severity,
		"overall", anomaly.Overall,
	)
}

// dominantDimension picks the highest-scoring dimension, preferring the
// heavier-weighted one on ties.
func dominantDimension(dims domain.DimensionScores) domain.Dimension {
	best := domain.DimensionBehavioral
	bestScore := dims.Behavioral
	candidates := []struct {
		dim   domain.Dimension
		score float64
	}{
		{domain.DimensionGeographical, dims.Geographical},
		{domain.DimensionFinancial, dims.Financial},
		{domain.DimensionTemporal, dims.Temporal},
		{domain.DimensionNetwork, dims.Network},
	}
	for _, c := range candidates {
		if c.score > bestScore {
			best = c.dim
			bestScore = c.score
		}
	}
	return best
}
