// Package worker provides async score processing and the periodic
// clustering job.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/xpress-ops/riskcore/internal/cluster"
	"github.com/xpress-ops/riskcore/internal/domain"
	"github.com/xpress-ops/riskcore/internal/history"
	"github.com/xpress-ops/riskcore/internal/pattern"
	"github.com/xpress-ops/riskcore/internal/scoring"
)

// predictionCacheTTL matches the synchronous path's repeat-lookup window.
const predictionCacheTTL = 5 * time.Minute

// Worker consumes score requests from the EventBus and runs the periodic
// clustering job.
type Worker struct {
	bus     domain.EventBus
	repo    domain.Repository
	cache   domain.Cache
	engine  *scoring.Engine
	history *history.Service
	matcher *pattern.Matcher

	clusters   *cluster.Engine
	normalizer *scoring.Normalizer
	// riskScorer estimates per-snapshot risk for clustering without raising
	// alerts or feeding cluster membership back into itself.
	riskScorer *scoring.Engine
	clusterCfg domain.ClusterConfig
	scoringCfg domain.ScoringConfig

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, engine *scoring.Engine, hist *history.Service, matcher *pattern.Matcher, clusters *cluster.Engine, scoringCfg domain.ScoringConfig, clusterCfg domain.ClusterConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:        bus,
		repo:       repo,
		cache:      cache,
		engine:     engine,
		history:    hist,
		matcher:    matcher,
		clusters:   clusters,
		normalizer: scoring.NewNormalizer(),
		riskScorer: scoring.NewEngine(scoringCfg, nil, nil, nil, nil),
		clusterCfg: clusterCfg,
		scoringCfg: scoringCfg,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins processing score requests for the given tenants and launches
// the clustering schedule.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		if err := w.startGlobalWorker(); err != nil {
			return err
		}
	} else {
		for _, tenantID := range cfg.TenantIDs {
			if err := w.startTenantWorker(tenantID); err != nil {
				slog.Error("failed to start worker for tenant",
					"tenant_id", tenantID,
					"error", err,
				)
				continue
			}
		}
		slog.Info("workers started",
			"tenant_count", len(cfg.TenantIDs),
		)
	}

	if w.clusters != nil && w.repo != nil && w.clusterCfg.IntervalSecs > 0 {
		for _, tenantID := range cfg.TenantIDs {
			w.wg.Add(1)
			go w.clusterLoop(tenantID)
		}
	}

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicScoreRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicScoreRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processScoreRequest(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicScoreRequested,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processScoreRequest(ctx, msg.TenantID, msg)
}

// processScoreRequest runs one feature vector through the scoring pipeline.
func (w *Worker) processScoreRequest(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var fv domain.FeatureVector
	if err := json.Unmarshal(msg.Payload, &fv); err != nil {
		slog.Error("failed to parse score request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Message tenant wins over subscription tenant
	if fv.TenantID != "" {
		tenantID = fv.TenantID
	}
	fv.TenantID = tenantID
	if fv.Timestamp.IsZero() {
		fv.Timestamp = time.Now().UTC()
	}

	slog.Debug("processing score request",
		"trip_id", fv.TripID,
		"tenant_id", tenantID,
	)

	var hist *domain.RiderHistory
	if w.history != nil {
		hist = w.history.ForTrip(ctx, &fv)
	}

	result, err := w.engine.Score(ctx, &fv, hist)
	if err != nil {
		slog.Error("scoring failed",
			"trip_id", fv.TripID,
			"error", err,
		)
		return err
	}

	if w.history != nil {
		w.history.RecordTrip(ctx, &fv)
	}

	if w.repo != nil {
		if err := w.repo.SavePrediction(ctx, tenantID, result); err != nil {
			slog.Error("failed to save prediction",
				"trip_id", fv.TripID,
				"error", err,
			)
		}
	}

	if w.cache != nil {
		summary := &domain.PredictionSummary{
			PredictionID: result.Prediction.ID,
			TripID:       fv.TripID,
			SubjectID:    fv.SubjectID,
			Overall:      result.Anomaly.Overall,
			FraudScore:   result.Prediction.FraudScore,
			RiskLevel:    result.Prediction.RiskLevel,
			Timestamp:    result.Prediction.Timestamp.Format(time.RFC3339),
		}
		if err := w.cache.SetPrediction(ctx, tenantID, fv.TripID, summary, predictionCacheTTL); err != nil {
			slog.Warn("failed to cache prediction", "trip_id", fv.TripID, "error", err)
		}
	}

	var patterns []string
	if w.matcher != nil {
		patterns = w.matcher.Observe(ctx, result.Prediction)
	}

	resultPayload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicPrediction, resultPayload); err != nil {
		slog.Error("failed to publish prediction",
			"trip_id", fv.TripID,
			"error", err,
		)
	}

	if result.Anomaly.Overall > domain.AlertThreshold {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlertRaised, resultPayload); err != nil {
			slog.Error("failed to publish alert",
				"trip_id", fv.TripID,
				"error", err,
			)
		}
	}

	if len(patterns) > 0 {
		matchPayload, _ := json.Marshal(map[string]any{
			"subjectId": fv.SubjectID,
			"tripId":    fv.TripID,
			"patterns":  patterns,
		})
		if err := w.bus.Publish(ctx, tenantID, domain.TopicPatternMatched, matchPayload); err != nil {
			slog.Error("failed to publish pattern match",
				"trip_id", fv.TripID,
				"error", err,
			)
		}
	}

	slog.Info("score request processed",
		"trip_id", fv.TripID,
		"tenant_id", tenantID,
		"risk_level", result.Prediction.RiskLevel,
		"fraud_score", result.Prediction.FraudScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// clusterLoop runs the clustering job on the configured interval.
func (w *Worker) clusterLoop(tenantID string) {
	defer w.wg.Done()

	ticker := time.NewTicker(time.Duration(w.clusterCfg.IntervalSecs) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(w.ctx, tenantID); err != nil {
				slog.Error("clustering run failed",
					"tenant_id", tenantID,
					"error", err,
				)
			}
		}
	}
}

// RunOnce pulls the recent snapshot batch, clusters it, and publishes the
// result. Returns the number of clusters produced.
func (w *Worker) RunOnce(ctx context.Context, tenantID string) (int, error) {
	if w.clusters == nil || w.repo == nil {
		return 0, nil
	}

	windowDays := w.scoringCfg.HistoryWindowDays
	if windowDays <= 0 {
		windowDays = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -windowDays)

	snapshots, err := w.repo.GetSnapshotsSince(ctx, tenantID, since, w.clusterCfg.MaxVectors)
	if err != nil {
		return 0, err
	}
	if len(snapshots) == 0 {
		slog.Debug("no snapshots to cluster", "tenant_id", tenantID)
		return 0, nil
	}

	vectors := make([][]float64, 0, len(snapshots))
	risks := make([]float64, 0, len(snapshots))
	for _, fv := range snapshots {
		if fv.Validate() != nil {
			continue
		}
		vectors = append(vectors, scoring.ClusterVector(w.normalizer.Vector(fv)))

		result, err := w.riskScorer.Score(ctx, fv, nil)
		if err != nil {
			vectors = vectors[:len(vectors)-1]
			continue
		}
		risks = append(risks, result.Anomaly.Overall)
	}
	if len(vectors) == 0 {
		return 0, nil
	}

	analyses, err := w.clusters.Run(ctx, vectors, risks)
	if err != nil {
		return 0, err
	}

	payload, _ := json.Marshal(map[string]any{
		"tenantId": tenantID,
		"clusters": analyses,
	})
	if err := w.bus.Publish(ctx, tenantID, domain.TopicClusterUpdated, payload); err != nil {
		slog.Error("failed to publish cluster update",
			"tenant_id", tenantID,
			"error", err,
		)
	}

	slog.Info("clustering run published",
		"tenant_id", tenantID,
		"vectors", len(vectors),
		"clusters", len(analyses),
	)
	return len(analyses), nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
