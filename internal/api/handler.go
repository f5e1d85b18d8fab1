package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/xpress-ops/riskcore/internal/alert"
	"github.com/xpress-ops/riskcore/internal/cluster"
	"github.com/xpress-ops/riskcore/internal/domain"
	"github.com/xpress-ops/riskcore/internal/history"
	"github.com/xpress-ops/riskcore/internal/pattern"
	"github.com/xpress-ops/riskcore/internal/scoring"
)

// predictionCacheTTL bounds the repeat-lookup fast path for scored trips.
const predictionCacheTTL = 5 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	engine     *scoring.Engine
	history    *history.Service
	matcher    *pattern.Matcher
	clusters   *cluster.Engine
	alerts     *alert.Store
	clusterJob ClusterRunner
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies, version string) *Handler {
	return &Handler{
		repo:       deps.Repo,
		cache:      deps.Cache,
		bus:        deps.Bus,
		engine:     deps.Engine,
		history:    deps.History,
		matcher:    deps.Matcher,
		clusters:   deps.Clusters,
		alerts:     deps.Alerts,
		clusterJob: deps.ClusterJob,
		version:    version,
	}
}

// ScoreRequest is the request body for POST /score. The sections mirror the
// feature vector; every section is required.
type ScoreRequest struct {
	TripID    string                   `json:"tripId,omitempty"`
	SubjectID string                   `json:"subjectId"`
	Timestamp time.Time                `json:"timestamp,omitempty"`
	User      *domain.UserFeatures     `json:"user"`
	Trip      *domain.TripFeatures     `json:"trip"`
	Location  *domain.LocationFeatures `json:"location"`
	Payment   *domain.PaymentFeatures  `json:"payment"`
	Device    *domain.DeviceFeatures   `json:"device"`
	Network   *domain.NetworkFeatures  `json:"network"`
}

// ScoreResponse is the response for POST /score.
type ScoreResponse struct {
	TripID     string                  `json:"tripId"`
	Anomaly    *domain.AnomalyScore    `json:"anomaly"`
	Prediction *domain.FraudPrediction `json:"prediction"`
	Patterns   []string                `json:"patterns,omitempty"`
	Cached     bool                    `json:"cached,omitempty"`
	Metadata   struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Score handles POST /score requests: the synchronous scoring path.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.SubjectID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "subjectId is required",
		})
		return
	}

	// A previously scored trip is served from cache instead of being rescored.
	if req.TripID != "" {
		if resp, ok := h.cachedResult(r, req.TripID); ok {
			resp.Metadata.TraceID = traceID
			resp.Metadata.TotalMs = time.Since(start).Milliseconds()
			resp.Metadata.Version = h.version
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}

	fv := &domain.FeatureVector{
		TenantID:  tenantID,
		TripID:    req.TripID,
		SubjectID: req.SubjectID,
		Timestamp: req.Timestamp,
		User:      req.User,
		Trip:      req.Trip,
		Location:  req.Location,
		Payment:   req.Payment,
		Device:    req.Device,
		Network:   req.Network,
	}
	if fv.TripID == "" {
		fv.TripID = uuid.New().String()
	}
	if fv.Timestamp.IsZero() {
		fv.Timestamp = time.Now().UTC()
	}

	var hist *domain.RiderHistory
	if h.history != nil {
		hist = h.history.ForTrip(ctx, fv)
	}

	result, err := h.engine.Score(ctx, fv, hist)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	patterns := h.finishScoring(r, fv, result)

	resp := &ScoreResponse{
		TripID:     fv.TripID,
		Anomaly:    result.Anomaly,
		Prediction: result.Prediction,
		Patterns:   patterns,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// cachedResult serves a repeat score request for a known trip from the
// prediction cache, backed by the repository for the full record.
func (h *Handler) cachedResult(r *http.Request, tripID string) (*ScoreResponse, bool) {
	if h.cache == nil || h.repo == nil {
		return nil, false
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	summary, err := h.cache.GetPrediction(ctx, tenantID, tripID)
	if err != nil || summary == nil {
		return nil, false
	}

	stored, err := h.repo.GetPrediction(ctx, tenantID, summary.PredictionID)
	if err != nil {
		return nil, false
	}

	return &ScoreResponse{
		TripID:     tripID,
		Anomaly:    stored.Anomaly,
		Prediction: stored.Prediction,
		Cached:     true,
	}, true
}

// finishScoring runs the off-path stages after a score is computed: snapshot
// persistence, prediction persistence, pattern matching, caching, and bus
// publication. Failures here never invalidate the returned score.
func (h *Handler) finishScoring(r *http.Request, fv *domain.FeatureVector, result *domain.ScoreResult) []string {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.history != nil {
		h.history.RecordTrip(ctx, fv)
	}

	if h.repo != nil {
		if err := h.repo.SavePrediction(ctx, tenantID, result); err != nil {
			slog.Error("failed to save prediction",
				"prediction_id", result.Prediction.ID,
				"error", err,
			)
		}
	}

	if h.cache != nil {
		summary := &domain.PredictionSummary{
			PredictionID: result.Prediction.ID,
			TripID:       fv.TripID,
			SubjectID:    fv.SubjectID,
			Overall:      result.Anomaly.Overall,
			FraudScore:   result.Prediction.FraudScore,
			RiskLevel:    result.Prediction.RiskLevel,
			Timestamp:    result.Prediction.Timestamp.Format(time.RFC3339),
		}
		if err := h.cache.SetPrediction(ctx, tenantID, fv.TripID, summary, predictionCacheTTL); err != nil {
			slog.Warn("failed to cache prediction", "trip_id", fv.TripID, "error", err)
		}
	}

	var patterns []string
	if h.matcher != nil {
		patterns = h.matcher.Observe(ctx, result.Prediction)
	}

	if h.bus != nil {
		payload, _ := json.Marshal(result)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicPrediction, payload); err != nil {
			slog.Error("failed to publish prediction", "trip_id", fv.TripID, "error", err)
		}
		if result.Anomaly.Overall > domain.AlertThreshold {
			if err := h.bus.Publish(ctx, tenantID, domain.TopicAlertRaised, payload); err != nil {
				slog.Error("failed to publish alert", "trip_id", fv.TripID, "error", err)
			}
		}
		if len(patterns) > 0 {
			matchPayload, _ := json.Marshal(map[string]any{
				"subjectId": fv.SubjectID,
				"tripId":    fv.TripID,
				"patterns":  patterns,
			})
			if err := h.bus.Publish(ctx, tenantID, domain.TopicPatternMatched, matchPayload); err != nil {
				slog.Error("failed to publish pattern match", "trip_id", fv.TripID, "error", err)
			}
		}
	}

	return patterns
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetPrediction retrieves a stored scoring result by prediction ID.
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	predictionID := chi.URLParam(r, "id")

	if predictionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "prediction id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	result, err := h.repo.GetPrediction(ctx, tenantID, predictionID)
	if err != nil {
		slog.Error("failed to get prediction", "id", predictionID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "prediction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListAlerts returns recent alerts, newest first. The optional limit query
// parameter caps the result.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "alert store not available",
		})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	alerts := h.alerts.Recent(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// AlertStats summarizes the alert log.
func (h *Handler) AlertStats(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "alert store not available",
		})
		return
	}

	writeJSON(w, http.StatusOK, h.alerts.Stats())
}

// ResolveAlertRequest is the request body for POST /alerts/{id}/resolve.
type ResolveAlertRequest struct {
	FalsePositive bool `json:"falsePositive"`
}

// ResolveAlert marks an alert as resolved in the operational log and the
// durable audit trail.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	alertID := chi.URLParam(r, "id")

	if alertID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "alert id is required",
		})
		return
	}

	if h.alerts == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "alert store not available",
		})
		return
	}

	var req ResolveAlertRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	if !h.alerts.Resolve(alertID, req.FalsePositive) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "alert not found",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.MarkAlertResolved(ctx, tenantID, alertID, req.FalsePositive); err != nil {
			slog.Warn("failed to resolve alert in audit trail", "alert_id", alertID, "error", err)
		}
	}

	slog.Info("alert resolved", "alert_id", alertID, "false_positive", req.FalsePositive)
	writeJSON(w, http.StatusOK, map[string]any{
		"resolved":      true,
		"falsePositive": req.FalsePositive,
	})
}

// ActivePatterns returns archetypes matched within the active window.
func (h *Handler) ActivePatterns(w http.ResponseWriter, r *http.Request) {
	if h.matcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "pattern matcher not available",
		})
		return
	}

	patterns := h.matcher.DetectPatterns(time.Now().UTC())
	writeJSON(w, http.StatusOK, map[string]any{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

// AllPatterns returns the full archetype catalog, matched or not.
func (h *Handler) AllPatterns(w http.ResponseWriter, r *http.Request) {
	if h.matcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "pattern matcher not available",
		})
		return
	}

	patterns := h.matcher.AllPatterns()
	writeJSON(w, http.StatusOK, map[string]any{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

// CreateArchetypeRequest is the request body for creating a custom archetype.
type CreateArchetypeRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Severity    string  `json:"severity"`
	Confidence  float64 `json:"confidence"`
	Expression  string  `json:"expression"`
	Enabled     bool    `json:"enabled"`
}

// CreateArchetype validates, loads, and persists an operator-defined fraud
// archetype. The archetype becomes active immediately.
func (h *Handler) CreateArchetype(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.matcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "pattern matcher not available",
		})
		return
	}

	var req CreateArchetypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	if req.Severity == "" {
		req.Severity = "medium"
	}
	if req.Confidence <= 0 || req.Confidence > 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "confidence must be between 0 (exclusive) and 1",
		})
		return
	}

	archetype := &domain.CustomArchetype{
		ID:          req.ID,
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Severity:    req.Severity,
		Confidence:  req.Confidence,
		Expression:  req.Expression,
		Enabled:     req.Enabled,
	}

	// Validate the CEL expression by attempting to load
	if err := h.matcher.LoadArchetype(archetype); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid archetype expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveArchetype(ctx, tenantID, archetype); err != nil {
			slog.Error("failed to save archetype", "id", archetype.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save archetype",
			})
			return
		}
	}

	slog.Info("archetype created", "id", archetype.ID, "name", archetype.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"archetype": archetype,
		"message":   "Archetype created and loaded.",
	})
}

// ReloadArchetypes reloads all custom archetypes from the database into the
// matcher. Built-in archetypes are untouched.
func (h *Handler) ReloadArchetypes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}
	if h.matcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "pattern matcher not available",
		})
		return
	}

	archetypes, err := h.repo.ListArchetypes(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list archetypes", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load archetypes from database",
		})
		return
	}

	if err := h.matcher.ReloadArchetypes(archetypes); err != nil {
		slog.Error("failed to reload archetypes", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload archetypes: " + err.Error(),
		})
		return
	}

	slog.Info("archetypes reloaded", "count", len(archetypes))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "archetypes reloaded successfully",
		"count":   len(archetypes),
	})
}

// GetClusters returns the current cluster analyses.
func (h *Handler) GetClusters(w http.ResponseWriter, r *http.Request) {
	if h.clusters == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "cluster engine not available",
		})
		return
	}

	analyses := h.clusters.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"clusters": analyses,
		"count":    len(analyses),
	})
}

// TriggerClustering runs one clustering pass immediately.
func (h *Handler) TriggerClustering(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.clusterJob == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "clustering job not available",
		})
		return
	}

	clusters, err := h.clusterJob.RunOnce(ctx, tenantID)
	if err != nil {
		slog.Error("clustering run failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "clustering run failed: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "clustering run completed",
		"clusters": clusters,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
