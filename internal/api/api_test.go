package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xpress-ops/riskcore/internal/alert"
	"github.com/xpress-ops/riskcore/internal/domain"
	"github.com/xpress-ops/riskcore/internal/pattern"
	"github.com/xpress-ops/riskcore/internal/scoring"
)

// createTestServer wires a server with the in-memory scoring pipeline and no
// persistence, the way the Community tier degrades without a database.
func createTestServer(t *testing.T) (*Server, *alert.Store) {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	alerts := alert.NewStore()
	matcher, err := pattern.NewMatcher(nil)
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}

	engine := scoring.NewEngine(domain.DefaultConfig().Scoring, nil, alerts, nil, nil)

	server := NewServer(cfg, Dependencies{
		Engine:  engine,
		Matcher: matcher,
		Alerts:  alerts,
	}, "test-v1")

	return server, alerts
}

func scoreRequest() ScoreRequest {
	return ScoreRequest{
		TripID:    "trip-001",
		SubjectID: "rider-001",
		Timestamp: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		User: &domain.UserFeatures{
			AccountAge:          180,
			TotalRides:          150,
			CancelationRate:     0.05,
			RatingAverage:       4.7,
			DeviceChanges:       1,
			LocationConsistency: 0.85,
		},
		Trip: &domain.TripFeatures{
			Distance:       8.5,
			Duration:       25,
			Price:          140,
			TimeOfDay:      14,
			DayOfWeek:      2,
			RouteDeviation: 0.1,
			SpeedAnomaly:   0.1,
		},
		Location: &domain.LocationFeatures{
			PickupRegion:     "NCR",
			DropoffRegion:    "NCR",
			PickupRiskScore:  0.2,
			DropoffRiskScore: 0.2,
			GPSAccuracy:      12,
		},
		Payment: &domain.PaymentFeatures{
			Method:          "card",
			PaymentVelocity: 1,
		},
		Device: &domain.DeviceFeatures{
			Fingerprint: "fp-001",
			DeviceAge:   300,
		},
		Network: &domain.NetworkFeatures{
			IPRiskScore: 0.1,
			CountryCode: "PH",
		},
	}
}

func TestScoreEndpoint(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("SuccessfulScore", func(t *testing.T) {
		body, _ := json.Marshal(scoreRequest())
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp ScoreResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.TripID != "trip-001" {
			t.Errorf("expected tripId trip-001, got %s", resp.TripID)
		}
		if resp.Prediction == nil || resp.Prediction.ID == "" {
			t.Fatal("expected prediction with ID in response")
		}
		if resp.Prediction.FraudScore < 0 || resp.Prediction.FraudScore > 1 {
			t.Errorf("fraud score out of range: %f", resp.Prediction.FraudScore)
		}
		if resp.Prediction.RiskLevel == "" {
			t.Error("expected risk level in response")
		}
		if resp.Anomaly == nil {
			t.Fatal("expected anomaly score in response")
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
	})

	t.Run("GeneratesTripID", func(t *testing.T) {
		reqBody := scoreRequest()
		reqBody.TripID = ""
		body, _ := json.Marshal(reqBody)

		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp ScoreResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.TripID == "" {
			t.Error("expected generated trip ID")
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingSubjectID", func(t *testing.T) {
		reqBody := scoreRequest()
		reqBody.SubjectID = ""
		body, _ := json.Marshal(reqBody)

		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingFeatureSection", func(t *testing.T) {
		reqBody := scoreRequest()
		reqBody.Device = nil
		body, _ := json.Marshal(reqBody)

		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for missing section, got %d", rr.Code)
		}
	})

	t.Run("ResponseHeaders", func(t *testing.T) {
		body, _ := json.Marshal(scoreRequest())
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header in response")
		}
		if rr.Header().Get("X-Trace-ID") == "" {
			t.Error("expected X-Trace-ID header in response")
		}
		if rr.Header().Get("Content-Type") != "application/json" {
			t.Error("expected Content-Type: application/json")
		}
	})
}

func TestAlertEndpoints(t *testing.T) {
	server, alerts := createTestServer(t)

	seeded := &domain.AnomalyAlert{
		ID:         "alert-001",
		Type:       "geographical",
		Severity:   "high",
		SubjectID:  "rider-001",
		Confidence: 0.85,
		Timestamp:  time.Now().UTC(),
	}
	alerts.Append(seeded)

	t.Run("ListAlerts", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Alerts []domain.AnomalyAlert `json:"alerts"`
			Count  int                   `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp.Count != 1 {
			t.Errorf("expected 1 alert, got %d", resp.Count)
		}
		if len(resp.Alerts) != 1 || resp.Alerts[0].ID != "alert-001" {
			t.Error("expected seeded alert in response")
		}
	})

	t.Run("InvalidLimit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/alerts?limit=abc", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ResolveAlert", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/alerts/alert-001/resolve", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		// Resolving is idempotent: a repeat resolve succeeds and overwrites
		// the false positive flag.
		body := bytes.NewBufferString(`{"falsePositive":true}`)
		rr = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodPost, "/alerts/alert-001/resolve", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200 for repeat resolve, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Resolved      bool `json:"resolved"`
			FalsePositive bool `json:"falsePositive"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if !resp.Resolved || !resp.FalsePositive {
			t.Errorf("expected repeat resolve to overwrite falsePositive, got %+v", resp)
		}
	})

	t.Run("ResolveUnknownAlert", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/alerts/missing/resolve", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("AlertStats", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/alerts/stats", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var stats domain.AlertStats
		json.Unmarshal(rr.Body.Bytes(), &stats)

		if stats.Total != 1 {
			t.Errorf("expected 1 total alert, got %d", stats.Total)
		}
		if stats.FalsePositiveRate != 1.0 {
			t.Errorf("expected false positive rate 1.0, got %.2f", stats.FalsePositiveRate)
		}
	})
}

func TestPatternEndpoints(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("AllPatterns", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/patterns/all", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Patterns []domain.FraudPattern `json:"patterns"`
			Count    int                   `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp.Count == 0 {
			t.Error("expected built-in archetypes in catalog")
		}
	})

	t.Run("ActivePatternsEmpty", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/patterns", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp.Count != 0 {
			t.Errorf("expected no active patterns before any match, got %d", resp.Count)
		}
	})

	t.Run("CreateArchetype", func(t *testing.T) {
		reqBody := CreateArchetypeRequest{
			ID:         "arch-vpn",
			Name:       "Critical VPN abuse",
			Severity:   "critical",
			Confidence: 0.8,
			Expression: `risk_level == "critical" && signals.exists(s, s == "vpn")`,
			Enabled:    true,
		}
		body, _ := json.Marshal(reqBody)

		req := httptest.NewRequest(http.MethodPost, "/patterns", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("CreateArchetypeInvalidExpression", func(t *testing.T) {
		reqBody := CreateArchetypeRequest{
			ID:         "arch-bad",
			Name:       "Broken",
			Confidence: 0.7,
			Expression: `fraud_score +`,
			Enabled:    true,
		}
		body, _ := json.Marshal(reqBody)

		req := httptest.NewRequest(http.MethodPost, "/patterns", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for invalid expression, got %d", rr.Code)
		}
	})

	t.Run("ReloadWithoutRepository", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/patterns/reload", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503 without repository, got %d", rr.Code)
		}
	})
}

func TestClusterEndpoints(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("ClustersUnavailable", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/clusters", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503 without cluster engine, got %d", rr.Code)
		}
	})

	t.Run("TriggerUnavailable", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/clusters", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503 without clustering job, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TenantMiddlewareExtractsID", func(t *testing.T) {
		var capturedTenantID string

		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedTenantID = GetTenantID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", "my-tenant-123")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedTenantID != "my-tenant-123" {
			t.Errorf("expected tenant ID 'my-tenant-123', got '%s'", capturedTenantID)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
