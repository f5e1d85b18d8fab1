package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xpress-ops/riskcore/internal/bus"
	"github.com/xpress-ops/riskcore/internal/domain"
	"github.com/xpress-ops/riskcore/internal/pattern"
	"github.com/xpress-ops/riskcore/internal/scoring"
)

// ordinaryVector returns an unremarkable trip. Tests perturb it to trigger
// the behavior they exercise.
func ordinaryVector(tenantID string) *domain.FeatureVector {
	return &domain.FeatureVector{
		TenantID:  tenantID,
		TripID:    "trip-001",
		SubjectID: "rider-001",
		Timestamp: time.Now().UTC(),
		User: &domain.UserFeatures{
			AccountAge:          180,
			TotalRides:          150,
			CancelationRate:     0.08,
			RatingAverage:       4.6,
			DeviceChanges:       0.8,
			LocationConsistency: 0.75,
		},
		Trip: &domain.TripFeatures{
			Distance:       15.5,
			Duration:       28,
			Price:          250,
			TimeOfDay:      14,
			DayOfWeek:      2,
			RouteDeviation: 0.12,
			SpeedAnomaly:   0.10,
		},
		Location: &domain.LocationFeatures{
			PickupRegion:     "NCR",
			DropoffRegion:    "NCR",
			PickupRiskScore:  0.30,
			DropoffRiskScore: 0.30,
			GPSAccuracy:      12,
		},
		Payment: &domain.PaymentFeatures{
			Method:            "card",
			CardFailures:      0.4,
			PaymentVelocity:   1.2,
			ChargebackHistory: 0.1,
		},
		Device: &domain.DeviceFeatures{
			Fingerprint: "fp-001",
			DeviceAge:   400,
		},
		Network: &domain.NetworkFeatures{
			IPRiskScore:    0.20,
			NetworkChanges: 1.0,
			CountryCode:    "PH",
		},
	}
}

// saturatedVector returns a trip that trips nearly every rule, pushing the
// overall score past the alert threshold and matching GPS archetypes.
func saturatedVector(tenantID string) *domain.FeatureVector {
	fv := ordinaryVector(tenantID)
	fv.TripID = "trip-hot"
	fv.Location.LocationJumps = 5
	fv.Location.ImpossibleSpeeds = 3
	fv.Location.GPSAccuracy = 80
	fv.Trip.RouteDeviation = 0.7
	fv.Trip.SpeedAnomaly = 0.9
	fv.Trip.IsHoliday = true
	fv.Trip.Price = 2000
	fv.Trip.Distance = 5
	fv.User.CancelationRate = 0.5
	fv.User.LocationConsistency = 0.2
	fv.Payment.CardFailures = 6
	fv.Payment.UnusualAmounts = true
	fv.Payment.PaymentVelocity = 12
	fv.Payment.ChargebackHistory = 4
	fv.Device.IsEmulator = true
	fv.Device.IsRooted = true
	fv.Network.IPRiskScore = 0.9
	fv.Network.IsTor = true
	fv.Network.NetworkChanges = 8
	fv.Network.CountryCode = "US"
	return fv
}

func newTestWorker(t *testing.T, eventBus domain.EventBus) *Worker {
	t.Helper()

	cfg := domain.DefaultConfig()
	engine := scoring.NewEngine(cfg.Scoring, nil, nil, nil, nil)
	matcher, err := pattern.NewMatcher(nil)
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}

	return NewWorker(eventBus, nil, nil, engine, nil, matcher, nil, cfg.Scoring, cfg.Cluster)
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	t.Run("StartAndStop", func(t *testing.T) {
		w := newTestWorker(t, eventBus)

		cfg := Config{
			TenantIDs: []string{"tenant-001"},
		}

		if err := w.Start(cfg); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = w.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessScoreRequest", func(t *testing.T) {
		w := newTestWorker(t, eventBus)

		cfg := Config{
			TenantIDs: []string{"tenant-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		var predictionReceived atomic.Bool
		var predictionPayload []byte

		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicPrediction, func(ctx context.Context, msg *domain.Message) error {
			predictionPayload = msg.Payload
			predictionReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		payload, _ := json.Marshal(ordinaryVector("tenant-test"))
		if err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicScoreRequested, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(100 * time.Millisecond)

		if !predictionReceived.Load() {
			t.Fatal("expected prediction to be published")
		}

		var result domain.ScoreResult
		if err := json.Unmarshal(predictionPayload, &result); err != nil {
			t.Fatalf("failed to parse prediction: %v", err)
		}

		if result.Prediction.TripID != "trip-001" {
			t.Errorf("expected tripID 'trip-001', got '%s'", result.Prediction.TripID)
		}
		if result.Prediction.TenantID != "tenant-test" {
			t.Errorf("expected tenantID 'tenant-test', got '%s'", result.Prediction.TenantID)
		}
		if result.Prediction.RiskLevel != domain.RiskLow {
			t.Errorf("expected low risk for ordinary trip, got %s", result.Prediction.RiskLevel)
		}
	})

	t.Run("AlertAndPatternPublished", func(t *testing.T) {
		w := newTestWorker(t, eventBus)

		cfg := Config{
			TenantIDs: []string{"tenant-alert"},
		}
		w.Start(cfg)
		defer w.Stop()

		var alertReceived atomic.Bool
		var patternReceived atomic.Bool

		eventBus.Subscribe(context.Background(), "tenant-alert", domain.TopicAlertRaised, func(ctx context.Context, msg *domain.Message) error {
			alertReceived.Store(true)
			return nil
		})
		eventBus.Subscribe(context.Background(), "tenant-alert", domain.TopicPatternMatched, func(ctx context.Context, msg *domain.Message) error {
			patternReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		payload, _ := json.Marshal(saturatedVector("tenant-alert"))
		eventBus.Publish(context.Background(), "tenant-alert", domain.TopicScoreRequested, payload)

		time.Sleep(100 * time.Millisecond)

		if !alertReceived.Load() {
			t.Error("expected alert to be published for saturated trip")
		}
		if !patternReceived.Load() {
			t.Error("expected pattern match to be published for saturated trip")
		}
	})

	t.Run("InvalidPayloadIgnored", func(t *testing.T) {
		w := newTestWorker(t, eventBus)

		cfg := Config{
			TenantIDs: []string{"tenant-garbage"},
		}
		w.Start(cfg)
		defer w.Stop()

		var predictionReceived atomic.Bool
		eventBus.Subscribe(context.Background(), "tenant-garbage", domain.TopicPrediction, func(ctx context.Context, msg *domain.Message) error {
			predictionReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		eventBus.Publish(context.Background(), "tenant-garbage", domain.TopicScoreRequested, []byte("not-json"))

		time.Sleep(100 * time.Millisecond)

		if predictionReceived.Load() {
			t.Error("expected no prediction for malformed payload")
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := newTestWorker(t, eventBus)

		cfg := Config{
			TenantIDs: []string{"tenant-a", "tenant-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestRunOnceWithoutRepository(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := newTestWorker(t, eventBus)

	clusters, err := w.RunOnce(context.Background(), "tenant-001")
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if clusters != 0 {
		t.Errorf("expected 0 clusters without repository, got %d", clusters)
	}
}
