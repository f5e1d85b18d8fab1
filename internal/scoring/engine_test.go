package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/xpress-ops/riskcore/internal/domain"
)

// nominalVector returns a feature vector sitting at the population means with
// no risk flags set. Individual tests perturb the fields they exercise.
func nominalVector() *domain.FeatureVector {
	return &domain.FeatureVector{
		TenantID:  "tenant-001",
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

func testEngine(alerts AlertSink) *Engine {
	cfg := domain.DefaultConfig().Scoring
	return NewEngine(cfg, nil, alerts, nil, nil)
}

type captureSink struct {
	alerts []*domain.AnomalyAlert
}

func (c *captureSink) Append(a *domain.AnomalyAlert) { c.alerts = append(c.alerts, a) }

func TestScoreNominalTrip(t *testing.T) {
	engine := testEngine(nil)

	result, err := engine.Score(context.Background(), nominalVector(), nil)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if result.Anomaly.Overall != 0 {
		t.Errorf("expected overall 0 for nominal trip, got %f", result.Anomaly.Overall)
	}
	if len(result.Anomaly.Signals) != 0 {
		t.Errorf("expected no signals, got %v", result.Anomaly.Signals)
	}
	if len(result.Anomaly.Explanation) == 0 {
		t.Error("explanation must never be empty")
	}
	if result.Prediction.FraudScore >= 0.3 {
		t.Errorf("expected fraud score below 0.3, got %f", result.Prediction.FraudScore)
	}
	if result.Prediction.RiskLevel != domain.RiskLow {
		t.Errorf("expected low risk, got %s", result.Prediction.RiskLevel)
	}
	if result.Prediction.ModelVersion != ModelVersion {
		t.Errorf("unexpected model version %s", result.Prediction.ModelVersion)
	}
}

func TestScoreGPSSpoofing(t *testing.T) {
	engine := testEngine(nil)

	fv := nominalVector()
	fv.Location.LocationJumps = 5
	fv.Location.ImpossibleSpeeds = 3
	fv.Location.GPSAccuracy = 80
	fv.Trip.SpeedAnomaly = 0.9
	fv.Device.IsRooted = true

	result, err := engine.Score(context.Background(), fv, nil)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if result.Anomaly.Dimensions.Geographical != 1.0 {
		t.Errorf("expected geographical dimension saturated, got %f", result.Anomaly.Dimensions.Geographical)
	}
	if result.Prediction.SubScores.GPSSpoofing < 0.9 {
		t.Errorf("expected GPS spoofing sub-score >= 0.9, got %f", result.Prediction.SubScores.GPSSpoofing)
	}
	if result.Prediction.RiskLevel != domain.RiskHigh && result.Prediction.RiskLevel != domain.RiskCritical {
		t.Errorf("expected at least high risk, got %s (score %f)", result.Prediction.RiskLevel, result.Prediction.FraudScore)
	}
	for _, want := range []domain.Signal{domain.SignalLocationJumps, domain.SignalImpossibleSpeed} {
		if !result.Prediction.HasSignal(want) {
			t.Errorf("missing signal %s", want)
		}
	}
}

func TestScoreDeviceFarm(t *testing.T) {
	engine := testEngine(nil)

	fv := nominalVector()
	fv.Device.IsEmulator = true
	fv.Device.MultipleAccounts = 4
	fv.User.DeviceChanges = 5
	fv.Network.NetworkChanges = 8

	result, err := engine.Score(context.Background(), fv, nil)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if result.Prediction.SubScores.MultiAccount < 0.5 {
		t.Errorf("expected multi-account sub-score >= 0.5, got %f", result.Prediction.SubScores.MultiAccount)
	}
	for _, want := range []domain.Signal{domain.SignalEmulator, domain.SignalMultipleAccounts, domain.SignalDeviceChanges} {
		if !result.Prediction.HasSignal(want) {
			t.Errorf("missing signal %s", want)
		}
	}
}

func TestScoreRaisesAlert(t *testing.T) {
	sink := &captureSink{}
	engine := testEngine(sink)

	fv := nominalVector()
	fv.Location.LocationJumps = 5
	fv.Location.ImpossibleSpeeds = 3
	fv.Location.GPSAccuracy = 80
	fv.Trip.RouteDeviation = 0.7
	fv.Trip.SpeedAnomaly = 0.9
	fv.Trip.IsHoliday = true
	fv.User.CancelationRate = 0.5
	fv.User.LocationConsistency = 0.2
	fv.Payment.CardFailures = 6
	fv.Payment.UnusualAmounts = true
	fv.Payment.PaymentVelocity = 12
	fv.Payment.ChargebackHistory = 4
	fv.Trip.Price = 2000
	fv.Trip.Distance = 5
	fv.Device.IsEmulator = true
	fv.Device.IsRooted = true
	fv.Network.IPRiskScore = 0.9
	fv.Network.IsTor = true
	fv.Network.NetworkChanges = 8
	fv.Network.CountryCode = "US"

	result, err := engine.Score(context.Background(), fv, nil)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if result.Anomaly.Overall <= domain.AlertThreshold {
		t.Fatalf("expected overall above alert threshold, got %f", result.Anomaly.Overall)
	}
	if len(sink.alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(sink.alerts))
	}

	alert := sink.alerts[0]
	if alert.Severity != domain.AlertSeverityFor(result.Anomaly.Overall) {
		t.Errorf("severity %s does not match overall %f", alert.Severity, result.Anomaly.Overall)
	}
	if alert.SubjectID != fv.SubjectID || alert.TenantID != fv.TenantID {
		t.Errorf("alert misattributed: %s/%s", alert.TenantID, alert.SubjectID)
	}
	if len(alert.Features) == 0 {
		t.Error("alert should carry the fired signals")
	}
}

func TestScoreTemporalHistory(t *testing.T) {
	engine := testEngine(nil)

	t.Run("UnusualHour", func(t *testing.T) {
		hist := &domain.RiderHistory{HourFrequency: 0.01, WeekendShare: 0.5}
		result, err := engine.Score(context.Background(), nominalVector(), hist)
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if result.Anomaly.Dimensions.Temporal != 0.6 {
			t.Errorf("expected temporal 0.6 for rare hour, got %f", result.Anomaly.Dimensions.Temporal)
		}
		if !hasSignal(result.Anomaly.Signals, domain.SignalUnusualHour) {
			t.Error("expected unusual_hour signal")
		}
	})

	t.Run("NilHistoryIsNeutral", func(t *testing.T) {
		result, err := engine.Score(context.Background(), nominalVector(), nil)
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if result.Anomaly.Dimensions.Temporal != 0 {
			t.Errorf("expected temporal 0 with nil history, got %f", result.Anomaly.Dimensions.Temporal)
		}
	})

	t.Run("TripFrequencySpike", func(t *testing.T) {
		hist := &domain.RiderHistory{
			HourFrequency: 0.5,
			WeekendShare:  0.5,
			DailyTripMean: 2,
			DailyTripStd:  1,
			TripsToday:    9,
		}
		result, err := engine.Score(context.Background(), nominalVector(), hist)
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if !hasSignal(result.Anomaly.Signals, domain.SignalTripFrequency) {
			t.Error("expected trip_frequency signal for spike above mean+2*std")
		}
	})
}

func TestScoreValidation(t *testing.T) {
	engine := testEngine(nil)

	fv := nominalVector()
	fv.Payment = nil
	if _, err := engine.Score(context.Background(), fv, nil); err == nil {
		t.Error("expected error for missing payment section")
	}

	fv = nominalVector()
	fv.Trip.TimeOfDay = 25
	if _, err := engine.Score(context.Background(), fv, nil); err == nil {
		t.Error("expected error for out-of-range timeOfDay")
	}
}

type stubClusterIndex struct{ member bool }

func (s *stubClusterIndex) HighRiskMember([]float64) bool { return s.member }

func TestScoreClusterFeedback(t *testing.T) {
	cfg := domain.DefaultConfig().Scoring
	base := NewEngine(cfg, &stubClusterIndex{member: false}, nil, nil, nil)
	boosted := NewEngine(cfg, &stubClusterIndex{member: true}, nil, nil, nil)

	plain, err := base.Score(context.Background(), nominalVector(), nil)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	flagged, err := boosted.Score(context.Background(), nominalVector(), nil)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	wantGeo := plain.Anomaly.Dimensions.Geographical + clusterBoost
	if flagged.Anomaly.Dimensions.Geographical != wantGeo {
		t.Errorf("expected geographical %f with cluster boost, got %f", wantGeo, flagged.Anomaly.Dimensions.Geographical)
	}
	if !hasSignal(flagged.Anomaly.Signals, domain.SignalHighRiskCluster) {
		t.Error("expected high_risk_cluster signal")
	}
	if hasSignal(plain.Anomaly.Signals, domain.SignalHighRiskCluster) {
		t.Error("unexpected high_risk_cluster signal without membership")
	}
}

type fixedModel struct{ score float64 }

func (m *fixedModel) Predict(map[string]float64) (float64, bool) { return m.score, true }

func TestScoreModelOverride(t *testing.T) {
	cfg := domain.DefaultConfig().Scoring
	engine := NewEngine(cfg, nil, nil, &fixedModel{score: 0.95}, nil)

	result, err := engine.Score(context.Background(), nominalVector(), nil)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if result.Prediction.SubScores.Ensemble != 0.95 {
		t.Errorf("expected override sub-score 0.95, got %f", result.Prediction.SubScores.Ensemble)
	}
}

func hasSignal(signals []domain.Signal, want domain.Signal) bool {
	for _, s := range signals {
		if s == want {
			return true
		}
	}
	return false
}
