package scoring

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/xpress-ops/riskcore/internal/domain"
)

// ModelVersion tags every prediction the ensemble emits.
const ModelVersion = "riskcore-ensemble-1.0"

// Ensemble blend weights over the four sub-models.
const (
	blendGeneral      = 0.40
	blendGPSSpoofing  = 0.25
	blendMultiAccount = 0.20
	blendIncentive    = 0.15
)

// ModelOverride lets a trained model replace the rule-based general ensemble
// sub-score. Predict returns ok=false to fall through to the built-in blend.
type ModelOverride interface {
	Predict(features map[string]float64) (score float64, ok bool)
}

// EnsembleScorer blends the general anomaly model with three specialized
// fraud detectors over the normalized feature map.
type EnsembleScorer struct {
	override ModelOverride
}

// NewEnsembleScorer creates the scorer. override may be nil.
func NewEnsembleScorer(override ModelOverride) *EnsembleScorer {
	return &EnsembleScorer{override: override}
}

// Score produces a FraudPrediction from the normalized feature map. Signals
// accumulated by the dimension scorers are merged with the ensemble's own
// detections; reasons and feature importance are filled in by the caller.
func (e *EnsembleScorer) Score(fv *domain.FeatureVector, normalized map[string]float64, signals []domain.Signal) *domain.FraudPrediction {
	sub := domain.SubScores{
		Ensemble:     e.generalScore(normalized),
		GPSSpoofing:  gpsSpoofingScore(normalized),
		MultiAccount: multiAccountScore(normalized),
		Incentive:    incentiveAbuseScore(normalized),
	}

	fraudScore := clamp01(
		blendGeneral*sub.Ensemble +
			blendGPSSpoofing*sub.GPSSpoofing +
			blendMultiAccount*sub.MultiAccount +
			blendIncentive*sub.Incentive)

	merged := append([]domain.Signal(nil), signals...)
	if normalized["device.multipleAccounts"] > 0.7 {
		merged = appendSignal(merged, domain.SignalMultipleAccounts)
	}
	if normalized["user.deviceChanges"] > 0.8 {
		merged = appendSignal(merged, domain.SignalDeviceChanges)
	}

	return &domain.FraudPrediction{
		ID:           uuid.New().String(),
		TenantID:     fv.TenantID,
		TripID:       fv.TripID,
		SubjectID:    fv.SubjectID,
		FraudScore:   fraudScore,
		RiskLevel:    domain.RiskLevelFor(fraudScore),
		Confidence:   ensembleConfidence(fraudScore, normalized),
		Signals:      merged,
		SubScores:    sub,
		ModelVersion: ModelVersion,
		Timestamp:    time.Now().UTC(),
	}
}

// generalScore is the rule-based general anomaly blend. Hard physical
// indicators dominate; strong reputation and location consistency subtract
// once they clear a trust threshold.
func (e *EnsembleScorer) generalScore(n map[string]float64) float64 {
	if e.override != nil {
		if score, ok := e.override.Predict(n); ok {
			return clamp01(score)
		}
	}

	score := 0.35*n["location.impossibleSpeeds"] +
		0.25*n["location.locationJumps"] +
		0.10*n["location.pickupRiskScore"] +
		0.10*n["location.dropoffRiskScore"] +
		0.15*n["trip.routeDeviation"] +
		0.10*n["network.ipRiskScore"] +
		0.10*n["payment.cardFailures"] +
		0.10*math.Max(n["device.isEmulator"], n["device.isRooted"])

	if rating := n["user.ratingAverage"]; rating > 0.6 {
		score -= 0.15 * rating
	}
	if consistency := n["user.locationConsistency"]; consistency > 0.6 {
		score -= 0.15 * consistency
	}

	return clamp01(score)
}

func gpsSpoofingScore(n map[string]float64) float64 {
	return clamp01(
		0.25*n["location.locationJumps"] +
			0.30*n["location.impossibleSpeeds"] +
			0.15*n["location.gpsAccuracy"] +
			0.20*n["trip.speedAnomaly"] +
			0.10*n["device.isRooted"])
}

func multiAccountScore(n map[string]float64) float64 {
	return clamp01(
		0.35*n["device.multipleAccounts"] +
			0.20*n["payment.cardFailures"] +
			0.15*n["user.deviceChanges"] +
			0.15*n["network.networkChanges"] +
			0.15*n["device.isEmulator"])
}

func incentiveAbuseScore(n map[string]float64) float64 {
	return clamp01(
		0.25*n["trip.routeDeviation"] +
			0.20*n["payment.unusualAmounts"] +
			0.10*n["trip.isWeekend"] +
			0.15*n["user.cancelationRate"] +
			0.15*n["location.pickupRiskScore"] +
			0.15*n["location.dropoffRiskScore"])
}

// ensembleConfidence grows with the score itself, with feature coverage, and
// with near-certain individual indicators.
func ensembleConfidence(fraudScore float64, n map[string]float64) float64 {
	covered := 0
	for _, v := range n {
		if v > 0.1 {
			covered++
		}
	}
	coverage := 0.0
	if len(n) > 0 {
		coverage = float64(covered) / float64(len(n))
	}

	confidence := 0.5 + 0.25*fraudScore + 0.20*coverage

	if n["location.impossibleSpeeds"] > 0.8 {
		confidence += 0.10
	}
	if n["device.isEmulator"] > 0.8 {
		confidence += 0.10
	}
	if n["device.multipleAccounts"] > 0.7 {
		confidence += 0.08
	}

	return math.Min(clamp01(confidence), maxConfidence)
}

func appendSignal(signals []domain.Signal, s domain.Signal) []domain.Signal {
	for _, existing := range signals {
		if existing == s {
			return signals
		}
	}
	return append(signals, s)
}
