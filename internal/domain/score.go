package domain

import "time"

// Signal is a structured tag emitted by a scorer when a rule fires. Pattern
// archetype signatures match against signal sets rather than generated prose.
type Signal string

const (
	SignalUnusualHour         Signal = "unusual_hour"
	SignalWeekendDeviation    Signal = "weekend_deviation"
	SignalHolidayTrip         Signal = "holiday_trip"
	SignalTripFrequency       Signal = "trip_frequency"
	SignalRouteDeviation      Signal = "route_deviation"
	SignalSpeedAnomaly        Signal = "speed_anomaly"
	SignalHighCancelation     Signal = "high_cancelation"
	SignalLocationInconsist   Signal = "location_inconsistency"
	SignalCardFailures        Signal = "card_failures"
	SignalEmulator            Signal = "emulator"
	SignalRootedDevice        Signal = "rooted_device"
	SignalLocationJumps       Signal = "location_jumps"
	SignalImpossibleSpeed     Signal = "impossible_speed"
	SignalPoorGPSAccuracy     Signal = "poor_gps_accuracy"
	SignalHighRiskPickup      Signal = "high_risk_pickup"
	SignalHighRiskDropoff     Signal = "high_risk_dropoff"
	SignalCrossRegion         Signal = "cross_region"
	SignalUnusualAmount       Signal = "unusual_amount"
	SignalPaymentVelocity     Signal = "payment_velocity"
	SignalChargebacks         Signal = "chargebacks"
	SignalFareMismatch        Signal = "fare_mismatch"
	SignalIPRisk              Signal = "ip_risk"
	SignalVPN                 Signal = "vpn"
	SignalProxy               Signal = "proxy"
	SignalTor                 Signal = "tor"
	SignalNetworkChanges      Signal = "network_changes"
	SignalForeignCountry      Signal = "foreign_country"
	SignalMultipleAccounts    Signal = "multiple_accounts"
	SignalDeviceChanges       Signal = "device_changes"
	SignalHighRiskCluster     Signal = "high_risk_cluster"
)

// Dimension names the five anomaly dimensions.
type Dimension string

const (
	DimensionTemporal     Dimension = "temporal"
	DimensionBehavioral   Dimension = "behavioral"
	DimensionGeographical Dimension = "geographical"
	DimensionFinancial    Dimension = "financial"
	DimensionNetwork      Dimension = "network"
)

// DimensionScores holds the five [0,1] anomaly contributions.
type DimensionScores struct {
	Temporal     float64 `json:"temporal"`
	Behavioral   float64 `json:"behavioral"`
	Geographical float64 `json:"geographical"`
	Financial    float64 `json:"financial"`
	Network      float64 `json:"network"`
}

// AnomalyScore is the aggregated multi-dimensional anomaly result.
// Created per scoring call; not persisted as shared state.
type AnomalyScore struct {
	Overall     float64         `json:"overall"`    // [0,1]
	Dimensions  DimensionScores `json:"dimensions"` // each [0,1]
	Confidence  float64         `json:"confidence"` // [0,1]
	Explanation []string        `json:"explanation"`
	Signals     []Signal        `json:"signals"`
}

// RiskLevel classifies a fraud score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelFor maps a fraud score to its band: >=0.8 critical, >=0.6 high,
// >=0.3 medium, else low.
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score >= 0.8:
		return RiskCritical
	case score >= 0.6:
		return RiskHigh
	case score >= 0.3:
		return RiskMedium
	default:
		return RiskLow
	}
}

// FeatureContribution annotates one feature's weight in the prediction.
type FeatureContribution struct {
	Feature string  `json:"feature"`
	Label   string  `json:"label"`
	Value   float64 `json:"value"`
}

// FeatureImportance holds the top normalized contributors by sign.
type FeatureImportance struct {
	TopPositive []FeatureContribution `json:"topPositive"` // <= 5
	TopNegative []FeatureContribution `json:"topNegative"` // <= 3
}

// SubScores holds the four specialized ensemble sub-model scores.
type SubScores struct {
	Ensemble     float64 `json:"ensemble"`
	GPSSpoofing  float64 `json:"gpsSpoofing"`
	MultiAccount float64 `json:"multiAccount"`
	Incentive    float64 `json:"incentive"`
}

// FraudPrediction is the blended ensemble result for one scoring call.
type FraudPrediction struct {
	ID                string            `json:"id"`
	TenantID          string            `json:"tenantId"`
	TripID            string            `json:"tripId"`
	SubjectID         string            `json:"subjectId"`
	FraudScore        float64           `json:"fraudScore"` // [0,1]
	RiskLevel         RiskLevel         `json:"riskLevel"`
	Confidence        float64           `json:"confidence"` // [0,1]
	Reasons           []string          `json:"reasons"`    // <= 5
	Signals           []Signal          `json:"signals"`
	SubScores         SubScores         `json:"subScores"`
	ModelVersion      string            `json:"modelVersion"`
	FeatureImportance FeatureImportance `json:"featureImportance"`
	Timestamp         time.Time         `json:"timestamp"`
}

// HasSignal reports whether the prediction carries the given signal.
func (p *FraudPrediction) HasSignal(s Signal) bool {
	for _, sig := range p.Signals {
		if sig == s {
			return true
		}
	}
	return false
}

// ScoreResult pairs the two outputs of a scoring call for persistence and
// bus publication.
type ScoreResult struct {
	Anomaly    *AnomalyScore    `json:"anomaly"`
	Prediction *FraudPrediction `json:"prediction"`
}
