package scoring

import (
	"github.com/xpress-ops/riskcore/internal/domain"
)

// Dimension blend weights. Must sum to 1.0.
const (
	weightTemporal     = 0.15
	weightBehavioral   = 0.30
	weightGeographical = 0.25
	weightFinancial    = 0.20
	weightNetwork      = 0.10
)

// dimensionResult carries one scorer's contribution plus the rule signals
// that fired.
type dimensionResult struct {
	Dimension domain.Dimension
	Score     float64
	Signals   []domain.Signal
}

// scoreTemporal evaluates time-of-day and frequency rules against the
// subject's precomputed history. Dimension scorers work on raw values so a
// trip at 3 AM for a night-shift driver scores low while the same trip for a
// 9-to-5 commuter scores high.
func scoreTemporal(fv *domain.FeatureVector, hist *domain.RiderHistory) dimensionResult {
	res := dimensionResult{Dimension: domain.DimensionTemporal}

	switch {
	case hist.HourFrequency < 0.05:
		res.Score += 0.6
		res.Signals = append(res.Signals, domain.SignalUnusualHour)
	case hist.HourFrequency < 0.15:
		res.Score += 0.3
		res.Signals = append(res.Signals, domain.SignalUnusualHour)
	}

	if fv.Trip.IsWeekend && hist.WeekendShare < 0.2 {
		res.Score += 0.2
		res.Signals = append(res.Signals, domain.SignalWeekendDeviation)
	}

	if fv.Trip.IsHoliday {
		res.Score += 0.4
		res.Signals = append(res.Signals, domain.SignalHolidayTrip)
	}

	if hist.TripsToday > 0 && hist.TripsToday > hist.DailyTripMean+2*hist.DailyTripStd {
		res.Score += 0.5
		res.Signals = append(res.Signals, domain.SignalTripFrequency)
	}

	res.Score = clamp01(res.Score)
	return res
}

// scoreBehavioral evaluates driving-pattern and account-behavior rules.
func scoreBehavioral(fv *domain.FeatureVector) dimensionResult {
	res := dimensionResult{Dimension: domain.DimensionBehavioral}

	switch {
	case fv.Trip.RouteDeviation > 0.6:
		res.Score += 0.4
		res.Signals = append(res.Signals, domain.SignalRouteDeviation)
	case fv.Trip.RouteDeviation > 0.4:
		res.Score += 0.2
		res.Signals = append(res.Signals, domain.SignalRouteDeviation)
	}

	switch {
	case fv.Trip.SpeedAnomaly > 0.8:
		res.Score += 0.5
		res.Signals = append(res.Signals, domain.SignalSpeedAnomaly)
	case fv.Trip.SpeedAnomaly > 0.5:
		res.Score += 0.3
		res.Signals = append(res.Signals, domain.SignalSpeedAnomaly)
	}

	if fv.User.CancelationRate > 0.4 {
		res.Score += 0.3
		res.Signals = append(res.Signals, domain.SignalHighCancelation)
	}

	if fv.User.LocationConsistency < 0.3 {
		res.Score += 0.4
		res.Signals = append(res.Signals, domain.SignalLocationInconsist)
	}

	switch {
	case fv.Payment.CardFailures > 5:
		res.Score += 0.3
		res.Signals = append(res.Signals, domain.SignalCardFailures)
	case fv.Payment.CardFailures > 2:
		res.Score += 0.1
		res.Signals = append(res.Signals, domain.SignalCardFailures)
	}

	if fv.Device.IsEmulator {
		res.Score += 0.7
		res.Signals = append(res.Signals, domain.SignalEmulator)
	}

	if fv.Device.IsRooted {
		res.Score += 0.3
		res.Signals = append(res.Signals, domain.SignalRootedDevice)
	}

	res.Score = clamp01(res.Score)
	return res
}

// scoreGeographical evaluates GPS integrity and location-risk rules.
func scoreGeographical(fv *domain.FeatureVector) dimensionResult {
	res := dimensionResult{Dimension: domain.DimensionGeographical}

	switch {
	case fv.Location.LocationJumps > 3:
		res.Score += 0.8
		res.Signals = append(res.Signals, domain.SignalLocationJumps)
	case fv.Location.LocationJumps > 1:
		res.Score += 0.4
		res.Signals = append(res.Signals, domain.SignalLocationJumps)
	}

	switch {
	case fv.Location.ImpossibleSpeeds > 2:
		res.Score += 0.9
		res.Signals = append(res.Signals, domain.SignalImpossibleSpeed)
	case fv.Location.ImpossibleSpeeds > 0:
		res.Score += 0.6
		res.Signals = append(res.Signals, domain.SignalImpossibleSpeed)
	}

	switch {
	case fv.Location.GPSAccuracy > 50:
		res.Score += 0.3
		res.Signals = append(res.Signals, domain.SignalPoorGPSAccuracy)
	case fv.Location.GPSAccuracy > 20:
		res.Score += 0.1
		res.Signals = append(res.Signals, domain.SignalPoorGPSAccuracy)
	}

	// One bump regardless of whether one or both endpoints are risky.
	highRiskEndpoint := false
	if fv.Location.PickupRiskScore > 0.8 {
		highRiskEndpoint = true
		res.Signals = append(res.Signals, domain.SignalHighRiskPickup)
	}
	if fv.Location.DropoffRiskScore > 0.8 {
		highRiskEndpoint = true
		res.Signals = append(res.Signals, domain.SignalHighRiskDropoff)
	}
	if highRiskEndpoint {
		res.Score += 0.4
	}

	if fv.Location.PickupRegion != "" && fv.Location.DropoffRegion != "" &&
		fv.Location.PickupRegion != fv.Location.DropoffRegion {
		res.Score += 0.2
		res.Signals = append(res.Signals, domain.SignalCrossRegion)
	}

	res.Score = clamp01(res.Score)
	return res
}

// scoreFinancial evaluates payment-abuse rules. expectedFarePerKm anchors the
// fare sanity check.
func scoreFinancial(fv *domain.FeatureVector, expectedFarePerKm float64) dimensionResult {
	res := dimensionResult{Dimension: domain.DimensionFinancial}

	if fv.Payment.UnusualAmounts {
		res.Score += 0.4
		res.Signals = append(res.Signals, domain.SignalUnusualAmount)
	}

	switch {
	case fv.Payment.PaymentVelocity > 10:
		res.Score += 0.5
		res.Signals = append(res.Signals, domain.SignalPaymentVelocity)
	case fv.Payment.PaymentVelocity > 5:
		res.Score += 0.2
		res.Signals = append(res.Signals, domain.SignalPaymentVelocity)
	}

	switch {
	case fv.Payment.ChargebackHistory > 3:
		res.Score += 0.6
		res.Signals = append(res.Signals, domain.SignalChargebacks)
	case fv.Payment.ChargebackHistory > 1:
		res.Score += 0.3
		res.Signals = append(res.Signals, domain.SignalChargebacks)
	}

	if fv.Trip.Distance > 0 && expectedFarePerKm > 0 {
		perKm := fv.Trip.Price / fv.Trip.Distance
		switch {
		case perKm > 3*expectedFarePerKm:
			res.Score += 0.5
			res.Signals = append(res.Signals, domain.SignalFareMismatch)
		case perKm < 0.3*expectedFarePerKm:
			res.Score += 0.4
			res.Signals = append(res.Signals, domain.SignalFareMismatch)
		}
	}

	res.Score = clamp01(res.Score)
	return res
}

// scoreNetwork evaluates IP and connection-hygiene rules.
func scoreNetwork(fv *domain.FeatureVector, homeCountry string) dimensionResult {
	res := dimensionResult{Dimension: domain.DimensionNetwork}

	switch {
	case fv.Network.IPRiskScore > 0.8:
		res.Score += 0.6
		res.Signals = append(res.Signals, domain.SignalIPRisk)
	case fv.Network.IPRiskScore > 0.5:
		res.Score += 0.3
		res.Signals = append(res.Signals, domain.SignalIPRisk)
	}

	if fv.Network.IsVPN || fv.Network.IsProxy || fv.Device.VPNUsage {
		res.Score += 0.4
		if fv.Network.IsVPN || fv.Device.VPNUsage {
			res.Signals = append(res.Signals, domain.SignalVPN)
		}
		if fv.Network.IsProxy {
			res.Signals = append(res.Signals, domain.SignalProxy)
		}
	}

	if fv.Network.IsTor {
		res.Score += 0.8
		res.Signals = append(res.Signals, domain.SignalTor)
	}

	switch {
	case fv.Network.NetworkChanges > 5:
		res.Score += 0.3
		res.Signals = append(res.Signals, domain.SignalNetworkChanges)
	case fv.Network.NetworkChanges > 2:
		res.Score += 0.1
		res.Signals = append(res.Signals, domain.SignalNetworkChanges)
	}

	if homeCountry != "" && fv.Network.CountryCode != "" && fv.Network.CountryCode != homeCountry {
		res.Score += 0.7
		res.Signals = append(res.Signals, domain.SignalForeignCountry)
	}

	res.Score = clamp01(res.Score)
	return res
}
