package scoring

import (
	"sort"

	"github.com/xpress-ops/riskcore/internal/domain"
)

const (
	maxReasons      = 5
	maxTopPositive  = 5
	maxTopNegative  = 3
	neutralMidpoint = 0.5
)

// featureLabels maps canonical feature names to analyst-facing labels.
var featureLabels = map[string]string{
	"user.accountAge":           "Account age",
	"user.totalRides":           "Lifetime ride count",
	"user.cancelationRate":      "Cancelation rate",
	"user.ratingAverage":        "Average rating",
	"user.deviceChanges":        "Device changes",
	"user.locationConsistency":  "Location consistency",
	"trip.distance":             "Trip distance",
	"trip.duration":             "Trip duration",
	"trip.price":                "Trip price",
	"trip.routeDeviation":       "Route deviation",
	"trip.speedAnomaly":         "Speed anomaly",
	"trip.isWeekend":            "Weekend trip",
	"trip.isHoliday":            "Holiday trip",
	"location.pickupRiskScore":  "Pickup zone risk",
	"location.dropoffRiskScore": "Dropoff zone risk",
	"location.gpsAccuracy":      "GPS accuracy",
	"location.locationJumps":    "Location jumps",
	"location.impossibleSpeeds": "Impossible travel speeds",
	"payment.cardFailures":      "Card failures",
	"payment.unusualAmounts":    "Unusual payment amounts",
	"payment.paymentVelocity":   "Payment velocity",
	"payment.chargebackHistory": "Chargeback history",
	"device.isRooted":           "Rooted device",
	"device.isEmulator":         "Emulator",
	"device.vpnUsage":           "Device VPN usage",
	"device.multipleAccounts":   "Accounts on device",
	"device.deviceAge":          "Device age",
	"network.ipRiskScore":       "IP risk",
	"network.isVpn":             "VPN connection",
	"network.isProxy":           "Proxy connection",
	"network.isTor":             "Tor exit node",
	"network.networkChanges":    "Network changes",
}

// signalReasons maps each signal to its analyst-facing reason, in priority
// order. Hard physical evidence first, soft behavioral hints last.
var signalReasons = []struct {
	Signal domain.Signal
	Reason string
}{
	{domain.SignalImpossibleSpeed, "GPS track contains physically impossible travel speeds"},
	{domain.SignalLocationJumps, "Repeated discontinuous GPS location jumps detected"},
	{domain.SignalEmulator, "Request originates from an emulated device"},
	{domain.SignalMultipleAccounts, "Multiple accounts share this device"},
	{domain.SignalTor, "Connection routed through a Tor exit node"},
	{domain.SignalChargebacks, "Subject has prior chargebacks on file"},
	{domain.SignalForeignCountry, "Request originates outside the home country"},
	{domain.SignalIPRisk, "Connecting IP address has elevated reputation risk"},
	{domain.SignalPaymentVelocity, "Payment attempts far above normal velocity"},
	{domain.SignalCardFailures, "Elevated count of recent card failures"},
	{domain.SignalHighRiskCluster, "Feature profile falls inside a known high-risk cluster"},
	{domain.SignalRouteDeviation, "Route deviates substantially from the expected path"},
	{domain.SignalSpeedAnomaly, "Driving speed profile is anomalous for the route"},
	{domain.SignalFareMismatch, "Fare is far outside the expected per-kilometer range"},
	{domain.SignalUnusualAmount, "Payment amount is unusual for this subject"},
	{domain.SignalHighCancelation, "Cancelation rate well above normal"},
	{domain.SignalLocationInconsist, "Subject's location history is inconsistent"},
	{domain.SignalDeviceChanges, "Frequent device changes on this account"},
	{domain.SignalNetworkChanges, "Frequent network changes during recent activity"},
	{domain.SignalVPN, "Connection uses a VPN"},
	{domain.SignalProxy, "Connection uses a proxy"},
	{domain.SignalRootedDevice, "Device is rooted or jailbroken"},
	{domain.SignalHighRiskPickup, "Pickup location is in a high-risk zone"},
	{domain.SignalHighRiskDropoff, "Dropoff location is in a high-risk zone"},
	{domain.SignalCrossRegion, "Pickup and dropoff fall in different regions"},
	{domain.SignalPoorGPSAccuracy, "GPS accuracy is degraded"},
	{domain.SignalUnusualHour, "Trip started at an unusual hour for this subject"},
	{domain.SignalTripFrequency, "Trip count today is far above the subject's norm"},
	{domain.SignalWeekendDeviation, "Weekend trip deviates from the subject's usual schedule"},
	{domain.SignalHolidayTrip, "Trip taken on a holiday"},
}

// buildExplanation produces human-readable lines for the anomaly score. Each
// dimension above 0.5 contributes one line, cross-dimension combinations add
// theirs, and a clean vector still gets one line so the list is never empty.
func buildExplanation(dims domain.DimensionScores) []string {
	var lines []string

	if dims.Temporal > 0.5 {
		lines = append(lines, "Temporal activity deviates from the subject's established schedule")
	}
	if dims.Behavioral > 0.5 {
		lines = append(lines, "Behavioral profile shows abnormal trip or account activity")
	}
	if dims.Geographical > 0.5 {
		lines = append(lines, "Geospatial evidence is inconsistent with legitimate movement")
	}
	if dims.Financial > 0.5 {
		lines = append(lines, "Payment activity shows signs of financial abuse")
	}
	if dims.Network > 0.5 {
		lines = append(lines, "Network origin carries elevated anonymization or reputation risk")
	}

	if dims.Geographical > 0.5 && dims.Temporal > 0.5 {
		lines = append(lines, "Combined location and timing anomalies suggest coordinated manipulation")
	}
	if dims.Behavioral > 0.5 && dims.Financial > 0.5 {
		lines = append(lines, "Behavioral and payment anomalies together indicate possible incentive abuse")
	}

	if len(lines) == 0 {
		lines = append(lines, "No dimension exceeded its anomaly threshold")
	}
	return lines
}

// buildReasons selects up to five reasons from the fired signals, highest
// priority first.
func buildReasons(signals []domain.Signal) []string {
	present := make(map[domain.Signal]bool, len(signals))
	for _, s := range signals {
		present[s] = true
	}

	var reasons []string
	for _, entry := range signalReasons {
		if !present[entry.Signal] {
			continue
		}
		reasons = append(reasons, entry.Reason)
		if len(reasons) == maxReasons {
			break
		}
	}
	return reasons
}

// buildImportance ranks normalized features by deviation from the neutral
// midpoint. Features above 0.5 push risk up, features below pull it down.
func buildImportance(normalized map[string]float64) domain.FeatureImportance {
	type deviation struct {
		name  string
		value float64
		dev   float64
	}

	devs := make([]deviation, 0, len(normalized))
	for name, value := range normalized {
		devs = append(devs, deviation{name: name, value: value, dev: value - neutralMidpoint})
	}
	sort.Slice(devs, func(i, j int) bool {
		di, dj := devs[i].dev, devs[j].dev
		if di < 0 {
			di = -di
		}
		if dj < 0 {
			dj = -dj
		}
		if di != dj {
			return di > dj
		}
		return devs[i].name < devs[j].name
	})

	var imp domain.FeatureImportance
	for _, d := range devs {
		switch {
		case d.dev > 0 && len(imp.TopPositive) < maxTopPositive:
			imp.TopPositive = append(imp.TopPositive, contribution(d.name, d.value))
		case d.dev < 0 && len(imp.TopNegative) < maxTopNegative:
			imp.TopNegative = append(imp.TopNegative, contribution(d.name, d.value))
		}
		if len(imp.TopPositive) == maxTopPositive && len(imp.TopNegative) == maxTopNegative {
			break
		}
	}
	return imp
}

func contribution(name string, value float64) domain.FeatureContribution {
	label, ok := featureLabels[name]
	if !ok {
		label = name
	}
	return domain.FeatureContribution{Feature: name, Label: label, Value: value}
}
