// Package scoring implements the fraud/anomaly risk scoring pipeline:
// feature normalization, the five dimension scorers, score aggregation, the
// ensemble fraud scorer, and explanation generation. The whole pipeline is
// pure: it reads immutable configuration tables and performs no I/O, so
// independent calls run fully in parallel without locking.
package scoring

import (
	"math"

	"github.com/xpress-ops/riskcore/internal/domain"
)

// populationStat holds the fixed population mean/std for one feature.
type populationStat struct {
	Mean float64
	Std  float64
}

// populationStats is the per-feature population table seeded at startup.
// Continuous and volume features are z-scored against it; count features and
// boolean flags deliberately stay out so they fall back to clamp(value,0,1)
// and a zero count reads as zero risk rather than the sigmoid midpoint.
var populationStats = map[string]populationStat{
	"user.accountAge":           {Mean: 180, Std: 120},
	"user.totalRides":           {Mean: 150, Std: 200},
	"user.cancelationRate":      {Mean: 0.08, Std: 0.10},
	"user.ratingAverage":        {Mean: 4.6, Std: 0.35},
	"user.deviceChanges":        {Mean: 0.8, Std: 1.2},
	"user.locationConsistency":  {Mean: 0.75, Std: 0.2},
	"trip.distance":             {Mean: 15.5, Std: 12.3},
	"trip.duration":             {Mean: 28, Std: 18},
	"trip.price":                {Mean: 250, Std: 180},
	"trip.routeDeviation":       {Mean: 0.12, Std: 0.15},
	"trip.speedAnomaly":         {Mean: 0.10, Std: 0.15},
	"location.pickupRiskScore":  {Mean: 0.30, Std: 0.20},
	"location.dropoffRiskScore": {Mean: 0.30, Std: 0.20},
	"location.gpsAccuracy":      {Mean: 12, Std: 10},
	"payment.cardFailures":      {Mean: 0.4, Std: 1.1},
	"payment.paymentVelocity":   {Mean: 1.2, Std: 2.0},
	"payment.chargebackHistory": {Mean: 0.1, Std: 0.5},
	"device.deviceAge":          {Mean: 400, Std: 300},
	"network.ipRiskScore":       {Mean: 0.20, Std: 0.18},
	"network.networkChanges":    {Mean: 1.0, Std: 1.8},
}

// Normalizer converts raw heterogeneous measurements into a common [0,1]
// feature map.
type Normalizer struct {
	stats map[string]populationStat
}

// NewNormalizer creates a normalizer over the fixed population table.
func NewNormalizer() *Normalizer {
	return &Normalizer{stats: populationStats}
}

// Normalize maps one raw measurement into [0,1]. Features in the population
// table are z-scored then squashed with a logistic sigmoid; unknown feature
// names fall back to clamp(value, 0, 1). Non-finite input normalizes to the
// neutral midpoint 0.5.
func (n *Normalizer) Normalize(name string, value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0.5
	}
	stat, ok := n.stats[name]
	if !ok || stat.Std == 0 {
		return clamp01(value)
	}
	z := (value - stat.Mean) / stat.Std
	return sigmoid(z)
}

// Vector normalizes a full feature vector into the canonical feature map
// consumed by the ensemble scorer, feature importance, and clustering.
func (n *Normalizer) Vector(fv *domain.FeatureVector) map[string]float64 {
	raw := map[string]float64{
		"user.accountAge":            fv.User.AccountAge,
		"user.totalRides":            fv.User.TotalRides,
		"user.cancelationRate":       fv.User.CancelationRate,
		"user.ratingAverage":         fv.User.RatingAverage,
		"user.deviceChanges":         fv.User.DeviceChanges,
		"user.locationConsistency":   fv.User.LocationConsistency,
		"trip.distance":              fv.Trip.Distance,
		"trip.duration":              fv.Trip.Duration,
		"trip.price":                 fv.Trip.Price,
		"trip.routeDeviation":        fv.Trip.RouteDeviation,
		"trip.speedAnomaly":          fv.Trip.SpeedAnomaly,
		"trip.isWeekend":             boolFeature(fv.Trip.IsWeekend),
		"trip.isHoliday":             boolFeature(fv.Trip.IsHoliday),
		"location.pickupRiskScore":   fv.Location.PickupRiskScore,
		"location.dropoffRiskScore":  fv.Location.DropoffRiskScore,
		"location.gpsAccuracy":       fv.Location.GPSAccuracy,
		"location.locationJumps":     fv.Location.LocationJumps,
		"location.impossibleSpeeds":  fv.Location.ImpossibleSpeeds,
		"payment.cardFailures":       fv.Payment.CardFailures,
		"payment.unusualAmounts":     boolFeature(fv.Payment.UnusualAmounts),
		"payment.paymentVelocity":    fv.Payment.PaymentVelocity,
		"payment.chargebackHistory":  fv.Payment.ChargebackHistory,
		"device.isRooted":            boolFeature(fv.Device.IsRooted),
		"device.isEmulator":          boolFeature(fv.Device.IsEmulator),
		"device.vpnUsage":            boolFeature(fv.Device.VPNUsage),
		"device.multipleAccounts":    fv.Device.MultipleAccounts,
		"device.deviceAge":           fv.Device.DeviceAge,
		"network.ipRiskScore":        fv.Network.IPRiskScore,
		"network.isVpn":              boolFeature(fv.Network.IsVPN),
		"network.isProxy":            boolFeature(fv.Network.IsProxy),
		"network.isTor":              boolFeature(fv.Network.IsTor),
		"network.networkChanges":     fv.Network.NetworkChanges,
	}

	normalized := make(map[string]float64, len(raw))
	for name, value := range raw {
		normalized[name] = n.Normalize(name, value)
	}
	return normalized
}

// clusterFeatureOrder fixes the layout of cluster-space vectors.
var clusterFeatureOrder = []string{
	"trip.routeDeviation",
	"trip.speedAnomaly",
	"user.cancelationRate",
	"user.locationConsistency",
	"location.pickupRiskScore",
	"location.dropoffRiskScore",
	"location.gpsAccuracy",
	"location.locationJumps",
	"location.impossibleSpeeds",
	"payment.cardFailures",
	"payment.paymentVelocity",
	"network.ipRiskScore",
	"device.multipleAccounts",
	"user.deviceChanges",
	"trip.isWeekend",
}

// ClusterFeatureNames returns the canonical ordering of cluster-space
// dimensions. Shared with the cluster engine for characteristic labeling.
func ClusterFeatureNames() []string {
	names := make([]string, len(clusterFeatureOrder))
	copy(names, clusterFeatureOrder)
	return names
}

// ClusterVector projects a normalized feature map into cluster space.
func ClusterVector(normalized map[string]float64) []float64 {
	vec := make([]float64, len(clusterFeatureOrder))
	for i, name := range clusterFeatureOrder {
		vec[i] = normalized[name]
	}
	return vec
}

func boolFeature(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
