package scoring

import (
	"math"

	"github.com/xpress-ops/riskcore/internal/domain"
)

// maxConfidence caps every confidence the pipeline reports.
const maxConfidence = 0.98

// aggregate blends the five dimension scores into the overall anomaly score
// and derives confidence from how much the dimensions agree.
func aggregate(dims domain.DimensionScores) (overall, confidence float64) {
	overall = clamp01(
		weightTemporal*dims.Temporal +
			weightBehavioral*dims.Behavioral +
			weightGeographical*dims.Geographical +
			weightFinancial*dims.Financial +
			weightNetwork*dims.Network)

	values := [5]float64{dims.Temporal, dims.Behavioral, dims.Geographical, dims.Financial, dims.Network}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / 5

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	std := math.Sqrt(variance / 5)

	// High spread between dimensions means the evidence is mixed, which
	// erodes confidence linearly down to zero at std >= 0.5.
	consistency := 1 - math.Min(std, 0.5)/0.5

	base := 0.5
	switch {
	case mean > 0.7:
		base = 0.9
	case mean > 0.4:
		base = 0.7
	}

	confidence = math.Min(base*consistency, maxConfidence)
	return overall, confidence
}
