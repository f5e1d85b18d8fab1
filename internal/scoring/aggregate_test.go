package scoring

import (
	"math"
	"testing"

	"github.com/xpress-ops/riskcore/internal/domain"
)

func TestAggregate(t *testing.T) {
	t.Run("WeightedBlend", func(t *testing.T) {
		dims := domain.DimensionScores{
			Temporal:     1,
			Behavioral:   1,
			Geographical: 1,
			Financial:    1,
			Network:      1,
		}
		overall, _ := aggregate(dims)
		if math.Abs(overall-1.0) > 1e-9 {
			t.Errorf("weights must sum to 1.0, got overall %f", overall)
		}

		overall, _ = aggregate(domain.DimensionScores{Behavioral: 1})
		if math.Abs(overall-0.30) > 1e-9 {
			t.Errorf("expected behavioral weight 0.30, got %f", overall)
		}
	})

	t.Run("ConsistentHighScoresAreConfident", func(t *testing.T) {
		uniform := domain.DimensionScores{
			Temporal: 0.8, Behavioral: 0.8, Geographical: 0.8, Financial: 0.8, Network: 0.8,
		}
		_, confidence := aggregate(uniform)
		if math.Abs(confidence-0.9) > 1e-9 {
			t.Errorf("expected confidence 0.9 for uniform high scores, got %f", confidence)
		}
	})

	t.Run("DisagreementErodesConfidence", func(t *testing.T) {
		mixed := domain.DimensionScores{Geographical: 1.0}
		_, mixedConf := aggregate(mixed)

		uniform := domain.DimensionScores{
			Temporal: 0.2, Behavioral: 0.2, Geographical: 0.2, Financial: 0.2, Network: 0.2,
		}
		_, uniformConf := aggregate(uniform)

		if mixedConf >= uniformConf {
			t.Errorf("disagreeing dimensions should be less confident: %f >= %f", mixedConf, uniformConf)
		}
	})

	t.Run("ConfidenceCapped", func(t *testing.T) {
		for _, v := range []float64{0, 0.45, 0.75, 1.0} {
			dims := domain.DimensionScores{
				Temporal: v, Behavioral: v, Geographical: v, Financial: v, Network: v,
			}
			_, confidence := aggregate(dims)
			if confidence > maxConfidence {
				t.Errorf("confidence %f exceeds cap at uniform %f", confidence, v)
			}
		}
	})
}
