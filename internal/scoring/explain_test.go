package scoring

import (
	"testing"

	"github.com/xpress-ops/riskcore/internal/domain"
)

func TestBuildExplanation(t *testing.T) {
	t.Run("NeverEmpty", func(t *testing.T) {
		lines := buildExplanation(domain.DimensionScores{})
		if len(lines) != 1 {
			t.Fatalf("expected single fallback line, got %v", lines)
		}
	})

	t.Run("CombinationRules", func(t *testing.T) {
		lines := buildExplanation(domain.DimensionScores{
			Temporal:     0.7,
			Behavioral:   0.6,
			Geographical: 0.8,
			Financial:    0.6,
		})
		// Four dimension lines plus both combination lines.
		if len(lines) != 6 {
			t.Errorf("expected 6 explanation lines, got %d: %v", len(lines), lines)
		}
	})
}

func TestBuildReasons(t *testing.T) {
	t.Run("PriorityOrder", func(t *testing.T) {
		reasons := buildReasons([]domain.Signal{
			domain.SignalUnusualHour,
			domain.SignalImpossibleSpeed,
		})
		if len(reasons) != 2 {
			t.Fatalf("expected 2 reasons, got %d", len(reasons))
		}
		// Hard GPS evidence outranks the temporal hint regardless of input order.
		if reasons[0] != "GPS track contains physically impossible travel speeds" {
			t.Errorf("unexpected first reason: %s", reasons[0])
		}
	})

	t.Run("CappedAtFive", func(t *testing.T) {
		signals := []domain.Signal{
			domain.SignalImpossibleSpeed,
			domain.SignalLocationJumps,
			domain.SignalEmulator,
			domain.SignalMultipleAccounts,
			domain.SignalTor,
			domain.SignalChargebacks,
			domain.SignalIPRisk,
		}
		reasons := buildReasons(signals)
		if len(reasons) != maxReasons {
			t.Errorf("expected %d reasons, got %d", maxReasons, len(reasons))
		}
	})

	t.Run("DuplicateSignalsCollapse", func(t *testing.T) {
		reasons := buildReasons([]domain.Signal{domain.SignalVPN, domain.SignalVPN})
		if len(reasons) != 1 {
			t.Errorf("expected 1 reason for duplicate signal, got %d", len(reasons))
		}
	})
}

func TestBuildImportance(t *testing.T) {
	normalized := map[string]float64{
		"location.impossibleSpeeds": 1.0,
		"location.locationJumps":    0.9,
		"network.ipRiskScore":       0.8,
		"payment.cardFailures":      0.7,
		"trip.routeDeviation":       0.65,
		"trip.speedAnomaly":         0.6,
		"user.ratingAverage":        0.1,
		"user.locationConsistency":  0.2,
		"user.accountAge":           0.3,
		"device.deviceAge":          0.4,
		"trip.distance":             0.5,
	}

	imp := buildImportance(normalized)

	if len(imp.TopPositive) != maxTopPositive {
		t.Fatalf("expected %d positive contributors, got %d", maxTopPositive, len(imp.TopPositive))
	}
	if len(imp.TopNegative) != maxTopNegative {
		t.Fatalf("expected %d negative contributors, got %d", maxTopNegative, len(imp.TopNegative))
	}

	if imp.TopPositive[0].Feature != "location.impossibleSpeeds" {
		t.Errorf("expected impossibleSpeeds to rank first, got %s", imp.TopPositive[0].Feature)
	}
	if imp.TopPositive[0].Label != "Impossible travel speeds" {
		t.Errorf("unexpected label %s", imp.TopPositive[0].Label)
	}
	if imp.TopNegative[0].Feature != "user.ratingAverage" {
		t.Errorf("expected ratingAverage to rank first negative, got %s", imp.TopNegative[0].Feature)
	}

	// The exactly-neutral feature contributes to neither side.
	for _, c := range append(imp.TopPositive, imp.TopNegative...) {
		if c.Feature == "trip.distance" {
			t.Error("neutral feature should not appear in importance")
		}
	}
}
