package cluster

import (
	"context"
	"testing"
	"time"
)

var testFeatures = []string{"location.pickupRiskScore", "location.impossibleSpeeds", "payment.cardFailures"}

// twoGroups returns vectors forming one low-risk and one high-risk blob.
func twoGroups() (vectors [][]float64, risks []float64) {
	low := [][]float64{
		{0.10, 0.00, 0.10},
		{0.12, 0.02, 0.08},
		{0.08, 0.01, 0.12},
		{0.11, 0.00, 0.09},
	}
	high := [][]float64{
		{0.90, 0.95, 0.80},
		{0.88, 0.92, 0.85},
		{0.92, 0.97, 0.78},
		{0.91, 0.94, 0.82},
	}
	for _, v := range low {
		vectors = append(vectors, v)
		risks = append(risks, 0.1)
	}
	for _, v := range high {
		vectors = append(vectors, v)
		risks = append(risks, 0.85)
	}
	return vectors, risks
}

func TestRun(t *testing.T) {
	engine := NewEngine(testFeatures, nil)
	vectors, risks := twoGroups()

	analyses, err := engine.Run(context.Background(), vectors, risks)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	total := 0
	for _, a := range analyses {
		total += a.Size
		if a.Cohesion < 0 || a.Cohesion > 1 {
			t.Errorf("cohesion %f out of [0,1]", a.Cohesion)
		}
		if len(a.Center) != len(testFeatures) {
			t.Errorf("center has %d dimensions, want %d", len(a.Center), len(testFeatures))
		}
	}
	if total != len(vectors) {
		t.Errorf("cluster sizes sum to %d, want %d", total, len(vectors))
	}

	// Tight blobs: every cluster should be highly cohesive.
	for _, a := range analyses {
		if a.Cohesion < 0.9 {
			t.Errorf("cluster %s cohesion %f, expected tight blob", a.ClusterID, a.Cohesion)
		}
		if len(a.Outliers) != 0 {
			t.Errorf("cluster %s has unexpected outliers %v", a.ClusterID, a.Outliers)
		}
	}
}

func TestRunDeterministic(t *testing.T) {
	vectors, risks := twoGroups()

	first, err := NewEngine(testFeatures, nil).Run(context.Background(), vectors, risks)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	second, err := NewEngine(testFeatures, nil).Run(context.Background(), vectors, risks)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("run produced %d then %d clusters", len(first), len(second))
	}
	for i := range first {
		if first[i].Size != second[i].Size {
			t.Errorf("cluster %d size differs across runs: %d vs %d", i, first[i].Size, second[i].Size)
		}
		for d := range first[i].Center {
			if first[i].Center[d] != second[i].Center[d] {
				t.Fatalf("cluster %d center differs across runs", i)
			}
		}
	}
}

func TestRunValidation(t *testing.T) {
	engine := NewEngine(testFeatures, nil)
	ctx := context.Background()

	if _, err := engine.Run(ctx, [][]float64{{0.1, 0.2, 0.3}}, nil); err == nil {
		t.Error("expected error for mismatched risks")
	}
	if _, err := engine.Run(ctx, [][]float64{{0.1}}, []float64{0.5}); err == nil {
		t.Error("expected error for wrong dimensionality")
	}
}

func TestRunEmptyBatch(t *testing.T) {
	engine := NewEngine(testFeatures, nil)
	ctx := context.Background()

	analyses, err := engine.Run(ctx, nil, nil)
	if err != nil {
		t.Fatalf("empty batch must not error, got %v", err)
	}
	if len(analyses) != 0 {
		t.Errorf("expected no clusters for empty batch, got %d", len(analyses))
	}

	// An empty batch after a real run keeps the previous snapshot published.
	vectors, risks := twoGroups()
	if _, err := engine.Run(ctx, vectors, risks); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := engine.Run(ctx, nil, nil); err != nil {
		t.Fatalf("empty batch must not error, got %v", err)
	}
	if len(engine.Current()) == 0 {
		t.Error("empty batch must not clobber the published snapshot")
	}
}

func TestAnalyzeRadiusBound(t *testing.T) {
	engine := NewEngine(testFeatures, nil)

	center := []float64{0.1, 0.1, 0.1}
	vectors := [][]float64{
		{0.10, 0.10, 0.10},
		{0.12, 0.10, 0.10},
		{0.90, 0.90, 0.90}, // parked at this center but far beyond the radius
	}
	risks := []float64{0.1, 0.1, 0.9}
	assignments := []int{0, 0, 0}

	a := engine.analyze(0, center, vectors, risks, assignments, time.Now().UTC())

	if a.Size != 2 {
		t.Errorf("expected 2 members within the assignment radius, got %d", a.Size)
	}
	// The distant vector must contribute neither membership nor risk.
	if a.Characteristics.AvgRiskScore > 0.2 {
		t.Errorf("out-of-radius vector leaked into the risk profile: %f", a.Characteristics.AvgRiskScore)
	}
}

func TestRunCancellation(t *testing.T) {
	engine := NewEngine(testFeatures, nil)
	vectors, risks := twoGroups()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Run(ctx, vectors, risks); err == nil {
		t.Error("expected context cancellation error")
	}
}

func TestHighRiskMember(t *testing.T) {
	engine := NewEngine(testFeatures, nil)

	t.Run("NoSnapshotIsNever", func(t *testing.T) {
		if engine.HighRiskMember([]float64{0.9, 0.9, 0.9}) {
			t.Error("membership before first run must be false")
		}
	})

	vectors, risks := twoGroups()
	if _, err := engine.Run(context.Background(), vectors, risks); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	t.Run("InsideHighRiskCluster", func(t *testing.T) {
		if !engine.HighRiskMember([]float64{0.9, 0.93, 0.81}) {
			t.Error("vector inside the risky blob should be a member")
		}
	})

	t.Run("InsideLowRiskCluster", func(t *testing.T) {
		if engine.HighRiskMember([]float64{0.1, 0.01, 0.1}) {
			t.Error("low-risk cluster membership must not flag")
		}
	})

	t.Run("BeyondAssignmentRadius", func(t *testing.T) {
		if engine.HighRiskMember([]float64{0.5, 0.4, 0.45}) {
			t.Error("vector outside the radius should not be a member")
		}
	})
}

func TestCharacteristics(t *testing.T) {
	engine := NewEngine(testFeatures, nil)
	vectors, risks := twoGroups()

	analyses, err := engine.Run(context.Background(), vectors, risks)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var risky *struct {
		features []string
		geo      bool
		avg      float64
	}
	for _, a := range analyses {
		if a.Characteristics.AvgRiskScore > 0.6 {
			risky = &struct {
				features []string
				geo      bool
				avg      float64
			}{a.Characteristics.CommonFeatures, a.Characteristics.GeographicConcentration, a.Characteristics.AvgRiskScore}
		}
	}
	if risky == nil {
		t.Fatal("expected one high-risk cluster")
	}
	if len(risky.features) != 3 {
		t.Errorf("expected all elevated dimensions labeled, got %v", risky.features)
	}
	if !risky.geo {
		t.Error("expected geographic concentration for elevated location dimensions")
	}
}

func TestCurrentSnapshotIsolated(t *testing.T) {
	engine := NewEngine(testFeatures, nil)
	vectors, risks := twoGroups()
	if _, err := engine.Run(context.Background(), vectors, risks); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	first := engine.Current()
	if len(first) == 0 {
		t.Fatal("expected published analyses")
	}
	first[0].Center[0] = 99

	second := engine.Current()
	if second[0].Center[0] == 99 {
		t.Error("mutating a returned snapshot leaked into the engine")
	}
}
