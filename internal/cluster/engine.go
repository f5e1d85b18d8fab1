// Package cluster runs periodic k-means clustering over normalized feature
// vectors to surface groups of similar trips and feed high-risk cluster
// membership back into scoring.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/xpress-ops/riskcore/internal/domain"
)

const (
	// MaxClusters caps k; fewer vectors than clusters shrink k to fit.
	MaxClusters = 5

	// AssignmentRadius bounds how far a vector may sit from a center and
	// still count as a cluster member, both in batch analysis and at query
	// time.
	AssignmentRadius = 0.5

	// OutlierDistance marks members beyond it as outliers.
	OutlierDistance = 0.3

	maxOutliers   = 10
	maxIterations = 50

	// highRiskScore is the average member risk above which a cluster feeds
	// back into scoring.
	highRiskScore = 0.6

	// rngSeed fixes initial center selection so repeated runs over the same
	// batch produce the same clusters.
	rngSeed = 1
)

type snapshot struct {
	analyses   []domain.ClusterAnalysis
	computedAt time.Time
}

// Engine computes cluster analyses and serves membership queries off an
// atomically swapped snapshot. Run and the query methods may be called
// concurrently.
type Engine struct {
	featureNames []string
	current      atomic.Pointer[snapshot]
	logger       *slog.Logger
}

// NewEngine creates a cluster engine. featureNames labels the cluster-space
// dimensions and drives characteristic extraction.
func NewEngine(featureNames []string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{featureNames: featureNames, logger: logger}
}

// Run clusters the batch and atomically replaces the published snapshot.
// risks carries the overall anomaly score per vector, used for the cluster
// risk profile. Queries served during a run see the previous snapshot.
func (e *Engine) Run(ctx context.Context, vectors [][]float64, risks []float64) ([]domain.ClusterAnalysis, error) {
	// An empty batch produces no clusters and keeps the previous snapshot
	// published.
	if len(vectors) == 0 {
		return []domain.ClusterAnalysis{}, nil
	}
	if len(risks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d risks for %d vectors", domain.ErrInvalidInput, len(risks), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != len(e.featureNames) {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", domain.ErrInvalidInput, i, len(v), len(e.featureNames))
		}
	}

	k := MaxClusters
	if len(vectors) < k {
		k = len(vectors)
	}

	centers, assignments, err := kmeans(ctx, vectors, k)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	analyses := make([]domain.ClusterAnalysis, 0, k)
	for c := 0; c < k; c++ {
		analysis := e.analyze(c, centers[c], vectors, risks, assignments, now)
		if analysis.Size == 0 {
			continue
		}
		analyses = append(analyses, analysis)
	}

	e.current.Store(&snapshot{analyses: analyses, computedAt: now})
	e.logger.Info("clustering run completed",
		"vectors", len(vectors),
		"clusters", len(analyses),
	)
	return cloneAnalyses(analyses), nil
}

// Current returns the published analyses, or nil before the first run.
func (e *Engine) Current() []domain.ClusterAnalysis {
	snap := e.current.Load()
	if snap == nil {
		return nil
	}
	return cloneAnalyses(snap.analyses)
}

// HighRiskMember reports whether the vector falls within the assignment
// radius of a cluster whose average member risk is high.
func (e *Engine) HighRiskMember(vector []float64) bool {
	snap := e.current.Load()
	if snap == nil {
		return false
	}

	bestDist := math.MaxFloat64
	var best *domain.ClusterAnalysis
	for i := range snap.analyses {
		d := euclidean(vector, snap.analyses[i].Center)
		if d < bestDist {
			bestDist = d
			best = &snap.analyses[i]
		}
	}
	return best != nil && bestDist < AssignmentRadius && best.Characteristics.AvgRiskScore > highRiskScore
}

func (e *Engine) analyze(id int, center []float64, vectors [][]float64, risks []float64, assignments []int, now time.Time) domain.ClusterAnalysis {
	type member struct {
		index int
		dist  float64
	}
	var members []member
	var distSum, riskSum float64
	for i, a := range assignments {
		if a != id {
			continue
		}
		d := euclidean(vectors[i], center)
		// Membership is bounded by the assignment radius; vectors the
		// k-means pass parked at this center but farther out belong to no
		// cluster.
		if d >= AssignmentRadius {
			continue
		}
		members = append(members, member{index: i, dist: d})
		distSum += d
		riskSum += risks[i]
	}

	analysis := domain.ClusterAnalysis{
		ClusterID:  fmt.Sprintf("cluster-%d", id),
		Center:     append([]float64(nil), center...),
		Size:       len(members),
		ComputedAt: now,
	}
	if len(members) == 0 {
		return analysis
	}

	avgDist := distSum / float64(len(members))
	analysis.Cohesion = math.Max(0, 1-avgDist)

	// Outliers: farthest members beyond the distance threshold, capped.
	for i := 1; i < len(members); i++ {
		for j := i; j > 0 && members[j].dist > members[j-1].dist; j-- {
			members[j], members[j-1] = members[j-1], members[j]
		}
	}
	for _, mb := range members {
		if mb.dist <= OutlierDistance || len(analysis.Outliers) == maxOutliers {
			break
		}
		analysis.Outliers = append(analysis.Outliers, mb.index)
	}

	analysis.Characteristics = e.characteristics(center, riskSum/float64(len(members)))
	return analysis
}

// characteristics labels dimensions whose center value is elevated.
func (e *Engine) characteristics(center []float64, avgRisk float64) domain.ClusterCharacteristics {
	ch := domain.ClusterCharacteristics{AvgRiskScore: avgRisk}

	var geoSum float64
	geoCount := 0
	for i, name := range e.featureNames {
		if center[i] > 0.6 {
			ch.CommonFeatures = append(ch.CommonFeatures, name)
		}
		if strings.HasPrefix(name, "location.") {
			geoSum += center[i]
			geoCount++
		}
		if name == "trip.isWeekend" && center[i] > 0.6 {
			ch.TemporalPatterns = append(ch.TemporalPatterns, "weekend-heavy")
		}
	}
	ch.GeographicConcentration = geoCount > 0 && geoSum/float64(geoCount) > 0.6
	return ch
}

// kmeans is plain Lloyd's algorithm with deterministic seeding. The context
// is checked between iterations so long runs cancel promptly.
func kmeans(ctx context.Context, vectors [][]float64, k int) (centers [][]float64, assignments []int, err error) {
	rng := rand.New(rand.NewSource(rngSeed))

	centers = make([][]float64, k)
	for i, idx := range rng.Perm(len(vectors))[:k] {
		centers[i] = append([]float64(nil), vectors[idx]...)
	}

	assignments = make([]int, len(vectors))
	dims := len(vectors[0])

	for iter := 0; iter < maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		changed := false
		for i, v := range vectors {
			best := 0
			bestDist := math.MaxFloat64
			for c, center := range centers {
				if d := euclidean(v, center); d < bestDist {
					bestDist = d
					best = c
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, v := range vectors {
			c := assignments[i]
			counts[c]++
			for d, val := range v {
				sums[c][d] += val
			}
		}
		for c := range centers {
			if counts[c] == 0 {
				continue
			}
			for d := range centers[c] {
				centers[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}
	return centers, assignments, nil
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func cloneAnalyses(analyses []domain.ClusterAnalysis) []domain.ClusterAnalysis {
	out := make([]domain.ClusterAnalysis, len(analyses))
	for i, a := range analyses {
		out[i] = a
		out[i].Center = append([]float64(nil), a.Center...)
		out[i].Outliers = append([]int(nil), a.Outliers...)
		out[i].Characteristics.CommonFeatures = append([]string(nil), a.Characteristics.CommonFeatures...)
		out[i].Characteristics.TemporalPatterns = append([]string(nil), a.Characteristics.TemporalPatterns...)
	}
	return out
}
