package domain

import "time"

// ClusterAnalysis is one cluster from a clustering run. The full slice of
// analyses is recomputed wholesale each run and atomically replaces the prior
// result; it is never partially mutated.
type ClusterAnalysis struct {
	ClusterID string    `json:"clusterId"`
	Center    []float64 `json:"center"`
	Size      int       `json:"size"`
	Cohesion  float64   `json:"cohesion"` // [0,1]

	// Outliers holds indexes into the input vector slice for the members
	// farthest from the center (top 10 beyond the outlier distance).
	Outliers []int `json:"outliers"`

	Characteristics ClusterCharacteristics `json:"characteristics"`
	ComputedAt      time.Time              `json:"computedAt"`
}

// ClusterCharacteristics summarizes a cluster's averaged feature profile.
type ClusterCharacteristics struct {
	AvgRiskScore            float64  `json:"avgRiskScore"`
	CommonFeatures          []string `json:"commonFeatures"`
	GeographicConcentration bool     `json:"geographicConcentration"`
	TemporalPatterns        []string `json:"temporalPatterns"`
}
