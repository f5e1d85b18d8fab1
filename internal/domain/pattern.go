package domain

import "time"

// PatternActiveWindow is how long after its last match a pattern is
// considered active.
const PatternActiveWindow = 24 * time.Hour

// FraudPattern is a named, pre-cataloged fraud archetype with running
// occurrence statistics. Patterns are seeded at startup, mutated only by the
// pattern matcher (occurrences and lastSeen), and never deleted; recency
// filtering happens at read time.
type FraudPattern struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Severity    string    `json:"severity"` // low, medium, high, critical
	Confidence  float64   `json:"confidence"`
	Occurrences int64     `json:"occurrences"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastSeen    time.Time `json:"lastSeen"`

	// Signature is the set of signals that must all be present on a
	// prediction for the archetype to match.
	Signature []Signal `json:"signature"`

	Characteristics PatternCharacteristics `json:"characteristics"`
	RiskFactors     []RiskFactor           `json:"riskFactors"`
}

// PatternCharacteristics describes an archetype across the four analysis axes.
type PatternCharacteristics struct {
	Behavioral   []string `json:"behavioral"`
	Temporal     []string `json:"temporal"`
	Geographical []string `json:"geographical"`
	Financial    []string `json:"financial"`
}

// RiskFactor is one weighted contributor to an archetype.
type RiskFactor struct {
	Factor      string  `json:"factor"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
}

// Active reports whether the pattern matched within the recency window.
func (p *FraudPattern) Active(now time.Time) bool {
	return !p.LastSeen.IsZero() && now.Sub(p.LastSeen) < PatternActiveWindow
}
