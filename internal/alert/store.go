// Package alert keeps the bounded in-memory alert log that backs the alert
// review endpoints. The log is authoritative for the operational window;
// durable persistence happens off-path through the repository.
package alert

import (
	"sync"

	"github.com/xpress-ops/riskcore/internal/domain"
)

// Store is a FIFO alert log capped at domain.MaxAlerts entries. Appending
// past the cap evicts the oldest alert. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	alerts []*domain.AnomalyAlert
	max    int
}

// NewStore creates a store with the standard capacity.
func NewStore() *Store {
	return &Store{max: domain.MaxAlerts}
}

// Append adds an alert, evicting the oldest entry once the cap is reached.
func (s *Store) Append(alert *domain.AnomalyAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = append(s.alerts, alert)
	if len(s.alerts) > s.max {
		overflow := len(s.alerts) - s.max
		s.alerts = append(s.alerts[:0], s.alerts[overflow:]...)
	}
}

// Recent returns up to limit alerts, newest first. limit <= 0 returns all.
func (s *Store) Recent(limit int) []*domain.AnomalyAlert {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.alerts)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*domain.AnomalyAlert, 0, n)
	for i := len(s.alerts) - 1; i >= 0 && len(out) < n; i-- {
		copied := *s.alerts[i]
		out = append(out, &copied)
	}
	return out
}

// Resolve marks an alert resolved. Resolving is idempotent: repeat calls on
// a known alert overwrite the falsePositive flag, so the last write wins.
// Only an unknown alert ID returns false.
func (s *Store) Resolve(alertID string, falsePositive bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.alerts {
		if a.ID == alertID {
			a.Resolved = true
			a.FalsePositive = falsePositive
			return true
		}
	}
	return false
}

// Stats summarizes the current log contents.
func (s *Store) Stats() domain.AlertStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := domain.AlertStats{
		Total:      len(s.alerts),
		ByType:     make(map[string]int),
		BySeverity: make(map[string]int),
	}

	falsePositives := 0
	for _, a := range s.alerts {
		stats.ByType[a.Type]++
		stats.BySeverity[a.Severity]++
		if a.FalsePositive {
			falsePositives++
		}
	}
	if len(s.alerts) > 0 {
		stats.FalsePositiveRate = float64(falsePositives) / float64(len(s.alerts))
	}
	return stats
}
