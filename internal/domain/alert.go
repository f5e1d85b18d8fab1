package domain

import "time"

// AlertThreshold is the overall anomaly score above which an alert is raised.
const AlertThreshold = 0.7

// MaxAlerts caps the in-memory alert log; the oldest entry is evicted first.
const MaxAlerts = 1000

// AnomalyAlert is one entry in the bounded alert log.
type AnomalyAlert struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`     // dominant dimension
	Severity      string    `json:"severity"` // medium, high, critical
	SubjectID     string    `json:"subjectId"`
	TenantID      string    `json:"tenantId"`
	Description   string    `json:"description"`
	Features      []Signal  `json:"features"`
	Confidence    float64   `json:"confidence"`
	Timestamp     time.Time `json:"timestamp"`
	Resolved      bool      `json:"resolved"`
	FalsePositive bool      `json:"falsePositive"`
}

// AlertStats summarizes the alert log.
type AlertStats struct {
	Total             int            `json:"total"`
	ByType            map[string]int `json:"byType"`
	BySeverity        map[string]int `json:"bySeverity"`
	FalsePositiveRate float64        `json:"falsePositiveRate"`
}

// AlertSeverityFor maps an overall anomaly score to alert severity.
func AlertSeverityFor(overall float64) string {
	switch {
	case overall > 0.9:
		return "critical"
	case overall > 0.8:
		return "high"
	default:
		return "medium"
	}
}
