// Package history assembles per-subject temporal statistics ahead of
// scoring, keeping the scoring path itself free of I/O.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/xpress-ops/riskcore/internal/domain"
)

// counterTTL bounds the trips-today fast-path counter.
const counterTTL = 24 * time.Hour

// Service computes RiderHistory from persisted feature snapshots, with a
// cache fast path for the trips-today counter. History lookups never fail a
// scoring request: on any error the caller receives nil history and the
// engine scores with neutral temporal values.
type Service struct {
	repo       domain.Repository
	cache      domain.Cache
	windowDays int
	logger     *slog.Logger
}

// NewService creates the history service. repo and cache may be nil, which
// degrades lookups to neutral history.
func NewService(repo domain.Repository, cache domain.Cache, windowDays int, logger *slog.Logger) *Service {
	if windowDays <= 0 {
		windowDays = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, windowDays: windowDays, logger: logger}
}

// ForTrip returns the subject's history relative to the trip under
// evaluation, or nil when no usable history exists.
func (s *Service) ForTrip(ctx context.Context, fv *domain.FeatureVector) *domain.RiderHistory {
	if s.repo == nil {
		return nil
	}

	at := fv.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}
	since := at.AddDate(0, 0, -s.windowDays)

	snapshots, err := s.repo.GetSnapshotsBySubject(ctx, fv.TenantID, fv.SubjectID, since)
	if err != nil {
		s.logger.WarnContext(ctx, "history lookup failed, scoring with neutral history",
			"subject_id", fv.SubjectID,
			"error", err,
		)
		return nil
	}
	if len(snapshots) == 0 {
		return nil
	}

	hist := &domain.RiderHistory{}
	total := float64(len(snapshots))

	hourHits := 0
	weekendHits := 0
	daily := make(map[string]int)
	today := dateKey(at)
	tripsToday := 0
	for _, snap := range snapshots {
		if snap.Trip == nil {
			continue
		}
		if snap.Trip.TimeOfDay == fv.Trip.TimeOfDay {
			hourHits++
		}
		if snap.Trip.IsWeekend {
			weekendHits++
		}
		day := dateKey(snap.Timestamp)
		daily[day]++
		if day == today {
			tripsToday++
		}
	}

	hist.HourFrequency = float64(hourHits) / total
	hist.WeekendShare = float64(weekendHits) / total
	hist.DailyTripMean, hist.DailyTripStd = dailyStats(daily)
	hist.TripsToday = float64(tripsToday)

	// The counter includes trips not yet flushed to the repository.
	if cached, ok := s.cachedTripsToday(ctx, fv.TenantID, fv.SubjectID, at); ok && cached > hist.TripsToday {
		hist.TripsToday = cached
	}
	return hist
}

// RecordTrip persists the snapshot and bumps the trips-today counter. Errors
// are logged, not returned to the scoring path.
func (s *Service) RecordTrip(ctx context.Context, fv *domain.FeatureVector) {
	if s.repo != nil {
		if err := s.repo.SaveSnapshot(ctx, fv.TenantID, fv); err != nil {
			s.logger.ErrorContext(ctx, "failed to persist feature snapshot",
				"trip_id", fv.TripID,
				"error", err,
			)
		}
	}
	if s.cache != nil {
		at := fv.Timestamp
		if at.IsZero() {
			at = time.Now().UTC()
		}
		key := counterKey(fv.SubjectID, at)
		if _, err := s.cache.IncrementCounter(ctx, fv.TenantID, key, counterTTL); err != nil {
			s.logger.WarnContext(ctx, "failed to bump trip counter",
				"subject_id", fv.SubjectID,
				"error", err,
			)
		}
	}
}

func (s *Service) cachedTripsToday(ctx context.Context, tenantID, subjectID string, at time.Time) (float64, bool) {
	if s.cache == nil {
		return 0, false
	}
	n, ok, err := s.cache.GetCounter(ctx, tenantID, counterKey(subjectID, at))
	if err != nil || !ok {
		return 0, false
	}
	return float64(n), true
}

func counterKey(subjectID string, at time.Time) string {
	return fmt.Sprintf("trips:%s:%s", subjectID, dateKey(at))
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func dailyStats(daily map[string]int) (mean, std float64) {
	if len(daily) == 0 {
		return 0, 0
	}
	var sum float64
	for _, c := range daily {
		sum += float64(c)
	}
	mean = sum / float64(len(daily))

	var variance float64
	for _, c := range daily {
		d := float64(c) - mean
		variance += d * d
	}
	std = math.Sqrt(variance / float64(len(daily)))
	return mean, std
}
