package query

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/aggregate"
	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/repository"
)

const (
	healthInterval  = "1h"
	maxReportWindow = 30 * 24 * time.Hour

	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendSteady     = "stable"
)

// AlertMetrics summarizes the alerts opened during the trailing period.
// Resolution and acknowledgement averages cover only those alerts and are
// nil when none qualify.
type AlertMetrics struct {
	GeneratedAt         time.Time      `json:"generated_at"`
	PeriodHours         int            `json:"period_hours"`
	TotalAlerts         int            `json:"total_alerts"`
	ActiveAlerts        int            `json:"active_alerts"`
	AcknowledgedAlerts  int            `json:"acknowledged_alerts"`
	ResolvedAlerts      int            `json:"resolved_alerts"`
	CancelledAlerts     int            `json:"false_positives"`
	BySeverity          map[string]int `json:"by_severity"`
	ByType              map[string]int `json:"by_type"`
	ByStation           map[string]int `json:"by_station"`
	AvgResolutionHours  *float64       `json:"avg_resolution_time_hours"`
	AvgAckMinutes       *float64       `json:"avg_acknowledgment_time_minutes"`
	PreviousPeriodTotal int            `json:"previous_period_total"`
	Trend               string         `json:"trend_vs_previous_period"`
}

func (s *Service) AlertMetrics(ctx context.Context, period time.Duration) (*AlertMetrics, error) {
	hours, err := reportHours("period", period)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	since := now.Add(-time.Duration(hours) * time.Hour)
	previous := since.Add(-time.Duration(hours) * time.Hour)

	alerts, err := s.store.ListAlerts(ctx, models.AlertFilter{Since: &previous})
	if err != nil {
		return nil, err
	}

	m := &AlertMetrics{
		GeneratedAt: now,
		PeriodHours: hours,
		BySeverity:  make(map[string]int),
		ByType:      make(map[string]int),
		ByStation:   make(map[string]int),
	}
	var resolveSum, ackSum time.Duration
	var resolved, acked int
	for _, a := range alerts {
		if a.CreatedAt.Before(since) {
			m.PreviousPeriodTotal++
			continue
		}
		m.TotalAlerts++
		m.BySeverity[a.Severity.String()]++
		m.ByType[string(a.Kind)]++
		m.ByStation[a.StationCode]++
		switch a.Status {
		case models.StatusActive:
			m.ActiveAlerts++
		case models.StatusAcknowledged:
			m.AcknowledgedAlerts++
		case models.StatusResolved:
			m.ResolvedAlerts++
			if a.ResolvedAt != nil {
				resolveSum += a.ResolvedAt.Sub(a.CreatedAt)
				resolved++
			}
		case models.StatusCancelled:
			m.CancelledAlerts++
		}
		if a.AcknowledgedAt != nil {
			ackSum += a.AcknowledgedAt.Sub(a.CreatedAt)
			acked++
		}
	}
	if resolved > 0 {
		avg := resolveSum.Hours() / float64(resolved)
		m.AvgResolutionHours = &avg
	}
	if acked > 0 {
		avg := ackSum.Minutes() / float64(acked)
		m.AvgAckMinutes = &avg
	}
	m.Trend = compareTotals(m.TotalAlerts, m.PreviousPeriodTotal)
	return m, nil
}

func compareTotals(current, previous int) string {
	switch {
	case current > previous:
		return TrendIncreasing
	case current < previous:
		return TrendDecreasing
	default:
		return TrendSteady
	}
}

// StationHealth reports data quality and connectivity over hourly buckets.
// The last bucket is the one holding now.
type StationHealth struct {
	StationCode      string     `json:"station_id"`
	WindowHours      int        `json:"window_hours"`
	Since            time.Time  `json:"since"`
	TotalReadings    int        `json:"total_readings"`
	GoodReadings     int        `json:"good_readings"`
	PoorReadings     int        `json:"poor_readings"`
	MissingReadings  int        `json:"missing_readings"`
	MissingPeriods   int        `json:"missing_periods"`
	LastReadingAt    *time.Time `json:"last_reading,omitempty"`
	Online           bool       `json:"is_online"`
	UptimePercentage float64    `json:"uptime_percentage"`
	ActiveAlerts     int        `json:"active_alerts"`
	AlertsInWindow   int        `json:"total_alerts_window"`
}

func (s *Service) StationHealth(ctx context.Context, code string, window time.Duration) (*StationHealth, error) {
	hours, err := reportHours("window", window)
	if err != nil {
		return nil, err
	}
	code = models.NormalizeStationCode(code)
	station, err := s.store.GetStation(ctx, code)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	end := now.Truncate(time.Hour).Add(time.Hour)
	start := end.Add(-time.Duration(hours) * time.Hour)
	readings, err := s.store.ListReadings(ctx, repository.ReadingFilter{
		StationCodes: []string{code},
		From:         &start,
		To:           &end,
		Ascending:    true,
	})
	if err != nil {
		return nil, err
	}

	h := &StationHealth{StationCode: code, WindowHours: hours, Since: start, TotalReadings: len(readings)}
	for _, r := range readings {
		switch r.Quality {
		case models.QualityGood:
			h.GoodReadings++
		case models.QualityMissing:
			h.MissingReadings++
		default:
			h.PoorReadings++
		}
	}

	thresholds := s.classifier.Defaults()
	if station.Thresholds != nil {
		thresholds = *station.Thresholds
	}
	buckets, err := aggregate.Aggregate(aggregate.Request{
		StationCode: code,
		Start:       start,
		End:         end,
		Interval:    healthInterval,
		Thresholds:  thresholds,
	}, readings)
	if err != nil {
		return nil, err
	}
	for _, b := range buckets {
		if b.Gap() {
			h.MissingPeriods++
		}
	}
	if len(buckets) > 0 {
		covered := float64(len(buckets)-h.MissingPeriods) / float64(len(buckets)) * 100
		h.UptimePercentage = math.Round(covered*100) / 100
	}

	last, err := s.lastReadingAt(ctx, code)
	if err != nil {
		return nil, err
	}
	h.LastReadingAt = last
	h.Online = station.Status == models.StationActive && last != nil && now.Sub(*last) <= s.onlineWithin

	alerts, err := s.store.ListAlerts(ctx, models.AlertFilter{StationCodes: []string{code}})
	if err != nil {
		return nil, err
	}
	for _, a := range alerts {
		if a.Status.Open() {
			h.ActiveAlerts++
		}
		if !a.CreatedAt.Before(start) {
			h.AlertsInWindow++
		}
	}
	return h, nil
}

func (s *Service) lastReadingAt(ctx context.Context, code string) (*time.Time, error) {
	latest, err := s.store.LatestReadings(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range latest {
		if r.StationCode == code {
			at := r.Timestamp
			return &at, nil
		}
	}
	return nil, nil
}

// reportHours rounds d up to whole hours within [1h, 30d].
func reportHours(field string, d time.Duration) (int, error) {
	if d < time.Hour || d > maxReportWindow {
		return 0, &models.ValidationError{Field: field, Reason: fmt.Sprintf("must be between 1h and %.0fh", maxReportWindow.Hours())}
	}
	return int(math.Ceil(d.Hours())), nil
}
