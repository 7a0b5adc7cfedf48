package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

// record stores an alert opened at created and walks it through moves,
// each applied the given offset after creation.
func (f *fixture) record(t *testing.T, station string, kind models.AlertKind, sev models.AlertSeverity,
	created time.Time, moves ...move) {
	t.Helper()
	ctx := context.Background()
	a := &models.Alert{
		StationCode: station,
		Kind:        kind,
		Severity:    sev,
		Status:      models.StatusActive,
		RiskTier:    models.RiskModerate,
		Title:       string(kind),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	require.NoError(t, f.db.CreateAlert(ctx, a))
	for _, m := range moves {
		require.NoError(t, a.Transition(m.to, "ops", "", created.Add(m.after)))
		require.NoError(t, f.db.UpdateAlert(ctx, a))
	}
}

type move struct {
	to    models.AlertStatus
	after time.Duration
}

func TestAlertMetrics(t *testing.T) {
	f := newFixture(t)
	f.record(t, "CHIH3", models.AlertThresholdCrossing, models.SeverityWarning, now.Add(-2*time.Hour),
		move{models.StatusAcknowledged, 30 * time.Minute}, move{models.StatusResolved, 2 * time.Hour})
	f.record(t, "SANH3", models.AlertRapidRise, models.SeverityCritical, now.Add(-5*time.Hour))
	f.record(t, "CHIH3", models.AlertDataQuality, models.SeverityInfo, now.Add(-10*time.Hour),
		move{models.StatusCancelled, time.Hour})
	// opened in the previous period
	f.record(t, "RCHH3", models.AlertThresholdCrossing, models.SeverityWarning, now.Add(-30*time.Hour),
		move{models.StatusResolved, time.Hour})

	m, err := f.svc.AlertMetrics(context.Background(), 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 24, m.PeriodHours)
	assert.Equal(t, 3, m.TotalAlerts)
	assert.Equal(t, 1, m.ActiveAlerts)
	assert.Equal(t, 1, m.ResolvedAlerts)
	assert.Equal(t, 1, m.CancelledAlerts)
	assert.Zero(t, m.AcknowledgedAlerts)
	assert.Equal(t, map[string]int{"CHIH3": 2, "SANH3": 1}, m.ByStation)
	assert.Equal(t, map[string]int{"info": 1, "warning": 1, "critical": 1}, m.BySeverity)
	assert.Equal(t, 1, m.ByType[string(models.AlertRapidRise)])

	require.NotNil(t, m.AvgResolutionHours)
	assert.InDelta(t, 2.0, *m.AvgResolutionHours, 1e-9)
	require.NotNil(t, m.AvgAckMinutes)
	assert.InDelta(t, 30.0, *m.AvgAckMinutes, 1e-9)

	assert.Equal(t, 1, m.PreviousPeriodTotal)
	assert.Equal(t, TrendIncreasing, m.Trend)
}

func TestAlertMetrics_EmptyPeriod(t *testing.T) {
	f := newFixture(t)
	m, err := f.svc.AlertMetrics(context.Background(), 6*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, m.TotalAlerts)
	assert.Nil(t, m.AvgResolutionHours)
	assert.Nil(t, m.AvgAckMinutes)
	assert.Equal(t, TrendSteady, m.Trend)
}

func TestReportWindowRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AlertMetrics(ctx, 30*time.Minute)
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = f.svc.StationHealth(ctx, "CHIH3", 31*24*time.Hour)
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = f.svc.StationHealth(ctx, "NOPE1", 24*time.Hour)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStationHealth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	readings := []struct {
		at      time.Time
		quality models.QualityFlag
	}{
		{now.Add(-7 * time.Hour), models.QualityGood}, // before the window
		{now.Add(-4 * time.Hour), models.QualityGood},
		{now.Add(-3 * time.Hour), models.QualityGood},
		{now.Add(-2 * time.Hour), models.QualityGood},
		{now.Add(-90 * time.Minute), models.QualitySuspect},
		{now.Add(-time.Hour), models.QualityMissing},
		{now, models.QualityGood},
	}
	for _, r := range readings {
		_, err := f.db.InsertReading(ctx, &models.Reading{
			StationCode: "CHIH3",
			Timestamp:   r.at,
			WaterLevelM: 3,
			Source:      models.DefaultSource,
			Quality:     r.quality,
			CreatedAt:   now,
		})
		require.NoError(t, err)
	}
	f.record(t, "CHIH3", models.AlertThresholdCrossing, models.SeverityWarning, now.Add(-time.Hour))
	f.record(t, "CHIH3", models.AlertRapidRise, models.SeverityWarning, now.Add(-20*time.Hour),
		move{models.StatusResolved, time.Hour})

	h, err := f.svc.StationHealth(ctx, "chih3", 6*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "CHIH3", h.StationCode)
	assert.Equal(t, now.Add(-5*time.Hour), h.Since)
	assert.Equal(t, 6, h.TotalReadings)
	assert.Equal(t, 4, h.GoodReadings)
	assert.Equal(t, 1, h.PoorReadings)
	assert.Equal(t, 1, h.MissingReadings)
	// the 07:00 bucket is empty and the 11:00 bucket holds only a missing reading
	assert.Equal(t, 2, h.MissingPeriods)
	assert.InDelta(t, 66.67, h.UptimePercentage, 1e-9)
	require.NotNil(t, h.LastReadingAt)
	assert.Equal(t, now, *h.LastReadingAt)
	assert.True(t, h.Online)
	assert.Equal(t, 1, h.ActiveAlerts)
	assert.Equal(t, 1, h.AlertsInWindow)
}

func TestStationHealth_Offline(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "RCHH3", now.Add(-3*time.Hour), 1.5)

	h, err := f.svc.StationHealth(context.Background(), "RCHH3", 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, h.Online)
	assert.Equal(t, 23, h.MissingPeriods)
	assert.InDelta(t, 4.17, h.UptimePercentage, 1e-9)

	h, err = f.svc.StationHealth(context.Background(), "SANH3", 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, h.Online)
	assert.Nil(t, h.LastReadingAt)
	assert.Zero(t, h.UptimePercentage)
}
