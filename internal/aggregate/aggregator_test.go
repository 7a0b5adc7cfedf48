package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

var (
	thresholds = models.ThresholdSet{Low: 2, Moderate: 4, High: 6, VeryHigh: 8, Critical: 12}
	base       = time.Date(2025, 10, 3, 6, 0, 0, 0, time.UTC)
)

func reading(offset time.Duration, level float64) models.Reading {
	return models.Reading{StationCode: "CHIH3", Timestamp: base.Add(offset), WaterLevelM: level, Quality: models.QualityGood}
}

func TestAggregate_TwoHourlyBucketsRegardlessOfData(t *testing.T) {
	req := Request{StationCode: "CHIH3", Start: base, End: base.Add(2 * time.Hour), Interval: "1h", Thresholds: thresholds}

	for _, readings := range [][]models.Reading{
		nil,
		{reading(10*time.Minute, 3)},
		{reading(0, 3), reading(70*time.Minute, 5), reading(119*time.Minute, 6.5)},
	} {
		buckets, err := Aggregate(req, readings)
		require.NoError(t, err)
		require.Len(t, buckets, 2)
		assert.Equal(t, base, buckets[0].Start)
		assert.Equal(t, base.Add(time.Hour), buckets[1].Start)
	}
}

func TestAggregate_Statistics(t *testing.T) {
	req := Request{StationCode: "CHIH3", Start: base, End: base.Add(2 * time.Hour), Interval: "1h", Thresholds: thresholds}
	buckets, err := Aggregate(req, []models.Reading{
		reading(5*time.Minute, 3.0),
		reading(20*time.Minute, 5.0),
		reading(50*time.Minute, 6.1),
	})
	require.NoError(t, err)

	b := buckets[0]
	assert.Equal(t, 3, b.Count)
	assert.InDelta(t, 3.0, *b.Min, 1e-9)
	assert.InDelta(t, 6.1, *b.Max, 1e-9)
	assert.InDelta(t, 14.1/3, *b.Avg, 1e-9)
	// the max (6.1) is high even though the mean is only moderate
	assert.Equal(t, models.RiskHigh, *b.RiskTier)

	gap := buckets[1]
	assert.True(t, gap.Gap())
	assert.Nil(t, gap.Min)
	assert.Nil(t, gap.Avg)
	assert.Nil(t, gap.Max)
	assert.Nil(t, gap.RiskTier)
}

func TestAggregate_AlignsToIntervalBoundaries(t *testing.T) {
	start := base.Add(17 * time.Minute)
	req := Request{StationCode: "CHIH3", Start: start, End: start.Add(30 * time.Minute), Interval: "15m", Thresholds: thresholds}
	buckets, err := Aggregate(req, []models.Reading{reading(20*time.Minute, 2.5)})
	require.NoError(t, err)

	require.Len(t, buckets, 3)
	assert.Equal(t, base.Add(15*time.Minute), buckets[0].Start)
	assert.Equal(t, base.Add(45*time.Minute), buckets[2].Start)
	assert.Equal(t, 1, buckets[0].Count)
}

func TestAggregate_IgnoresOutOfRangeAndMissing(t *testing.T) {
	req := Request{StationCode: "CHIH3", Start: base, End: base.Add(time.Hour), Interval: "1h", Thresholds: thresholds}
	missing := reading(10*time.Minute, 9)
	missing.Quality = models.QualityMissing

	buckets, err := Aggregate(req, []models.Reading{
		reading(-time.Minute, 1),
		reading(time.Hour, 1),
		missing,
		reading(30*time.Minute, 4.5),
	})
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 1, buckets[0].Count)
	assert.Equal(t, models.RiskModerate, *buckets[0].RiskTier)
}

func TestAggregate_CountsEachInstantOnce(t *testing.T) {
	req := Request{StationCode: "CHIH3", Start: base, End: base.Add(time.Hour), Interval: "1h", Thresholds: thresholds}
	noaa := reading(15*time.Minute, 3)
	noaa.Source = "NOAA"
	usgs := reading(15*time.Minute, 9)
	usgs.Source = "USGS"
	blank := reading(45*time.Minute, 8)
	blank.Quality = models.QualityMissing
	backup := reading(45*time.Minute, 5)
	backup.Source = "backup"

	buckets, err := Aggregate(req, []models.Reading{noaa, usgs, blank, backup})
	require.NoError(t, err)
	require.Len(t, buckets, 1)

	b := buckets[0]
	assert.Equal(t, 2, b.Count, "one reading per instant")
	assert.Equal(t, 3.0, *b.Min)
	assert.Equal(t, 5.0, *b.Max, "the second source at 15m is ignored")
	assert.InDelta(t, 4.0, *b.Avg, 1e-9)
	assert.Equal(t, models.RiskModerate, *b.RiskTier)
}

func TestAggregate_RejectsBadRequests(t *testing.T) {
	_, err := Aggregate(Request{Start: base, End: base.Add(time.Hour), Interval: "2h"}, nil)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = Aggregate(Request{Start: base, End: base, Interval: "1h"}, nil)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = Aggregate(Request{Start: base, End: base.Add(-time.Hour), Interval: "1h"}, nil)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAggregate_DailyBucketsAlignToMidnightUTC(t *testing.T) {
	req := Request{StationCode: "CHIH3", Start: base, End: base.Add(48 * time.Hour), Interval: "1d", Thresholds: thresholds}
	buckets, err := Aggregate(req, nil)
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	assert.Equal(t, time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC), buckets[0].Start)
}

func TestSummarize(t *testing.T) {
	req := Request{StationCode: "CHIH3", Start: base, End: base.Add(3 * time.Hour), Interval: "1h", Thresholds: thresholds}
	buckets, err := Aggregate(req, []models.Reading{
		reading(10*time.Minute, 2.0),
		reading(20*time.Minute, 4.0),
		reading(130*time.Minute, 8.5),
	})
	require.NoError(t, err)

	stats := Summarize(buckets)
	assert.Equal(t, 3, stats.Readings)
	assert.Equal(t, 1, stats.Gaps)
	assert.InDelta(t, 2.0, *stats.Min, 1e-9)
	assert.InDelta(t, 8.5, *stats.Max, 1e-9)
	assert.InDelta(t, 14.5/3, *stats.Avg, 1e-9)
	assert.Equal(t, models.RiskVeryHigh, *stats.MaxRiskTier)
}
