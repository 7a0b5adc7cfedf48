// Package aggregate buckets reading streams into fixed intervals for charting.
package aggregate

import (
	"fmt"
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/risk"
)

var intervals = map[string]time.Duration{
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"3h":  3 * time.Hour,
	"6h":  6 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
}

// Intervals lists the accepted interval tokens in ascending width.
var Intervals = []string{"5m", "15m", "30m", "1h", "3h", "6h", "12h", "1d"}

func ParseInterval(token string) (time.Duration, error) {
	d, ok := intervals[token]
	if !ok {
		return 0, &models.ValidationError{
			Field:  "interval",
			Reason: fmt.Sprintf("must be one of %v", Intervals),
		}
	}
	return d, nil
}

// Request describes one aggregation over the half-open range [Start, End).
type Request struct {
	StationCode string
	Start       time.Time
	End         time.Time
	Interval    string
	Thresholds  models.ThresholdSet
}

func (r Request) Validate() (time.Duration, error) {
	width, err := ParseInterval(r.Interval)
	if err != nil {
		return 0, err
	}
	if !r.End.After(r.Start) {
		return 0, &models.ValidationError{Field: "end", Reason: "end time must be after start time"}
	}
	return width, nil
}

// Aggregate partitions [Start, End) into epoch-aligned buckets and summarizes
// the readings in each. Empty buckets are reported as gaps, never filled in.
// Readings outside the range or flagged missing are ignored. When several
// sources report the same instant only the first usable one counts, so the
// caller's ordering decides which source wins.
func Aggregate(req Request, readings []models.Reading) ([]models.AggregatedBucket, error) {
	width, err := req.Validate()
	if err != nil {
		return nil, err
	}

	first := req.Start.UTC().Truncate(width)
	n := int((req.End.Sub(first) + width - 1) / width)
	buckets := make([]models.AggregatedBucket, n)
	sums := make([]float64, n)
	for i := range buckets {
		buckets[i] = models.AggregatedBucket{
			StationCode: req.StationCode,
			Start:       first.Add(time.Duration(i) * width),
			Width:       width,
		}
	}

	seen := make(map[int64]struct{}, len(readings))
	for _, r := range readings {
		if r.Quality == models.QualityMissing {
			continue
		}
		if r.Timestamp.Before(req.Start) || !r.Timestamp.Before(req.End) {
			continue
		}
		at := r.Timestamp.UnixMilli()
		if _, dup := seen[at]; dup {
			continue
		}
		seen[at] = struct{}{}
		i := int(r.Timestamp.Sub(first) / width)
		b := &buckets[i]
		level := r.WaterLevelM
		if b.Count == 0 {
			lo, hi := level, level
			b.Min, b.Max = &lo, &hi
		} else {
			if level < *b.Min {
				*b.Min = level
			}
			if level > *b.Max {
				*b.Max = level
			}
		}
		b.Count++
		sums[i] += level
	}

	for i := range buckets {
		b := &buckets[i]
		if b.Count == 0 {
			continue
		}
		avg := sums[i] / float64(b.Count)
		b.Avg = &avg
		// Worst case wins: the bucket is tagged by its maximum, not its mean.
		tier := risk.Tier(*b.Max, req.Thresholds)
		b.RiskTier = &tier
	}
	return buckets, nil
}

// Summarize computes whole-series statistics over non-gap buckets.
func Summarize(buckets []models.AggregatedBucket) models.SeriesStatistics {
	var stats models.SeriesStatistics
	var sum float64
	for _, b := range buckets {
		if b.Gap() {
			stats.Gaps++
			continue
		}
		if stats.Min == nil || *b.Min < *stats.Min {
			v := *b.Min
			stats.Min = &v
		}
		if stats.Max == nil || *b.Max > *stats.Max {
			v := *b.Max
			stats.Max = &v
		}
		if stats.MaxRiskTier == nil || *b.RiskTier > *stats.MaxRiskTier {
			v := *b.RiskTier
			stats.MaxRiskTier = &v
		}
		sum += *b.Avg * float64(b.Count)
		stats.Readings += b.Count
	}
	if stats.Readings > 0 {
		avg := sum / float64(stats.Readings)
		stats.Avg = &avg
	}
	return stats
}
