package risk

import (
	"sort"
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

type TrendConfig struct {
	// WindowSize caps the number of most recent points considered.
	WindowSize int
	// Window caps how far back from the newest point a reading may be.
	Window time.Duration
	// Hysteresis is the dead band, in metres per hour, around zero slope.
	Hysteresis float64
}

// TrendResult carries the label and, when at least two points exist, the rate.
type TrendResult struct {
	Trend  models.Trend
	RateMH *float64
	Points int
}

// Point is a single (time, level) sample.
type Point struct {
	At    time.Time
	Level float64
}

type TrendAnalyzer struct {
	cfg TrendConfig
}

func NewTrendAnalyzer(cfg TrendConfig) *TrendAnalyzer {
	if cfg.Hysteresis < 0 {
		cfg.Hysteresis = -cfg.Hysteresis
	}
	return &TrendAnalyzer{cfg: cfg}
}

func (a *TrendAnalyzer) Config() TrendConfig {
	return a.cfg
}

// Window trims points to the configured bounds, anchored at the newest point.
// The input need not be sorted; the result is ascending by time.
func (a *TrendAnalyzer) Window(points []Point) []Point {
	if len(points) == 0 {
		return nil
	}
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At.Before(sorted[j].At) })

	newest := sorted[len(sorted)-1].At
	start := 0
	if a.cfg.Window > 0 {
		cutoff := newest.Add(-a.cfg.Window)
		for start < len(sorted) && sorted[start].At.Before(cutoff) {
			start++
		}
	}
	if a.cfg.WindowSize > 0 && len(sorted)-start > a.cfg.WindowSize {
		start = len(sorted) - a.cfg.WindowSize
	}
	return sorted[start:]
}

// Analyze never fails: with fewer than two usable points it returns stable
// with no rate.
func (a *TrendAnalyzer) Analyze(points []Point) TrendResult {
	window := a.Window(points)
	res := TrendResult{Trend: models.TrendStable, Points: len(window)}
	if len(window) < 2 {
		return res
	}

	var rate float64
	var ok bool
	if len(window) < 3 {
		rate, ok = endpointSlope(window)
	} else {
		rate, ok = linearSlope(window)
	}
	if !ok {
		return res
	}

	res.RateMH = &rate
	switch {
	case rate > a.cfg.Hysteresis:
		res.Trend = models.TrendRising
	case rate < -a.cfg.Hysteresis:
		res.Trend = models.TrendFalling
	default:
		res.Trend = models.TrendStable
	}
	return res
}

func endpointSlope(pts []Point) (float64, bool) {
	first, last := pts[0], pts[len(pts)-1]
	hours := last.At.Sub(first.At).Hours()
	if hours <= 0 {
		return 0, false
	}
	return (last.Level - first.Level) / hours, true
}

// linearSlope is the least-squares slope of level over hours since the first point.
func linearSlope(pts []Point) (float64, bool) {
	origin := pts[0].At
	n := float64(len(pts))
	var sumX, sumY float64
	for _, p := range pts {
		sumX += p.At.Sub(origin).Hours()
		sumY += p.Level
	}
	meanX, meanY := sumX/n, sumY/n

	var sxx, sxy float64
	for _, p := range pts {
		dx := p.At.Sub(origin).Hours() - meanX
		sxx += dx * dx
		sxy += dx * (p.Level - meanY)
	}
	if sxx == 0 {
		return 0, false
	}
	return sxy / sxx, true
}

// PointsFromReadings keeps only readings of good quality.
func PointsFromReadings(readings []models.Reading) []Point {
	pts := make([]Point, 0, len(readings))
	for _, r := range readings {
		if r.Quality != models.QualityGood {
			continue
		}
		pts = append(pts, Point{At: r.Timestamp, Level: r.WaterLevelM})
	}
	return pts
}
