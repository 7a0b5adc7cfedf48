package models

import "time"

// AggregatedBucket summarizes one interval of a station's readings. Buckets are
// derived data and can always be rebuilt from readings.
type AggregatedBucket struct {
	StationCode string        `json:"station_code"`
	Start       time.Time     `json:"timestamp"`
	Width       time.Duration `json:"-"`
	Count       int           `json:"reading_count"`
	Min         *float64      `json:"min_value"`
	Avg         *float64      `json:"value"`
	Max         *float64      `json:"max_value"`
	RiskTier    *RiskTier     `json:"risk_level"`
}

// Gap reports whether the bucket holds no readings.
func (b AggregatedBucket) Gap() bool {
	return b.Count == 0
}

type SeriesStatistics struct {
	Min         *float64  `json:"min"`
	Max         *float64  `json:"max"`
	Avg         *float64  `json:"avg"`
	Readings    int       `json:"readings"`
	Gaps        int       `json:"gaps"`
	MaxRiskTier *RiskTier `json:"max_risk_level"`
}

type Series struct {
	StationCode string             `json:"station_code"`
	StationName string             `json:"station_name"`
	Interval    string             `json:"interval"`
	Start       time.Time          `json:"start"`
	End         time.Time          `json:"end"`
	Buckets     []AggregatedBucket `json:"data_points"`
	Statistics  SeriesStatistics   `json:"statistics"`
}
