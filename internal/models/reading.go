package models

import (
	"fmt"
	"strings"
	"time"
)

type QualityFlag string

const (
	QualityGood    QualityFlag = "good"
	QualitySuspect QualityFlag = "suspect"
	QualityMissing QualityFlag = "missing"
)

// ParseQualityFlag maps an empty flag to good, matching the poller's default.
func ParseQualityFlag(s string) (QualityFlag, error) {
	switch QualityFlag(strings.ToLower(strings.TrimSpace(s))) {
	case "", QualityGood:
		return QualityGood, nil
	case QualitySuspect:
		return QualitySuspect, nil
	case QualityMissing:
		return QualityMissing, nil
	default:
		return "", fmt.Errorf("unknown quality flag %q", s)
	}
}

const DefaultSource = "NOAA"

// RawReading is one entry of an ingestion batch as delivered by the poller.
type RawReading struct {
	StationCode  string    `json:"station_code"`
	Timestamp    time.Time `json:"timestamp"`
	WaterLevelM  float64   `json:"water_level_m"`
	FlowRateCMS  *float64  `json:"flow_rate_cms,omitempty"`
	TemperatureC *float64  `json:"temperature_c,omitempty"`
	Source       string    `json:"source,omitempty"`
	QualityFlag  string    `json:"quality_flag,omitempty"`
}

// Reading is an accepted observation. Immutable once stored.
type Reading struct {
	ID           int64       `json:"id"`
	StationCode  string      `json:"station_code"`
	Timestamp    time.Time   `json:"timestamp"`
	WaterLevelM  float64     `json:"water_level_m"`
	FlowRateCMS  *float64    `json:"flow_rate_cms,omitempty"`
	TemperatureC *float64    `json:"temperature_c,omitempty"`
	Source       string      `json:"source"`
	Quality      QualityFlag `json:"quality_flag"`
	CreatedAt    time.Time   `json:"created_at"`
}

// ClassifiedReading is a reading with its derived risk and trend.
type ClassifiedReading struct {
	Reading
	RiskTier          RiskTier `json:"risk_level"`
	RiskColor         string   `json:"risk_color"`
	Trend             Trend    `json:"trend"`
	ChangeRateMH      *float64 `json:"change_rate,omitempty"`
	DefaultThresholds bool     `json:"using_default_thresholds,omitempty"`
}

// IngestOutcome is the per-item result of an ingestion batch.
type IngestOutcome string

const (
	OutcomeAccepted  IngestOutcome = "accepted"
	OutcomeDuplicate IngestOutcome = "duplicate"
	OutcomeRejected  IngestOutcome = "rejected"
)

type IngestResult struct {
	Index       int           `json:"index"`
	StationCode string        `json:"station_code"`
	Timestamp   time.Time     `json:"timestamp"`
	Outcome     IngestOutcome `json:"outcome"`
	ReadingID   int64         `json:"reading_id,omitempty"`
	Reason      string        `json:"reason,omitempty"`
}
