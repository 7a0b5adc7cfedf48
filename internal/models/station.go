package models

import (
	"fmt"
	"strings"
	"time"
)

type StationStatus string

const (
	StationActive      StationStatus = "active"
	StationInactive    StationStatus = "inactive"
	StationMaintenance StationStatus = "maintenance"
)

func ParseStationStatus(s string) (StationStatus, error) {
	switch StationStatus(strings.ToLower(s)) {
	case StationActive:
		return StationActive, nil
	case StationInactive:
		return StationInactive, nil
	case StationMaintenance:
		return StationMaintenance, nil
	default:
		return "", fmt.Errorf("unknown station status %q", s)
	}
}

// ThresholdSet holds the lower bound of every tier above normal, whose bound is 0.
type ThresholdSet struct {
	Low      float64 `json:"low"`
	Moderate float64 `json:"moderate"`
	High     float64 `json:"high"`
	VeryHigh float64 `json:"very_high"`
	Critical float64 `json:"critical"`
}

// Bounds returns the lower bound of each tier indexed by RiskTier.
func (ts ThresholdSet) Bounds() [6]float64 {
	return [6]float64{0, ts.Low, ts.Moderate, ts.High, ts.VeryHigh, ts.Critical}
}

// Validate enforces normal(0) < low < moderate < high < very_high < critical.
func (ts ThresholdSet) Validate() error {
	bounds := ts.Bounds()
	for i := 1; i < len(bounds); i++ {
		if !(bounds[i] > bounds[i-1]) {
			return fmt.Errorf("%w: %s bound %.3f must be greater than %s bound %.3f",
				ErrConfiguration, RiskTier(i), bounds[i], RiskTier(i-1), bounds[i-1])
		}
	}
	return nil
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Station struct {
	Code           string        `json:"code"` // NWSLI code, e.g. "CHIH3"
	Name           string        `json:"name"`
	RiverName      string        `json:"river_name"`
	Location       string        `json:"location"`
	Coordinates    Coordinates   `json:"coordinates"`
	Thresholds     *ThresholdSet `json:"thresholds,omitempty"` // nil means the deployment default applies
	BasePopulation int           `json:"base_population"`
	Status         StationStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// NormalizeStationCode upper-cases and trims a station code.
func NormalizeStationCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *Station) Validate() error {
	if len(s.Code) < 3 {
		return &ValidationError{Field: "code", Reason: "station code must have at least 3 characters"}
	}
	if s.Name == "" {
		return &ValidationError{Field: "name", Reason: "name is required"}
	}
	if s.Coordinates.Latitude < -90 || s.Coordinates.Latitude > 90 {
		return &ValidationError{Field: "latitude", Reason: "must be within [-90, 90]"}
	}
	if s.Coordinates.Longitude < -180 || s.Coordinates.Longitude > 180 {
		return &ValidationError{Field: "longitude", Reason: "must be within [-180, 180]"}
	}
	if s.BasePopulation < 0 {
		return &ValidationError{Field: "base_population", Reason: "must not be negative"}
	}
	if _, err := ParseStationStatus(string(s.Status)); err != nil {
		return &ValidationError{Field: "status", Reason: err.Error()}
	}
	if s.Thresholds != nil {
		if err := s.Thresholds.Validate(); err != nil {
			return err
		}
	}
	return nil
}
