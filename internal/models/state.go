package models

import "time"

// StationState is the per-station evaluation memory the alerting rules need
// between readings. It is persisted so debounce counters survive restarts.
type StationState struct {
	StationCode   string     `json:"station_code"`
	LastProcessed *time.Time `json:"last_processed,omitempty"`

	// Consecutive evaluated readings below the notable tier, and when the run began.
	BelowFloor      int        `json:"below_floor"`
	BelowFloorSince *time.Time `json:"below_floor_since,omitempty"`

	// Consecutive readings that did not meet the rapid-rise condition.
	Calm int `json:"calm"`

	// Start of the current uninterrupted run at or above high.
	HighSince *time.Time `json:"high_since,omitempty"`
	BelowHigh int        `json:"below_high"`

	// Consecutive good-quality readings classified against real thresholds.
	Healthy int `json:"healthy"`
}
