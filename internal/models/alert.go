package models

import (
	"fmt"
	"strings"
	"time"
)

type AlertKind string

const (
	AlertThresholdCrossing AlertKind = "level_threshold"
	AlertRapidRise         AlertKind = "rapid_rise"
	AlertSustainedHigh     AlertKind = "sustained_high"
	AlertDataQuality       AlertKind = "data_quality"
	AlertSystemFailure     AlertKind = "system_failure"
)

var AlertKinds = []AlertKind{AlertThresholdCrossing, AlertRapidRise, AlertSustainedHigh, AlertDataQuality, AlertSystemFailure}

func ParseAlertKind(s string) (AlertKind, error) {
	switch k := AlertKind(strings.ToLower(s)); k {
	case AlertThresholdCrossing, AlertRapidRise, AlertSustainedHigh, AlertDataQuality, AlertSystemFailure:
		return k, nil
	default:
		return "", fmt.Errorf("unknown alert kind %q", s)
	}
}

// AlertSeverity is ordered: Info < Warning < Critical < Emergency.
type AlertSeverity int

const (
	SeverityInfo AlertSeverity = iota
	SeverityWarning
	SeverityCritical
	SeverityEmergency
)

func (s AlertSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	case SeverityEmergency:
		return "emergency"
	default:
		return fmt.Sprintf("AlertSeverity(%d)", int(s))
	}
}

func ParseAlertSeverity(s string) (AlertSeverity, error) {
	switch strings.ToLower(s) {
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "critical":
		return SeverityCritical, nil
	case "emergency":
		return SeverityEmergency, nil
	default:
		return SeverityInfo, fmt.Errorf("unknown alert severity %q", s)
	}
}

func (s AlertSeverity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *AlertSeverity) UnmarshalText(b []byte) error {
	v, err := ParseAlertSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// SeverityForTier maps a risk tier to an alert severity. Normal and low are
// never alertable, so ok is false for them.
func SeverityForTier(t RiskTier) (sev AlertSeverity, ok bool) {
	switch t {
	case RiskNormal, RiskLow:
		return SeverityInfo, false
	case RiskModerate:
		return SeverityWarning, true
	case RiskHigh:
		return SeverityCritical, true
	case RiskVeryHigh, RiskCritical:
		return SeverityEmergency, true
	default:
		return SeverityInfo, false
	}
}

type AlertStatus string

const (
	StatusActive       AlertStatus = "active"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
	StatusCancelled    AlertStatus = "cancelled"
)

var AlertStatuses = []AlertStatus{StatusActive, StatusAcknowledged, StatusResolved, StatusCancelled}

func ParseAlertStatus(s string) (AlertStatus, error) {
	switch st := AlertStatus(strings.ToLower(s)); st {
	case StatusActive, StatusAcknowledged, StatusResolved, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown alert status %q", s)
	}
}

// Open reports whether the status still counts towards the one-open-alert-per-kind rule.
func (s AlertStatus) Open() bool {
	switch s {
	case StatusActive, StatusAcknowledged:
		return true
	case StatusResolved, StatusCancelled:
		return false
	default:
		return false
	}
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s AlertStatus) CanTransition(next AlertStatus) bool {
	switch s {
	case StatusActive:
		return next == StatusAcknowledged || next == StatusResolved || next == StatusCancelled
	case StatusAcknowledged:
		return next == StatusResolved || next == StatusCancelled
	case StatusResolved, StatusCancelled:
		return false
	default:
		return false
	}
}

type Alert struct {
	ID                 int64          `json:"id"`
	StationCode        string         `json:"station_code"`
	Kind               AlertKind      `json:"alert_type"`
	Severity           AlertSeverity  `json:"severity"`
	Status             AlertStatus    `json:"status"`
	RiskTier           RiskTier       `json:"risk_level"`
	TriggeredByReading *int64         `json:"triggered_by_reading_id,omitempty"`
	Title              string         `json:"title"`
	Message            string         `json:"message"`
	Context            map[string]any `json:"additional_data"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	AcknowledgedAt     *time.Time     `json:"acknowledged_at,omitempty"`
	AcknowledgedBy     string         `json:"acknowledged_by,omitempty"`
	ResolvedAt         *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy         string         `json:"resolved_by,omitempty"`
	ResolutionNotes    string         `json:"resolution_notes,omitempty"`
}

// Transition validates and applies a status change. Timestamps for terminal
// and acknowledged states are stamped with at.
func (a *Alert) Transition(next AlertStatus, actor, notes string, at time.Time) error {
	if !a.Status.CanTransition(next) {
		return &StateConflictError{AlertID: a.ID, From: a.Status, To: next}
	}
	a.Status = next
	a.UpdatedAt = at
	switch next {
	case StatusAcknowledged:
		a.AcknowledgedAt = &at
		a.AcknowledgedBy = actor
	case StatusResolved, StatusCancelled:
		a.ResolvedAt = &at
		a.ResolvedBy = actor
		a.ResolutionNotes = notes
	case StatusActive:
	}
	return nil
}

type AlertFilter struct {
	StationCodes []string
	Kinds        []AlertKind
	Severities   []AlertSeverity
	Statuses     []AlertStatus
	Since        *time.Time
	Limit        int
	Offset       int
}
