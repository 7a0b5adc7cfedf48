package models

import (
	"fmt"
	"strings"
)

// RiskTier is totally ordered: comparisons between tiers are meaningful.
type RiskTier int

const (
	RiskNormal RiskTier = iota
	RiskLow
	RiskModerate
	RiskHigh
	RiskVeryHigh
	RiskCritical
)

// RiskTiers lists every tier in ascending order.
var RiskTiers = []RiskTier{RiskNormal, RiskLow, RiskModerate, RiskHigh, RiskVeryHigh, RiskCritical}

func (t RiskTier) String() string {
	switch t {
	case RiskNormal:
		return "normal"
	case RiskLow:
		return "low"
	case RiskModerate:
		return "moderate"
	case RiskHigh:
		return "high"
	case RiskVeryHigh:
		return "very_high"
	case RiskCritical:
		return "critical"
	default:
		return fmt.Sprintf("RiskTier(%d)", int(t))
	}
}

// Color is the hex color used by dashboards for the tier.
func (t RiskTier) Color() string {
	switch t {
	case RiskNormal:
		return "#22C55E"
	case RiskLow:
		return "#86EFAC"
	case RiskModerate:
		return "#FDE047"
	case RiskHigh:
		return "#FB923C"
	case RiskVeryHigh:
		return "#DC2626"
	case RiskCritical:
		return "#FF0000"
	default:
		return "#22C55E"
	}
}

func (t RiskTier) Valid() bool {
	return t >= RiskNormal && t <= RiskCritical
}

func ParseRiskTier(s string) (RiskTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return RiskNormal, nil
	case "low":
		return RiskLow, nil
	case "moderate":
		return RiskModerate, nil
	case "high":
		return RiskHigh, nil
	case "very_high":
		return RiskVeryHigh, nil
	case "critical":
		return RiskCritical, nil
	default:
		return RiskNormal, fmt.Errorf("unknown risk tier %q", s)
	}
}

func (t RiskTier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid risk tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *RiskTier) UnmarshalText(b []byte) error {
	v, err := ParseRiskTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Trend is the direction label produced by the trend analyzer.
type Trend int

const (
	TrendStable Trend = iota
	TrendRising
	TrendFalling
)

func (t Trend) String() string {
	switch t {
	case TrendRising:
		return "rising"
	case TrendFalling:
		return "falling"
	default:
		return "stable"
	}
}

func (t Trend) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Trend) UnmarshalText(b []byte) error {
	switch string(b) {
	case "rising":
		*t = TrendRising
	case "falling":
		*t = TrendFalling
	case "stable":
		*t = TrendStable
	default:
		return fmt.Errorf("unknown trend %q", string(b))
	}
	return nil
}
