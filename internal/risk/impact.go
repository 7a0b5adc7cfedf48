package risk

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

// ExposureSchedule is the share, in whole percent, of a station's base
// population considered affected at each tier. Missing tiers count as 0%.
type ExposureSchedule map[models.RiskTier]int

func DefaultExposureSchedule() ExposureSchedule {
	return ExposureSchedule{
		models.RiskModerate: 40,
		models.RiskHigh:     70,
		models.RiskVeryHigh: 100,
		models.RiskCritical: 100,
	}
}

// ParseExposureSchedule reads "tier=percent" pairs separated by commas,
// e.g. "moderate=40,high=70,very_high=100,critical=100".
func ParseExposureSchedule(s string) (ExposureSchedule, error) {
	sched := ExposureSchedule{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, pct, found := strings.Cut(part, "=")
		if !found {
			return nil, fmt.Errorf("exposure entry %q: expected tier=percent", part)
		}
		tier, err := models.ParseRiskTier(name)
		if err != nil {
			return nil, fmt.Errorf("exposure entry %q: %w", part, err)
		}
		v, err := strconv.Atoi(strings.TrimSpace(pct))
		if err != nil || v < 0 || v > 100 {
			return nil, fmt.Errorf("exposure entry %q: percent must be an integer in [0, 100]", part)
		}
		sched[tier] = v
	}
	return sched, nil
}

type ImpactEstimator struct {
	schedule ExposureSchedule
}

func NewImpactEstimator(schedule ExposureSchedule) *ImpactEstimator {
	if schedule == nil {
		schedule = DefaultExposureSchedule()
	}
	return &ImpactEstimator{schedule: schedule}
}

// Estimate returns the affected share of base, rounded down.
func (e *ImpactEstimator) Estimate(base int, tier models.RiskTier) int {
	if base <= 0 {
		return 0
	}
	return base * e.schedule[tier] / 100
}
