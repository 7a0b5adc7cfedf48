// Package risk holds the pure decision functions of the engine: tier
// classification, trend analysis and population impact.
package risk

import (
	"github.com/mr1hm/go-flood-alerts/internal/models"
)

// Classification is the result of classifying a single water level.
type Classification struct {
	Tier models.RiskTier
	// UsingDefault is set when the station had no threshold set and the
	// deployment default was applied instead.
	UsingDefault bool
}

// Classifier maps water levels to risk tiers.
type Classifier struct {
	defaults models.ThresholdSet
}

// NewClassifier validates the fallback threshold set once, at construction.
func NewClassifier(defaults models.ThresholdSet) (*Classifier, error) {
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{defaults: defaults}, nil
}

func (c *Classifier) Defaults() models.ThresholdSet {
	return c.defaults
}

// Classify returns the highest tier whose lower bound level meets or exceeds.
// A nil set falls back to the defaults and flags it.
func (c *Classifier) Classify(level float64, ts *models.ThresholdSet) Classification {
	if ts == nil {
		return Classification{Tier: Tier(level, c.defaults), UsingDefault: true}
	}
	return Classification{Tier: Tier(level, *ts)}
}

// Tier classifies level against ts. Levels below the low bound are normal.
func Tier(level float64, ts models.ThresholdSet) models.RiskTier {
	bounds := ts.Bounds()
	for i := len(bounds) - 1; i > 0; i-- {
		if level >= bounds[i] {
			return models.RiskTier(i)
		}
	}
	return models.RiskNormal
}
