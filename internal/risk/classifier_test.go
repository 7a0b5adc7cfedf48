package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

var sulaThresholds = models.ThresholdSet{Low: 2, Moderate: 4, High: 6, VeryHigh: 8, Critical: 12}

func TestTier_Boundaries(t *testing.T) {
	cases := []struct {
		level float64
		want  models.RiskTier
	}{
		{0, models.RiskNormal},
		{1.9, models.RiskNormal},
		{2.0, models.RiskLow},
		{3.99, models.RiskLow},
		{4.0, models.RiskModerate},
		{6.0, models.RiskHigh},
		{7.999, models.RiskHigh},
		{8.0, models.RiskVeryHigh},
		{11.99, models.RiskVeryHigh},
		{12.0, models.RiskCritical},
		{250, models.RiskCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Tier(tc.level, sulaThresholds), "level %.3f", tc.level)
	}
}

func TestTier_Monotonic(t *testing.T) {
	prev := models.RiskNormal
	for level := 0.0; level <= 20; level += 0.01 {
		got := Tier(level, sulaThresholds)
		require.GreaterOrEqual(t, got, prev, "tier decreased at level %.2f", level)
		prev = got
	}
}

func TestClassifier_FallsBackToDefaults(t *testing.T) {
	c, err := NewClassifier(sulaThresholds)
	require.NoError(t, err)

	got := c.Classify(6.5, nil)
	assert.Equal(t, models.RiskHigh, got.Tier)
	assert.True(t, got.UsingDefault)

	custom := models.ThresholdSet{Low: 1, Moderate: 2, High: 3, VeryHigh: 5, Critical: 7}
	got = c.Classify(6.5, &custom)
	assert.Equal(t, models.RiskVeryHigh, got.Tier)
	assert.False(t, got.UsingDefault)
}

func TestClassifier_Pure(t *testing.T) {
	c, err := NewClassifier(sulaThresholds)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.Equal(t, models.RiskModerate, c.Classify(5.0, &sulaThresholds).Tier)
	}
}

func TestNewClassifier_RejectsUnorderedDefaults(t *testing.T) {
	_, err := NewClassifier(models.ThresholdSet{Low: 2, Moderate: 2, High: 6, VeryHigh: 8, Critical: 12})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfiguration)

	_, err = NewClassifier(models.ThresholdSet{Low: 0, Moderate: 2, High: 6, VeryHigh: 8, Critical: 12})
	assert.ErrorIs(t, err, models.ErrConfiguration)
}
