package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, models.ThresholdSet{Low: 2, Moderate: 4, High: 6, VeryHigh: 8, Critical: 12}, cfg.Risk.DefaultThresholds)
	assert.Equal(t, models.RiskModerate, cfg.Alerting.NotableTier)
	assert.Equal(t, 2, cfg.Alerting.ResolveDebounceReadings)
	assert.Equal(t, 6*time.Hour, cfg.Alerting.SustainedHighDuration)
	assert.Equal(t, 70, cfg.Risk.Exposure[models.RiskHigh])
	assert.Empty(t, cfg.Cache.RedisAddr)
	assert.Empty(t, cfg.Notify.KafkaBrokers)
	assert.Equal(t, 256, cfg.Notify.QueueSize)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DEFAULT_THRESHOLDS", "1,2.5,4,6,9")
	t.Setenv("NOTABLE_TIER", "high")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("RESOLVE_DEBOUNCE_DURATION", "30m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 2.5, cfg.Risk.DefaultThresholds.Moderate, 1e-9)
	assert.Equal(t, models.RiskHigh, cfg.Alerting.NotableTier)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Notify.KafkaBrokers)
	assert.Equal(t, 30*time.Minute, cfg.Alerting.ResolveDebounceDuration)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unordered thresholds", "DEFAULT_THRESHOLDS", "2,4,4,8,12"},
		{"short thresholds", "DEFAULT_THRESHOLDS", "2,4,6"},
		{"unknown tier", "NOTABLE_TIER", "apocalyptic"},
		{"low notable tier", "NOTABLE_TIER", "low"},
		{"bad port", "SERVER_PORT", "70000"},
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"bad exposure", "EXPOSURE_SCHEDULE", "high=170"},
		{"feed without url", "FEED_ENABLED", "true"},
		{"empty notify queue", "NOTIFY_QUEUE_SIZE", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseThresholds_WrapsConfigurationError(t *testing.T) {
	_, err := ParseThresholds("5,4,6,8,12")
	assert.ErrorIs(t, err, models.ErrConfiguration)
}
