package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/risk"
)

type Config struct {
	Server   ServerConfig
	Worker   WorkerConfig
	Feed     FeedConfig
	DB       DatabaseConfig
	Logging  LoggingConfig
	Risk     RiskConfig
	Alerting AlertingConfig
	Ingest   IngestConfig
	Cache    CacheConfig
	Notify   NotifyConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	RateLimitRPS int
	CORSOrigins  []string
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type FeedConfig struct {
	Enabled      bool
	URL          string
	PollInterval time.Duration
}

type DatabaseConfig struct {
	Path         string
	SeedStations bool
}

type LoggingConfig struct {
	Level string
}

type RiskConfig struct {
	DefaultThresholds models.ThresholdSet
	TrendWindowSize   int
	TrendWindow       time.Duration
	TrendHysteresis   float64
	Exposure          risk.ExposureSchedule
}

type AlertingConfig struct {
	NotableTier             models.RiskTier
	ResolveDebounceReadings int
	ResolveDebounceDuration time.Duration
	RapidRiseRate           float64
	SustainedHighDuration   time.Duration
	SilenceGap              time.Duration
	SilenceSweepSchedule    string
}

type IngestConfig struct {
	LeadTime  time.Duration
	Retention time.Duration
}

type CacheConfig struct {
	Size          int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

type NotifyConfig struct {
	NATSURL           string
	NATSSubjectPrefix string
	KafkaBrokers      []string
	KafkaTopic        string
	// QueueSize bounds the pending events per delivery shard.
	QueueSize int
	// StreamBuffer is each live subscriber's backlog before events drop.
	StreamBuffer int
}

func Load() (*Config, error) {
	thresholds, err := ParseThresholds(getEnv("DEFAULT_THRESHOLDS", "2,4,6,8,12"))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_THRESHOLDS: %w", err)
	}
	notable, err := models.ParseRiskTier(getEnv("NOTABLE_TIER", "moderate"))
	if err != nil {
		return nil, fmt.Errorf("NOTABLE_TIER: %w", err)
	}
	exposure, err := risk.ParseExposureSchedule(getEnv("EXPOSURE_SCHEDULE", "moderate=40,high=70,very_high=100,critical=100"))
	if err != nil {
		return nil, fmt.Errorf("EXPOSURE_SCHEDULE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", 20),
			CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"*"}),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 4),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 100),
		},
		Feed: FeedConfig{
			Enabled:      getEnvBool("FEED_ENABLED", false),
			URL:          getEnv("FEED_URL", ""),
			PollInterval: getEnvDuration("FEED_POLL_INTERVAL", 5*time.Minute),
		},
		DB: DatabaseConfig{
			Path:         getEnv("DB_PATH", "./data/flood-alerts.db"),
			SeedStations: getEnvBool("SEED_STATIONS", true),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Risk: RiskConfig{
			DefaultThresholds: thresholds,
			TrendWindowSize:   getEnvInt("TREND_WINDOW_SIZE", 6),
			TrendWindow:       getEnvDuration("TREND_WINDOW", 3*time.Hour),
			TrendHysteresis:   getEnvFloat("TREND_HYSTERESIS", 0.05),
			Exposure:          exposure,
		},
		Alerting: AlertingConfig{
			NotableTier:             notable,
			ResolveDebounceReadings: getEnvInt("RESOLVE_DEBOUNCE_READINGS", 2),
			ResolveDebounceDuration: getEnvDuration("RESOLVE_DEBOUNCE_DURATION", 0),
			RapidRiseRate:           getEnvFloat("RAPID_RISE_RATE", 0.5),
			SustainedHighDuration:   getEnvDuration("SUSTAINED_HIGH_DURATION", 6*time.Hour),
			SilenceGap:              getEnvDuration("SILENCE_GAP", time.Hour),
			SilenceSweepSchedule:    getEnv("SILENCE_SWEEP_SCHEDULE", "@every 1m"),
		},
		Ingest: IngestConfig{
			LeadTime:  getEnvDuration("INGEST_LEAD_TIME", time.Hour),
			Retention: getEnvDuration("INGEST_RETENTION", 720*time.Hour),
		},
		Cache: CacheConfig{
			Size:          getEnvInt("SERIES_CACHE_SIZE", 500),
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			TTL:           getEnvDuration("SERIES_CACHE_TTL", 10*time.Minute),
		},
		Notify: NotifyConfig{
			NATSURL:           getEnv("NATS_URL", ""),
			NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "flood.alerts"),
			KafkaBrokers:      getEnvList("KAFKA_BROKERS", nil),
			KafkaTopic:        getEnv("KAFKA_TOPIC", "flood-alert-notifications"),
			QueueSize:         getEnvInt("NOTIFY_QUEUE_SIZE", 256),
			StreamBuffer:      getEnvInt("STREAM_BUFFER_SIZE", 64),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit must be at least 1 request per second")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.Notify.QueueSize < 1 {
		return fmt.Errorf("notification queue size must be at least 1")
	}
	if c.Feed.Enabled {
		if c.Feed.URL == "" {
			return fmt.Errorf("FEED_URL is required when the feed is enabled")
		}
		if c.Feed.PollInterval < time.Minute {
			return fmt.Errorf("feed poll interval must be at least 1 minute")
		}
	}

	if c.Risk.TrendWindowSize < 2 {
		return fmt.Errorf("trend window size must be at least 2")
	}
	if c.Risk.TrendWindow <= 0 {
		return fmt.Errorf("trend window must be positive")
	}
	if c.Risk.TrendHysteresis < 0 {
		return fmt.Errorf("trend hysteresis must not be negative")
	}

	if c.Alerting.NotableTier < models.RiskModerate {
		return fmt.Errorf("notable tier must be moderate or above, got %s", c.Alerting.NotableTier)
	}
	if c.Alerting.ResolveDebounceReadings < 1 {
		return fmt.Errorf("resolve debounce must be at least 1 reading")
	}
	if c.Alerting.ResolveDebounceDuration < 0 {
		return fmt.Errorf("resolve debounce duration must not be negative")
	}
	if c.Alerting.RapidRiseRate <= 0 {
		return fmt.Errorf("rapid rise rate must be positive")
	}
	if c.Alerting.SustainedHighDuration <= 0 {
		return fmt.Errorf("sustained high duration must be positive")
	}
	if c.Alerting.SilenceGap <= 0 {
		return fmt.Errorf("silence gap must be positive")
	}

	if c.Ingest.LeadTime < 0 || c.Ingest.Retention <= 0 {
		return fmt.Errorf("ingest lead time and retention must be positive")
	}

	return nil
}

// ParseThresholds reads "low,moderate,high,very_high,critical" in metres.
func ParseThresholds(s string) (models.ThresholdSet, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 5 {
		return models.ThresholdSet{}, fmt.Errorf("%w: expected 5 comma-separated bounds, got %d", models.ErrConfiguration, len(parts))
	}
	var v [5]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return models.ThresholdSet{}, fmt.Errorf("%w: bound %q is not a number", models.ErrConfiguration, p)
		}
		v[i] = f
	}
	ts := models.ThresholdSet{Low: v[0], Moderate: v[1], High: v[2], VeryHigh: v[3], Critical: v[4]}
	if err := ts.Validate(); err != nil {
		return models.ThresholdSet{}, err
	}
	return ts, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
