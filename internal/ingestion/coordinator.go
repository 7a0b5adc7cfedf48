package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-flood-alerts/internal/aggregate"
	"github.com/mr1hm/go-flood-alerts/internal/alerting"
	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
	"github.com/mr1hm/go-flood-alerts/internal/repository"
	"github.com/mr1hm/go-flood-alerts/internal/risk"
)

// maxParallelStations bounds how many station groups of one batch run at once.
const maxParallelStations = 8

type Store interface {
	repository.StationRepository
	repository.ReadingRepository
	repository.StateRepository
}

type CoordinatorConfig struct {
	// LeadTime is how far in the future a reading timestamp may be.
	LeadTime time.Duration
	// Retention is how far in the past a reading timestamp may be.
	Retention time.Duration
}

// Coordinator is the ingestion entry point. It validates and deduplicates raw
// readings, stores them and drives classification, trend and alert
// evaluation, one station at a time.
type Coordinator struct {
	cfg        CoordinatorConfig
	store      Store
	classifier *risk.Classifier
	trend      *risk.TrendAnalyzer
	alerts     *alerting.Manager
	cache      aggregate.Cache
	clock      clockwork.Clock
	metrics    *observability.Metrics
}

func NewCoordinator(cfg CoordinatorConfig, store Store, classifier *risk.Classifier, trend *risk.TrendAnalyzer,
	alerts *alerting.Manager, cache aggregate.Cache, clock clockwork.Clock, metrics *observability.Metrics) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		store:      store,
		classifier: classifier,
		trend:      trend,
		alerts:     alerts,
		cache:      cache,
		clock:      clock,
		metrics:    metrics,
	}
}

type pending struct {
	index   int
	reading models.Reading
}

// Ingest processes a batch and reports one result per entry, in input order.
// A failure on one entry never aborts the others.
func (c *Coordinator) Ingest(ctx context.Context, batch []models.RawReading) []models.IngestResult {
	start := c.clock.Now()
	results := make([]models.IngestResult, len(batch))
	groups := make(map[string][]pending)

	now := start.UTC()
	for i, raw := range batch {
		r, err := c.validate(raw, now)
		if err != nil {
			results[i] = reject(i, raw.StationCode, raw.Timestamp, err.Error())
			slog.Warn("reading rejected", "station", raw.StationCode, "index", i, "error", err)
			continue
		}
		groups[r.StationCode] = append(groups[r.StationCode], pending{index: i, reading: r})
	}

	sem := make(chan struct{}, maxParallelStations)
	var wg sync.WaitGroup
	for code, items := range groups {
		wg.Add(1)
		sem <- struct{}{}
		go func(code string, items []pending) {
			defer wg.Done()
			defer func() { <-sem }()
			// each goroutine writes only its own indices
			c.processStation(ctx, code, items, results)
		}(code, items)
	}
	wg.Wait()

	for _, res := range results {
		c.metrics.ReadingsIngested.WithLabelValues(string(res.Outcome)).Inc()
	}
	c.metrics.IngestBatchSize.Observe(float64(len(batch)))
	c.metrics.IngestBatchDuration.Observe(c.clock.Since(start).Seconds())
	return results
}

func (c *Coordinator) processStation(ctx context.Context, code string, items []pending, results []models.IngestResult) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].reading.Timestamp.Before(items[j].reading.Timestamp)
	})

	unlock := c.alerts.Locks().Lock(code)
	defer unlock()

	station, err := c.store.GetStation(ctx, code)
	if err != nil {
		reason := "failed to load station"
		if errors.Is(err, models.ErrNotFound) {
			reason = "unknown station"
		} else {
			slog.Error("failed to load station", "station", code, "error", err)
		}
		for _, p := range items {
			results[p.index] = reject(p.index, code, p.reading.Timestamp, reason)
		}
		return
	}

	state, err := c.store.GetState(ctx, code)
	if err != nil {
		slog.Error("failed to load station state", "station", code, "error", err)
		for _, p := range items {
			results[p.index] = reject(p.index, code, p.reading.Timestamp, "failed to load station state")
		}
		return
	}

	stored := false
	advanced := false
	for _, p := range items {
		r := p.reading
		res := models.IngestResult{Index: p.index, StationCode: code, Timestamp: r.Timestamp}

		inserted, err := c.store.InsertReading(ctx, &r)
		if err != nil {
			slog.Error("failed to store reading", "station", code, "error", err)
			results[p.index] = reject(p.index, code, r.Timestamp, "storage failure")
			continue
		}
		res.ReadingID = r.ID
		if !inserted {
			res.Outcome = models.OutcomeDuplicate
			res.Reason = "reading already ingested"
			results[p.index] = res
			slog.Debug("duplicate reading", "station", code, "timestamp", r.Timestamp)
			continue
		}
		stored = true
		res.Outcome = models.OutcomeAccepted

		if state.LastProcessed != nil && !r.Timestamp.After(*state.LastProcessed) {
			res.Reason = "out of order: stored without alert evaluation"
			results[p.index] = res
			slog.Debug("out-of-order reading", "station", code, "timestamp", r.Timestamp,
				"last_processed", *state.LastProcessed)
			continue
		}

		if station.Status == models.StationActive {
			if err := c.evaluate(ctx, station, state, r); err != nil {
				slog.Error("alert evaluation failed", "station", code, "reading_id", r.ID, "error", err)
			}
		}
		at := r.Timestamp
		state.LastProcessed = &at
		advanced = true
		results[p.index] = res
	}

	if advanced {
		if err := c.store.SaveState(ctx, state); err != nil {
			slog.Error("failed to save station state", "station", code, "error", err)
		}
	}
	if stored && c.cache != nil {
		if err := c.cache.Invalidate(ctx, code); err != nil {
			slog.Warn("failed to invalidate series cache", "station", code, "error", err)
		}
	}
}

func (c *Coordinator) evaluate(ctx context.Context, station *models.Station, state *models.StationState, r models.Reading) error {
	cl := c.classifier.Classify(r.WaterLevelM, station.Thresholds)

	window := c.trend.Config().Window
	recent, err := c.store.RecentReadings(ctx, station.Code, r.Timestamp.Add(-window), 0)
	if err != nil {
		return fmt.Errorf("failed to load trend window: %w", err)
	}
	trend := c.trend.Analyze(risk.PointsFromReadings(upTo(recent, r.Timestamp)))

	return c.alerts.Evaluate(ctx, state, alerting.Observation{
		Station:      station,
		Reading:      r,
		Tier:         cl.Tier,
		UsingDefault: cl.UsingDefault,
		Trend:        trend,
	})
}

// upTo drops readings newer than at; the window is anchored at the reading
// under evaluation.
func upTo(readings []models.Reading, at time.Time) []models.Reading {
	n := len(readings)
	for n > 0 && readings[n-1].Timestamp.After(at) {
		n--
	}
	return readings[:n]
}

func (c *Coordinator) validate(raw models.RawReading, now time.Time) (models.Reading, error) {
	code := models.NormalizeStationCode(raw.StationCode)
	if code == "" {
		return models.Reading{}, &models.ValidationError{Field: "station_code", Reason: "station code is required"}
	}
	if raw.Timestamp.IsZero() {
		return models.Reading{}, &models.ValidationError{Field: "timestamp", Reason: "timestamp is required"}
	}
	if math.IsNaN(raw.WaterLevelM) || math.IsInf(raw.WaterLevelM, 0) {
		return models.Reading{}, &models.ValidationError{Field: "water_level_m", Reason: "must be a finite number"}
	}
	if raw.WaterLevelM < 0 {
		return models.Reading{}, &models.ValidationError{Field: "water_level_m", Reason: "must not be negative"}
	}
	if f := raw.FlowRateCMS; f != nil && (*f < 0 || math.IsNaN(*f) || math.IsInf(*f, 0)) {
		return models.Reading{}, &models.ValidationError{Field: "flow_rate_cms", Reason: "must be a finite, non-negative number"}
	}
	if t := raw.TemperatureC; t != nil && (math.IsNaN(*t) || math.IsInf(*t, 0)) {
		return models.Reading{}, &models.ValidationError{Field: "temperature_c", Reason: "must be a finite number"}
	}

	ts := raw.Timestamp.UTC()
	if ts.After(now.Add(c.cfg.LeadTime)) {
		return models.Reading{}, &models.ValidationError{Field: "timestamp",
			Reason: fmt.Sprintf("more than %s in the future", c.cfg.LeadTime)}
	}
	if ts.Before(now.Add(-c.cfg.Retention)) {
		return models.Reading{}, &models.ValidationError{Field: "timestamp",
			Reason: fmt.Sprintf("older than the %s retention horizon", c.cfg.Retention)}
	}

	quality, err := models.ParseQualityFlag(raw.QualityFlag)
	if err != nil {
		return models.Reading{}, &models.ValidationError{Field: "quality_flag", Reason: err.Error()}
	}
	source := strings.TrimSpace(raw.Source)
	if source == "" {
		source = models.DefaultSource
	}

	return models.Reading{
		StationCode:  code,
		Timestamp:    ts,
		WaterLevelM:  raw.WaterLevelM,
		FlowRateCMS:  raw.FlowRateCMS,
		TemperatureC: raw.TemperatureC,
		Source:       source,
		Quality:      quality,
		CreatedAt:    now,
	}, nil
}

func reject(index int, station string, ts time.Time, reason string) models.IngestResult {
	return models.IngestResult{
		Index:       index,
		StationCode: station,
		Timestamp:   ts,
		Outcome:     models.OutcomeRejected,
		Reason:      reason,
	}
}
