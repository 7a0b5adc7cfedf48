// Package query serves read models over stored readings and alerts:
// classified readings, aggregated series and the dashboard summary.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-flood-alerts/internal/aggregate"
	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
	"github.com/mr1hm/go-flood-alerts/internal/repository"
	"github.com/mr1hm/go-flood-alerts/internal/risk"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type Store interface {
	repository.StationRepository
	repository.ReadingRepository
	repository.AlertRepository
	repository.RuleRepository
}

type Service struct {
	store      Store
	classifier *risk.Classifier
	trend      *risk.TrendAnalyzer
	impact     *risk.ImpactEstimator
	cache      aggregate.Cache
	clock      clockwork.Clock
	metrics    *observability.Metrics

	onlineWithin time.Duration
}

type Option func(*Service)

// WithOnlineWindow sets how recent a station's last reading must be for
// StationHealth to report it online. The default is one hour.
func WithOnlineWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.onlineWithin = d
		}
	}
}

func NewService(store Store, classifier *risk.Classifier, trend *risk.TrendAnalyzer, impact *risk.ImpactEstimator,
	cache aggregate.Cache, clock clockwork.Clock, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{
		store:        store,
		classifier:   classifier,
		trend:        trend,
		impact:       impact,
		cache:        cache,
		clock:        clock,
		metrics:      metrics,
		onlineWithin: time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReadingsQuery pages through stored readings. Zero Limit means DefaultLimit.
type ReadingsQuery struct {
	StationCodes []string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
	Ascending    bool
}

type ReadingsPage struct {
	Readings []models.ClassifiedReading `json:"data"`
	Limit    int                        `json:"limit"`
	Offset   int                        `json:"offset"`
	HasMore  bool                       `json:"has_more"`
}

func (q ReadingsQuery) normalize() (ReadingsQuery, error) {
	switch {
	case q.Limit == 0:
		q.Limit = DefaultLimit
	case q.Limit < 0 || q.Limit > MaxLimit:
		return q, &models.ValidationError{Field: "limit", Reason: fmt.Sprintf("must be between 1 and %d", MaxLimit)}
	}
	if q.Offset < 0 {
		return q, &models.ValidationError{Field: "offset", Reason: "must not be negative"}
	}
	if q.From != nil && q.To != nil && !q.To.After(*q.From) {
		return q, &models.ValidationError{Field: "end", Reason: "end time must be after start time"}
	}
	codes := make([]string, len(q.StationCodes))
	for i, code := range q.StationCodes {
		codes[i] = models.NormalizeStationCode(code)
	}
	q.StationCodes = codes
	return q, nil
}

func (s *Service) ListReadings(ctx context.Context, q ReadingsQuery) (*ReadingsPage, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}
	stations, err := s.stationIndex(ctx)
	if err != nil {
		return nil, err
	}
	for _, code := range q.StationCodes {
		if _, ok := stations[code]; !ok {
			return nil, fmt.Errorf("station %s: %w", code, models.ErrNotFound)
		}
	}

	// one extra row tells us whether another page exists
	readings, err := s.store.ListReadings(ctx, repository.ReadingFilter{
		StationCodes: q.StationCodes,
		From:         q.From,
		To:           q.To,
		Limit:        q.Limit + 1,
		Offset:       q.Offset,
		Ascending:    q.Ascending,
	})
	if err != nil {
		return nil, err
	}
	page := &ReadingsPage{Limit: q.Limit, Offset: q.Offset}
	if len(readings) > q.Limit {
		page.HasMore = true
		readings = readings[:q.Limit]
	}

	page.Readings, err = s.classify(ctx, stations, readings)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// LatestReadings returns the newest classified reading of each station,
// optionally restricted to codes.
func (s *Service) LatestReadings(ctx context.Context, codes []string) ([]models.ClassifiedReading, error) {
	stations, err := s.stationIndex(ctx)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.LatestReadings(ctx)
	if err != nil {
		return nil, err
	}

	if len(codes) > 0 {
		want := make(map[string]bool, len(codes))
		for _, c := range codes {
			want[models.NormalizeStationCode(c)] = true
		}
		filtered := latest[:0]
		for _, r := range latest {
			if want[r.StationCode] {
				filtered = append(filtered, r)
			}
		}
		latest = filtered
	}
	return s.classify(ctx, stations, latest)
}

func (s *Service) stationIndex(ctx context.Context) (map[string]*models.Station, error) {
	list, err := s.store.ListStations(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]*models.Station, len(list))
	for i := range list {
		idx[list[i].Code] = &list[i]
	}
	return idx, nil
}

// classify tags each reading with its tier and the trend over the window
// ending at that reading. Trend history is loaded once per station.
func (s *Service) classify(ctx context.Context, stations map[string]*models.Station, readings []models.Reading) ([]models.ClassifiedReading, error) {
	out := make([]models.ClassifiedReading, len(readings))
	if len(readings) == 0 {
		return out, nil
	}

	window := s.trend.Config().Window
	type span struct{ from, to time.Time }
	spans := make(map[string]span)
	for _, r := range readings {
		sp, ok := spans[r.StationCode]
		if !ok {
			sp = span{from: r.Timestamp, to: r.Timestamp}
		}
		if r.Timestamp.Before(sp.from) {
			sp.from = r.Timestamp
		}
		if r.Timestamp.After(sp.to) {
			sp.to = r.Timestamp
		}
		spans[r.StationCode] = sp
	}

	history := make(map[string][]risk.Point, len(spans))
	for code, sp := range spans {
		from := sp.from.Add(-window)
		to := sp.to.Add(time.Millisecond)
		rows, err := s.store.ListReadings(ctx, repository.ReadingFilter{
			StationCodes: []string{code},
			From:         &from,
			To:           &to,
			Ascending:    true,
		})
		if err != nil {
			return nil, err
		}
		history[code] = risk.PointsFromReadings(rows)
	}

	for i, r := range readings {
		var thresholds *models.ThresholdSet
		if st, ok := stations[r.StationCode]; ok {
			thresholds = st.Thresholds
		}
		cl := s.classifier.Classify(r.WaterLevelM, thresholds)
		tr := s.trend.Analyze(pointsUpTo(history[r.StationCode], r.Timestamp))
		out[i] = models.ClassifiedReading{
			Reading:           r,
			RiskTier:          cl.Tier,
			RiskColor:         cl.Tier.Color(),
			Trend:             tr.Trend,
			ChangeRateMH:      tr.RateMH,
			DefaultThresholds: cl.UsingDefault,
		}
	}
	return out, nil
}

func pointsUpTo(points []risk.Point, at time.Time) []risk.Point {
	n := 0
	for n < len(points) && !points[n].At.After(at) {
		n++
	}
	return points[:n]
}

// Series aggregates a station's readings over [start, end). Results are
// cached per generation, so ingestion for the station makes them stale.
func (s *Service) Series(ctx context.Context, code string, start, end time.Time, interval string) (*models.Series, error) {
	code = models.NormalizeStationCode(code)
	station, err := s.store.GetStation(ctx, code)
	if err != nil {
		return nil, err
	}
	thresholds := s.classifier.Defaults()
	if station.Thresholds != nil {
		thresholds = *station.Thresholds
	}
	req := aggregate.Request{StationCode: code, Start: start.UTC(), End: end.UTC(), Interval: interval, Thresholds: thresholds}
	if _, err := req.Validate(); err != nil {
		return nil, err
	}

	key := aggregate.Key{StationCode: code, Start: req.Start, End: req.End, Interval: interval}
	// capture the generation before reading so a concurrent ingest can only
	// make this entry stale, never mislabel it as fresh
	gen, genErr := s.cache.Generation(ctx, code)
	if genErr == nil {
		if cached, hit, err := s.cache.Get(ctx, key, gen); err == nil && hit {
			s.metrics.SeriesCache.WithLabelValues("hit").Inc()
			return cached, nil
		} else if err != nil {
			slog.Warn("series cache read failed", "station", code, "error", err)
		}
	} else {
		slog.Warn("series cache generation lookup failed", "station", code, "error", genErr)
	}
	s.metrics.SeriesCache.WithLabelValues("miss").Inc()

	readings, err := s.store.ListReadings(ctx, repository.ReadingFilter{
		StationCodes: []string{code},
		From:         &req.Start,
		To:           &req.End,
		Ascending:    true,
	})
	if err != nil {
		return nil, err
	}
	buckets, err := aggregate.Aggregate(req, readings)
	if err != nil {
		return nil, err
	}

	series := &models.Series{
		StationCode: code,
		StationName: station.Name,
		Interval:    interval,
		Start:       req.Start,
		End:         req.End,
		Buckets:     buckets,
		Statistics:  aggregate.Summarize(buckets),
	}
	if genErr == nil {
		if err := s.cache.Set(ctx, key, gen, series); err != nil {
			slog.Warn("series cache write failed", "station", code, "error", err)
		}
	}
	return series, nil
}
