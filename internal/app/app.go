// Package app assembles the engine from configuration. Both binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-flood-alerts/internal/aggregate"
	"github.com/mr1hm/go-flood-alerts/internal/alerting"
	"github.com/mr1hm/go-flood-alerts/internal/config"
	"github.com/mr1hm/go-flood-alerts/internal/ingestion"
	"github.com/mr1hm/go-flood-alerts/internal/notify"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
	"github.com/mr1hm/go-flood-alerts/internal/query"
	"github.com/mr1hm/go-flood-alerts/internal/repository"
	"github.com/mr1hm/go-flood-alerts/internal/risk"
	"github.com/mr1hm/go-flood-alerts/internal/worker"
)

type App struct {
	DB          *repository.SQLiteDB
	Metrics     *observability.Metrics
	Broadcaster *notify.Broadcaster
	Alerts      *alerting.Manager
	Coordinator *ingestion.Coordinator
	Queries     *query.Service

	closers []func() error
}

// New opens storage and the optional Redis, NATS and Kafka backends and
// starts the notification queue. The caller owns Close, which drains it. metrics may come from NewMetricsForTesting in tests.
func New(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, clock clockwork.Clock) (*App, error) {
	a := &App{Metrics: metrics}

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	if cfg.DB.SeedStations {
		if err := db.Seed(ctx, clock.Now().UTC()); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to seed stations: %w", err)
		}
	}

	cache, err := a.seriesCache(ctx, cfg.Cache)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Broadcaster = notify.NewBroadcaster(cfg.Notify.StreamBuffer)
	a.closers = append(a.closers, func() error { a.Broadcaster.Close(); return nil })
	dispatcher := notify.NewDispatcher(db, metrics, a.Broadcaster)
	if err := a.notificationSinks(dispatcher, cfg.Notify); err != nil {
		a.Close()
		return nil, err
	}
	queue := notify.NewQueue(dispatcher, cfg.Worker.Count, cfg.Notify.QueueSize, metrics)
	queue.Start(ctx)
	a.closers = append(a.closers, func() error { queue.Stop(); return nil })

	classifier, err := risk.NewClassifier(cfg.Risk.DefaultThresholds)
	if err != nil {
		a.Close()
		return nil, err
	}
	trend := risk.NewTrendAnalyzer(risk.TrendConfig{
		WindowSize: cfg.Risk.TrendWindowSize,
		Window:     cfg.Risk.TrendWindow,
		Hysteresis: cfg.Risk.TrendHysteresis,
	})
	impact := risk.NewImpactEstimator(cfg.Risk.Exposure)

	a.Alerts = alerting.NewManager(alerting.Config{
		NotableTier:             cfg.Alerting.NotableTier,
		ResolveDebounceReadings: cfg.Alerting.ResolveDebounceReadings,
		ResolveDebounceDuration: cfg.Alerting.ResolveDebounceDuration,
		RapidRiseRate:           cfg.Alerting.RapidRiseRate,
		SustainedHighDuration:   cfg.Alerting.SustainedHighDuration,
		SilenceGap:              cfg.Alerting.SilenceGap,
	}, db, queue, impact, worker.NewKeyedMutex(), clock, metrics)
	if err := a.Alerts.SyncOpenGauge(ctx); err != nil {
		slog.Warn("failed to sync open alert gauge", "error", err)
	}

	a.Coordinator = ingestion.NewCoordinator(ingestion.CoordinatorConfig{
		LeadTime:  cfg.Ingest.LeadTime,
		Retention: cfg.Ingest.Retention,
	}, db, classifier, trend, a.Alerts, cache, clock, metrics)
	a.Queries = query.NewService(db, classifier, trend, impact, cache, clock, metrics,
		query.WithOnlineWindow(cfg.Alerting.SilenceGap))
	return a, nil
}

// seriesCache prefers Redis when configured and falls back to the in-process
// LRU when Redis is unreachable.
func (a *App) seriesCache(ctx context.Context, cfg config.CacheConfig) (aggregate.Cache, error) {
	if cfg.RedisAddr == "" {
		return aggregate.NewLRUCache(cfg.Size), nil
	}
	rc, err := aggregate.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TTL)
	if err != nil {
		slog.Warn("redis unavailable, using in-process series cache", "addr", cfg.RedisAddr, "error", err)
		return aggregate.NewLRUCache(cfg.Size), nil
	}
	a.closers = append(a.closers, rc.Close)
	slog.Info("series cache backed by redis", "addr", cfg.RedisAddr)
	return rc, nil
}

func (a *App) notificationSinks(d *notify.Dispatcher, cfg config.NotifyConfig) error {
	if cfg.NATSURL != "" {
		sink, err := notify.NewNATSSink(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { sink.Close(); return nil })
		d.AddSink(sink)
	}
	if len(cfg.KafkaBrokers) > 0 {
		sink := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.closers = append(a.closers, sink.Close)
		d.AddSink(sink)
		slog.Info("kafka notification sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	return nil
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
