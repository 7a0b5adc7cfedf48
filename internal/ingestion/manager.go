package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/config"
	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
	"github.com/mr1hm/go-flood-alerts/internal/worker"
)

// Ingester is the batch entry point the poller feeds.
type Ingester interface {
	Ingest(ctx context.Context, batch []models.RawReading) []models.IngestResult
}

// Manager runs the upstream feed poller. Fetched readings are split per
// station and submitted to a station-keyed pool, so one station's batches
// are ingested in the order they were fetched.
type Manager struct {
	cfg      *config.Config
	ingester Ingester
	metrics  *observability.Metrics
	pool     *worker.WorkerPool
	wg       sync.WaitGroup
}

type stationBatch struct {
	station  string
	readings []models.RawReading
}

func NewManager(cfg *config.Config, ingester Ingester, metrics *observability.Metrics) *Manager {
	return &Manager{
		cfg:      cfg,
		ingester: ingester,
		metrics:  metrics,
	}
}

func (m *Manager) Start(ctx context.Context) {
	processor := func(ctx context.Context, job worker.Job) error {
		batch := job.(stationBatch)

		results := m.ingester.Ingest(ctx, batch.readings)
		var accepted, duplicate, rejected int
		for _, r := range results {
			switch r.Outcome {
			case models.OutcomeAccepted:
				accepted++
			case models.OutcomeDuplicate:
				duplicate++
			case models.OutcomeRejected:
				rejected++
			}
		}
		slog.Debug("station batch ingested", "station", batch.station,
			"accepted", accepted, "duplicate", duplicate, "rejected", rejected)
		return nil
	}

	m.pool = worker.NewWorkerPool(m.cfg.Worker.Count, m.cfg.Worker.BufferSize, processor)
	m.pool.Start(ctx)

	if m.cfg.Feed.Enabled {
		m.wg.Add(1)
		go m.runPoller(ctx, m.cfg.Feed.URL, m.cfg.Feed.PollInterval)
	}
}

// Submit queues readings for ingestion, grouped by station.
func (m *Manager) Submit(readings []models.RawReading) {
	var order []string
	byStation := make(map[string][]models.RawReading)
	for _, r := range readings {
		code := models.NormalizeStationCode(r.StationCode)
		if _, ok := byStation[code]; !ok {
			order = append(order, code)
		}
		byStation[code] = append(byStation[code], r)
	}
	for _, code := range order {
		m.pool.Submit(code, stationBatch{station: code, readings: byStation[code]})
	}
}

func (m *Manager) runPoller(ctx context.Context, url string, interval time.Duration) {
	defer m.wg.Done()
	slog.Info("starting poller", "url", url, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial poll
	m.poll(ctx, url)

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller shutting down")
			return
		case <-ticker.C:
			m.poll(ctx, url)
		}
	}
}

func (m *Manager) poll(ctx context.Context, url string) {
	slog.Debug("polling feed", "url", url)

	readings, err := fetchFeed(ctx, url)
	if err != nil {
		m.metrics.FeedPolls.WithLabelValues("error").Inc()
		slog.Error("poll failed", "url", url, "error", err)
		return
	}
	m.metrics.FeedPolls.WithLabelValues("success").Inc()

	m.Submit(readings)
	slog.Debug("poll complete", "count", len(readings))
}

func (m *Manager) Stop() {
	m.wg.Wait()
	m.pool.Stop()
	slog.Info("ingestion manager stopped")
}
