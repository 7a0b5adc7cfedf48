package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flood_alert"

// Metrics holds the Prometheus collectors for ingestion, alerting and delivery.
type Metrics struct {
	ReadingsIngested    *prometheus.CounterVec // labels: outcome={accepted,duplicate,rejected}
	IngestBatchDuration prometheus.Histogram
	IngestBatchSize     prometheus.Histogram

	AlertTransitions *prometheus.CounterVec // labels: kind, transition={opened,escalated,acknowledged,resolved,cancelled}
	OpenAlerts       *prometheus.GaugeVec   // labels: kind

	SeriesCache *prometheus.CounterVec // labels: result={hit,miss}

	NotificationsDispatched *prometheus.CounterVec // labels: sink, outcome={success,error,dropped}
	FeedPolls               *prometheus.CounterVec // labels: outcome={success,error}
	SilenceSweeps           prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_ingested_total",
			Help:      "Readings received at the ingestion boundary by outcome.",
		}, []string{"outcome"}),
		IngestBatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_batch_duration_seconds",
			Help:      "Time to validate, store and evaluate one ingestion batch.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}),
		IngestBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_batch_size",
			Help:      "Number of readings per ingestion batch.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		AlertTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_transitions_total",
			Help:      "Alert lifecycle transitions by kind.",
		}, []string{"kind", "transition"}),
		OpenAlerts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_alerts",
			Help:      "Alerts currently active or acknowledged, by kind.",
		}, []string{"kind"}),
		SeriesCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_cache_total",
			Help:      "Aggregated series cache lookups by result.",
		}, []string{"result"}),
		NotificationsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dispatched_total",
			Help:      "Notification events handed to each sink by outcome.",
		}, []string{"sink", "outcome"}),
		FeedPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_polls_total",
			Help:      "Upstream feed fetches by outcome.",
		}, []string{"outcome"}),
		SilenceSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "silence_sweeps_total",
			Help:      "Completed silent-station sweeps.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ReadingsIngested,
		m.IngestBatchDuration,
		m.IngestBatchSize,
		m.AlertTransitions,
		m.OpenAlerts,
		m.SeriesCache,
		m.NotificationsDispatched,
		m.FeedPolls,
		m.SilenceSweeps,
	}
}
