package ingestion

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-flood-alerts/internal/aggregate"
	"github.com/mr1hm/go-flood-alerts/internal/alerting"
	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
	"github.com/mr1hm/go-flood-alerts/internal/repository"
	"github.com/mr1hm/go-flood-alerts/internal/risk"
	"github.com/mr1hm/go-flood-alerts/internal/worker"
)

var now = time.Date(2025, 10, 3, 12, 0, 0, 0, time.UTC)

type countingDispatcher struct {
	mu     sync.Mutex
	events []models.NotificationEvent
}

func (d *countingDispatcher) Dispatch(_ context.Context, ev models.NotificationEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return nil
}

func (d *countingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

type fixture struct {
	coord *Coordinator
	db    *repository.SQLiteDB
	cache *aggregate.LRUCache
	disp  *countingDispatcher
}

func newFixture(t *testing.T, debounce int) *fixture {
	t.Helper()
	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Seed(context.Background(), now))

	defaults := models.ThresholdSet{Low: 2, Moderate: 4, High: 6, VeryHigh: 8, Critical: 12}
	classifier, err := risk.NewClassifier(defaults)
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(now)
	metrics := observability.NewMetricsForTesting()
	disp := &countingDispatcher{}
	alerts := alerting.NewManager(alerting.Config{
		NotableTier:             models.RiskModerate,
		ResolveDebounceReadings: debounce,
		RapidRiseRate:           0.5,
		SustainedHighDuration:   6 * time.Hour,
		SilenceGap:              time.Hour,
	}, db, disp, risk.NewImpactEstimator(nil), worker.NewKeyedMutex(), clock, metrics)

	cache := aggregate.NewLRUCache(10)
	coord := NewCoordinator(CoordinatorConfig{LeadTime: time.Hour, Retention: 720 * time.Hour},
		db, classifier, risk.NewTrendAnalyzer(risk.TrendConfig{WindowSize: 6, Window: 3 * time.Hour, Hysteresis: 0.05}),
		alerts, cache, clock, metrics)

	return &fixture{coord: coord, db: db, cache: cache, disp: disp}
}

func raw(station string, at time.Time, level float64) models.RawReading {
	return models.RawReading{StationCode: station, Timestamp: at, WaterLevelM: level}
}

func (f *fixture) openAlerts(t *testing.T, kind models.AlertKind) []models.Alert {
	t.Helper()
	alerts, err := f.db.ListAlerts(context.Background(), models.AlertFilter{
		Kinds:    []models.AlertKind{kind},
		Statuses: []models.AlertStatus{models.StatusActive, models.StatusAcknowledged},
	})
	require.NoError(t, err)
	return alerts
}

func TestCoordinator_ValidationRejectsIndividually(t *testing.T) {
	f := newFixture(t, 2)
	neg := -1.0

	batch := []models.RawReading{
		raw("CHIH3", now.Add(-time.Hour), 3.0),
		raw("CHIH3", now.Add(-50*time.Minute), -0.1),
		raw("CHIH3", now.Add(2*time.Hour), 3.0),
		raw("CHIH3", now.Add(-800*time.Hour), 3.0),
		{StationCode: "CHIH3", Timestamp: now.Add(-40 * time.Minute), WaterLevelM: 3, FlowRateCMS: &neg},
		{StationCode: "CHIH3", Timestamp: now.Add(-30 * time.Minute), WaterLevelM: 3, QualityFlag: "dubious"},
		raw("CHIH3", now.Add(-20*time.Minute), math.NaN()),
		raw("", now, 3.0),
		raw("chih3", now.Add(-10*time.Minute), 3.1),
	}
	results := f.coord.Ingest(context.Background(), batch)
	require.Len(t, results, len(batch))

	want := []models.IngestOutcome{
		models.OutcomeAccepted,
		models.OutcomeRejected,
		models.OutcomeRejected,
		models.OutcomeRejected,
		models.OutcomeRejected,
		models.OutcomeRejected,
		models.OutcomeRejected,
		models.OutcomeRejected,
		models.OutcomeAccepted,
	}
	for i, w := range want {
		assert.Equal(t, w, results[i].Outcome, "entry %d: %s", i, results[i].Reason)
		assert.Equal(t, i, results[i].Index)
	}
	assert.Contains(t, results[1].Reason, "water_level_m")
	assert.Contains(t, results[2].Reason, "future")

	stored, err := f.db.ListReadings(context.Background(), repository.ReadingFilter{StationCodes: []string{"CHIH3"}})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, models.DefaultSource, stored[0].Source)
	assert.Equal(t, models.QualityGood, stored[0].Quality)
}

func TestCoordinator_UnknownStation(t *testing.T) {
	f := newFixture(t, 2)
	results := f.coord.Ingest(context.Background(), []models.RawReading{raw("ZZZZ9", now, 3)})
	require.Len(t, results, 1)
	assert.Equal(t, models.OutcomeRejected, results[0].Outcome)
	assert.Equal(t, "unknown station", results[0].Reason)
}

func TestCoordinator_ScenarioOpensAndEscalates(t *testing.T) {
	f := newFixture(t, 1)
	t0 := now.Add(-4 * time.Hour)

	results := f.coord.Ingest(context.Background(), []models.RawReading{
		raw("CHIH3", t0, 3.0),
		raw("CHIH3", t0.Add(time.Hour), 5.0),
		raw("CHIH3", t0.Add(2*time.Hour), 7.0),
		raw("CHIH3", t0.Add(3*time.Hour), 5.5),
	})
	for _, r := range results {
		require.Equal(t, models.OutcomeAccepted, r.Outcome, r.Reason)
	}

	open := f.openAlerts(t, models.AlertThresholdCrossing)
	require.Len(t, open, 1)
	assert.Equal(t, models.SeverityCritical, open[0].Severity)
	assert.Equal(t, t0.Add(time.Hour), open[0].CreatedAt)
}

func TestCoordinator_OrdersWithinBatch(t *testing.T) {
	f := newFixture(t, 2)
	t0 := now.Add(-4 * time.Hour)

	// delivered newest first; processed oldest first
	results := f.coord.Ingest(context.Background(), []models.RawReading{
		raw("CHIH3", t0.Add(2*time.Hour), 3.0),
		raw("CHIH3", t0.Add(time.Hour), 3.0),
		raw("CHIH3", t0, 5.0),
	})
	for _, r := range results {
		assert.Equal(t, models.OutcomeAccepted, r.Outcome)
		assert.Empty(t, r.Reason)
	}
	assert.Empty(t, f.openAlerts(t, models.AlertThresholdCrossing), "opened at t0 then resolved by two calm readings")
}

func TestCoordinator_DuplicateDeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t, 2)
	t0 := now.Add(-4 * time.Hour)
	ctx := context.Background()

	batch := []models.RawReading{
		raw("CHIH3", t0, 5.0),
		raw("CHIH3", t0.Add(time.Hour), 3.0),
		raw("CHIH3", t0.Add(2*time.Hour), 3.0),
	}
	f.coord.Ingest(ctx, batch)
	require.Empty(t, f.openAlerts(t, models.AlertThresholdCrossing))
	events := f.disp.count()

	// redelivering the whole batch must not reopen the resolved alert
	results := f.coord.Ingest(ctx, batch)
	for _, r := range results {
		assert.Equal(t, models.OutcomeDuplicate, r.Outcome)
		assert.NotZero(t, r.ReadingID)
	}
	assert.Empty(t, f.openAlerts(t, models.AlertThresholdCrossing))
	assert.Equal(t, events, f.disp.count())

	all, err := f.db.ListAlerts(ctx, models.AlertFilter{Kinds: []models.AlertKind{models.AlertThresholdCrossing}})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCoordinator_OutOfOrderStoredButNotEvaluated(t *testing.T) {
	f := newFixture(t, 2)
	t0 := now.Add(-4 * time.Hour)
	ctx := context.Background()

	f.coord.Ingest(ctx, []models.RawReading{raw("CHIH3", t0.Add(time.Hour), 1.0)})

	results := f.coord.Ingest(ctx, []models.RawReading{raw("CHIH3", t0, 9.0)})
	require.Len(t, results, 1)
	assert.Equal(t, models.OutcomeAccepted, results[0].Outcome)
	assert.Contains(t, results[0].Reason, "out of order")
	assert.Empty(t, f.openAlerts(t, models.AlertThresholdCrossing))

	stored, err := f.db.ListReadings(ctx, repository.ReadingFilter{StationCodes: []string{"CHIH3"}})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestCoordinator_MaintenanceStationStoresWithoutAlerts(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	st, err := f.db.GetStation(ctx, "RCHH3")
	require.NoError(t, err)
	st.Status = models.StationMaintenance
	require.NoError(t, f.db.UpsertStation(ctx, st))

	results := f.coord.Ingest(ctx, []models.RawReading{raw("RCHH3", now.Add(-time.Hour), 10.0)})
	assert.Equal(t, models.OutcomeAccepted, results[0].Outcome)

	alerts, err := f.db.ListAlerts(ctx, models.AlertFilter{StationCodes: []string{"RCHH3"}})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestCoordinator_UnusableStoredThresholdsUseDefault(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	st, err := f.db.GetStation(ctx, "RCHH3")
	require.NoError(t, err)
	st.Thresholds = &models.ThresholdSet{Low: 5, Moderate: 4, High: 6, VeryHigh: 8, Critical: 12}
	require.NoError(t, f.db.UpsertStation(ctx, st))

	results := f.coord.Ingest(ctx, []models.RawReading{
		raw("RCHH3", now.Add(-time.Hour), 3.0),
		raw("CHIH3", now.Add(-time.Hour), 3.0),
	})
	for _, r := range results {
		require.Equal(t, models.OutcomeAccepted, r.Outcome, r.Reason)
	}

	dq := f.openAlerts(t, models.AlertDataQuality)
	require.Len(t, dq, 1, "only the station with unusable thresholds is flagged")
	assert.Equal(t, "RCHH3", dq[0].StationCode)
	assert.Equal(t, models.SeverityInfo, dq[0].Severity)
}

func TestCoordinator_InvalidatesSeriesCache(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	before, _ := f.cache.Generation(ctx, "SANH3")
	f.coord.Ingest(ctx, []models.RawReading{raw("SANH3", now.Add(-time.Hour), 1.0)})
	after, _ := f.cache.Generation(ctx, "SANH3")
	assert.Greater(t, after, before)

	// a pure duplicate stores nothing and leaves the cache alone
	f.coord.Ingest(ctx, []models.RawReading{raw("SANH3", now.Add(-time.Hour), 1.0)})
	again, _ := f.cache.Generation(ctx, "SANH3")
	assert.Equal(t, after, again)
}

func TestCoordinator_ConcurrentBatchesAcrossStations(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	stations := []string{"CHIH3", "SANH3", "RCHH3"}
	t0 := now.Add(-10 * time.Hour)

	var wg sync.WaitGroup
	for g := 0; g < 6; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			var batch []models.RawReading
			for i := 0; i < 20; i++ {
				code := stations[(g+i)%len(stations)]
				batch = append(batch, raw(code, t0.Add(time.Duration(i)*5*time.Minute), 4.5))
			}
			f.coord.Ingest(ctx, batch)
		}(g)
	}
	wg.Wait()

	for _, code := range stations {
		alerts, err := f.db.ListAlerts(ctx, models.AlertFilter{
			StationCodes: []string{code},
			Kinds:        []models.AlertKind{models.AlertThresholdCrossing},
		})
		require.NoError(t, err)
		assert.Len(t, alerts, 1, fmt.Sprintf("station %s", code))
	}
}
