package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-flood-alerts/internal/config"
	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
	"github.com/mr1hm/go-flood-alerts/internal/query"
)

var now = time.Date(2025, 10, 3, 12, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("DB_PATH", ":memory:")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestNew_WiresEngine(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, observability.NewMetricsForTesting(), clockwork.NewFakeClockAt(now))
	require.NoError(t, err)
	defer a.Close()

	stations, err := a.Queries.ListStations(context.Background())
	require.NoError(t, err)
	assert.Len(t, stations, 3)

	results := a.Coordinator.Ingest(context.Background(), []models.RawReading{
		{StationCode: "CHIH3", Timestamp: now.Add(-time.Hour), WaterLevelM: 5},
	})
	require.Len(t, results, 1)
	assert.Equal(t, models.OutcomeAccepted, results[0].Outcome)

	alerts, err := a.Queries.ListAlerts(context.Background(), query.AlertsQuery{Statuses: []models.AlertStatus{models.StatusActive}})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestNew_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Cache.RedisAddr = mr.Addr()

	a, err := New(context.Background(), cfg, observability.NewMetricsForTesting(), clockwork.NewFakeClockAt(now))
	require.NoError(t, err)
	defer a.Close()

	a.Coordinator.Ingest(context.Background(), []models.RawReading{
		{StationCode: "CHIH3", Timestamp: now.Add(-time.Hour), WaterLevelM: 1},
	})
	// ingestion bumped the station's generation in redis
	gen, err := mr.Get("flood:series:gen:CHIH3")
	require.NoError(t, err)
	assert.Equal(t, "1", gen)
}

func TestNew_FallsBackWhenRedisDown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.RedisAddr = "127.0.0.1:1"

	a, err := New(context.Background(), cfg, observability.NewMetricsForTesting(), clockwork.NewFakeClockAt(now))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Queries.Series(context.Background(), "CHIH3", now.Add(-time.Hour), now, "1h")
	assert.NoError(t, err)
}
