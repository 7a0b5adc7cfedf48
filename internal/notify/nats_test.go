package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
)

func TestNATSSink_RoundTrip(t *testing.T) {
	srv := natstest.RunRandClientPortServer()
	defer func() {
		srv.Shutdown()
		srv.WaitForShutdown()
	}()

	listener, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer listener.Close()
	inbox, err := listener.SubscribeSync("flood.alerts.>")
	require.NoError(t, err)
	require.NoError(t, listener.Flush())

	sink, err := NewNATSSink(srv.ClientURL(), "flood.alerts")
	require.NoError(t, err)
	defer sink.Close()
	assert.True(t, sink.IsConnected())

	ev := event(42)
	ev.StationCode = "SANH3"
	ev.Timestamp = time.Date(2025, 10, 3, 12, 0, 0, 0, time.UTC)
	deliveries := []models.Delivery{
		{Event: ev, RuleID: 7, Subscriber: "mayor", Channel: models.ChannelSMS},
	}
	require.NoError(t, sink.Publish(context.Background(), ev, deliveries))

	msg, err := inbox.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "flood.alerts.critical.sanh3", msg.Subject)

	var got envelope
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, int64(42), got.Event.AlertID)
	assert.Equal(t, models.NotifyCreated, got.Event.Type)
	assert.True(t, ev.Timestamp.Equal(got.Event.Timestamp))
	require.Len(t, got.Deliveries, 1)
	assert.Equal(t, "mayor", got.Deliveries[0].Subscriber)
	assert.Equal(t, models.ChannelSMS, got.Deliveries[0].Channel)
}

func TestNATSSink_ThroughQueue(t *testing.T) {
	srv := natstest.RunRandClientPortServer()
	defer func() {
		srv.Shutdown()
		srv.WaitForShutdown()
	}()

	listener, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer listener.Close()
	inbox, err := listener.SubscribeSync("flood.alerts.critical.chih3")
	require.NoError(t, err)
	require.NoError(t, listener.Flush())

	sink, err := NewNATSSink(srv.ClientURL(), "flood.alerts")
	require.NoError(t, err)
	defer sink.Close()

	metrics := observability.NewMetricsForTesting()
	q := NewQueue(NewDispatcher(staticRules{}, metrics, sink), 2, 8, metrics)
	q.Start(context.Background())
	for id := int64(1); id <= 3; id++ {
		require.NoError(t, q.Dispatch(context.Background(), event(id)))
	}
	q.Stop()

	for want := int64(1); want <= 3; want++ {
		msg, err := inbox.NextMsg(2 * time.Second)
		require.NoError(t, err)
		var got envelope
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, want, got.Event.AlertID)
	}
}
