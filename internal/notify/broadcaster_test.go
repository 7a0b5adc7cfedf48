package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

func TestStreamFilter_Allows(t *testing.T) {
	ev := event(1)
	ev.Type = models.NotifyEscalated
	ev.Severity = models.SeverityWarning

	tests := []struct {
		name   string
		filter StreamFilter
		want   bool
	}{
		{"zero filter", StreamFilter{}, true},
		{"matching type", StreamFilter{Types: []models.NotificationType{models.NotifyEscalated}}, true},
		{"other type", StreamFilter{Types: []models.NotificationType{models.NotifyResolved}}, false},
		{"matching kind", StreamFilter{Kinds: []models.AlertKind{models.AlertThresholdCrossing}}, true},
		{"other kind", StreamFilter{Kinds: []models.AlertKind{models.AlertRapidRise}}, false},
		{"station listed", StreamFilter{Stations: []string{"SANH3", "CHIH3"}}, true},
		{"station not listed", StreamFilter{Stations: []string{"SANH3"}}, false},
		{"severity floor met", StreamFilter{MinSeverity: models.SeverityWarning}, true},
		{"severity floor above", StreamFilter{MinSeverity: models.SeverityCritical}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Allows(ev))
		})
	}
}

func TestBroadcaster_RoutesByFilter(t *testing.T) {
	b := NewBroadcaster(8)
	defer b.Close()

	everything, err := b.Subscribe(StreamFilter{})
	require.NoError(t, err)
	resolvedOnly, err := b.Subscribe(StreamFilter{Types: []models.NotificationType{models.NotifyResolved}})
	require.NoError(t, err)
	sanOnly, err := b.Subscribe(StreamFilter{Stations: []string{"SANH3"}})
	require.NoError(t, err)
	assert.Equal(t, 3, b.Len())

	created := event(1)
	resolved := event(2)
	resolved.Type = models.NotifyResolved

	assert.Equal(t, 1, b.Broadcast(created))
	assert.Equal(t, 2, b.Broadcast(resolved))

	assert.Equal(t, []int64{1, 2}, drain(everything))
	assert.Equal(t, []int64{2}, drain(resolvedOnly))
	assert.Empty(t, drain(sanOnly))
}

func TestBroadcaster_LaggingSubscriberCountsDrops(t *testing.T) {
	b := NewBroadcaster(2)
	defer b.Close()

	lagging, err := b.Subscribe(StreamFilter{})
	require.NoError(t, err)

	for i := int64(1); i <= 5; i++ {
		b.Broadcast(event(i))
	}

	assert.Equal(t, uint64(3), lagging.Dropped())
	assert.Equal(t, []int64{1, 2}, drain(lagging), "the oldest events are kept")
}

func TestBroadcaster_UnsubscribeClosesEvents(t *testing.T) {
	b := NewBroadcaster(1)
	sub, err := b.Subscribe(StreamFilter{})
	require.NoError(t, err)

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	_, open := <-sub.Events
	assert.False(t, open)
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Broadcast(event(1)))
}

func TestBroadcaster_CloseEndsStreams(t *testing.T) {
	b := NewBroadcaster(1)
	sub, err := b.Subscribe(StreamFilter{})
	require.NoError(t, err)

	b.Close()
	_, open := <-sub.Events
	assert.False(t, open)

	_, err = b.Subscribe(StreamFilter{})
	assert.ErrorIs(t, err, ErrStreamClosed)
	require.NoError(t, b.Publish(context.Background(), event(1), nil))
	b.Unsubscribe(sub)
}

func TestBroadcaster_ConcurrentChurn(t *testing.T) {
	b := NewBroadcaster(4)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub, err := b.Subscribe(StreamFilter{})
			if err != nil {
				return
			}
			b.Unsubscribe(sub)
		}()
		go func(id int64) {
			defer wg.Done()
			b.Broadcast(event(id))
		}(int64(i))
	}
	wg.Wait()
	assert.Zero(t, b.Len())
}

// drain reads whatever is buffered without blocking.
func drain(sub *Subscription) []int64 {
	var ids []int64
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return ids
			}
			ids = append(ids, ev.AlertID)
		default:
			return ids
		}
	}
}
