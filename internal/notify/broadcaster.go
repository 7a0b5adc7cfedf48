// Package notify turns alert transitions into deliveries: it matches events
// against notification rules and hands them to the configured sinks.
package notify

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

const defaultStreamBuffer = 64

var ErrStreamClosed = errors.New("alert stream closed")

// StreamFilter narrows a live subscription. Zero fields match everything.
type StreamFilter struct {
	Types       []models.NotificationType
	Kinds       []models.AlertKind
	Stations    []string
	MinSeverity models.AlertSeverity
}

func (f StreamFilter) Allows(ev models.NotificationEvent) bool {
	if ev.Severity < f.MinSeverity {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, ev.Type) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, ev.Kind) {
		return false
	}
	return len(f.Stations) == 0 || slices.Contains(f.Stations, ev.StationCode)
}

// Subscription is one live consumer. Events is closed when the
// subscription ends or the broadcaster shuts down.
type Subscription struct {
	ID     uint64
	Filter StreamFilter
	Events <-chan models.NotificationEvent

	ch      chan models.NotificationEvent
	dropped atomic.Uint64
}

// Dropped counts events skipped because the consumer fell behind.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Broadcaster fans alert events out to live dashboard streams. A consumer
// that falls behind loses events rather than slowing the others.
type Broadcaster struct {
	buffer int

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	lastID uint64
	closed bool
}

// NewBroadcaster sizes each subscriber's backlog; buffer < 1 uses the default.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = defaultStreamBuffer
	}
	return &Broadcaster{buffer: buffer, subs: make(map[uint64]*Subscription)}
}

func (b *Broadcaster) Subscribe(f StreamFilter) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrStreamClosed
	}
	b.lastID++
	ch := make(chan models.NotificationEvent, b.buffer)
	sub := &Subscription{ID: b.lastID, Filter: f, Events: ch, ch: ch}
	b.subs[sub.ID] = sub
	return sub, nil
}

// Unsubscribe is safe to call more than once and after Close.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.ID]; ok {
		delete(b.subs, sub.ID)
		close(sub.ch)
	}
}

// Broadcast returns how many subscribers received ev.
func (b *Broadcaster) Broadcast(ev models.NotificationEvent) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sent := 0
	for _, sub := range b.subs {
		if !sub.Filter.Allows(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
			sent++
		default:
			sub.dropped.Add(1)
		}
	}
	return sent
}

func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription and refuses new ones. Later broadcasts are
// no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}

func (b *Broadcaster) Name() string { return "stream" }

// Publish streams every event, matched by a rule or not; dashboards see all
// transitions their filter allows.
func (b *Broadcaster) Publish(_ context.Context, ev models.NotificationEvent, _ []models.Delivery) error {
	b.Broadcast(ev)
	return nil
}
