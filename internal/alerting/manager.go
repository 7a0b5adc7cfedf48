// Package alerting owns the alert lifecycle: it opens, escalates and resolves
// alerts from classified readings and applies operator transitions.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
	"github.com/mr1hm/go-flood-alerts/internal/repository"
	"github.com/mr1hm/go-flood-alerts/internal/risk"
	"github.com/mr1hm/go-flood-alerts/internal/worker"
)

const engineActor = "engine"

type Config struct {
	// NotableTier is the floor at which a threshold-crossing alert opens.
	NotableTier models.RiskTier
	// ResolveDebounceReadings consecutive calm readings are needed before
	// the engine resolves an alert.
	ResolveDebounceReadings int
	// ResolveDebounceDuration additionally requires the calm run to span at
	// least this long. Zero disables the check.
	ResolveDebounceDuration time.Duration
	// RapidRiseRate is the rate, in metres per hour, a rising trend must
	// exceed to count as a rapid rise.
	RapidRiseRate         float64
	SustainedHighDuration time.Duration
	SilenceGap            time.Duration
}

// Dispatcher receives notification-worthy transitions. Delivery is its concern.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev models.NotificationEvent) error
}

type Store interface {
	repository.StationRepository
	repository.AlertRepository
	repository.StateRepository
}

// Observation is one classified reading ready for alert evaluation.
type Observation struct {
	Station      *models.Station
	Reading      models.Reading
	Tier         models.RiskTier
	UsingDefault bool
	Trend        risk.TrendResult
}

type Manager struct {
	cfg        Config
	store      Store
	dispatcher Dispatcher
	impact     *risk.ImpactEstimator
	locks      *worker.KeyedMutex
	clock      clockwork.Clock
	metrics    *observability.Metrics
}

func NewManager(cfg Config, store Store, dispatcher Dispatcher, impact *risk.ImpactEstimator,
	locks *worker.KeyedMutex, clock clockwork.Clock, metrics *observability.Metrics) *Manager {
	if cfg.ResolveDebounceReadings < 1 {
		cfg.ResolveDebounceReadings = 1
	}
	return &Manager{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		impact:     impact,
		locks:      locks,
		clock:      clock,
		metrics:    metrics,
	}
}

// Locks exposes the per-station locks so ingestion serializes with operators.
func (m *Manager) Locks() *worker.KeyedMutex {
	return m.locks
}

// SyncOpenGauge seeds the open alert gauge from storage after a restart.
func (m *Manager) SyncOpenGauge(ctx context.Context) error {
	open, err := m.store.ListAlerts(ctx, models.AlertFilter{
		Statuses: []models.AlertStatus{models.StatusActive, models.StatusAcknowledged},
	})
	if err != nil {
		return err
	}
	counts := make(map[models.AlertKind]int)
	for _, a := range open {
		counts[a.Kind]++
	}
	for _, k := range models.AlertKinds {
		m.metrics.OpenAlerts.WithLabelValues(string(k)).Set(float64(counts[k]))
	}
	return nil
}

// open creates a new ACTIVE alert and announces it.
func (m *Manager) open(ctx context.Context, a *models.Alert) error {
	a.Status = models.StatusActive
	a.UpdatedAt = a.CreatedAt
	if err := m.store.CreateAlert(ctx, a); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			slog.Debug("open alert already exists", "station", a.StationCode, "kind", a.Kind)
			return nil
		}
		return fmt.Errorf("failed to open %s alert: %w", a.Kind, err)
	}
	m.metrics.AlertTransitions.WithLabelValues(string(a.Kind), "opened").Inc()
	m.metrics.OpenAlerts.WithLabelValues(string(a.Kind)).Inc()
	slog.Info("alert opened", "alert_id", a.ID, "station", a.StationCode, "kind", a.Kind, "severity", a.Severity)
	m.notify(ctx, models.NotifyCreated, a)
	return nil
}

// escalate raises severity in place. Severity never decreases outside the
// resolve path, so a lower candidate only refreshes the context.
func (m *Manager) escalate(ctx context.Context, a *models.Alert, sev models.AlertSeverity, tier models.RiskTier,
	at time.Time, title, message string, extra map[string]any) error {
	raised := sev > a.Severity
	tierRaised := tier > a.RiskTier
	changed := mergeContext(a, extra)
	if !raised && !tierRaised && !changed {
		return nil
	}

	if raised {
		a.Severity = sev
		a.Title = title
		a.Message = message
	}
	if tierRaised {
		a.RiskTier = tier
	}
	a.UpdatedAt = latest(at, a.UpdatedAt)
	if err := m.store.UpdateAlert(ctx, a); err != nil {
		return fmt.Errorf("failed to escalate alert %d: %w", a.ID, err)
	}
	if !raised {
		return nil
	}

	m.metrics.AlertTransitions.WithLabelValues(string(a.Kind), "escalated").Inc()
	slog.Info("alert escalated", "alert_id", a.ID, "station", a.StationCode, "kind", a.Kind, "severity", a.Severity)
	if a.Status == models.StatusActive {
		m.notify(ctx, models.NotifyEscalated, a)
	}
	return nil
}

// transition applies a lifecycle move and persists it. Callers hold the station lock.
func (m *Manager) transition(ctx context.Context, a *models.Alert, next models.AlertStatus, actor, notes string, at time.Time) error {
	if err := a.Transition(next, actor, notes, latest(at, a.UpdatedAt)); err != nil {
		return err
	}
	if err := m.store.UpdateAlert(ctx, a); err != nil {
		return fmt.Errorf("failed to update alert %d: %w", a.ID, err)
	}

	m.metrics.AlertTransitions.WithLabelValues(string(a.Kind), string(next)).Inc()
	if !next.Open() {
		m.metrics.OpenAlerts.WithLabelValues(string(a.Kind)).Dec()
	}
	slog.Info("alert transitioned", "alert_id", a.ID, "station", a.StationCode, "kind", a.Kind,
		"status", next, "actor", actor)

	if next == models.StatusResolved {
		m.notify(ctx, models.NotifyResolved, a)
	}
	return nil
}

func (m *Manager) notify(ctx context.Context, typ models.NotificationType, a *models.Alert) {
	if m.dispatcher == nil {
		return
	}
	ev := models.NotificationEvent{
		ID:          uuid.NewString(),
		Type:        typ,
		AlertID:     a.ID,
		StationCode: a.StationCode,
		Kind:        a.Kind,
		Severity:    a.Severity,
		Status:      a.Status,
		RiskTier:    a.RiskTier,
		Title:       a.Title,
		Timestamp:   a.UpdatedAt,
	}
	if err := m.dispatcher.Dispatch(ctx, ev); err != nil {
		slog.Error("notification dispatch failed", "alert_id", a.ID, "event", typ, "error", err)
	}
}

func mergeContext(a *models.Alert, extra map[string]any) bool {
	if len(extra) == 0 {
		return false
	}
	if a.Context == nil {
		a.Context = make(map[string]any, len(extra))
	}
	changed := false
	for k, v := range extra {
		if old, ok := a.Context[k]; !ok || fmt.Sprint(old) != fmt.Sprint(v) {
			a.Context[k] = v
			changed = true
		}
	}
	return changed
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
