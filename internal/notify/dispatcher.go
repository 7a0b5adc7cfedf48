package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
)

// Sink carries an event and its matched deliveries to a transport.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev models.NotificationEvent, deliveries []models.Delivery) error
}

type RuleSource interface {
	ListRules(ctx context.Context, activeOnly bool) ([]models.NotificationRule, error)
}

// Dispatcher matches events against the active rules and publishes the
// result to every sink. One sink failing does not stop the others.
type Dispatcher struct {
	rules   RuleSource
	sinks   []Sink
	metrics *observability.Metrics
}

func NewDispatcher(rules RuleSource, metrics *observability.Metrics, sinks ...Sink) *Dispatcher {
	return &Dispatcher{rules: rules, sinks: sinks, metrics: metrics}
}

func (d *Dispatcher) AddSink(s Sink) {
	d.sinks = append(d.sinks, s)
}

func (d *Dispatcher) Dispatch(ctx context.Context, ev models.NotificationEvent) error {
	rules, err := d.rules.ListRules(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to load notification rules: %w", err)
	}
	deliveries := Match(rules, ev)

	var errs []error
	for _, s := range d.sinks {
		if err := s.Publish(ctx, ev, deliveries); err != nil {
			d.metrics.NotificationsDispatched.WithLabelValues(s.Name(), "error").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		d.metrics.NotificationsDispatched.WithLabelValues(s.Name(), "success").Inc()
	}

	slog.Debug("notification dispatched",
		"event", ev.Type,
		"alert_id", ev.AlertID,
		"station", ev.StationCode,
		"deliveries", len(deliveries),
	)
	return errors.Join(errs...)
}

// Match expands every rule that wants ev into one delivery per channel.
func Match(rules []models.NotificationRule, ev models.NotificationEvent) []models.Delivery {
	var out []models.Delivery
	for i := range rules {
		r := &rules[i]
		if !r.Matches(ev) {
			continue
		}
		for _, ch := range r.Channels {
			out = append(out, models.Delivery{
				Event:      ev,
				RuleID:     r.ID,
				Subscriber: r.Subscriber,
				Channel:    ch,
			})
		}
	}
	return out
}
