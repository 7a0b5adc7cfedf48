package alerting

import (
	"context"
	"strings"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

func (m *Manager) Acknowledge(ctx context.Context, id int64, actor string) (*models.Alert, error) {
	return m.operate(ctx, id, models.StatusAcknowledged, actor, "")
}

func (m *Manager) Resolve(ctx context.Context, id int64, actor, notes string) (*models.Alert, error) {
	return m.operate(ctx, id, models.StatusResolved, actor, notes)
}

func (m *Manager) Cancel(ctx context.Context, id int64, actor, notes string) (*models.Alert, error) {
	return m.operate(ctx, id, models.StatusCancelled, actor, notes)
}

// operate applies an operator transition under the alert's station lock, so
// it never interleaves with evaluation of that station's readings.
func (m *Manager) operate(ctx context.Context, id int64, next models.AlertStatus, actor, notes string) (*models.Alert, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, &models.ValidationError{Field: "actor", Reason: "actor is required"}
	}

	a, err := m.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(a.StationCode)
	defer unlock()

	// re-read under the lock; the engine may have moved it meanwhile
	a, err = m.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.transition(ctx, a, next, actor, notes, m.clock.Now().UTC()); err != nil {
		return nil, err
	}
	return a, nil
}
