package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

// SweepSilence opens a data-quality alert for every active station whose
// newest processed reading is older than the configured silence gap.
// Stations that have never reported are skipped.
func (m *Manager) SweepSilence(ctx context.Context) error {
	stations, err := m.store.ListStations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stations: %w", err)
	}

	now := m.clock.Now().UTC()
	var errs []error
	for i := range stations {
		st := &stations[i]
		if st.Status != models.StationActive {
			continue
		}
		if err := m.checkSilence(ctx, st, now); err != nil {
			slog.Error("silence check failed", "station", st.Code, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) checkSilence(ctx context.Context, station *models.Station, now time.Time) error {
	unlock := m.locks.Lock(station.Code)
	defer unlock()

	state, err := m.store.GetState(ctx, station.Code)
	if err != nil {
		return err
	}
	if state.LastProcessed == nil {
		return nil
	}
	silent := now.Sub(*state.LastProcessed)
	if silent <= m.cfg.SilenceGap {
		return nil
	}

	reason := fmt.Sprintf("no readings for %s (expected at least every %s)",
		silent.Round(time.Minute), m.cfg.SilenceGap)
	if err := m.raiseDataQuality(ctx, station, nil, models.SeverityWarning, reason, now); err != nil {
		return err
	}
	if state.Healthy == 0 {
		return nil
	}
	state.Healthy = 0
	return m.store.SaveState(ctx, state)
}
