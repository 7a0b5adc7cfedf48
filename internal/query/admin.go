package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

func (s *Service) ListStations(ctx context.Context) ([]models.Station, error) {
	return s.store.ListStations(ctx)
}

func (s *Service) GetStation(ctx context.Context, code string) (*models.Station, error) {
	return s.store.GetStation(ctx, models.NormalizeStationCode(code))
}

// UpsertStation creates or replaces a station. Threshold changes apply to
// readings evaluated afterwards; stored alerts keep their tiers.
func (s *Service) UpsertStation(ctx context.Context, st *models.Station) (*models.Station, error) {
	st.Code = models.NormalizeStationCode(st.Code)
	if st.Status == "" {
		st.Status = models.StationActive
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	existing, err := s.store.GetStation(ctx, st.Code)
	switch {
	case err == nil:
		st.CreatedAt = existing.CreatedAt
	case errors.Is(err, models.ErrNotFound):
		st.CreatedAt = now
	default:
		return nil, err
	}
	st.UpdatedAt = now

	if err := s.store.UpsertStation(ctx, st); err != nil {
		return nil, err
	}
	// a threshold change reclassifies every cached bucket
	if err := s.cache.Invalidate(ctx, st.Code); err != nil {
		slog.Warn("failed to invalidate series cache", "station", st.Code, "error", err)
	}
	slog.Info("station saved", "station", st.Code, "status", st.Status)
	return st, nil
}

// CreateRule stores a notification rule. Unset minimum severity means warning.
func (s *Service) CreateRule(ctx context.Context, r *models.NotificationRule, severitySet bool) (*models.NotificationRule, error) {
	if !severitySet {
		r.MinSeverity = models.SeverityWarning
	}
	for i, code := range r.StationCodes {
		r.StationCodes[i] = models.NormalizeStationCode(code)
		if _, err := s.store.GetStation(ctx, r.StationCodes[i]); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, &models.ValidationError{Field: "station_ids", Reason: fmt.Sprintf("unknown station %s", r.StationCodes[i])}
			}
			return nil, err
		}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.CreatedAt = s.clock.Now().UTC()
	if err := s.store.CreateRule(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) ListRules(ctx context.Context, activeOnly bool) ([]models.NotificationRule, error) {
	return s.store.ListRules(ctx, activeOnly)
}
