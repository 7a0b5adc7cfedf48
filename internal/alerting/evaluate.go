package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

// Evaluate runs every alert rule against one reading and advances st. The
// caller must hold the station lock and persist st afterwards. Readings are
// expected in strictly increasing time order per station.
func (m *Manager) Evaluate(ctx context.Context, st *models.StationState, obs Observation) error {
	r := obs.Reading

	if r.Quality != models.QualityGood {
		st.Healthy = 0
		return m.raiseDataQuality(ctx, obs.Station, &r, models.SeverityWarning,
			fmt.Sprintf("reading flagged %s", r.Quality), r.Timestamp)
	}

	var errs []error
	if obs.UsingDefault {
		st.Healthy = 0
		errs = append(errs, m.raiseDataQuality(ctx, obs.Station, &r, models.SeverityInfo,
			"no threshold set configured, classified with deployment defaults", r.Timestamp))
	} else {
		st.Healthy++
		if st.Healthy >= m.cfg.ResolveDebounceReadings {
			errs = append(errs, m.resolveOpen(ctx, obs.Station.Code, models.AlertDataQuality, r.Timestamp,
				"readings healthy again"))
		}
	}

	errs = append(errs,
		m.evaluateThreshold(ctx, st, obs),
		m.evaluateRapidRise(ctx, st, obs),
		m.evaluateSustainedHigh(ctx, st, obs),
	)
	return errors.Join(errs...)
}

func (m *Manager) evaluateThreshold(ctx context.Context, st *models.StationState, obs Observation) error {
	code := obs.Station.Code
	r := obs.Reading
	open, err := m.store.OpenAlert(ctx, code, models.AlertThresholdCrossing)
	if err != nil {
		return err
	}

	if obs.Tier < m.cfg.NotableTier {
		if st.BelowFloor == 0 {
			at := r.Timestamp
			st.BelowFloorSince = &at
		}
		st.BelowFloor++
		if open == nil || !m.debounced(st.BelowFloor, *st.BelowFloorSince, r.Timestamp) {
			return nil
		}
		notes := fmt.Sprintf("level below %s for %d consecutive readings", m.cfg.NotableTier, st.BelowFloor)
		return m.transition(ctx, open, models.StatusResolved, engineActor, notes, r.Timestamp)
	}

	st.BelowFloor = 0
	st.BelowFloorSince = nil

	sev, ok := models.SeverityForTier(obs.Tier)
	if !ok {
		return nil
	}
	title := fmt.Sprintf("%s flood risk at %s", tierTitle(obs.Tier), obs.Station.Name)
	message := fmt.Sprintf("Water level %.2f m reached the %s tier.", r.WaterLevelM, obs.Tier)
	extra := m.levelContext(obs)

	if open != nil {
		return m.escalate(ctx, open, sev, obs.Tier, r.Timestamp, title, message, extra)
	}
	return m.open(ctx, &models.Alert{
		StationCode:        code,
		Kind:               models.AlertThresholdCrossing,
		Severity:           sev,
		RiskTier:           obs.Tier,
		TriggeredByReading: readingID(r),
		Title:              title,
		Message:            message,
		Context:            extra,
		CreatedAt:          r.Timestamp,
	})
}

func (m *Manager) evaluateRapidRise(ctx context.Context, st *models.StationState, obs Observation) error {
	code := obs.Station.Code
	r := obs.Reading
	open, err := m.store.OpenAlert(ctx, code, models.AlertRapidRise)
	if err != nil {
		return err
	}

	rate := obs.Trend.RateMH
	steep := obs.Trend.Trend == models.TrendRising && rate != nil && *rate > m.cfg.RapidRiseRate
	if !steep {
		st.Calm++
		if open == nil || st.Calm < m.cfg.ResolveDebounceReadings {
			return nil
		}
		notes := fmt.Sprintf("rise rate back under %.2f m/h for %d readings", m.cfg.RapidRiseRate, st.Calm)
		return m.transition(ctx, open, models.StatusResolved, engineActor, notes, r.Timestamp)
	}
	st.Calm = 0

	sev := models.SeverityWarning
	if obs.Tier >= models.RiskHigh {
		sev = models.SeverityCritical
	}
	title := fmt.Sprintf("Rapid rise at %s", obs.Station.Name)
	message := fmt.Sprintf("Water level rising %.2f m/h, now %.2f m (%s).", *rate, r.WaterLevelM, obs.Tier)
	extra := m.levelContext(obs)
	extra["change_rate"] = *rate

	if open != nil {
		return m.escalate(ctx, open, sev, obs.Tier, r.Timestamp, title, message, extra)
	}
	return m.open(ctx, &models.Alert{
		StationCode:        code,
		Kind:               models.AlertRapidRise,
		Severity:           sev,
		RiskTier:           obs.Tier,
		TriggeredByReading: readingID(r),
		Title:              title,
		Message:            message,
		Context:            extra,
		CreatedAt:          r.Timestamp,
	})
}

func (m *Manager) evaluateSustainedHigh(ctx context.Context, st *models.StationState, obs Observation) error {
	code := obs.Station.Code
	r := obs.Reading

	if obs.Tier < models.RiskHigh {
		st.HighSince = nil
		st.BelowHigh++
		if st.BelowHigh < m.cfg.ResolveDebounceReadings {
			return nil
		}
		open, err := m.store.OpenAlert(ctx, code, models.AlertSustainedHigh)
		if err != nil || open == nil {
			return err
		}
		notes := fmt.Sprintf("level below high for %d readings", st.BelowHigh)
		return m.transition(ctx, open, models.StatusResolved, engineActor, notes, r.Timestamp)
	}

	st.BelowHigh = 0
	if st.HighSince == nil {
		at := r.Timestamp
		st.HighSince = &at
	}
	held := r.Timestamp.Sub(*st.HighSince)
	if held <= m.cfg.SustainedHighDuration {
		return nil
	}

	open, err := m.store.OpenAlert(ctx, code, models.AlertSustainedHigh)
	if err != nil {
		return err
	}
	sev, _ := models.SeverityForTier(obs.Tier)
	title := fmt.Sprintf("Sustained high water at %s", obs.Station.Name)
	message := fmt.Sprintf("Level has stayed at or above high for %s, now %.2f m (%s).",
		held.Round(time.Minute), r.WaterLevelM, obs.Tier)
	extra := m.levelContext(obs)
	extra["high_since"] = st.HighSince.Format(time.RFC3339)
	extra["duration_hours"] = held.Hours()

	if open != nil {
		return m.escalate(ctx, open, sev, obs.Tier, r.Timestamp, title, message, extra)
	}
	return m.open(ctx, &models.Alert{
		StationCode:        code,
		Kind:               models.AlertSustainedHigh,
		Severity:           sev,
		RiskTier:           obs.Tier,
		TriggeredByReading: readingID(r),
		Title:              title,
		Message:            message,
		Context:            extra,
		CreatedAt:          r.Timestamp,
	})
}

// raiseDataQuality opens or escalates the station's data-quality alert. It
// does not look at the water level.
func (m *Manager) raiseDataQuality(ctx context.Context, station *models.Station, r *models.Reading,
	sev models.AlertSeverity, reason string, at time.Time) error {
	open, err := m.store.OpenAlert(ctx, station.Code, models.AlertDataQuality)
	if err != nil {
		return err
	}

	title := fmt.Sprintf("Data quality issue at %s", station.Name)
	extra := map[string]any{"reason": reason}
	var trigger *int64
	if r != nil {
		trigger = readingID(*r)
		extra["quality_flag"] = string(r.Quality)
	}

	if open != nil {
		return m.escalate(ctx, open, sev, open.RiskTier, at, title, reason, extra)
	}
	return m.open(ctx, &models.Alert{
		StationCode:        station.Code,
		Kind:               models.AlertDataQuality,
		Severity:           sev,
		RiskTier:           models.RiskNormal,
		TriggeredByReading: trigger,
		Title:              title,
		Message:            reason,
		Context:            extra,
		CreatedAt:          at,
	})
}

func (m *Manager) resolveOpen(ctx context.Context, station string, kind models.AlertKind, at time.Time, notes string) error {
	open, err := m.store.OpenAlert(ctx, station, kind)
	if err != nil || open == nil {
		return err
	}
	return m.transition(ctx, open, models.StatusResolved, engineActor, notes, at)
}

// debounced reports whether a calm run of n readings starting at since and
// ending at now is long enough to resolve.
func (m *Manager) debounced(n int, since, now time.Time) bool {
	if n < m.cfg.ResolveDebounceReadings {
		return false
	}
	return m.cfg.ResolveDebounceDuration <= 0 || now.Sub(since) >= m.cfg.ResolveDebounceDuration
}

func (m *Manager) levelContext(obs Observation) map[string]any {
	ctx := map[string]any{
		"water_level":        obs.Reading.WaterLevelM,
		"current_risk_level": obs.Tier.String(),
		"trend":              obs.Trend.Trend.String(),
	}
	if obs.UsingDefault {
		ctx["using_default_thresholds"] = true
	}
	if m.impact != nil {
		ctx["population_at_risk"] = m.impact.Estimate(obs.Station.BasePopulation, obs.Tier)
	}
	return ctx
}

func readingID(r models.Reading) *int64 {
	if r.ID == 0 {
		return nil
	}
	id := r.ID
	return &id
}

func tierTitle(t models.RiskTier) string {
	switch t {
	case models.RiskNormal:
		return "Normal"
	case models.RiskLow:
		return "Low"
	case models.RiskModerate:
		return "Moderate"
	case models.RiskHigh:
		return "High"
	case models.RiskVeryHigh:
		return "Very high"
	case models.RiskCritical:
		return "Critical"
	default:
		return t.String()
	}
}
