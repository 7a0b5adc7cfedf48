package query

import (
	"context"
	"fmt"
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

// AlertsQuery filters the alert listing. Zero Limit means DefaultLimit.
type AlertsQuery struct {
	StationCodes []string
	Kinds        []models.AlertKind
	Severities   []models.AlertSeverity
	Statuses     []models.AlertStatus
	Since        *time.Time
	Limit        int
	Offset       int
}

func (s *Service) ListAlerts(ctx context.Context, q AlertsQuery) ([]models.Alert, error) {
	switch {
	case q.Limit == 0:
		q.Limit = DefaultLimit
	case q.Limit < 0 || q.Limit > MaxLimit:
		return nil, &models.ValidationError{Field: "limit", Reason: fmt.Sprintf("must be between 1 and %d", MaxLimit)}
	}
	if q.Offset < 0 {
		return nil, &models.ValidationError{Field: "offset", Reason: "must not be negative"}
	}
	codes := make([]string, len(q.StationCodes))
	for i, c := range q.StationCodes {
		codes[i] = models.NormalizeStationCode(c)
	}
	return s.store.ListAlerts(ctx, models.AlertFilter{
		StationCodes: codes,
		Kinds:        q.Kinds,
		Severities:   q.Severities,
		Statuses:     q.Statuses,
		Since:        q.Since,
		Limit:        q.Limit,
		Offset:       q.Offset,
	})
}

func (s *Service) GetAlert(ctx context.Context, id int64) (*models.Alert, error) {
	return s.store.GetAlert(ctx, id)
}

// StationSummary is one dashboard row. Stations without readings report
// normal with no level.
type StationSummary struct {
	StationCode      string               `json:"station_id"`
	Name             string               `json:"name"`
	RiverName        string               `json:"river_name"`
	Status           models.StationStatus `json:"status"`
	Coordinates      models.Coordinates   `json:"coordinates"`
	WaterLevelM      *float64             `json:"current_level"`
	LastReadingAt    *time.Time           `json:"last_reading_at,omitempty"`
	RiskTier         models.RiskTier      `json:"risk_level"`
	RiskColor        string               `json:"risk_color"`
	Trend            models.Trend         `json:"trend"`
	ChangeRateMH     *float64             `json:"change_rate,omitempty"`
	BasePopulation   int                  `json:"base_population"`
	PopulationAtRisk int                  `json:"population_at_risk"`
	OpenAlerts       int                  `json:"open_alerts"`
}

type Dashboard struct {
	GeneratedAt         time.Time        `json:"generated_at"`
	TotalStations       int              `json:"total_stations"`
	ActiveAlerts        int              `json:"active_alerts"`
	CriticalAlerts      int              `json:"critical_alerts"`
	AlertsByStatus      map[string]int   `json:"alerts_by_status"`
	AlertsBySeverity    map[string]int   `json:"alerts_by_severity"`
	AlertsByKind        map[string]int   `json:"alerts_by_type"`
	PopulationProtected int              `json:"total_population_protected"`
	PopulationAtRisk    int              `json:"total_population_at_risk"`
	Stations            []StationSummary `json:"stations"`
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	stations, err := s.store.ListStations(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]*models.Station, len(stations))
	for i := range stations {
		index[stations[i].Code] = &stations[i]
	}

	latest, err := s.store.LatestReadings(ctx)
	if err != nil {
		return nil, err
	}
	classified, err := s.classify(ctx, index, latest)
	if err != nil {
		return nil, err
	}
	current := make(map[string]models.ClassifiedReading, len(classified))
	for _, c := range classified {
		current[c.StationCode] = c
	}

	counts, err := s.store.CountAlerts(ctx)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		GeneratedAt:      s.clock.Now().UTC(),
		TotalStations:    len(stations),
		AlertsByStatus:   make(map[string]int),
		AlertsBySeverity: make(map[string]int),
		AlertsByKind:     make(map[string]int),
		Stations:         make([]StationSummary, 0, len(stations)),
	}
	openByStation, err := s.openAlertsByStation(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range counts {
		d.AlertsByStatus[string(c.Status)] += c.Count
		d.AlertsBySeverity[c.Severity.String()] += c.Count
		d.AlertsByKind[string(c.Kind)] += c.Count
		if c.Status == models.StatusActive {
			d.ActiveAlerts += c.Count
			if c.Severity >= models.SeverityCritical {
				d.CriticalAlerts += c.Count
			}
		}
	}

	for _, st := range stations {
		row := StationSummary{
			StationCode:    st.Code,
			Name:           st.Name,
			RiverName:      st.RiverName,
			Status:         st.Status,
			Coordinates:    st.Coordinates,
			RiskTier:       models.RiskNormal,
			RiskColor:      models.RiskNormal.Color(),
			Trend:          models.TrendStable,
			BasePopulation: st.BasePopulation,
			OpenAlerts:     openByStation[st.Code],
		}
		if c, ok := current[st.Code]; ok {
			level, at := c.WaterLevelM, c.Timestamp
			row.WaterLevelM = &level
			row.LastReadingAt = &at
			row.RiskTier = c.RiskTier
			row.RiskColor = c.RiskColor
			row.Trend = c.Trend
			row.ChangeRateMH = c.ChangeRateMH
		}
		row.PopulationAtRisk = s.impact.Estimate(st.BasePopulation, row.RiskTier)
		d.PopulationProtected += st.BasePopulation
		d.PopulationAtRisk += row.PopulationAtRisk
		d.Stations = append(d.Stations, row)
	}
	return d, nil
}

func (s *Service) openAlertsByStation(ctx context.Context) (map[string]int, error) {
	open, err := s.store.ListAlerts(ctx, models.AlertFilter{
		Statuses: []models.AlertStatus{models.StatusActive, models.StatusAcknowledged},
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]int)
	for _, a := range open {
		out[a.StationCode]++
	}
	return out, nil
}
