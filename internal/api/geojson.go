package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-flood-alerts/internal/query"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func toGeoJSON(stations []query.StationSummary) FeatureCollection {
	features := make([]Feature, 0, len(stations))

	for _, s := range stations {
		f := Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{s.Coordinates.Longitude, s.Coordinates.Latitude},
			},
			Properties: map[string]any{
				"station_id":         s.StationCode,
				"name":               s.Name,
				"river_name":         s.RiverName,
				"status":             s.Status,
				"current_level":      s.WaterLevelM,
				"risk_level":         s.RiskTier,
				"risk_color":         s.RiskColor,
				"trend":              s.Trend,
				"population_at_risk": s.PopulationAtRisk,
				"open_alerts":        s.OpenAlerts,
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}

// dashboardMap renders the dashboard's station rows as map points.
func (h *Handler) dashboardMap(c *gin.Context) {
	d, err := h.queries.Dashboard(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, toGeoJSON(d.Stations))
}
