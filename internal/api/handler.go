package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/notify"
	"github.com/mr1hm/go-flood-alerts/internal/query"
)

// Ingester accepts a batch and reports one result per item.
type Ingester interface {
	Ingest(ctx context.Context, batch []models.RawReading) []models.IngestResult
}

// Operator applies manual alert transitions.
type Operator interface {
	Acknowledge(ctx context.Context, id int64, actor string) (*models.Alert, error)
	Resolve(ctx context.Context, id int64, actor, notes string) (*models.Alert, error)
	Cancel(ctx context.Context, id int64, actor, notes string) (*models.Alert, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	ingester    Ingester
	queries     *query.Service
	operator    Operator
	broadcaster *notify.Broadcaster
	db          Pinger
	clock       clockwork.Clock
}

func NewHandler(ingester Ingester, queries *query.Service, operator Operator, broadcaster *notify.Broadcaster,
	db Pinger, clock clockwork.Clock) *Handler {
	return &Handler{
		ingester:    ingester,
		queries:     queries,
		operator:    operator,
		broadcaster: broadcaster,
		db:          db,
		clock:       clock,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/readings", h.ingestReadings)
	api.GET("/readings", h.listReadings)
	api.GET("/readings/latest", h.latestReadings)

	api.GET("/stations", h.listStations)
	api.GET("/stations/:code", h.getStation)
	api.PUT("/stations/:code", h.putStation)
	api.GET("/stations/:code/series", h.stationSeries)
	api.GET("/stations/:code/health", h.stationHealth)

	api.GET("/alerts", h.listAlerts)
	api.GET("/alerts/:id", h.getAlert)
	api.POST("/alerts/:id/acknowledge", h.acknowledgeAlert)
	api.POST("/alerts/:id/resolve", h.resolveAlert)
	api.POST("/alerts/:id/cancel", h.cancelAlert)
	api.GET("/stream/alerts", h.streamAlerts)

	api.GET("/dashboard", h.dashboard)
	api.GET("/dashboard/map", h.dashboardMap)
	api.GET("/metrics/alerts", h.alertMetrics)

	api.GET("/notification-rules", h.listRules)
	api.POST("/notification-rules", h.createRule)
}

func (h *Handler) health(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps domain errors onto status codes. Anything unrecognized is
// logged and reported as a 500 without detail.
func writeError(c *gin.Context, err error) {
	var conflict *models.StateConflictError
	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrConfiguration):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
			"from":  conflict.From,
			"to":    conflict.To,
		})
	default:
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(field, reason string) error {
	return &models.ValidationError{Field: field, Reason: reason}
}

// queryList reads a comma separated or repeated query parameter.
func queryList(c *gin.Context, key string) []string {
	var out []string
	for _, v := range c.QueryArray(key) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func queryTime(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, badRequest(key, "must be an RFC 3339 timestamp")
	}
	t = t.UTC()
	return &t, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest(key, "must be an integer")
	}
	return n, nil
}

// queryHours reads a whole number of hours, falling back to def.
func queryHours(c *gin.Context, key string, def int) (time.Duration, error) {
	n, err := queryInt(c, key)
	if err != nil {
		return 0, err
	}
	if c.Query(key) == "" {
		n = def
	}
	return time.Duration(n) * time.Hour, nil
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("id", "must be a positive integer")
	}
	return id, nil
}
