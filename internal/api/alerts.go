package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/query"
)

type transitionRequest struct {
	Actor string `json:"actor"`
	Notes string `json:"notes"`
}

func (h *Handler) listAlerts(c *gin.Context) {
	q := query.AlertsQuery{StationCodes: queryList(c, "station_id")}
	for _, v := range queryList(c, "status") {
		st, err := models.ParseAlertStatus(v)
		if err != nil {
			writeError(c, badRequest("status", err.Error()))
			return
		}
		q.Statuses = append(q.Statuses, st)
	}
	for _, v := range queryList(c, "severity") {
		sev, err := models.ParseAlertSeverity(v)
		if err != nil {
			writeError(c, badRequest("severity", err.Error()))
			return
		}
		q.Severities = append(q.Severities, sev)
	}
	for _, v := range queryList(c, "alert_type") {
		kind, err := models.ParseAlertKind(v)
		if err != nil {
			writeError(c, badRequest("alert_type", err.Error()))
			return
		}
		q.Kinds = append(q.Kinds, kind)
	}
	var err error
	if q.Since, err = queryTime(c, "since"); err != nil {
		writeError(c, err)
		return
	}
	if q.Limit, err = queryInt(c, "limit"); err != nil {
		writeError(c, err)
		return
	}
	if q.Offset, err = queryInt(c, "offset"); err != nil {
		writeError(c, err)
		return
	}

	alerts, err := h.queries.ListAlerts(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

func (h *Handler) getAlert(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	alert, err := h.queries.GetAlert(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) acknowledgeAlert(c *gin.Context) {
	h.transition(c, func(id int64, req transitionRequest) (*models.Alert, error) {
		return h.operator.Acknowledge(c.Request.Context(), id, req.Actor)
	})
}

func (h *Handler) resolveAlert(c *gin.Context) {
	h.transition(c, func(id int64, req transitionRequest) (*models.Alert, error) {
		return h.operator.Resolve(c.Request.Context(), id, req.Actor, req.Notes)
	})
}

func (h *Handler) cancelAlert(c *gin.Context) {
	h.transition(c, func(id int64, req transitionRequest) (*models.Alert, error) {
		return h.operator.Cancel(c.Request.Context(), id, req.Actor, req.Notes)
	})
}

func (h *Handler) transition(c *gin.Context, apply func(int64, transitionRequest) (*models.Alert, error)) {
	id, err := pathID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("body", "expected {\"actor\": ..., \"notes\": ...}"))
		return
	}
	alert, err := apply(id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) dashboard(c *gin.Context) {
	d, err := h.queries.Dashboard(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) alertMetrics(c *gin.Context) {
	period, err := queryHours(c, "hours", 24)
	if err != nil {
		writeError(c, err)
		return
	}
	metrics, err := h.queries.AlertMetrics(c.Request.Context(), period)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}
