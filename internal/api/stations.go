package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

func (h *Handler) listStations(c *gin.Context) {
	stations, err := h.queries.ListStations(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stations})
}

func (h *Handler) getStation(c *gin.Context) {
	st, err := h.queries.GetStation(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// putStation creates or replaces the station named in the path.
func (h *Handler) putStation(c *gin.Context) {
	var st models.Station
	if err := c.ShouldBindJSON(&st); err != nil {
		writeError(c, badRequest("body", "malformed station"))
		return
	}
	code := models.NormalizeStationCode(c.Param("code"))
	if st.Code != "" && models.NormalizeStationCode(st.Code) != code {
		writeError(c, badRequest("code", "body code does not match path"))
		return
	}
	st.Code = code

	saved, err := h.queries.UpsertStation(c.Request.Context(), &st)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

type ruleRequest struct {
	Subscriber   string   `json:"user_id"`
	StationCodes []string `json:"station_ids"`
	MinSeverity  *string  `json:"severity_threshold"`
	Channels     []string `json:"channels"`
	Active       *bool    `json:"is_active"`
}

func (h *Handler) createRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("body", "malformed notification rule"))
		return
	}

	rule := &models.NotificationRule{
		Subscriber:   strings.TrimSpace(req.Subscriber),
		StationCodes: req.StationCodes,
		Active:       req.Active == nil || *req.Active,
	}
	if req.MinSeverity != nil {
		sev, err := models.ParseAlertSeverity(*req.MinSeverity)
		if err != nil {
			writeError(c, badRequest("severity_threshold", err.Error()))
			return
		}
		rule.MinSeverity = sev
	}
	for _, ch := range req.Channels {
		channel, err := models.ParseNotificationChannel(ch)
		if err != nil {
			writeError(c, badRequest("channels", err.Error()))
			return
		}
		rule.Channels = append(rule.Channels, channel)
	}

	created, err := h.queries.CreateRule(c.Request.Context(), rule, req.MinSeverity != nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) listRules(c *gin.Context) {
	rules, err := h.queries.ListRules(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rules})
}

func (h *Handler) stationHealth(c *gin.Context) {
	window, err := queryHours(c, "hours", 24)
	if err != nil {
		writeError(c, err)
		return
	}
	health, err := h.queries.StationHealth(c.Request.Context(), c.Param("code"), window)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, health)
}
