package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/notify"
)

const streamHeartbeat = 15 * time.Second

// streamAlerts relays alert transitions as server-sent events until the
// client goes away or the broadcaster shuts down. event_type, alert_type,
// station_id and min_severity narrow what the client receives.
func (h *Handler) streamAlerts(c *gin.Context) {
	filter, err := streamFilter(c)
	if err != nil {
		writeError(c, err)
		return
	}
	sub, err := h.broadcaster.Subscribe(filter)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	defer h.broadcaster.Unsubscribe(sub)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"subscriber": sub.ID})
	c.Writer.Flush()

	heartbeat := h.clock.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			c.SSEvent(string(ev.Type), ev)
			c.Writer.Flush()
		case t := <-heartbeat.Chan():
			c.SSEvent("ping", gin.H{"time": t.UTC(), "dropped": sub.Dropped()})
			c.Writer.Flush()
		}
	}
}

func streamFilter(c *gin.Context) (notify.StreamFilter, error) {
	var f notify.StreamFilter
	for _, v := range queryList(c, "event_type") {
		typ, err := models.ParseNotificationType(v)
		if err != nil {
			return f, badRequest("event_type", err.Error())
		}
		f.Types = append(f.Types, typ)
	}
	for _, v := range queryList(c, "alert_type") {
		kind, err := models.ParseAlertKind(v)
		if err != nil {
			return f, badRequest("alert_type", err.Error())
		}
		f.Kinds = append(f.Kinds, kind)
	}
	for _, v := range queryList(c, "station_id") {
		f.Stations = append(f.Stations, strings.ToUpper(v))
	}
	if v := c.Query("min_severity"); v != "" {
		sev, err := models.ParseAlertSeverity(v)
		if err != nil {
			return f, badRequest("min_severity", err.Error())
		}
		f.MinSeverity = sev
	}
	return f, nil
}
