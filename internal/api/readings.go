package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-flood-alerts/internal/aggregate"
	"github.com/mr1hm/go-flood-alerts/internal/ingestion"
	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/query"
)

const maxBatchBytes = 8 << 20

// ingestReadings accepts a batch and always answers with per-item results;
// a batch with rejected items is still a 200.
func (h *Handler) ingestReadings(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBatchBytes))
	if err != nil {
		writeError(c, badRequest("body", "unreadable request body"))
		return
	}
	batch, err := ingestion.DecodeBatch(body)
	if err != nil {
		writeError(c, badRequest("body", "expected an array of readings or {\"readings\": [...]}"))
		return
	}
	if len(batch) == 0 {
		writeError(c, badRequest("readings", "batch is empty"))
		return
	}

	results := h.ingester.Ingest(c.Request.Context(), batch)
	summary := map[models.IngestOutcome]int{}
	for _, r := range results {
		summary[r.Outcome]++
	}
	c.JSON(http.StatusOK, gin.H{
		"accepted":  summary[models.OutcomeAccepted],
		"duplicate": summary[models.OutcomeDuplicate],
		"rejected":  summary[models.OutcomeRejected],
		"results":   results,
	})
}

func (h *Handler) listReadings(c *gin.Context) {
	q := query.ReadingsQuery{StationCodes: queryList(c, "station_id")}
	var err error
	if q.From, err = queryTime(c, "start"); err != nil {
		writeError(c, err)
		return
	}
	if q.To, err = queryTime(c, "end"); err != nil {
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
	switch strings.ToLower(c.DefaultQuery("order", "desc")) {
	case "asc":
		q.Ascending = true
	case "desc":
	default:
		writeError(c, badRequest("order", "must be asc or desc"))
		return
	}

	page, err := h.queries.ListReadings(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) latestReadings(c *gin.Context) {
	readings, err := h.queries.LatestReadings(c.Request.Context(), queryList(c, "station_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": readings})
}

// stationSeries defaults to the last 24 hours in hourly buckets.
func (h *Handler) stationSeries(c *gin.Context) {
	start, err := queryTime(c, "start")
	if err != nil {
		writeError(c, err)
		return
	}
	end, err := queryTime(c, "end")
	if err != nil {
		writeError(c, err)
		return
	}
	interval := c.DefaultQuery("interval", "1h")
	if end == nil {
		e := defaultSeriesEnd(h.clock.Now(), interval)
		end = &e
	}
	if start == nil {
		s := end.Add(-24 * time.Hour)
		start = &s
	}

	series, err := h.queries.Series(c.Request.Context(), c.Param("code"), *start, *end, interval)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

// defaultSeriesEnd closes the window at the end of the bucket holding now,
// so repeated requests within one bucket share a cache entry.
func defaultSeriesEnd(now time.Time, interval string) time.Time {
	now = now.UTC()
	width, err := aggregate.ParseInterval(interval)
	if err != nil {
		return now
	}
	return now.Truncate(width).Add(width)
}
