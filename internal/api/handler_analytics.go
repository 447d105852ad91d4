package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"factory-floor-backend/internal/analytics"
)

// reportWindow reads the from/to query parameters, defaulting to the last
// 24 hours ending now.
func reportWindow(c *gin.Context) (analytics.Window, bool) {
	from, ok := queryTime(c, "from")
	if !ok {
		return analytics.Window{}, false
	}
	to, ok := queryTime(c, "to")
	if !ok {
		return analytics.Window{}, false
	}
	w := analytics.Window{}
	if to != nil {
		w.To = *to
	} else {
		w.To = time.Now()
	}
	if from != nil {
		w.From = *from
	} else {
		w.From = w.To.Add(-24 * time.Hour)
	}
	if !w.From.Before(w.To) {
		respondValidation(c, "from must be before to")
		return analytics.Window{}, false
	}
	return w, true
}

// GetOEE returns the OEE report for a window, optionally scoped to one
// machine.
func (h *Handler) GetOEE(c *gin.Context) {
	w, ok := reportWindow(c)
	if !ok {
		return
	}
	var machineID *int64
	if raw := c.Query("machine_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondValidation(c, "invalid machine_id")
			return
		}
		machineID = &id
	}
	report, err := h.reports.OEE(c.Request.Context(), w, machineID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetDowntimeSummary returns downtime totals and breakdowns for a window.
func (h *Handler) GetDowntimeSummary(c *gin.Context) {
	w, ok := reportWindow(c)
	if !ok {
		return
	}
	summary, err := h.reports.Downtime(c.Request.Context(), w)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
