package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"factory-floor-backend/internal/store"
)

type logDowntimeRequest struct {
	OrderID           int64      `json:"order_id" binding:"required"`
	Reason            string     `json:"reason" binding:"required"`
	Category          string     `json:"category"`
	Severity          string     `json:"severity"`
	Notes             string     `json:"notes"`
	StartTime         *time.Time `json:"start_time"`
	EndTime           *time.Time `json:"end_time"`
	EstimatedDuration string     `json:"estimated_duration"`
	CostEstimate      float64    `json:"cost_estimate"`
}

// LogDowntime records a stop incident against an order.
func (h *Handler) LogDowntime(c *gin.Context) {
	var req logDowntimeRequest
	if !bindJSON(c, &req) {
		return
	}
	event, err := h.lifecycle.LogDowntime(c.Request.Context(), store.DowntimeInput{
		OrderID:           req.OrderID,
		Reason:            req.Reason,
		Category:          req.Category,
		Severity:          req.Severity,
		Notes:             req.Notes,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		EstimatedDuration: req.EstimatedDuration,
		CostEstimate:      req.CostEstimate,
		CreatedBy:         actor(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// ListDowntime returns downtime events matching the query filters.
func (h *Handler) ListDowntime(c *gin.Context) {
	filter := store.DowntimeFilter{
		ResolutionStatus: c.Query("status"),
	}
	if raw := c.Query("order_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondValidation(c, "invalid order_id")
			return
		}
		filter.OrderID = id
	}
	var ok bool
	if filter.From, ok = queryTime(c, "from"); !ok {
		return
	}
	if filter.To, ok = queryTime(c, "to"); !ok {
		return
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))

	events, err := h.store.ListDowntime(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"downtime": events, "count": len(events)})
}

type resolveDowntimeRequest struct {
	ResolutionStatus string     `json:"resolution_status" binding:"required"`
	ResolutionNotes  string     `json:"resolution_notes"`
	EndTime          *time.Time `json:"end_time"`
}

// ResolveDowntime advances an incident's resolution workflow.
func (h *Handler) ResolveDowntime(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req resolveDowntimeRequest
	if !bindJSON(c, &req) {
		return
	}
	event, err := h.lifecycle.ResolveDowntime(c.Request.Context(), store.ResolveDowntimeInput{
		DowntimeID:       id,
		ResolutionStatus: req.ResolutionStatus,
		ResolutionNotes:  req.ResolutionNotes,
		EndTime:          req.EndTime,
		ResolvedBy:       actor(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

type logWasteRequest struct {
	OrderID   int64    `json:"order_id" binding:"required"`
	WasteType string   `json:"waste_type" binding:"required"`
	Quantity  *float64 `json:"quantity" binding:"required"`
	Unit      string   `json:"unit"`
	Cost      float64  `json:"cost"`
}

// LogWaste records a scrap entry against an order.
func (h *Handler) LogWaste(c *gin.Context) {
	var req logWasteRequest
	if !bindJSON(c, &req) {
		return
	}
	event, err := h.lifecycle.LogWaste(c.Request.Context(), store.WasteInput{
		OrderID:   req.OrderID,
		WasteType: req.WasteType,
		Quantity:  *req.Quantity,
		Unit:      req.Unit,
		Cost:      req.Cost,
		CreatedBy: actor(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// ListWaste returns waste events, optionally scoped to one order.
func (h *Handler) ListWaste(c *gin.Context) {
	var orderID int64
	if raw := c.Query("order_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondValidation(c, "invalid order_id")
			return
		}
		orderID = id
	}
	events, err := h.store.ListWaste(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"waste": events, "count": len(events)})
}

// queryTime parses an RFC3339 query parameter, rendering a 400 on garbage.
// A missing parameter yields nil.
func queryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		respondValidation(c, "invalid "+name+", use RFC3339")
		return nil, false
	}
	return &t, true
}
