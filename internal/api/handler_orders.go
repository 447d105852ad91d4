package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"factory-floor-backend/internal/model"
	"factory-floor-backend/internal/mw"
	"factory-floor-backend/internal/store"
)

// actor returns the authenticated user behind the request.
func actor(c *gin.Context) int64 {
	if claims := mw.Claims(c); claims != nil {
		return claims.UserID
	}
	return 0
}

type createOrderRequest struct {
	OrderNumber    string     `json:"order_number"`
	ProductName    string     `json:"product_name" binding:"required"`
	TargetQuantity int        `json:"target_quantity" binding:"required"`
	Priority       string     `json:"priority"`
	Environment    string     `json:"environment"`
	DueDate        *time.Time `json:"due_date"`
	Notes          string     `json:"notes"`
}

// CreateOrder registers a new pending order.
func (h *Handler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := h.lifecycle.CreateOrder(c.Request.Context(), store.CreateOrderInput{
		OrderNumber:    req.OrderNumber,
		ProductName:    req.ProductName,
		TargetQuantity: req.TargetQuantity,
		Priority:       req.Priority,
		Environment:    req.Environment,
		DueDate:        req.DueDate,
		Notes:          req.Notes,
		CreatedBy:      actor(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// ListOrders returns orders matching the query filters. Archived orders are
// hidden unless asked for explicitly.
func (h *Handler) ListOrders(c *gin.Context) {
	filter := store.OrderFilter{
		Status:      model.OrderStatus(c.Query("status")),
		Environment: c.Query("environment"),
	}
	if raw := c.Query("machine_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondValidation(c, "invalid machine_id")
			return
		}
		filter.MachineID = id
	}
	if raw := c.Query("archived"); raw != "" {
		archived, err := strconv.ParseBool(raw)
		if err != nil {
			respondValidation(c, "invalid archived flag")
			return
		}
		filter.Archived = &archived
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	orders, err := h.store.ListOrders(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

// GetOrder returns one order with its status history and ledger entries.
func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	order, err := h.store.GetOrder(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	logs, err := h.store.OrderStatusLogs(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	downtime, err := h.store.ListDowntime(ctx, store.DowntimeFilter{OrderID: id})
	if err != nil {
		respondError(c, err)
		return
	}
	waste, err := h.store.ListWaste(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	quantities, err := h.store.QuantityHistory(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":            order,
		"status_log":       logs,
		"downtime":         downtime,
		"waste":            waste,
		"quantity_updates": quantities,
	})
}

type startOrderRequest struct {
	MachineID  int64  `json:"machine_id" binding:"required"`
	OperatorID *int64 `json:"operator_id"`
}

// StartOrder claims a machine and moves the order into progress. When no
// operator is named the caller is recorded as the operator.
func (h *Handler) StartOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req startOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	caller := actor(c)
	if req.OperatorID == nil {
		req.OperatorID = &caller
	}
	order, err := h.lifecycle.StartOrder(c.Request.Context(), id, req.MachineID, req.OperatorID, caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type pauseOrderRequest struct {
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

// PauseOrder suspends a running order without releasing its machine.
func (h *Handler) PauseOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req pauseOrderRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	order, err := h.lifecycle.PauseOrder(c.Request.Context(), id, req.Reason, req.Notes, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ResumeOrder puts a paused or stopped order back into progress.
func (h *Handler) ResumeOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, err := h.lifecycle.ResumeOrder(c.Request.Context(), id, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type stopOrderRequest struct {
	Reason   string `json:"reason" binding:"required"`
	Notes    string `json:"notes"`
	Category string `json:"category"`
}

// StopOrder halts a running or paused order for an incident. The machine
// stays bound so the interrupted work cannot be displaced.
func (h *Handler) StopOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req stopOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := h.lifecycle.StopOrder(c.Request.Context(), id, req.Reason, req.Notes, req.Category, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type completeOrderRequest struct {
	ActualQuantity *int    `json:"actual_quantity"`
	WasteQuantity  float64 `json:"waste_quantity"`
	QualityNotes   string  `json:"quality_notes"`
	AllowOverrun   bool    `json:"allow_overrun"`
}

// CompleteOrder finishes an order, records efficiency and frees the machine.
func (h *Handler) CompleteOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req completeOrderRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	order, err := h.lifecycle.CompleteOrder(c.Request.Context(), store.CompleteOrderInput{
		OrderID:        id,
		ActualQuantity: req.ActualQuantity,
		WasteQuantity:  req.WasteQuantity,
		QualityNotes:   req.QualityNotes,
		AllowOverrun:   req.AllowOverrun,
		Actor:          actor(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// CancelOrder abandons an order from any non-terminal state.
func (h *Handler) CancelOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, err := h.lifecycle.CancelOrder(c.Request.Context(), id, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type reportQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// ReportQuantity records a progress count against a running order.
func (h *Handler) ReportQuantity(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reportQuantityRequest
	if !bindJSON(c, &req) {
		return
	}
	update, err := h.lifecycle.ReportQuantity(c.Request.Context(), id, *req.Quantity, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, update)
}
