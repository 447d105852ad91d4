package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"factory-floor-backend/internal/model"
	"factory-floor-backend/internal/store"
)

// machineResponse flattens a machine with the order currently bound to it.
type machineResponse struct {
	model.Machine
	CurrentOrder *model.Order `json:"current_order,omitempty"`
}

// ListMachines returns the registry with each machine's current order
// attached. The orders come from one IN query merged in memory rather than
// a per-machine lookup.
func (h *Handler) ListMachines(c *gin.Context) {
	ctx := c.Request.Context()
	machines, err := h.store.ListMachines(ctx, store.MachineFilter{
		Status:      model.MachineStatus(c.Query("status")),
		Environment: c.Query("environment"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	byMachine := make(map[int64]*model.Order)
	if len(machines) > 0 {
		ids := make([]int64, 0, len(machines))
		for _, m := range machines {
			ids = append(ids, m.ID)
		}
		var active []model.Order
		if err := h.store.DB().WithContext(ctx).
			Where("machine_id IN ? AND status IN ?", ids, model.ActiveOrderStatuses()).
			Find(&active).Error; err != nil {
			respondError(c, err)
			return
		}
		for i := range active {
			if active[i].MachineID != nil {
				byMachine[*active[i].MachineID] = &active[i]
			}
		}
	}

	out := make([]machineResponse, 0, len(machines))
	for _, m := range machines {
		out = append(out, machineResponse{Machine: m, CurrentOrder: byMachine[m.ID]})
	}
	c.JSON(http.StatusOK, gin.H{"machines": out, "count": len(out)})
}

// GetMachine returns one machine with its current order.
func (h *Handler) GetMachine(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	machine, err := h.store.GetMachine(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	order, err := h.store.ActiveOrderForMachine(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, machineResponse{Machine: *machine, CurrentOrder: order})
}

type createMachineRequest struct {
	Name        string `json:"name" binding:"required"`
	Type        string `json:"type"`
	Environment string `json:"environment"`
	Capacity    int    `json:"capacity"`
}

// CreateMachine registers a piece of equipment.
func (h *Handler) CreateMachine(c *gin.Context) {
	var req createMachineRequest
	if !bindJSON(c, &req) {
		return
	}
	machine, err := h.store.CreateMachine(c.Request.Context(), store.CreateMachineInput{
		Name:        req.Name,
		Type:        req.Type,
		Environment: req.Environment,
		Capacity:    req.Capacity,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, machine)
}

type setMachineStatusRequest struct {
	Status model.MachineStatus `json:"status" binding:"required"`
}

// SetMachineStatus applies an administrative status change.
func (h *Handler) SetMachineStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req setMachineStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	machine, err := h.lifecycle.SetMachineStatus(c.Request.Context(), id, req.Status, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, machine)
}

// SyncMachineStatuses runs one reconciliation pass on demand and reports
// what it repaired.
func (h *Handler) SyncMachineStatuses(c *gin.Context) {
	summary, err := h.lifecycle.SyncMachines(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
