package store

import (
	"time"

	"factory-floor-backend/internal/model"
)

// CreateOrderInput carries a new order submission.
type CreateOrderInput struct {
	OrderNumber    string
	ProductName    string
	TargetQuantity int
	Priority       string
	Environment    string
	DueDate        *time.Time
	Notes          string
	CreatedBy      int64
}

// CompleteOrderInput carries the terminal completion of an order.
type CompleteOrderInput struct {
	OrderID        int64
	ActualQuantity *int
	WasteQuantity  float64
	QualityNotes   string
	AllowOverrun   bool
	Actor          int64
}

// CreateMachineInput registers a piece of equipment.
type CreateMachineInput struct {
	Name        string
	Type        string
	Environment string
	Capacity    int
}

// DowntimeInput logs a stop incident against an order.
type DowntimeInput struct {
	OrderID           int64
	Reason            string
	Category          string
	Severity          string
	Notes             string
	StartTime         *time.Time
	EndTime           *time.Time
	EstimatedDuration string
	CostEstimate      float64
	CreatedBy         int64
}

// ResolveDowntimeInput advances a downtime event's resolution.
type ResolveDowntimeInput struct {
	DowntimeID       int64
	ResolutionStatus string
	ResolutionNotes  string
	EndTime          *time.Time
	ResolvedBy       int64
}

// WasteInput logs a scrap record against an order.
type WasteInput struct {
	OrderID   int64
	WasteType string
	Quantity  float64
	Unit      string
	Cost      float64
	CreatedBy int64
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status      model.OrderStatus
	MachineID   int64
	Environment string
	Archived    *bool
	Limit       int
	Offset      int
}

// MachineFilter narrows machine listings.
type MachineFilter struct {
	Status      model.MachineStatus
	Environment string
}

// DowntimeFilter narrows downtime listings.
type DowntimeFilter struct {
	OrderID          int64
	ResolutionStatus string
	From             *time.Time
	To               *time.Time
	Limit            int
}

// MachineCorrection records one status repair made by reconciliation.
type MachineCorrection struct {
	MachineID int64               `json:"machine_id"`
	From      model.MachineStatus `json:"from"`
	To        model.MachineStatus `json:"to"`
}

// SyncSummary reports the outcome of a reconciliation pass.
type SyncSummary struct {
	Checked     int                 `json:"checked"`
	Corrections []MachineCorrection `json:"corrections"`
}

// EnvironmentSummary aggregates machine counts for one floor zone.
type EnvironmentSummary struct {
	Code          string                      `json:"code"`
	Name          string                      `json:"name"`
	Description   string                      `json:"description"`
	TotalMachines int64                       `json:"total_machines"`
	ByStatus      map[model.MachineStatus]int `json:"by_status"`
}
