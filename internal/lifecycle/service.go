// Package lifecycle coordinates order and machine state changes. Each
// operation runs the transactional store op first, then fans the resulting
// events out to the hub and the alert pool. Nothing is published for a
// rolled-back transaction.
package lifecycle

import (
	"context"

	"factory-floor-backend/internal/auth"
	"factory-floor-backend/internal/hub"
	"factory-floor-backend/internal/model"
	"factory-floor-backend/internal/store"
)

// Event types published on the hub.
const (
	EventOrderCreated     = "order_created"
	EventOrderStarted     = "order_started"
	EventOrderPaused      = "order_paused"
	EventOrderResumed     = "order_resumed"
	EventOrderStopped     = "order_stopped"
	EventOrderCompleted   = "order_completed"
	EventOrderCancelled   = "order_cancelled"
	EventQuantityReported = "quantity_reported"
	EventMachineStatus    = "machine_status_updated"
	EventDowntimeLogged   = "downtime_logged"
	EventDowntimeResolved = "downtime_resolved"
	EventWasteLogged      = "waste_logged"
)

// Broadcaster fans committed events out to connected clients.
type Broadcaster interface {
	Broadcast(evt hub.Event)
}

// AlertDispatcher queues a downtime alert job for the worker pool.
type AlertDispatcher interface {
	Dispatch(eventID int64)
}

// Logger is the slice of the application logger this package needs.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Controller is the write-side entry point for the API layer.
type Controller struct {
	store    store.Store
	hub      Broadcaster
	alerts   AlertDispatcher
	logger   Logger
	alertMin string
}

// NewController wires the store to the hub and the alert pool. minSeverity is
// the paging threshold: downtime below it is still broadcast on the alerts
// channel but never pushed to browsers. hub and alerts may be nil, which
// disables the respective fan-out.
func NewController(s store.Store, b Broadcaster, alerts AlertDispatcher, minSeverity string, logger Logger) *Controller {
	if minSeverity == "" {
		minSeverity = "medium"
	}
	return &Controller{store: s, hub: b, alerts: alerts, logger: logger, alertMin: minSeverity}
}

// CreateOrder registers a new pending order.
func (c *Controller) CreateOrder(ctx context.Context, input store.CreateOrderInput) (*model.Order, error) {
	order, err := c.store.CreateOrder(ctx, input)
	if err != nil {
		return nil, err
	}
	c.production(EventOrderCreated, order)
	return order, nil
}

// StartOrder claims the machine and moves the order to in_progress.
func (c *Controller) StartOrder(ctx context.Context, orderID, machineID int64, operatorID *int64, actor int64) (*model.Order, error) {
	order, err := c.store.StartOrder(ctx, orderID, machineID, operatorID, actor)
	if err != nil {
		return nil, err
	}
	c.production(EventOrderStarted, order)
	c.machineEvent(order.Machine)
	return order, nil
}

// PauseOrder suspends a running order. The machine stays claimed.
func (c *Controller) PauseOrder(ctx context.Context, orderID int64, reason, notes string, actor int64) (*model.Order, error) {
	order, err := c.store.PauseOrder(ctx, orderID, reason, notes, actor)
	if err != nil {
		return nil, err
	}
	c.production(EventOrderPaused, order)
	return order, nil
}

// ResumeOrder returns a paused or stopped order to in_progress.
func (c *Controller) ResumeOrder(ctx context.Context, orderID int64, actor int64) (*model.Order, error) {
	order, err := c.store.ResumeOrder(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	c.production(EventOrderResumed, order)
	return order, nil
}

// StopOrder halts a running or paused order, keeping the machine claimed.
func (c *Controller) StopOrder(ctx context.Context, orderID int64, reason, notes, category string, actor int64) (*model.Order, error) {
	order, err := c.store.StopOrder(ctx, orderID, reason, notes, category, actor)
	if err != nil {
		return nil, err
	}
	c.production(EventOrderStopped, order)
	return order, nil
}

// CompleteOrder finishes the order and releases its machine.
func (c *Controller) CompleteOrder(ctx context.Context, input store.CompleteOrderInput) (*model.Order, error) {
	order, err := c.store.CompleteOrder(ctx, input)
	if err != nil {
		return nil, err
	}
	c.production(EventOrderCompleted, order)
	c.machineEvent(order.Machine)
	return order, nil
}

// CancelOrder abandons the order from any non-terminal state and releases the
// machine when one was held.
func (c *Controller) CancelOrder(ctx context.Context, orderID int64, actor int64) (*model.Order, error) {
	order, released, err := c.store.CancelOrder(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	c.production(EventOrderCancelled, order)
	if released {
		c.machineEvent(order.Machine)
	}
	return order, nil
}

// ReportQuantity appends a progress report for a live order.
func (c *Controller) ReportQuantity(ctx context.Context, orderID int64, quantity int, actor int64) (*model.QuantityUpdate, error) {
	update, err := c.store.ReportQuantity(ctx, orderID, quantity, actor)
	if err != nil {
		return nil, err
	}
	c.production(EventQuantityReported, update)
	return update, nil
}

// SetMachineStatus is the administrative status change, validated against the
// machine transition table.
func (c *Controller) SetMachineStatus(ctx context.Context, machineID int64, status model.MachineStatus, actor int64) (*model.Machine, error) {
	machine, err := c.store.SetMachineStatus(ctx, machineID, status, actor)
	if err != nil {
		return nil, err
	}
	c.machineEvent(machine)
	return machine, nil
}

// SyncMachines recomputes machine statuses from the orders bound to them and
// publishes one event per correction.
func (c *Controller) SyncMachines(ctx context.Context) (*store.SyncSummary, error) {
	summary, err := c.store.SyncMachineStatuses(ctx)
	if err != nil {
		return nil, err
	}
	for _, corr := range summary.Corrections {
		c.emit(EventMachineStatus, auth.ChannelMachines, corr)
	}
	if len(summary.Corrections) > 0 {
		c.logger.Info("status sync corrected %d of %d machines", len(summary.Corrections), summary.Checked)
	}
	return summary, nil
}

// LogDowntime appends a ledger entry and pages subscribers when the severity
// meets the threshold.
func (c *Controller) LogDowntime(ctx context.Context, input store.DowntimeInput) (*model.DowntimeEvent, error) {
	event, err := c.store.LogDowntime(ctx, input)
	if err != nil {
		return nil, err
	}
	c.emit(EventDowntimeLogged, auth.ChannelAlerts, event)
	if c.alerts != nil && model.SeverityRank(event.Severity) >= model.SeverityRank(c.alertMin) {
		c.alerts.Dispatch(event.ID)
	}
	return event, nil
}

// ResolveDowntime advances an incident's resolution. Only the final step to
// resolved is worth announcing.
func (c *Controller) ResolveDowntime(ctx context.Context, input store.ResolveDowntimeInput) (*model.DowntimeEvent, error) {
	event, err := c.store.ResolveDowntime(ctx, input)
	if err != nil {
		return nil, err
	}
	if event.ResolutionStatus == model.ResolutionResolved {
		c.emit(EventDowntimeResolved, auth.ChannelAlerts, event)
	}
	return event, nil
}

// LogWaste appends a waste record.
func (c *Controller) LogWaste(ctx context.Context, input store.WasteInput) (*model.WasteEvent, error) {
	record, err := c.store.LogWaste(ctx, input)
	if err != nil {
		return nil, err
	}
	c.production(EventWasteLogged, record)
	return record, nil
}

func (c *Controller) production(eventType string, data any) {
	c.emit(eventType, auth.ChannelProduction, data)
}

func (c *Controller) machineEvent(m *model.Machine) {
	if m == nil {
		return
	}
	c.emit(EventMachineStatus, auth.ChannelMachines, m)
}

func (c *Controller) emit(eventType, channel string, data any) {
	if c.hub == nil {
		return
	}
	c.hub.Broadcast(hub.Event{Type: eventType, Channel: channel, Data: data})
}
