package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"factory-floor-backend/internal/model"
)

// Store defines the interface for all database operations. Every lifecycle
// operation runs inside one transaction that re-reads the current order and
// machine state before mutating, so concurrent callers lose via precondition
// checks instead of overwriting each other.
type Store interface {
	DB() *gorm.DB

	// Order lifecycle
	CreateOrder(ctx context.Context, input CreateOrderInput) (*model.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*model.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error)
	OrderStatusLogs(ctx context.Context, orderID int64) ([]model.OrderStatusLog, error)
	StartOrder(ctx context.Context, orderID, machineID int64, operatorID *int64, actor int64) (*model.Order, error)
	PauseOrder(ctx context.Context, orderID int64, reason, notes string, actor int64) (*model.Order, error)
	ResumeOrder(ctx context.Context, orderID int64, actor int64) (*model.Order, error)
	StopOrder(ctx context.Context, orderID int64, reason, notes, category string, actor int64) (*model.Order, error)
	CompleteOrder(ctx context.Context, input CompleteOrderInput) (*model.Order, error)
	CancelOrder(ctx context.Context, orderID int64, actor int64) (*model.Order, bool, error)
	ReportQuantity(ctx context.Context, orderID int64, quantity int, actor int64) (*model.QuantityUpdate, error)
	QuantityHistory(ctx context.Context, orderID int64) ([]model.QuantityUpdate, error)

	// Machine registry and allocation guard
	CreateMachine(ctx context.Context, input CreateMachineInput) (*model.Machine, error)
	GetMachine(ctx context.Context, machineID int64) (*model.Machine, error)
	ListMachines(ctx context.Context, filter MachineFilter) ([]model.Machine, error)
	ActiveOrderForMachine(ctx context.Context, machineID int64) (*model.Order, error)
	SetMachineStatus(ctx context.Context, machineID int64, status model.MachineStatus, actor int64) (*model.Machine, error)
	SyncMachineStatuses(ctx context.Context) (*SyncSummary, error)
	ListEnvironments(ctx context.Context) ([]EnvironmentSummary, error)

	// Downtime and waste ledger
	LogDowntime(ctx context.Context, input DowntimeInput) (*model.DowntimeEvent, error)
	ResolveDowntime(ctx context.Context, input ResolveDowntimeInput) (*model.DowntimeEvent, error)
	GetDowntime(ctx context.Context, downtimeID int64) (*model.DowntimeEvent, error)
	ListDowntime(ctx context.Context, filter DowntimeFilter) ([]model.DowntimeEvent, error)
	LogWaste(ctx context.Context, input WasteInput) (*model.WasteEvent, error)
	ListWaste(ctx context.Context, orderID int64) ([]model.WasteEvent, error)

	// Alert subscriptions
	UpsertAlertSubscription(ctx context.Context, sub *model.AlertSubscription) error
	DeleteAlertSubscription(ctx context.Context, endpoint string) error
}

// TransitionTables holds the status graphs the store validates against.
// They are configuration: deployments may narrow the compiled-in defaults,
// but an operation's own precondition set is never widened by config.
type TransitionTables struct {
	Order   map[model.OrderStatus][]model.OrderStatus
	Machine map[model.MachineStatus][]model.MachineStatus
}

// DefaultTransitionTables returns the compiled-in graphs.
func DefaultTransitionTables() TransitionTables {
	return TransitionTables{
		Order:   model.DefaultOrderTransitions(),
		Machine: model.DefaultMachineTransitions(),
	}
}

// TransitionTablesFromStrings builds validation tables from configuration
// data. A nil map keeps the compiled-in graph for that entity; a non-nil map
// replaces it, but every entry is intersected with the compiled-in graph, so
// a transition the defaults forbid never becomes legal through config.
func TransitionTablesFromStrings(order, machine map[string][]string) TransitionTables {
	t := DefaultTransitionTables()
	if order != nil {
		defaults := t.Order
		t.Order = make(map[model.OrderStatus][]model.OrderStatus, len(order))
		for from, tos := range order {
			allowed := defaults[model.OrderStatus(from)]
			targets := make([]model.OrderStatus, 0, len(tos))
			for _, to := range tos {
				if containsStatus(allowed, model.OrderStatus(to)) {
					targets = append(targets, model.OrderStatus(to))
				}
			}
			t.Order[model.OrderStatus(from)] = targets
		}
	}
	if machine != nil {
		defaults := t.Machine
		t.Machine = make(map[model.MachineStatus][]model.MachineStatus, len(machine))
		for from, tos := range machine {
			allowed := defaults[model.MachineStatus(from)]
			targets := make([]model.MachineStatus, 0, len(tos))
			for _, to := range tos {
				if containsStatus(allowed, model.MachineStatus(to)) {
					targets = append(targets, model.MachineStatus(to))
				}
			}
			t.Machine[model.MachineStatus(from)] = targets
		}
	}
	return t
}

func containsStatus[S ~string](list []S, v S) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (t TransitionTables) orderAllowed(from, to model.OrderStatus) bool {
	for _, s := range t.Order[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (t TransitionTables) machineAllowed(from, to model.MachineStatus) bool {
	for _, s := range t.Machine[from] {
		if s == to {
			return true
		}
	}
	return false
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db     *gorm.DB
	tables TransitionTables
}

// NewGormStore creates a new GORM-backed store validating against the given
// transition tables.
func NewGormStore(db *gorm.DB, tables TransitionTables) Store {
	if tables.Order == nil {
		tables.Order = model.DefaultOrderTransitions()
	}
	if tables.Machine == nil {
		tables.Machine = model.DefaultMachineTransitions()
	}
	return &gormStore{db: db, tables: tables}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

// CreateOrder validates and persists a new pending order.
func (s *gormStore) CreateOrder(ctx context.Context, input CreateOrderInput) (*model.Order, error) {
	if strings.TrimSpace(input.ProductName) == "" {
		return nil, validationErr("product_name is required")
	}
	if input.TargetQuantity <= 0 {
		return nil, validationErr("target_quantity must be positive, got %d", input.TargetQuantity)
	}
	priority := input.Priority
	if priority == "" {
		priority = "normal"
	}
	if !contains(model.OrderPriorities, priority) {
		return nil, validationErr("unknown priority %q", priority)
	}
	environment := input.Environment
	if environment == "" {
		environment = "production"
	}

	order := model.Order{
		OrderNumber:    strings.TrimSpace(input.OrderNumber),
		ProductName:    strings.TrimSpace(input.ProductName),
		TargetQuantity: input.TargetQuantity,
		Priority:       priority,
		Status:         model.OrderPending,
		Environment:    environment,
		DueDate:        input.DueDate,
		Notes:          input.Notes,
		CreatedBy:      input.CreatedBy,
	}
	if order.OrderNumber == "" {
		order.OrderNumber = newOrderNumber()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Order{}).Where("order_number = ?", order.OrderNumber).Count(&count).Error; err != nil {
			return dbErr(err, "check order number")
		}
		if count > 0 {
			return conflictErr("order number %q already exists", order.OrderNumber)
		}
		if err := tx.Create(&order).Error; err != nil {
			return dbErr(err, "create order")
		}
		log := model.OrderStatusLog{OrderID: order.ID, FromStatus: order.Status, ToStatus: model.OrderPending, Actor: input.CreatedBy, Reason: "created"}
		if err := tx.Create(&log).Error; err != nil {
			return dbErr(err, "append status log")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func newOrderNumber() string {
	return fmt.Sprintf("ORD-%s-%s", time.Now().Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}

// GetOrder loads an order with its machine preloaded.
func (s *gormStore) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).Preload("Machine").First(&order, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundErr("order %d not found", orderID)
	}
	if err != nil {
		return nil, dbErr(err, "load order")
	}
	return &order, nil
}

// ListOrders returns orders matching the filter, newest first.
func (s *gormStore) ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error) {
	q := s.db.WithContext(ctx).Model(&model.Order{}).Preload("Machine")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.MachineID > 0 {
		q = q.Where("machine_id = ?", filter.MachineID)
	}
	if filter.Environment != "" {
		q = q.Where("environment = ?", filter.Environment)
	}
	if filter.Archived != nil {
		q = q.Where("archived = ?", *filter.Archived)
	} else {
		q = q.Where("archived = ?", false)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var orders []model.Order
	if err := q.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&orders).Error; err != nil {
		return nil, dbErr(err, "list orders")
	}
	return orders, nil
}

// OrderStatusLogs returns the audit trail for one order, oldest first.
func (s *gormStore) OrderStatusLogs(ctx context.Context, orderID int64) ([]model.OrderStatusLog, error) {
	var logs []model.OrderStatusLog
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&logs).Error
	if err != nil {
		return nil, dbErr(err, "list status logs")
	}
	return logs, nil
}

// StartOrder claims the machine and moves a pending order into progress.
// The machine claim is a single conditional update; losing that race
// surfaces as Conflict, not as a lock wait.
func (s *gormStore) StartOrder(ctx context.Context, orderID, machineID int64, operatorID *int64, actor int64) (*model.Order, error) {
	var out *model.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := getOrderForUpdate(tx, orderID)
		if err != nil {
			return err
		}
		if err := s.checkOrderTransition(order, model.OrderInProgress, model.OrderPending); err != nil {
			return err
		}

		var machine model.Machine
		if err := tx.First(&machine, machineID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("machine %d not found", machineID)
			}
			return dbErr(err, "load machine")
		}
		if machine.Status != model.MachineAvailable {
			return conflictErr("machine %d is %s, not available", machineID, machine.Status)
		}
		if err := claimMachine(tx, machineID); err != nil {
			return err
		}

		now := time.Now()
		updates := map[string]any{
			"machine_id": machineID,
			"start_time": now,
		}
		if operatorID != nil {
			updates["operator_id"] = *operatorID
		}
		if err := transitionOrder(tx, order, model.OrderInProgress, updates, actor, ""); err != nil {
			return err
		}
		out, err = reloadOrder(tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PauseOrder suspends a running order. The machine stays reserved: the
// operator expects to resume, so it is not returned to the pool.
func (s *gormStore) PauseOrder(ctx context.Context, orderID int64, reason, notes string, actor int64) (*model.Order, error) {
	var out *model.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := getOrderForUpdate(tx, orderID)
		if err != nil {
			return err
		}
		if err := s.checkOrderTransition(order, model.OrderPaused, model.OrderInProgress); err != nil {
			return err
		}
		updates := map[string]any{
			"pause_time":  time.Now(),
			"stop_reason": reason,
		}
		if notes != "" {
			updates["notes"] = appendNotes(order.Notes, notes)
		}
		if err := transitionOrder(tx, order, model.OrderPaused, updates, actor, reason); err != nil {
			return err
		}
		out, err = reloadOrder(tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResumeOrder puts a paused or stopped order back in progress. The machine
// was never released, so no availability re-check is needed.
func (s *gormStore) ResumeOrder(ctx context.Context, orderID int64, actor int64) (*model.Order, error) {
	var out *model.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := getOrderForUpdate(tx, orderID)
		if err != nil {
			return err
		}
		if err := s.checkOrderTransition(order, model.OrderInProgress, model.OrderPaused, model.OrderStopped); err != nil {
			return err
		}
		updates := map[string]any{
			"resume_time": time.Now(),
		}
		if err := transitionOrder(tx, order, model.OrderInProgress, updates, actor, ""); err != nil {
			return err
		}
		out, err = reloadOrder(tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StopOrder records a recoverable stop. The machine stays reserved; stopping
// is not an equipment release.
func (s *gormStore) StopOrder(ctx context.Context, orderID int64, reason, notes, category string, actor int64) (*model.Order, error) {
	var out *model.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := getOrderForUpdate(tx, orderID)
		if err != nil {
			return err
		}
		if err := s.checkOrderTransition(order, model.OrderStopped, model.OrderInProgress, model.OrderPaused); err != nil {
			return err
		}
		updates := map[string]any{
			"stop_time":     time.Now(),
			"stop_reason":   reason,
			"stop_category": category,
		}
		if notes != "" {
			updates["notes"] = appendNotes(order.Notes, notes)
		}
		if err := transitionOrder(tx, order, model.OrderStopped, updates, actor, reason); err != nil {
			return err
		}
		out, err = reloadOrder(tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompleteOrder finishes an order, computes its efficiency and, unlike pause
// and stop, releases the machine back to the pool.
func (s *gormStore) CompleteOrder(ctx context.Context, input CompleteOrderInput) (*model.Order, error) {
	var out *model.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := getOrderForUpdate(tx, input.OrderID)
		if err != nil {
			return err
		}
		if err := s.checkOrderTransition(order, model.OrderCompleted,
			model.OrderInProgress, model.OrderPaused, model.OrderStopped); err != nil {
			return err
		}

		actual := order.TargetQuantity
		if input.ActualQuantity != nil {
			actual = *input.ActualQuantity
		}
		if actual < 0 {
			return validationErr("actual_quantity must not be negative, got %d", actual)
		}
		if actual > order.TargetQuantity && !input.AllowOverrun {
			return validationErr("actual_quantity %d exceeds target %d", actual, order.TargetQuantity)
		}
		efficiency := float64(actual*100) / float64(order.TargetQuantity)

		updates := map[string]any{
			"actual_quantity": actual,
			"efficiency_pct":  efficiency,
			"complete_time":   time.Now(),
		}
		if input.QualityNotes != "" {
			updates["quality_notes"] = input.QualityNotes
		}
		if err := transitionOrder(tx, order, model.OrderCompleted, updates, input.Actor, ""); err != nil {
			return err
		}

		if order.MachineID != nil {
			if err := releaseMachine(tx, *order.MachineID); err != nil {
				return err
			}
		}
		if input.WasteQuantity > 0 {
			waste := model.WasteEvent{
				OrderID:   order.ID,
				WasteType: "completion_scrap",
				Quantity:  input.WasteQuantity,
				Unit:      "units",
				CreatedBy: input.Actor,
			}
			if err := tx.Create(&waste).Error; err != nil {
				return dbErr(err, "create waste event")
			}
		}
		out, err = reloadOrder(tx, input.OrderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CancelOrder archives a non-terminal order. When the order held a machine
// it is released as well; the second return reports whether that happened.
func (s *gormStore) CancelOrder(ctx context.Context, orderID int64, actor int64) (*model.Order, bool, error) {
	var out *model.Order
	released := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := getOrderForUpdate(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return invalidTransitionErr(order.Status, model.OrderCancelled)
		}
		if !s.tables.orderAllowed(order.Status, model.OrderCancelled) {
			return invalidTransitionErr(order.Status, model.OrderCancelled)
		}
		updates := map[string]any{
			"archived": true,
		}
		if err := transitionOrder(tx, order, model.OrderCancelled, updates, actor, "cancelled"); err != nil {
			return err
		}
		if order.MachineID != nil && order.Status.Active() {
			if err := releaseMachine(tx, *order.MachineID); err != nil {
				return err
			}
			released = true
		}
		out, err = reloadOrder(tx, orderID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return out, released, nil
}

// ReportQuantity appends a progress snapshot to the quantity ledger. It never
// touches the order's actual quantity; that is fixed at completion.
func (s *gormStore) ReportQuantity(ctx context.Context, orderID int64, quantity int, actor int64) (*model.QuantityUpdate, error) {
	if quantity < 0 {
		return nil, validationErr("quantity must not be negative, got %d", quantity)
	}
	update := model.QuantityUpdate{
		OrderID:    orderID,
		Quantity:   quantity,
		ReportedBy: actor,
		UpdateTime: time.Now(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := getOrderForUpdate(tx, orderID)
		if err != nil {
			return err
		}
		if order.Archived {
			return cloneErr(ErrInvalidTransition, fmt.Sprintf("order %d is archived", orderID), nil)
		}
		if err := tx.Create(&update).Error; err != nil {
			return dbErr(err, "create quantity update")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &update, nil
}

// QuantityHistory returns the progress snapshots for one order, oldest first.
func (s *gormStore) QuantityHistory(ctx context.Context, orderID int64) ([]model.QuantityUpdate, error) {
	var updates []model.QuantityUpdate
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&updates).Error
	if err != nil {
		return nil, dbErr(err, "list quantity updates")
	}
	return updates, nil
}

// --- transaction helpers ---

func getOrderForUpdate(tx *gorm.DB, orderID int64) (*model.Order, error) {
	var order model.Order
	if err := tx.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("order %d not found", orderID)
		}
		return nil, dbErr(err, "load order")
	}
	return &order, nil
}

func reloadOrder(tx *gorm.DB, orderID int64) (*model.Order, error) {
	var order model.Order
	if err := tx.Preload("Machine").First(&order, orderID).Error; err != nil {
		return nil, dbErr(err, "reload order")
	}
	return &order, nil
}

// checkOrderTransition enforces the operation's own precondition set and the
// configured graph. Config may forbid an edge an operation would allow, never
// the other way around.
func (s *gormStore) checkOrderTransition(order *model.Order, to model.OrderStatus, sources ...model.OrderStatus) error {
	ok := false
	for _, src := range sources {
		if order.Status == src {
			ok = true
			break
		}
	}
	if !ok || !s.tables.orderAllowed(order.Status, to) {
		return invalidTransitionErr(order.Status, to)
	}
	return nil
}

// transitionOrder applies a status change conditionally on the status read
// earlier in this transaction. Zero affected rows means a concurrent caller
// changed the order first. A successful change appends to the audit trail.
func transitionOrder(tx *gorm.DB, order *model.Order, to model.OrderStatus, updates map[string]any, actor int64, reason string) error {
	updates["status"] = to
	res := tx.Model(&model.Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Updates(updates)
	if res.Error != nil {
		return dbErr(res.Error, "update order")
	}
	if res.RowsAffected == 0 {
		return conflictErr("order %d was modified concurrently", order.ID)
	}
	log := model.OrderStatusLog{
		OrderID:    order.ID,
		FromStatus: order.Status,
		ToStatus:   to,
		Actor:      actor,
		Reason:     reason,
	}
	if err := tx.Create(&log).Error; err != nil {
		return dbErr(err, "append status log")
	}
	return nil
}

func appendNotes(existing, notes string) string {
	if existing == "" {
		return notes
	}
	return existing + "\n" + notes
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
