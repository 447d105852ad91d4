package model

import "time"

// OrderStatus is the lifecycle state of a production order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderInProgress OrderStatus = "in_progress"
	OrderPaused     OrderStatus = "paused"
	OrderStopped    OrderStatus = "stopped"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// Active reports whether an order in this status holds its machine.
func (s OrderStatus) Active() bool {
	return s == OrderInProgress || s == OrderPaused || s == OrderStopped
}

// ActiveOrderStatuses lists the statuses during which an order holds its
// machine, in a form usable in SQL IN clauses.
func ActiveOrderStatuses() []OrderStatus {
	return []OrderStatus{OrderInProgress, OrderPaused, OrderStopped}
}

// OrderPriorities lists the accepted priority values.
var OrderPriorities = []string{"low", "normal", "high", "urgent"}

// DefaultOrderTransitions returns the compiled-in lifecycle graph. Deployments
// may narrow or extend it through the lifecycle section of the config file.
func DefaultOrderTransitions() map[OrderStatus][]OrderStatus {
	return map[OrderStatus][]OrderStatus{
		OrderPending:    {OrderInProgress, OrderCancelled},
		OrderInProgress: {OrderPaused, OrderStopped, OrderCompleted, OrderCancelled},
		OrderPaused:     {OrderInProgress, OrderStopped, OrderCompleted, OrderCancelled},
		OrderStopped:    {OrderInProgress, OrderCompleted, OrderCancelled},
		OrderCompleted:  {},
		OrderCancelled:  {},
	}
}

// Order represents a unit of production work and its lifecycle fields.
type Order struct {
	ID             int64       `gorm:"primaryKey" json:"id"`
	OrderNumber    string      `gorm:"uniqueIndex;size:64;not null" json:"order_number"`
	ProductName    string      `gorm:"size:256;not null" json:"product_name"`
	TargetQuantity int         `gorm:"not null" json:"target_quantity"`
	ActualQuantity *int        `json:"actual_quantity"`
	Priority       string      `gorm:"size:16;not null;default:normal" json:"priority"`
	Status         OrderStatus `gorm:"size:32;not null;index" json:"status"`
	Environment    string      `gorm:"size:64;index" json:"environment"`
	MachineID      *int64      `gorm:"index" json:"machine_id"`
	OperatorID     *int64      `json:"operator_id"`
	DueDate        *time.Time  `json:"due_date"`
	Notes          string      `gorm:"size:1024" json:"notes"`
	QualityNotes   string      `gorm:"size:1024" json:"quality_notes"`
	StopReason     string      `gorm:"size:256" json:"stop_reason"`
	StopCategory   string      `gorm:"size:64" json:"stop_category"`
	EfficiencyPct  *float64    `json:"efficiency_pct"`
	CreatedBy      int64       `json:"created_by"`
	StartTime      *time.Time  `json:"start_time"`
	PauseTime      *time.Time  `json:"pause_time"`
	ResumeTime     *time.Time  `json:"resume_time"`
	StopTime       *time.Time  `json:"stop_time"`
	CompleteTime   *time.Time  `json:"complete_time"`
	Archived       bool        `gorm:"not null;default:false;index" json:"archived"`
	CreatedAt      time.Time   `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time   `gorm:"not null" json:"updated_at"`

	// Associations
	Machine *Machine `gorm:"foreignKey:MachineID" json:"machine,omitempty"`
}

// TableName keeps the historical table name used by the floor database.
func (Order) TableName() string { return "production_orders" }
