package model

import "time"

// OrderStatusLog is the audit trail of lifecycle transitions. One row is
// appended inside the same transaction as every successful status change.
type OrderStatusLog struct {
	ID         int64       `gorm:"primaryKey" json:"id"`
	OrderID    int64       `gorm:"index;not null" json:"order_id"`
	FromStatus OrderStatus `gorm:"size:32;not null" json:"from_status"`
	ToStatus   OrderStatus `gorm:"size:32;not null" json:"to_status"`
	Actor      int64       `json:"actor"`
	Reason     string      `gorm:"size:256" json:"reason"`
	CreatedAt  time.Time   `gorm:"not null" json:"created_at"`
}
