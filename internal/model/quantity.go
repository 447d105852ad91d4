package model

import "time"

// QuantityUpdate is a progress snapshot reported while an order runs. It
// never sets the order's actual quantity; that happens only at completion.
type QuantityUpdate struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	OrderID    int64     `gorm:"index;not null" json:"order_id"`
	Quantity   int       `gorm:"not null" json:"quantity"`
	ReportedBy int64     `json:"reported_by"`
	UpdateTime time.Time `gorm:"not null;index" json:"update_time"`
}
