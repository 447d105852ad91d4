package model

import "time"

// WasteEvent is an append-only scrap record logged against an order.
type WasteEvent struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	OrderID   int64     `gorm:"index;not null" json:"order_id"`
	WasteType string    `gorm:"size:64;not null" json:"waste_type"`
	Quantity  float64   `gorm:"not null" json:"quantity"`
	Unit      string    `gorm:"size:32;not null;default:units" json:"unit"`
	Cost      float64   `json:"cost"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`

	// Associations
	Order *Order `gorm:"foreignKey:OrderID" json:"-"`
}
