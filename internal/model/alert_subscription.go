package model

import "time"

// AlertSubscription holds a browser push subscription for downtime alerts.
// MinSeverity filters which incidents the subscriber is paged for.
type AlertSubscription struct {
	Endpoint    string    `gorm:"primaryKey" json:"endpoint"`
	P256DH      string    `gorm:"column:p256dh;not null" json:"-"`
	Auth        string    `gorm:"not null" json:"-"`
	UserID      int64     `gorm:"index" json:"user_id"`
	MinSeverity string    `gorm:"size:16;not null;default:medium" json:"min_severity"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}
