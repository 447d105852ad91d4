package model

import "time"

// Downtime categories and severities accepted by the ledger.
var (
	DowntimeCategories = []string{"equipment", "material", "staffing", "quality", "changeover", "other"}
	DowntimeSeverities = []string{"low", "medium", "high", "critical"}
)

var severityOrder = map[string]int{"low": 0, "medium": 1, "high": 2, "critical": 3}

// SeverityRank orders severities for threshold comparison. Unknown values
// rank as medium.
func SeverityRank(severity string) int {
	if r, ok := severityOrder[severity]; ok {
		return r
	}
	return severityOrder["medium"]
}

// Resolution states of a downtime event, forward-only.
const (
	ResolutionPending       = "pending"
	ResolutionInvestigating = "investigating"
	ResolutionResolved      = "resolved"
)

// DowntimeEvent is an append-only stop incident logged against an order,
// independent of the order's lifecycle status: supervisors record downtime
// whenever it happened, not only while an order is stopped. Only the
// resolution fields and the end time are ever updated.
type DowntimeEvent struct {
	ID               int64      `gorm:"primaryKey" json:"id"`
	OrderID          int64      `gorm:"index;not null" json:"order_id"`
	Reason           string     `gorm:"size:256;not null" json:"reason"`
	Category         string     `gorm:"size:64;not null;default:other" json:"category"`
	Severity         string     `gorm:"size:16;not null;default:medium" json:"severity"`
	Notes            string     `gorm:"size:1024" json:"notes"`
	StartTime        time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	DurationMinutes  int        `gorm:"not null;default:0" json:"duration_minutes"`
	ResolutionStatus string     `gorm:"size:32;not null;default:pending;index" json:"resolution_status"`
	ResolutionNotes  string     `gorm:"size:1024" json:"resolution_notes"`
	ResolvedBy       *int64     `json:"resolved_by"`
	ResolvedAt       *time.Time `json:"resolved_at"`
	CostEstimate     float64    `json:"cost_estimate"`
	CreatedBy        int64      `json:"created_by"`
	CreatedAt        time.Time  `gorm:"not null" json:"created_at"`

	// Associations
	Order *Order `gorm:"foreignKey:OrderID" json:"-"`
}
