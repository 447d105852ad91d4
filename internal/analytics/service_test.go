package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"factory-floor-backend/internal/model"
)

func openTestDB(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.Machine{}, &model.Order{}, &model.DowntimeEvent{}))
	return db
}

func seedShift(t *testing.T, db *gorm.DB, w Window) {
	t.Helper()

	machines := []model.Machine{
		{ID: 1, Name: "CNC-01", Type: "cnc", Environment: "production", Status: model.MachineAvailable, Capacity: 100},
		{ID: 2, Name: "CNC-02", Type: "cnc", Environment: "production", Status: model.MachineInUse, Capacity: 100},
	}
	require.NoError(t, db.Create(&machines).Error)

	m1, m2 := int64(1), int64(2)
	started := w.From                     // 08:00
	finished := w.From.Add(6 * time.Hour) // 14:00
	startedLater := w.From.Add(2 * time.Hour)
	actual := 95

	orders := []model.Order{
		{
			ID: 1, OrderNumber: "ORD-20260301-A1", ProductName: "bracket", TargetQuantity: 100,
			ActualQuantity: &actual, Priority: "normal", Status: model.OrderCompleted,
			Environment: "production", MachineID: &m1, CreatedBy: 1,
			StartTime: &started, CompleteTime: &finished,
		},
		{
			ID: 2, OrderNumber: "ORD-20260301-B2", ProductName: "housing", TargetQuantity: 50,
			Priority: "high", Status: model.OrderInProgress,
			Environment: "production", MachineID: &m2, CreatedBy: 1,
			StartTime: &startedLater,
		},
		// Cancelled mid-run with no completion timestamp, so its span cannot
		// be bounded and it stays out of the run total.
		{
			ID: 3, OrderNumber: "ORD-20260301-C3", ProductName: "flange", TargetQuantity: 10,
			Priority: "low", Status: model.OrderCancelled, Archived: true,
			Environment: "production", MachineID: &m1, CreatedBy: 1,
			StartTime: &started,
		},
	}
	require.NoError(t, db.Create(&orders).Error)

	resolvedBy := int64(7)
	resolvedAt := w.From.Add(2 * time.Hour)
	events := []model.DowntimeEvent{
		{
			ID: 1, OrderID: 1, Reason: "belt snapped", Category: "equipment", Severity: "high",
			StartTime: w.From.Add(1 * time.Hour), DurationMinutes: 60,
			ResolutionStatus: model.ResolutionResolved, ResolvedBy: &resolvedBy, ResolvedAt: &resolvedAt,
			CreatedBy: 1,
		},
		{
			ID: 2, OrderID: 2, Reason: "material shortage", Category: "material", Severity: "medium",
			StartTime: w.From.Add(3 * time.Hour), DurationMinutes: 30,
			ResolutionStatus: model.ResolutionPending, CreatedBy: 1,
		},
		// Previous shift, outside the report window.
		{
			ID: 3, OrderID: 2, Reason: "belt snapped", Category: "equipment", Severity: "low",
			StartTime: w.From.Add(-7 * time.Hour), DurationMinutes: 30,
			ResolutionStatus: model.ResolutionPending, CreatedBy: 1,
		},
	}
	require.NoError(t, db.Create(&events).Error)
}

func TestOEEReportOverShift(t *testing.T) {
	db := openTestDB(t, "file:oee_shift?mode=memory&cache=shared")
	w := Window{
		From: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC),
	}
	seedShift(t, db, w)
	svc := NewService(db)

	rep, err := svc.OEE(context.Background(), w, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.MachineCount)
	assert.InDelta(t, 960.0, rep.PlannedMinutes, 1e-9)
	assert.InDelta(t, 90.0, rep.DowntimeMinutes, 1e-9)
	// Order 1 ran 08:00 to 14:00, order 2 from 10:00 clamps to 16:00.
	assert.InDelta(t, 720.0, rep.RunMinutes, 1e-9)
	assert.Equal(t, 2, rep.Incidents)
	assert.Equal(t, 1, rep.OrdersCompleted)

	assert.InDelta(t, 90.625, rep.AvailabilityPct, 1e-9)
	assert.InDelta(t, 100*720.0/870.0, rep.PerformancePct, 1e-9)
	assert.InDelta(t, 95.0, rep.QualityPct, 1e-9)
	assert.InDelta(t, 71.25, rep.OEEPct, 1e-9)

	assert.InDelta(t, 240.0, rep.MTBFMinutes, 1e-9)
	assert.InDelta(t, 90.0, rep.MTTRMinutes, 1e-9)

	// The previous shift produced nothing, so any output trends upward.
	assert.Equal(t, TrendIncreasing, rep.Trend)
}

func TestOEEReportScopedToMachine(t *testing.T) {
	db := openTestDB(t, "file:oee_scoped?mode=memory&cache=shared")
	w := Window{
		From: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC),
	}
	seedShift(t, db, w)
	svc := NewService(db)

	machineID := int64(1)
	rep, err := svc.OEE(context.Background(), w, &machineID)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.MachineCount)
	assert.InDelta(t, 480.0, rep.PlannedMinutes, 1e-9)
	// Only the incident on machine 1's order counts here.
	assert.InDelta(t, 60.0, rep.DowntimeMinutes, 1e-9)
	assert.Equal(t, 1, rep.Incidents)
	assert.InDelta(t, 360.0, rep.RunMinutes, 1e-9)

	assert.InDelta(t, 87.5, rep.AvailabilityPct, 1e-9)
	assert.InDelta(t, 100*360.0/420.0, rep.PerformancePct, 1e-9)
	assert.InDelta(t, 95.0, rep.QualityPct, 1e-9)
	assert.InDelta(t, 480.0, rep.MTBFMinutes, 1e-9)
	assert.InDelta(t, 60.0, rep.MTTRMinutes, 1e-9)
}

func TestOEEReportEmptyDatabase(t *testing.T) {
	db := openTestDB(t, "file:oee_empty?mode=memory&cache=shared")
	w := Window{
		From: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC),
	}
	svc := NewService(db)

	rep, err := svc.OEE(context.Background(), w, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, rep.MachineCount)
	assert.Equal(t, 0.0, rep.PlannedMinutes)
	assert.Equal(t, 0.0, rep.AvailabilityPct)
	assert.Equal(t, 0.0, rep.PerformancePct)
	assert.Equal(t, 0.0, rep.QualityPct)
	assert.Equal(t, 0.0, rep.OEEPct)
	// No incidents leaves MTBF at the window itself.
	assert.InDelta(t, 480.0, rep.MTBFMinutes, 1e-9)
	assert.Equal(t, 0.0, rep.MTTRMinutes)
	assert.Equal(t, TrendStable, rep.Trend)
}

func TestDowntimeSummary(t *testing.T) {
	db := openTestDB(t, "file:oee_downtime?mode=memory&cache=shared")
	w := Window{
		From: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC),
	}
	seedShift(t, db, w)
	svc := NewService(db)

	sum, err := svc.Downtime(context.Background(), w)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.TotalEvents)
	assert.InDelta(t, 90.0, sum.TotalMinutes, 1e-9)
	assert.Equal(t, 1, sum.OpenEvents)
	assert.Equal(t, 1, sum.ResolvedEvents)

	assert.InDelta(t, 60.0, sum.ByCategory["equipment"], 1e-9)
	assert.InDelta(t, 30.0, sum.ByCategory["material"], 1e-9)
	assert.InDelta(t, 60.0, sum.BySeverity["high"], 1e-9)
	assert.InDelta(t, 30.0, sum.BySeverity["medium"], 1e-9)

	require.Len(t, sum.TopReasons, 2)
	// Equal counts fall back to minutes, so the longer outage leads.
	assert.Equal(t, "belt snapped", sum.TopReasons[0].Reason)
	assert.InDelta(t, 60.0, sum.TopReasons[0].Minutes, 1e-9)
	assert.Equal(t, "material shortage", sum.TopReasons[1].Reason)

	assert.InDelta(t, 240.0, sum.MTBFMinutes, 1e-9)
	assert.InDelta(t, 90.0, sum.MTTRMinutes, 1e-9)
}
