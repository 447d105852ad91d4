package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"factory-floor-backend/internal/model"
	"factory-floor-backend/internal/parse"
)

var resolutionRank = map[string]int{
	model.ResolutionPending:       0,
	model.ResolutionInvestigating: 1,
	model.ResolutionResolved:      2,
}

// LogDowntime appends a stop incident to the ledger. The order's lifecycle
// status is not consulted: downtime reasons for analytics are a separate
// concern from the order's pause/stop state.
func (s *gormStore) LogDowntime(ctx context.Context, input DowntimeInput) (*model.DowntimeEvent, error) {
	if strings.TrimSpace(input.Reason) == "" {
		return nil, validationErr("reason is required")
	}
	category := input.Category
	if category == "" {
		category = "other"
	}
	if !contains(model.DowntimeCategories, category) {
		return nil, validationErr("unknown category %q", category)
	}
	severity := input.Severity
	if severity == "" {
		severity = "medium"
	}
	if !contains(model.DowntimeSeverities, severity) {
		return nil, validationErr("unknown severity %q", severity)
	}

	start := time.Now()
	if input.StartTime != nil {
		start = *input.StartTime
	}
	if input.EndTime != nil && input.EndTime.Before(start) {
		return nil, validationErr("end_time precedes start_time")
	}

	duration := 0
	if input.EndTime != nil {
		duration = int(input.EndTime.Sub(start).Minutes())
	} else if input.EstimatedDuration != "" {
		mins, err := parse.DurationMinutes(input.EstimatedDuration)
		if err != nil {
			return nil, validationErr("bad estimated_duration: %v", err)
		}
		duration = mins
	}

	event := model.DowntimeEvent{
		OrderID:          input.OrderID,
		Reason:           strings.TrimSpace(input.Reason),
		Category:         category,
		Severity:         severity,
		Notes:            input.Notes,
		StartTime:        start,
		EndTime:          input.EndTime,
		DurationMinutes:  duration,
		ResolutionStatus: model.ResolutionPending,
		CostEstimate:     input.CostEstimate,
		CreatedBy:        input.CreatedBy,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getOrderForUpdate(tx, input.OrderID); err != nil {
			return err
		}
		if err := tx.Create(&event).Error; err != nil {
			return dbErr(err, "create downtime event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ResolveDowntime advances an incident's resolution. The ledger is
// append-only: only resolution fields and the end time ever change, and the
// resolution status moves forward only.
func (s *gormStore) ResolveDowntime(ctx context.Context, input ResolveDowntimeInput) (*model.DowntimeEvent, error) {
	rank, ok := resolutionRank[input.ResolutionStatus]
	if !ok {
		return nil, validationErr("unknown resolution_status %q", input.ResolutionStatus)
	}
	var out model.DowntimeEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event model.DowntimeEvent
		if err := tx.First(&event, input.DowntimeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("downtime event %d not found", input.DowntimeID)
			}
			return dbErr(err, "load downtime event")
		}
		if rank <= resolutionRank[event.ResolutionStatus] {
			return cloneErr(ErrInvalidTransition,
				"resolution moves forward only: "+event.ResolutionStatus+" -> "+input.ResolutionStatus, nil)
		}

		updates := map[string]any{
			"resolution_status": input.ResolutionStatus,
		}
		if input.ResolutionNotes != "" {
			updates["resolution_notes"] = input.ResolutionNotes
		}
		if input.EndTime != nil {
			if input.EndTime.Before(event.StartTime) {
				return validationErr("end_time precedes start_time")
			}
			updates["end_time"] = *input.EndTime
			updates["duration_minutes"] = int(input.EndTime.Sub(event.StartTime).Minutes())
		}
		if input.ResolutionStatus == model.ResolutionResolved {
			updates["resolved_by"] = input.ResolvedBy
			updates["resolved_at"] = time.Now()
		}

		res := tx.Model(&model.DowntimeEvent{}).
			Where("id = ? AND resolution_status = ?", event.ID, event.ResolutionStatus).
			Updates(updates)
		if res.Error != nil {
			return dbErr(res.Error, "update downtime event")
		}
		if res.RowsAffected == 0 {
			return conflictErr("downtime event %d was modified concurrently", event.ID)
		}
		return tx.First(&out, event.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetDowntime loads one incident with its order.
func (s *gormStore) GetDowntime(ctx context.Context, downtimeID int64) (*model.DowntimeEvent, error) {
	var event model.DowntimeEvent
	err := s.db.WithContext(ctx).Preload("Order").First(&event, downtimeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundErr("downtime event %d not found", downtimeID)
	}
	if err != nil {
		return nil, dbErr(err, "load downtime event")
	}
	return &event, nil
}

// ListDowntime returns incidents matching the filter, newest first.
func (s *gormStore) ListDowntime(ctx context.Context, filter DowntimeFilter) ([]model.DowntimeEvent, error) {
	q := s.db.WithContext(ctx).Model(&model.DowntimeEvent{})
	if filter.OrderID > 0 {
		q = q.Where("order_id = ?", filter.OrderID)
	}
	if filter.ResolutionStatus != "" {
		q = q.Where("resolution_status = ?", filter.ResolutionStatus)
	}
	if filter.From != nil {
		q = q.Where("start_time >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("start_time < ?", *filter.To)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var events []model.DowntimeEvent
	if err := q.Order("start_time DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, dbErr(err, "list downtime events")
	}
	return events, nil
}

// LogWaste appends a scrap record to the ledger.
func (s *gormStore) LogWaste(ctx context.Context, input WasteInput) (*model.WasteEvent, error) {
	if strings.TrimSpace(input.WasteType) == "" {
		return nil, validationErr("waste_type is required")
	}
	if input.Quantity <= 0 {
		return nil, validationErr("quantity must be positive, got %v", input.Quantity)
	}
	unit := input.Unit
	if unit == "" {
		unit = "units"
	}
	event := model.WasteEvent{
		OrderID:   input.OrderID,
		WasteType: strings.TrimSpace(input.WasteType),
		Quantity:  input.Quantity,
		Unit:      unit,
		Cost:      input.Cost,
		CreatedBy: input.CreatedBy,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getOrderForUpdate(tx, input.OrderID); err != nil {
			return err
		}
		if err := tx.Create(&event).Error; err != nil {
			return dbErr(err, "create waste event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListWaste returns scrap records for one order, newest first.
func (s *gormStore) ListWaste(ctx context.Context, orderID int64) ([]model.WasteEvent, error) {
	q := s.db.WithContext(ctx).Model(&model.WasteEvent{})
	if orderID > 0 {
		q = q.Where("order_id = ?", orderID)
	}
	var events []model.WasteEvent
	if err := q.Order("id DESC").Find(&events).Error; err != nil {
		return nil, dbErr(err, "list waste events")
	}
	return events, nil
}

// UpsertAlertSubscription stores a push subscription, updating keys and the
// severity threshold when the endpoint is already registered.
func (s *gormStore) UpsertAlertSubscription(ctx context.Context, sub *model.AlertSubscription) error {
	if sub.MinSeverity != "" && !contains(model.DowntimeSeverities, sub.MinSeverity) {
		return validationErr("unknown severity %q", sub.MinSeverity)
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "user_id", "min_severity"}),
	}).Create(sub).Error
	if err != nil {
		return dbErr(err, "upsert alert subscription")
	}
	return nil
}

// DeleteAlertSubscription removes a push subscription by endpoint.
func (s *gormStore) DeleteAlertSubscription(ctx context.Context, endpoint string) error {
	err := s.db.WithContext(ctx).Delete(&model.AlertSubscription{}, "endpoint = ?", endpoint).Error
	if err != nil {
		return dbErr(err, "delete alert subscription")
	}
	return nil
}
