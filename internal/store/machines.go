package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"factory-floor-backend/internal/model"
)

// claimMachine is the allocation guard: a single conditional update that
// succeeds for exactly one caller. Zero affected rows means another request
// claimed the machine between our read and this write.
func claimMachine(tx *gorm.DB, machineID int64) error {
	res := tx.Model(&model.Machine{}).
		Where("id = ? AND status = ?", machineID, model.MachineAvailable).
		Update("status", model.MachineInUse)
	if res.Error != nil {
		return dbErr(res.Error, "claim machine")
	}
	if res.RowsAffected == 0 {
		return conflictErr("machine %d was claimed by another order", machineID)
	}
	return nil
}

// releaseMachine returns a machine to the pool unconditionally.
func releaseMachine(tx *gorm.DB, machineID int64) error {
	res := tx.Model(&model.Machine{}).
		Where("id = ?", machineID).
		Update("status", model.MachineAvailable)
	if res.Error != nil {
		return dbErr(res.Error, "release machine")
	}
	return nil
}

// CreateMachine registers a piece of equipment.
func (s *gormStore) CreateMachine(ctx context.Context, input CreateMachineInput) (*model.Machine, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, validationErr("name is required")
	}
	capacity := input.Capacity
	if capacity <= 0 {
		capacity = 100
	}
	environment := input.Environment
	if environment == "" {
		environment = "production"
	}
	machine := model.Machine{
		Name:        strings.TrimSpace(input.Name),
		Type:        input.Type,
		Environment: environment,
		Status:      model.MachineAvailable,
		Capacity:    capacity,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Machine{}).Where("name = ?", machine.Name).Count(&count).Error; err != nil {
			return dbErr(err, "check machine name")
		}
		if count > 0 {
			return conflictErr("machine %q already exists", machine.Name)
		}
		if err := tx.Create(&machine).Error; err != nil {
			return dbErr(err, "create machine")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &machine, nil
}

// GetMachine loads one machine.
func (s *gormStore) GetMachine(ctx context.Context, machineID int64) (*model.Machine, error) {
	var machine model.Machine
	err := s.db.WithContext(ctx).First(&machine, machineID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundErr("machine %d not found", machineID)
	}
	if err != nil {
		return nil, dbErr(err, "load machine")
	}
	return &machine, nil
}

// ListMachines returns machines matching the filter, by name.
func (s *gormStore) ListMachines(ctx context.Context, filter MachineFilter) ([]model.Machine, error) {
	q := s.db.WithContext(ctx).Model(&model.Machine{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Environment != "" {
		q = q.Where("environment = ?", filter.Environment)
	}
	var machines []model.Machine
	if err := q.Order("name ASC").Find(&machines).Error; err != nil {
		return nil, dbErr(err, "list machines")
	}
	return machines, nil
}

// ActiveOrderForMachine returns the order currently holding the machine, or
// nil when the machine is unbound. The exclusivity invariant guarantees at
// most one such order exists.
func (s *gormStore) ActiveOrderForMachine(ctx context.Context, machineID int64) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Where("machine_id = ? AND status IN ?", machineID, activeOrderStatuses()).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err, "load active order")
	}
	return &order, nil
}

// SetMachineStatus applies an administrative status change, validated against
// the configured machine transition table. The update is conditional on the
// status we read, so racing administrators lose with Conflict.
func (s *gormStore) SetMachineStatus(ctx context.Context, machineID int64, status model.MachineStatus, actor int64) (*model.Machine, error) {
	var out model.Machine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var machine model.Machine
		if err := tx.First(&machine, machineID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("machine %d not found", machineID)
			}
			return dbErr(err, "load machine")
		}
		if machine.Status == status {
			out = machine
			return nil
		}
		if !s.tables.machineAllowed(machine.Status, status) {
			return cloneErr(ErrInvalidTransition,
				"invalid machine transition: "+string(machine.Status)+" -> "+string(status), nil)
		}
		res := tx.Model(&model.Machine{}).
			Where("id = ? AND status = ?", machineID, machine.Status).
			Update("status", status)
		if res.Error != nil {
			return dbErr(res.Error, "update machine status")
		}
		if res.RowsAffected == 0 {
			return conflictErr("machine %d was modified concurrently", machineID)
		}
		return tx.First(&out, machineID).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SyncMachineStatuses reconciles every machine's status with the set of
// active orders bound to it, repairing drift left by partial failures. All
// corrections are conditional updates, so running concurrently with live
// traffic can only skip a repair, never clobber a fresh claim. Machines in
// maintenance, offline or paused are left alone.
func (s *gormStore) SyncMachineStatuses(ctx context.Context) (*SyncSummary, error) {
	summary := &SyncSummary{Corrections: []MachineCorrection{}}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var machines []model.Machine
		if err := tx.Find(&machines).Error; err != nil {
			return dbErr(err, "list machines")
		}

		var boundIDs []int64
		if err := tx.Model(&model.Order{}).
			Where("machine_id IS NOT NULL AND status IN ?", activeOrderStatuses()).
			Pluck("machine_id", &boundIDs).Error; err != nil {
			return dbErr(err, "list bound machines")
		}
		bound := make(map[int64]bool, len(boundIDs))
		for _, id := range boundIDs {
			bound[id] = true
		}

		for _, m := range machines {
			summary.Checked++
			var want model.MachineStatus
			switch {
			case bound[m.ID] && m.Status == model.MachineAvailable:
				want = model.MachineInUse
			case !bound[m.ID] && m.Status == model.MachineInUse:
				want = model.MachineAvailable
			default:
				continue
			}
			res := tx.Model(&model.Machine{}).
				Where("id = ? AND status = ?", m.ID, m.Status).
				Update("status", want)
			if res.Error != nil {
				return dbErr(res.Error, "correct machine status")
			}
			if res.RowsAffected == 1 {
				summary.Corrections = append(summary.Corrections, MachineCorrection{
					MachineID: m.ID, From: m.Status, To: want,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func activeOrderStatuses() []model.OrderStatus {
	return model.ActiveOrderStatuses()
}

// ListEnvironments aggregates machine counts per floor zone, merging in
// administrative metadata from the environments table when present.
func (s *gormStore) ListEnvironments(ctx context.Context) ([]EnvironmentSummary, error) {
	type aggRow struct {
		Environment   string
		Status        model.MachineStatus
		TotalMachines int64
	}
	var aggs []aggRow
	if err := s.db.WithContext(ctx).
		Model(&model.Machine{}).
		Select("environment, status, COUNT(*) as total_machines").
		Group("environment").Group("status").
		Order("environment ASC").
		Scan(&aggs).Error; err != nil {
		return nil, dbErr(err, "aggregate machines")
	}

	var envs []model.Environment
	if err := s.db.WithContext(ctx).Find(&envs).Error; err != nil {
		return nil, dbErr(err, "list environments")
	}
	meta := make(map[string]model.Environment, len(envs))
	for _, e := range envs {
		meta[e.Code] = e
	}

	byCode := make(map[string]*EnvironmentSummary)
	order := make([]string, 0)
	for _, a := range aggs {
		sum, ok := byCode[a.Environment]
		if !ok {
			sum = &EnvironmentSummary{
				Code:     a.Environment,
				ByStatus: make(map[model.MachineStatus]int),
			}
			if m, found := meta[a.Environment]; found {
				sum.Name = m.Name
				sum.Description = m.Description
			}
			byCode[a.Environment] = sum
			order = append(order, a.Environment)
		}
		sum.TotalMachines += a.TotalMachines
		sum.ByStatus[a.Status] += int(a.TotalMachines)
	}

	out := make([]EnvironmentSummary, 0, len(order))
	for _, code := range order {
		out = append(out, *byCode[code])
	}
	return out, nil
}
