package model

import "time"

// MachineStatus is the operational state of a piece of equipment.
type MachineStatus string

const (
	MachineAvailable   MachineStatus = "available"
	MachineInUse       MachineStatus = "in_use"
	MachineMaintenance MachineStatus = "maintenance"
	MachineOffline     MachineStatus = "offline"
	MachinePaused      MachineStatus = "paused"
)

// DefaultMachineTransitions returns the compiled-in machine status graph.
// Deployments may override it through the lifecycle section of the config
// file; every administrative status change is validated against it.
func DefaultMachineTransitions() map[MachineStatus][]MachineStatus {
	return map[MachineStatus][]MachineStatus{
		MachineAvailable:   {MachineInUse, MachineMaintenance, MachineOffline},
		MachineInUse:       {MachinePaused, MachineAvailable, MachineOffline},
		MachinePaused:      {MachineInUse, MachineAvailable, MachineOffline},
		MachineMaintenance: {MachineAvailable, MachineOffline},
		MachineOffline:     {MachineAvailable, MachineMaintenance},
	}
}

// Machine represents a piece of production equipment. Its status is the only
// field the lifecycle core mutates; the rest is administrative metadata. The
// currently bound order is derived by querying active orders, never stored.
type Machine struct {
	ID          int64         `gorm:"primaryKey" json:"id"`
	Name        string        `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Type        string        `gorm:"size:64" json:"type"`
	Environment string        `gorm:"size:64;index" json:"environment"`
	Status      MachineStatus `gorm:"size:32;not null;default:available" json:"status"`
	Capacity    int           `gorm:"not null;default:100" json:"capacity"`
	CreatedAt   time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null" json:"updated_at"`
}
