package models

import "time"

// Phase identifies the structural layer of a module a drawing belongs to
type Phase string

const (
	PhaseInferior Phase = "INFERIOR"
	PhaseSuperior Phase = "SUPERIOR"
)

// Valid reports whether the phase is one of the two known layers
func (p Phase) Valid() bool {
	return p == PhaseInferior || p == PhaseSuperior
}

// ModuleState is the derived lifecycle state of a module
type ModuleState string

const (
	ModulePending    ModuleState = "PENDING"
	ModuleInProgress ModuleState = "IN_PROGRESS"
	ModuleCompleted  ModuleState = "COMPLETED"
	ModuleClosed     ModuleState = "CLOSED"
)

// Module is a unit of construction work with two independently tracked phases
type Module struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	Name      string   `gorm:"not null" json:"name"`
	ProjectID uint     `gorm:"not null;index" json:"projectId"`
	Project   *Project `gorm:"foreignKey:ProjectID" json:"-"`
	FloorID   *uint    `gorm:"index" json:"floorId,omitempty"`
	Floor     *Floor   `gorm:"foreignKey:FloorID" json:"-"`

	// Phase completion flags; State is derived, never written directly
	InferiorDone bool        `gorm:"default:false" json:"inferiorDone"`
	SuperiorDone bool        `gorm:"default:false" json:"superiorDone"`
	State        ModuleState `gorm:"default:'PENDING'" json:"state"`

	// Supervisor sign-off. Once set, Closed is latched: later phase-flag
	// writes never revert it.
	Closed     bool       `gorm:"default:false" json:"closed"`
	ClosedAt   *time.Time `json:"closedAt,omitempty"`
	ClosedByID *string    `gorm:"type:uuid" json:"closedBy,omitempty"`
	ClosedBy   *UserAuth  `gorm:"foreignKey:ClosedByID" json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for Module
func (Module) TableName() string {
	return "modules"
}

// DeriveState computes the lifecycle state from the closure and phase flags.
// Pure and idempotent; caller persists the result.
func DeriveState(closed, inferiorDone, superiorDone bool) ModuleState {
	switch {
	case closed:
		return ModuleClosed
	case inferiorDone && superiorDone:
		return ModuleCompleted
	case inferiorDone || superiorDone:
		return ModuleInProgress
	default:
		return ModulePending
	}
}
