package models

import "time"

// PlanningQueue is the project-level backlog of modules awaiting work
// assignment. One queue per project.
type PlanningQueue struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	ProjectID uint     `gorm:"not null;uniqueIndex" json:"projectId"`
	Project   *Project `gorm:"foreignKey:ProjectID" json:"-"`

	Active      bool      `gorm:"default:true" json:"active"`
	CreatedByID *string   `gorm:"type:uuid" json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TableName specifies the table name for PlanningQueue
func (PlanningQueue) TableName() string {
	return "planning_queues"
}

// PlanningQueueEntry is an ordered backlog entry. A module appears at most
// once per queue.
type PlanningQueueEntry struct {
	ID       uint           `gorm:"primaryKey" json:"id"`
	QueueID  uint           `gorm:"not null;uniqueIndex:uniq_module_in_queue;index:idx_planning_queue_position" json:"queueId"`
	Queue    *PlanningQueue `gorm:"foreignKey:QueueID" json:"-"`
	ModuleID uint           `gorm:"not null;uniqueIndex:uniq_module_in_queue" json:"moduleId"`
	Module   *Module        `gorm:"foreignKey:ModuleID" json:"module,omitempty"`

	Position  uint      `gorm:"default:0;index:idx_planning_queue_position" json:"position"`
	AddedByID *string   `gorm:"type:uuid" json:"addedBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name for PlanningQueueEntry
func (PlanningQueueEntry) TableName() string {
	return "planning_queue_entries"
}
