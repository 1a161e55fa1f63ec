package models

import "time"

// WorkItemStatus is the queue state of a work item on a desk
type WorkItemStatus string

const (
	WorkItemQueued  WorkItemStatus = "QUEUED"
	WorkItemShowing WorkItemStatus = "SHOWING"
	WorkItemDone    WorkItemStatus = "DONE"
)

// WorkItem is one phase of one module assigned to a desk, with the concrete
// drawing to show. Items are append-only history: normal operation never
// deletes them. At most one item per desk is SHOWING.
type WorkItem struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	DeskID   uint    `gorm:"not null;index:idx_work_item_desk_position;index:idx_work_item_desk_status" json:"deskId"`
	Desk     *Desk   `gorm:"foreignKey:DeskID" json:"-"`
	ModuleID uint    `gorm:"not null;index:idx_work_item_module_phase" json:"moduleId"`
	Module   *Module `gorm:"foreignKey:ModuleID" json:"-"`

	Phase     Phase         `gorm:"not null;index:idx_work_item_module_phase" json:"phase"`
	DrawingID *uint         `json:"drawingId,omitempty"`
	Drawing   *DrawingAsset `gorm:"foreignKey:DrawingID" json:"drawing,omitempty"`

	Position uint           `gorm:"default:0;index:idx_work_item_desk_position" json:"position"`
	Status   WorkItemStatus `gorm:"default:'QUEUED';index:idx_work_item_desk_status" json:"status"`

	AssignedByID *string   `gorm:"type:uuid" json:"assignedBy,omitempty"`
	AssignedAt   time.Time `gorm:"autoCreateTime" json:"assignedAt"`

	DoneByID *string    `gorm:"type:uuid" json:"doneBy,omitempty"`
	DoneAt   *time.Time `json:"doneAt,omitempty"`
}

// TableName specifies the table name for WorkItem
func (WorkItem) TableName() string {
	return "work_items"
}
