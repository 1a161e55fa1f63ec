package models

import "time"

// DrawingStatus is the publication status of a drawing revision
type DrawingStatus string

const (
	DrawingDraft     DrawingStatus = "DRAFT"
	DrawingPublished DrawingStatus = "PUBLISHED"
	DrawingArchived  DrawingStatus = "ARCHIVED"
)

// DrawingAsset is a versioned drawing image tied to one module, phase and
// sequence number. The (module, phase, sequence, version) tuple is unique.
type DrawingAsset struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	URL      string  `json:"url"`
	ModuleID uint    `gorm:"not null;uniqueIndex:uniq_drawing_identity;index:idx_drawing_module_phase" json:"moduleId"`
	Module   *Module `gorm:"foreignKey:ModuleID" json:"-"`

	Phase    Phase         `gorm:"not null;uniqueIndex:uniq_drawing_identity;index:idx_drawing_module_phase" json:"phase"`
	Sequence uint          `gorm:"not null;default:1;uniqueIndex:uniq_drawing_identity" json:"sequence"`
	Version  uint          `gorm:"not null;default:1;uniqueIndex:uniq_drawing_identity" json:"version"`
	Status   DrawingStatus `gorm:"default:'DRAFT'" json:"status"`
	Active   bool          `gorm:"default:true" json:"active"`
	Checksum string        `gorm:"size:64" json:"checksum,omitempty"`

	UploadedByID *string   `gorm:"type:uuid" json:"uploadedBy,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName specifies the table name for DrawingAsset
func (DrawingAsset) TableName() string {
	return "drawing_assets"
}
