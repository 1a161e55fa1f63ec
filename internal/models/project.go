package models

import "time"

// Project is the top level of the hierarchy: Project -> Floor -> Module
type Project struct {
	ID      uint      `gorm:"primaryKey" json:"id"`
	Name    string    `gorm:"not null" json:"name"`
	OwnerID *string   `gorm:"type:uuid" json:"ownerId,omitempty"`
	Owner   *UserAuth `gorm:"foreignKey:OwnerID" json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for Project
func (Project) TableName() string {
	return "projects"
}

// Floor is a level within a project. Modules hang off floors, but the
// floor link stays optional to keep legacy flat projects working.
type Floor struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	Name      string   `gorm:"not null;uniqueIndex:uniq_floor_name_per_project" json:"name"`
	ProjectID uint     `gorm:"not null;uniqueIndex:uniq_floor_name_per_project" json:"projectId"`
	Project   *Project `gorm:"foreignKey:ProjectID" json:"-"`
	Ordinal   uint     `gorm:"default:0" json:"ordinal"`
}

// TableName specifies the table name for Floor
func (Floor) TableName() string {
	return "floors"
}
