package models

import (
	"time"

	"gorm.io/gorm"
)

// User roles
const (
	RoleUser       = "user"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

// UserAuth represents an operator or supervisor account
// Standardized: Go (PascalCase) -> DB (snake_case) -> JSON (camelCase)
type UserAuth struct {
	ID        string     `gorm:"primaryKey;type:uuid" json:"id"`
	Username  string     `gorm:"unique;not null" json:"username"`
	Password  string     `gorm:"not null" json:"-"`
	Email     string     `gorm:"unique;not null" json:"email"`
	Name      string     `json:"name,omitempty"`
	Role      string     `gorm:"default:'user'" json:"role"`
	IsActive  bool       `gorm:"default:true" json:"isActive"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for UserAuth model
func (UserAuth) TableName() string {
	return "user_auths"
}

// IsSupervisor reports whether the user can close modules and revoke devices
func (u *UserAuth) IsSupervisor() bool {
	return u.Role == RoleSupervisor || u.Role == RoleAdmin
}
