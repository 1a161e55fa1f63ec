package models

import (
	"time"

	"gorm.io/datatypes"
)

// Desk is a physical workstation with a display device, showing at most one
// drawing at a time.
type Desk struct {
	ID      uint      `gorm:"primaryKey" json:"id"`
	Name    string    `gorm:"not null" json:"name"`
	OwnerID *string   `gorm:"type:uuid" json:"ownerId,omitempty"`
	Owner   *UserAuth `gorm:"foreignKey:OwnerID" json:"-"`

	// Cache of the SHOWING work item's drawing. The work queue is the
	// source of truth; this field is only ever written by queue transitions.
	CurrentDrawingID *uint         `json:"currentDrawingId,omitempty"`
	CurrentDrawing   *DrawingAsset `gorm:"foreignKey:CurrentDrawingID" json:"currentDrawing,omitempty"`

	// Operational flags
	Locked    bool       `gorm:"default:false" json:"locked"`
	Blackout  bool       `gorm:"default:false" json:"blackout"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
	LastError string     `json:"lastError,omitempty"`

	// Device pairing. Only the SHA-256 hash of the bearer token is stored;
	// the raw token lives transiently in StagedDeviceToken.
	DeviceTokenHash      *string        `gorm:"size:128;uniqueIndex" json:"-"`
	PairingCode          *string        `gorm:"size:10" json:"-"`
	PairingCodeExpiresAt *time.Time     `json:"-"`
	Calibration          datatypes.JSON `json:"calibration,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for Desk
func (Desk) TableName() string {
	return "desks"
}

// PairingSession is the transient handshake state for deferred pairing,
// where the device shows a code before an operator picks the desk.
type PairingSession struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PairingCode string    `gorm:"size:10;uniqueIndex;not null" json:"pairingCode"`
	ExpiresAt   time.Time `gorm:"not null" json:"expiresAt"`

	// Filled in on confirm
	DeviceTokenHash *string `gorm:"size:128" json:"-"`
	DeskID          *uint   `json:"deskId,omitempty"`
	Desk            *Desk   `gorm:"foreignKey:DeskID" json:"-"`

	DeviceInfo datatypes.JSON `json:"deviceInfo,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// TableName specifies the table name for PairingSession
func (PairingSession) TableName() string {
	return "pairing_sessions"
}

// StagedDeviceToken holds a freshly minted raw device token until its first
// (and only) retrieval through the pairing status poll. Persisted so the
// exactly-once handoff survives a server restart; deleted on read.
type StagedDeviceToken struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	DeskID      uint      `gorm:"not null;index" json:"-"`
	SessionID   *uint     `gorm:"index" json:"-"`
	PairingCode string    `gorm:"size:10;index" json:"-"`
	Token       string    `gorm:"not null" json:"-"`
	CreatedAt   time.Time `json:"-"`
}

// TableName specifies the table name for StagedDeviceToken
func (StagedDeviceToken) TableName() string {
	return "staged_device_tokens"
}
