package updates

import (
	"fmt"
	"time"

	"github.com/proyeccion-moden/modengo/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ScreenSnapshot is the single event type of the device update channel:
// everything a display needs to render its desk. Sent once on connect and
// again whenever the desk record advances.
type ScreenSnapshot struct {
	Type        string         `json:"type"`
	DeskID      uint           `json:"deskId"`
	Calibration datatypes.JSON `json:"calibration,omitempty"`
	DrawingID   *uint          `json:"drawingId,omitempty"`
	DrawingURL  string         `json:"drawingUrl,omitempty"`
	Locked      bool           `json:"locked"`
	Blackout    bool           `json:"blackout"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Snapshot reads the current display state of a desk
func Snapshot(db *gorm.DB, deskID uint) (*ScreenSnapshot, error) {
	var desk models.Desk
	if err := db.Preload("CurrentDrawing").First(&desk, deskID).Error; err != nil {
		return nil, fmt.Errorf("desk %d: %w", deskID, err)
	}

	snap := &ScreenSnapshot{
		Type:        "calibration",
		DeskID:      desk.ID,
		Calibration: desk.Calibration,
		DrawingID:   desk.CurrentDrawingID,
		Locked:      desk.Locked,
		Blackout:    desk.Blackout,
		UpdatedAt:   desk.UpdatedAt,
	}
	if desk.CurrentDrawing != nil {
		snap.DrawingURL = desk.CurrentDrawing.URL
	}
	return snap, nil
}
