package tracker

import (
	"errors"
	"fmt"
	"time"

	"github.com/proyeccion-moden/modengo/internal/models"
	"gorm.io/gorm"
)

// ErrPhasesIncomplete rejects a close attempt while either phase is pending.
// Supervisor-facing, so the message names the actual blocker.
var ErrPhasesIncomplete = errors.New("module phases incomplete")

// Tracker derives a module's lifecycle state from its phase flags and
// handles supervisor closure.
type Tracker struct {
	db *gorm.DB
}

// New creates a Tracker on the given database handle
func New(db *gorm.DB) *Tracker {
	return &Tracker{db: db}
}

// MarkPhaseDone flags the given phase complete and recomputes the module
// state. Runs on the handle it is given so queue completion can call it
// inside its own transaction.
func (t *Tracker) MarkPhaseDone(tx *gorm.DB, moduleID uint, phase models.Phase) error {
	if tx == nil {
		tx = t.db
	}
	if !phase.Valid() {
		return fmt.Errorf("unknown phase %q", phase)
	}

	var module models.Module
	if err := tx.First(&module, moduleID).Error; err != nil {
		return fmt.Errorf("module %d: %w", moduleID, err)
	}

	switch phase {
	case models.PhaseInferior:
		module.InferiorDone = true
	case models.PhaseSuperior:
		module.SuperiorDone = true
	}
	module.State = models.DeriveState(module.Closed, module.InferiorDone, module.SuperiorDone)

	return tx.Model(&models.Module{}).Where("id = ?", module.ID).
		Updates(map[string]interface{}{
			"inferior_done": module.InferiorDone,
			"superior_done": module.SuperiorDone,
			"state":         module.State,
		}).Error
}

// Close records supervisor sign-off on a fully completed module. Fails with
// ErrPhasesIncomplete unless both phase flags are set. Closing an already
// closed module is a no-op.
func (t *Tracker) Close(moduleID uint, supervisor *models.UserAuth) (*models.Module, error) {
	var module models.Module
	err := t.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&module, moduleID).Error; err != nil {
			return fmt.Errorf("module %d: %w", moduleID, err)
		}

		if module.Closed {
			// Already signed off; keep the original closure metadata
			return nil
		}

		if !module.InferiorDone || !module.SuperiorDone {
			return fmt.Errorf("%w: inferior=%v superior=%v",
				ErrPhasesIncomplete, module.InferiorDone, module.SuperiorDone)
		}

		now := time.Now().UTC()
		module.Closed = true
		module.ClosedAt = &now
		if supervisor != nil {
			module.ClosedByID = &supervisor.ID
		}
		module.State = models.DeriveState(true, module.InferiorDone, module.SuperiorDone)

		return tx.Model(&models.Module{}).Where("id = ?", module.ID).
			Updates(map[string]interface{}{
				"closed":       true,
				"closed_at":    module.ClosedAt,
				"closed_by_id": module.ClosedByID,
				"state":        module.State,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &module, nil
}

// Recompute refreshes a module's derived state from its stored flags.
// Idempotent; used after manual flag edits from the admin surface.
func (t *Tracker) Recompute(moduleID uint) error {
	var module models.Module
	if err := t.db.First(&module, moduleID).Error; err != nil {
		return fmt.Errorf("module %d: %w", moduleID, err)
	}
	state := models.DeriveState(module.Closed, module.InferiorDone, module.SuperiorDone)
	if state == module.State {
		return nil
	}
	return t.db.Model(&models.Module{}).Where("id = ?", module.ID).
		Update("state", state).Error
}
