package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/proyeccion-moden/modengo/internal/models"
	"github.com/proyeccion-moden/modengo/internal/tracker"
	"gorm.io/gorm"
)

var (
	// ErrInvalidAssignment rejects a work item whose drawing belongs to a
	// different module or phase
	ErrInvalidAssignment = errors.New("drawing does not match module and phase")

	// ErrAlreadyDone rejects completion of an item that is already DONE
	ErrAlreadyDone = errors.New("work item already done")
)

// WorkQueue owns the per-desk queue state machine: the single-SHOWING
// invariant, auto-promotion on completion, and the desk drawing cache.
type WorkQueue struct {
	db      *gorm.DB
	tracker *tracker.Tracker

	// Per-desk serialization of promote/complete. Desks are independent,
	// so one desk's transition never waits on another's.
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// NewWorkQueue creates a WorkQueue service
func NewWorkQueue(db *gorm.DB, tr *tracker.Tracker) *WorkQueue {
	return &WorkQueue{
		db:      db,
		tracker: tr,
		locks:   make(map[uint]*sync.Mutex),
	}
}

// deskLock returns the mutex guarding a single desk's transitions
func (q *WorkQueue) deskLock(deskID uint) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	lock, ok := q.locks[deskID]
	if !ok {
		lock = &sync.Mutex{}
		q.locks[deskID] = lock
	}
	return lock
}

// EnqueueRequest describes a new work item assignment
type EnqueueRequest struct {
	DeskID    uint
	ModuleID  uint
	Phase     models.Phase
	DrawingID *uint
	Position  uint
	Actor     *models.UserAuth
}

// Enqueue assigns a module phase to a desk. If the drawing is set it must
// belong to the same module and phase, otherwise nothing is written. When
// the desk has no SHOWING item the new item starts SHOWING immediately and
// the desk cache is refreshed; otherwise it waits QUEUED at the requested
// position.
func (q *WorkQueue) Enqueue(req EnqueueRequest) (*models.WorkItem, error) {
	if !req.Phase.Valid() {
		return nil, fmt.Errorf("%w: unknown phase %q", ErrInvalidAssignment, req.Phase)
	}

	var desk models.Desk
	if err := q.db.First(&desk, req.DeskID).Error; err != nil {
		return nil, fmt.Errorf("desk %d: %w", req.DeskID, err)
	}
	var module models.Module
	if err := q.db.First(&module, req.ModuleID).Error; err != nil {
		return nil, fmt.Errorf("module %d: %w", req.ModuleID, err)
	}

	if req.DrawingID != nil {
		var drawing models.DrawingAsset
		if err := q.db.First(&drawing, *req.DrawingID).Error; err != nil {
			return nil, fmt.Errorf("drawing %d: %w", *req.DrawingID, err)
		}
		if drawing.ModuleID != req.ModuleID {
			return nil, fmt.Errorf("%w: drawing %d belongs to module %d, not %d",
				ErrInvalidAssignment, drawing.ID, drawing.ModuleID, req.ModuleID)
		}
		if drawing.Phase != req.Phase {
			return nil, fmt.Errorf("%w: drawing %d is phase %s, not %s",
				ErrInvalidAssignment, drawing.ID, drawing.Phase, req.Phase)
		}
	}

	lock := q.deskLock(req.DeskID)
	lock.Lock()
	defer lock.Unlock()

	item := &models.WorkItem{
		DeskID:    req.DeskID,
		ModuleID:  req.ModuleID,
		Phase:     req.Phase,
		DrawingID: req.DrawingID,
		Position:  req.Position,
		Status:    models.WorkItemQueued,
	}
	if req.Actor != nil {
		item.AssignedByID = &req.Actor.ID
	}

	err := q.db.Transaction(func(tx *gorm.DB) error {
		var showing int64
		if err := tx.Model(&models.WorkItem{}).
			Where("desk_id = ? AND status = ?", req.DeskID, models.WorkItemShowing).
			Count(&showing).Error; err != nil {
			return err
		}

		if showing == 0 {
			item.Status = models.WorkItemShowing
		}
		if err := tx.Create(item).Error; err != nil {
			return err
		}

		if item.Status == models.WorkItemShowing {
			return refreshDeskCache(tx, req.DeskID, item.DrawingID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Promote makes the given item the desk's SHOWING item, demoting any other
// SHOWING item back to QUEUED. Atomic under the desk lock so the single-
// SHOWING invariant never transiently breaks.
func (q *WorkQueue) Promote(itemID uint) (*models.WorkItem, error) {
	var item models.WorkItem
	if err := q.db.First(&item, itemID).Error; err != nil {
		return nil, fmt.Errorf("work item %d: %w", itemID, err)
	}

	lock := q.deskLock(item.DeskID)
	lock.Lock()
	defer lock.Unlock()

	err := q.db.Transaction(func(tx *gorm.DB) error {
		// Re-read under the desk lock: the status seen before the lock may
		// be stale by now
		if err := tx.First(&item, itemID).Error; err != nil {
			return err
		}
		if item.Status == models.WorkItemDone {
			return fmt.Errorf("%w: item %d", ErrAlreadyDone, itemID)
		}
		if err := tx.Model(&models.WorkItem{}).
			Where("desk_id = ? AND status = ? AND id <> ?",
				item.DeskID, models.WorkItemShowing, item.ID).
			Update("status", models.WorkItemQueued).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.WorkItem{}).Where("id = ?", item.ID).
			Update("status", models.WorkItemShowing).Error; err != nil {
			return err
		}
		return refreshDeskCache(tx, item.DeskID, item.DrawingID)
	})
	if err != nil {
		return nil, err
	}
	item.Status = models.WorkItemShowing
	return &item, nil
}

// Complete marks an item DONE, flags the module phase complete, and, when
// the item was SHOWING, promotes the next QUEUED item on the desk (lowest
// position, ties by ascending id). A QUEUED item may be force-completed
// without ever showing; the desk's SHOWING item stays in place. When nothing
// is queued the desk keeps showing the completed item's drawing rather than
// going blank.
func (q *WorkQueue) Complete(itemID uint, actor *models.UserAuth) (*models.WorkItem, error) {
	var item models.WorkItem
	if err := q.db.First(&item, itemID).Error; err != nil {
		return nil, fmt.Errorf("work item %d: %w", itemID, err)
	}

	lock := q.deskLock(item.DeskID)
	lock.Lock()
	defer lock.Unlock()

	err := q.db.Transaction(func(tx *gorm.DB) error {
		// Re-read under the desk lock: a concurrent call may have finished
		// this item between the initial load and here
		if err := tx.First(&item, itemID).Error; err != nil {
			return err
		}
		if item.Status == models.WorkItemDone {
			return fmt.Errorf("%w: item %d", ErrAlreadyDone, itemID)
		}
		wasShowing := item.Status == models.WorkItemShowing

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":  models.WorkItemDone,
			"done_at": now,
		}
		// Anonymous device callers leave done_by empty
		if actor != nil {
			updates["done_by_id"] = actor.ID
		}
		if err := tx.Model(&models.WorkItem{}).Where("id = ?", item.ID).
			Updates(updates).Error; err != nil {
			return err
		}
		item.Status = models.WorkItemDone
		item.DoneAt = &now
		if actor != nil {
			item.DoneByID = &actor.ID
		}

		if err := q.tracker.MarkPhaseDone(tx, item.ModuleID, item.Phase); err != nil {
			return err
		}

		// Only a SHOWING completion vacates the screen; a force-completed
		// queued item never held it, so nothing gets promoted
		if !wasShowing {
			return nil
		}

		var next models.WorkItem
		err := tx.Where("desk_id = ? AND status = ?", item.DeskID, models.WorkItemQueued).
			Order("position ASC, id ASC").
			First(&next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Queue drained: the desk keeps the last drawing on screen
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&models.WorkItem{}).Where("id = ?", next.ID).
			Update("status", models.WorkItemShowing).Error; err != nil {
			return err
		}
		return refreshDeskCache(tx, item.DeskID, next.DrawingID)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ReorderPair is one (item, position) assignment in a reorder batch
type ReorderPair struct {
	ItemID   uint `json:"id"`
	Position uint `json:"position"`
}

// Reorder rewrites queue positions. Each pair is applied independently;
// unknown ids and items of other desks are skipped without aborting the
// batch. Returns how many rows were actually updated.
func (q *WorkQueue) Reorder(deskID uint, pairs []ReorderPair) (int, error) {
	updated := 0
	for _, pair := range pairs {
		res := q.db.Model(&models.WorkItem{}).
			Where("id = ? AND desk_id = ?", pair.ItemID, deskID).
			Update("position", pair.Position)
		if res.Error != nil {
			return updated, res.Error
		}
		updated += int(res.RowsAffected)
	}
	return updated, nil
}

// ListForDesk returns the desk's full item history in queue order
func (q *WorkQueue) ListForDesk(deskID uint) ([]models.WorkItem, error) {
	var items []models.WorkItem
	err := q.db.Preload("Drawing").
		Where("desk_id = ?", deskID).
		Order("position ASC, id ASC").
		Find(&items).Error
	return items, err
}

// refreshDeskCache points the desk's cached drawing at the SHOWING item's
// drawing. Only queue transitions write this field; the UpdatedAt bump is
// what wakes the device update channel.
func refreshDeskCache(tx *gorm.DB, deskID uint, drawingID *uint) error {
	return tx.Model(&models.Desk{}).Where("id = ?", deskID).
		Updates(map[string]interface{}{
			"current_drawing_id": drawingID,
			"updated_at":         time.Now().UTC(),
		}).Error
}
