package queue

import (
	"errors"
	"fmt"

	"github.com/proyeccion-moden/modengo/internal/models"
	"gorm.io/gorm"
)

// ErrDuplicateEntry rejects pushing a module that is already in the queue
var ErrDuplicateEntry = errors.New("module already in planning queue")

// Planning manages the per-project module backlog. Unlike the desk work
// queue it has no active-item invariant; operators pull from it when they
// assign work items to desks.
type Planning struct {
	db *gorm.DB
}

// NewPlanning creates a Planning service
func NewPlanning(db *gorm.DB) *Planning {
	return &Planning{db: db}
}

// EnsureQueue returns the project's planning queue, creating it on first use
func (p *Planning) EnsureQueue(projectID uint, actor *models.UserAuth) (*models.PlanningQueue, error) {
	var queue models.PlanningQueue
	err := p.db.Where("project_id = ?", projectID).First(&queue).Error
	if err == nil {
		return &queue, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var project models.Project
	if err := p.db.First(&project, projectID).Error; err != nil {
		return nil, fmt.Errorf("project %d: %w", projectID, err)
	}

	queue = models.PlanningQueue{ProjectID: projectID, Active: true}
	if actor != nil {
		queue.CreatedByID = &actor.ID
	}
	if err := p.db.Create(&queue).Error; err != nil {
		return nil, err
	}
	return &queue, nil
}

// Push appends a module to the backlog at the given position. A module may
// appear at most once per queue.
func (p *Planning) Push(queueID, moduleID uint, position uint, actor *models.UserAuth) (*models.PlanningQueueEntry, error) {
	var module models.Module
	if err := p.db.First(&module, moduleID).Error; err != nil {
		return nil, fmt.Errorf("module %d: %w", moduleID, err)
	}

	var existing int64
	if err := p.db.Model(&models.PlanningQueueEntry{}).
		Where("queue_id = ? AND module_id = ?", queueID, moduleID).
		Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, fmt.Errorf("%w: module %d in queue %d", ErrDuplicateEntry, moduleID, queueID)
	}

	entry := &models.PlanningQueueEntry{
		QueueID:  queueID,
		ModuleID: moduleID,
		Position: position,
	}
	if actor != nil {
		entry.AddedByID = &actor.ID
	}
	if err := p.db.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// Remove drops an entry from the backlog
func (p *Planning) Remove(entryID uint) error {
	return p.db.Delete(&models.PlanningQueueEntry{}, entryID).Error
}

// Reorder rewrites backlog positions with the same lenient semantics as the
// work queue: unknown ids are skipped, no atomicity across pairs.
func (p *Planning) Reorder(queueID uint, pairs []ReorderPair) (int, error) {
	updated := 0
	for _, pair := range pairs {
		res := p.db.Model(&models.PlanningQueueEntry{}).
			Where("id = ? AND queue_id = ?", pair.ItemID, queueID).
			Update("position", pair.Position)
		if res.Error != nil {
			return updated, res.Error
		}
		updated += int(res.RowsAffected)
	}
	return updated, nil
}

// Entries returns the backlog in order (position, then id for equal positions)
func (p *Planning) Entries(queueID uint) ([]models.PlanningQueueEntry, error) {
	var entries []models.PlanningQueueEntry
	err := p.db.Preload("Module").
		Where("queue_id = ?", queueID).
		Order("position ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

// Next returns the head of the backlog, or nil when the queue is empty
func (p *Planning) Next(queueID uint) (*models.PlanningQueueEntry, error) {
	var entry models.PlanningQueueEntry
	err := p.db.Preload("Module").
		Where("queue_id = ?", queueID).
		Order("position ASC, id ASC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
