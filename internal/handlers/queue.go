package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/proyeccion-moden/modengo/internal/models"
	"github.com/proyeccion-moden/modengo/internal/queue"
)

// listDeskQueue returns a desk's full work item history in queue order
func (r *Router) listDeskQueue(w http.ResponseWriter, req *http.Request) {
	items, err := r.queue.ListForDesk(pathID(req))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch queue")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// EnqueueRequest assigns a module phase (and optionally a concrete drawing)
// to a desk
type EnqueueRequest struct {
	ModuleID  uint         `json:"moduleId"`
	Phase     models.Phase `json:"phase"`
	DrawingID *uint        `json:"drawingId,omitempty"`
	Position  uint         `json:"position"`
}

// enqueueWorkItem creates a work item on a desk. A mismatched drawing is a
// whole-call rejection with no partial writes.
func (r *Router) enqueueWorkItem(w http.ResponseWriter, req *http.Request) {
	var body EnqueueRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	item, err := r.queue.Enqueue(queue.EnqueueRequest{
		DeskID:    pathID(req),
		ModuleID:  body.ModuleID,
		Phase:     body.Phase,
		DrawingID: body.DrawingID,
		Position:  body.Position,
		Actor:     r.currentUser(req),
	})
	if err != nil {
		if errors.Is(err, queue.ErrInvalidAssignment) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

// promoteWorkItem makes an item the desk's SHOWING item
func (r *Router) promoteWorkItem(w http.ResponseWriter, req *http.Request) {
	item, err := r.queue.Promote(pathID(req))
	if err != nil {
		if errors.Is(err, queue.ErrAlreadyDone) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusNotFound, "Work item not found")
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// completeWorkItem marks an item done on behalf of the operator
func (r *Router) completeWorkItem(w http.ResponseWriter, req *http.Request) {
	item, err := r.queue.Complete(pathID(req), r.currentUser(req))
	if err != nil {
		if errors.Is(err, queue.ErrAlreadyDone) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusNotFound, "Work item not found")
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// ReorderRequest carries position rewrites, applied independently
type ReorderRequest struct {
	Items []queue.ReorderPair `json:"items"`
}

// reorderDeskQueue rewrites positions; unknown ids are skipped silently
func (r *Router) reorderDeskQueue(w http.ResponseWriter, req *http.Request) {
	var body ReorderRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	updated, err := r.queue.Reorder(pathID(req), body.Items)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to reorder queue")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

// getPlanningQueue returns (creating if needed) the project's backlog
func (r *Router) getPlanningQueue(w http.ResponseWriter, req *http.Request) {
	pq, err := r.planning.EnsureQueue(pathID(req), r.currentUser(req))
	if err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}
	entries, err := r.planning.Entries(pq.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch planning queue")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"queue":   pq,
		"entries": entries,
	})
}

// PushPlanningRequest appends a module to the backlog
type PushPlanningRequest struct {
	ModuleID uint `json:"moduleId"`
	Position uint `json:"position"`
}

// pushPlanningEntry adds a module to the project backlog
func (r *Router) pushPlanningEntry(w http.ResponseWriter, req *http.Request) {
	var body PushPlanningRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	actor := r.currentUser(req)
	pq, err := r.planning.EnsureQueue(pathID(req), actor)
	if err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	entry, err := r.planning.Push(pq.ID, body.ModuleID, body.Position, actor)
	if err != nil {
		if errors.Is(err, queue.ErrDuplicateEntry) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

// reorderPlanningQueue rewrites backlog positions, lenient like the desk queue
func (r *Router) reorderPlanningQueue(w http.ResponseWriter, req *http.Request) {
	var body ReorderRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	pq, err := r.planning.EnsureQueue(pathID(req), r.currentUser(req))
	if err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	updated, err := r.planning.Reorder(pq.ID, body.Items)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to reorder planning queue")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

// removePlanningEntry drops an entry from a backlog
func (r *Router) removePlanningEntry(w http.ResponseWriter, req *http.Request) {
	if err := r.planning.Remove(pathID(req)); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to remove entry")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
