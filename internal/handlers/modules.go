package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/proyeccion-moden/modengo/internal/models"
	"github.com/proyeccion-moden/modengo/internal/tracker"
)

// listModules returns modules, optionally filtered by project
func (r *Router) listModules(w http.ResponseWriter, req *http.Request) {
	q := r.db.Order("id ASC")
	if projectID := req.URL.Query().Get("projectId"); projectID != "" {
		q = q.Where("project_id = ?", projectID)
	}

	var modules []models.Module
	if err := q.Find(&modules).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch modules")
		return
	}
	respondJSON(w, http.StatusOK, modules)
}

// createModule creates a module in PENDING state
func (r *Router) createModule(w http.ResponseWriter, req *http.Request) {
	var module models.Module
	if err := json.NewDecoder(req.Body).Decode(&module); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	module.State = models.DeriveState(false, false, false)
	if err := r.db.Create(&module).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create module")
		return
	}
	respondJSON(w, http.StatusCreated, module)
}

// getModule returns a single module
func (r *Router) getModule(w http.ResponseWriter, req *http.Request) {
	var module models.Module
	if err := r.db.First(&module, pathID(req)).Error; err != nil {
		respondError(w, http.StatusNotFound, "Module not found")
		return
	}
	respondJSON(w, http.StatusOK, module)
}

// closeModule records supervisor sign-off on a fully completed module.
// The rejection names the incomplete phases: this is an operator-facing
// path, unlike device authentication.
func (r *Router) closeModule(w http.ResponseWriter, req *http.Request) {
	user := r.currentUser(req)
	if user == nil || !user.IsSupervisor() {
		respondError(w, http.StatusForbidden, "Supervisor role required")
		return
	}

	module, err := r.tracker.Close(pathID(req), user)
	if err != nil {
		if errors.Is(err, tracker.ErrPhasesIncomplete) {
			respondError(w, http.StatusPreconditionFailed, err.Error())
			return
		}
		respondError(w, http.StatusNotFound, "Module not found")
		return
	}
	respondJSON(w, http.StatusOK, module)
}

// listDrawings returns a module's drawings, optionally filtered by phase
func (r *Router) listDrawings(w http.ResponseWriter, req *http.Request) {
	q := r.db.Where("module_id = ?", pathID(req)).
		Order("phase ASC, sequence ASC, version ASC")
	if phase := req.URL.Query().Get("phase"); phase != "" {
		q = q.Where("phase = ?", phase)
	}

	var drawings []models.DrawingAsset
	if err := q.Find(&drawings).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch drawings")
		return
	}
	respondJSON(w, http.StatusOK, drawings)
}

// createDrawing registers a drawing revision on a module
func (r *Router) createDrawing(w http.ResponseWriter, req *http.Request) {
	var drawing models.DrawingAsset
	if err := json.NewDecoder(req.Body).Decode(&drawing); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	drawing.ModuleID = pathID(req)
	if !drawing.Phase.Valid() {
		respondError(w, http.StatusBadRequest, "Phase must be INFERIOR or SUPERIOR")
		return
	}
	if drawing.Sequence == 0 {
		drawing.Sequence = 1
	}
	if drawing.Version == 0 {
		drawing.Version = 1
	}
	if user := r.currentUser(req); user != nil {
		drawing.UploadedByID = &user.ID
	}
	if err := r.db.Create(&drawing).Error; err != nil {
		respondError(w, http.StatusBadRequest, "Drawing identity (module, phase, sequence, version) already exists")
		return
	}
	respondJSON(w, http.StatusCreated, drawing)
}
