package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/proyeccion-moden/modengo/internal/models"
)

// pathID parses the {id} route variable
func pathID(req *http.Request) uint {
	id, _ := strconv.ParseUint(mux.Vars(req)["id"], 10, 64)
	return uint(id)
}

// listProjects returns all projects, or only the caller's own for regular users
func (r *Router) listProjects(w http.ResponseWriter, req *http.Request) {
	user := r.currentUser(req)

	q := r.db.Order("name ASC")
	if user != nil && !user.IsSupervisor() {
		q = q.Where("owner_id = ?", user.ID)
	}

	var projects []models.Project
	if err := q.Find(&projects).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch projects")
		return
	}
	respondJSON(w, http.StatusOK, projects)
}

// createProject creates a project owned by the caller
func (r *Router) createProject(w http.ResponseWriter, req *http.Request) {
	var project models.Project
	if err := json.NewDecoder(req.Body).Decode(&project); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if user := r.currentUser(req); user != nil && project.OwnerID == nil {
		project.OwnerID = &user.ID
	}
	if err := r.db.Create(&project).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}
	respondJSON(w, http.StatusCreated, project)
}

// getProject returns a single project
func (r *Router) getProject(w http.ResponseWriter, req *http.Request) {
	var project models.Project
	if err := r.db.First(&project, pathID(req)).Error; err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}
	respondJSON(w, http.StatusOK, project)
}

// listFloors returns the floors of a project in order
func (r *Router) listFloors(w http.ResponseWriter, req *http.Request) {
	var floors []models.Floor
	if err := r.db.Where("project_id = ?", pathID(req)).
		Order("ordinal ASC, name ASC").
		Find(&floors).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch floors")
		return
	}
	respondJSON(w, http.StatusOK, floors)
}

// createFloor adds a floor to a project
func (r *Router) createFloor(w http.ResponseWriter, req *http.Request) {
	var floor models.Floor
	if err := json.NewDecoder(req.Body).Decode(&floor); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	floor.ProjectID = pathID(req)
	if err := r.db.Create(&floor).Error; err != nil {
		respondError(w, http.StatusBadRequest, "Failed to create floor (name might exist on this project)")
		return
	}
	respondJSON(w, http.StatusCreated, floor)
}
