package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/proyeccion-moden/modengo/internal/config"
	"github.com/proyeccion-moden/modengo/internal/database"
	"github.com/proyeccion-moden/modengo/internal/middleware"
	"github.com/proyeccion-moden/modengo/internal/pairing"
	"github.com/proyeccion-moden/modengo/internal/queue"
	"github.com/proyeccion-moden/modengo/internal/tracker"
	"github.com/proyeccion-moden/modengo/internal/websocket"
)

// Router wraps the mux router and the services behind the HTTP surface
type Router struct {
	*mux.Router
	db       *database.DB
	cfg      *config.Config
	queue    *queue.WorkQueue
	planning *queue.Planning
	tracker  *tracker.Tracker
	sessions *pairing.Service
	hub      *websocket.Hub
}

// NewRouter creates the HTTP router with all routes wired
func NewRouter(db *database.DB, cfg *config.Config, wq *queue.WorkQueue, pl *queue.Planning, tr *tracker.Tracker, sessions *pairing.Service, hub *websocket.Hub) *Router {
	r := &Router{
		Router:   mux.NewRouter(),
		db:       db,
		cfg:      cfg,
		queue:    wq,
		planning: pl,
		tracker:  tr,
		sessions: sessions,
		hub:      hub,
	}

	authMW := middleware.Auth(cfg.JWTSecret)
	deviceMW := middleware.DeviceAuth(sessions)

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Auth routes
	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", r.login).Methods("POST")
	auth.HandleFunc("/register", r.register).Methods("POST")

	// Operator API (JWT protected)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMW)
	api.HandleFunc("/status", r.getStatus).Methods("GET")

	api.HandleFunc("/projects", r.listProjects).Methods("GET")
	api.HandleFunc("/projects", r.createProject).Methods("POST")
	api.HandleFunc("/projects/{id}", r.getProject).Methods("GET")
	api.HandleFunc("/projects/{id}/floors", r.listFloors).Methods("GET")
	api.HandleFunc("/projects/{id}/floors", r.createFloor).Methods("POST")

	api.HandleFunc("/modules", r.listModules).Methods("GET")
	api.HandleFunc("/modules", r.createModule).Methods("POST")
	api.HandleFunc("/modules/{id}", r.getModule).Methods("GET")
	api.HandleFunc("/modules/{id}/close", r.closeModule).Methods("POST")
	api.HandleFunc("/modules/{id}/drawings", r.listDrawings).Methods("GET")
	api.HandleFunc("/modules/{id}/drawings", r.createDrawing).Methods("POST")

	api.HandleFunc("/desks", r.listDesks).Methods("GET")
	api.HandleFunc("/desks", r.createDesk).Methods("POST")
	api.HandleFunc("/desks/{id}", r.getDesk).Methods("GET")
	api.HandleFunc("/desks/{id}/flags", r.updateDeskFlags).Methods("PATCH")
	api.HandleFunc("/desks/{id}/calibration", r.updateCalibration).Methods("PUT")

	api.HandleFunc("/desks/{id}/queue", r.listDeskQueue).Methods("GET")
	api.HandleFunc("/desks/{id}/queue", r.enqueueWorkItem).Methods("POST")
	api.HandleFunc("/desks/{id}/queue/reorder", r.reorderDeskQueue).Methods("POST")
	api.HandleFunc("/work-items/{id}/promote", r.promoteWorkItem).Methods("POST")
	api.HandleFunc("/work-items/{id}/done", r.completeWorkItem).Methods("POST")

	api.HandleFunc("/projects/{id}/planning-queue", r.getPlanningQueue).Methods("GET")
	api.HandleFunc("/projects/{id}/planning-queue", r.pushPlanningEntry).Methods("POST")
	api.HandleFunc("/projects/{id}/planning-queue/reorder", r.reorderPlanningQueue).Methods("POST")
	api.HandleFunc("/planning-entries/{id}", r.removePlanningEntry).Methods("DELETE")

	// Operator side of pairing
	api.HandleFunc("/desks/{id}/pairing-code", r.requestDeskPairingCode).Methods("POST")
	api.HandleFunc("/desks/{id}/pairing-sheet.pdf", r.pairingSheetPDF).Methods("GET")
	api.HandleFunc("/device/pair", r.confirmPair).Methods("POST")
	api.HandleFunc("/desks/{id}/unbind", r.unbindDesk).Methods("POST")

	// Revoke accepts either the shared setup credential or a supervisor JWT,
	// so it sits outside the JWT-only subrouter
	r.HandleFunc("/api/desks/{id}/revoke", r.revokeDesk).Methods("POST")

	// Device side of pairing (no credentials yet)
	r.HandleFunc("/api/device/pairing-code", r.requestSessionPairingCode).Methods("POST")
	r.HandleFunc("/api/device/pair/status", r.pollPairingStatus).Methods("GET")
	r.HandleFunc("/api/device/pairing-code/{code}/qr", r.pairingCodeQR).Methods("GET")

	// Device routes (bearer token protected)
	device := r.PathPrefix("/api/device").Subrouter()
	device.Use(deviceMW)
	device.HandleFunc("/heartbeat", r.deviceHeartbeat).Methods("POST")
	device.HandleFunc("/screen", r.deviceScreen).Methods("GET")
	device.HandleFunc("/work-items/{id}/done", r.deviceCompleteWorkItem).Methods("POST")

	// Live update channel
	r.HandleFunc("/ws/desk", r.serveDeskChannel).Methods("GET")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"server": "modengo",
	})
}

// getStatus returns the current status
func (r *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "running",
		"connectedDesks": r.hub.ConnectedDesks(),
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
