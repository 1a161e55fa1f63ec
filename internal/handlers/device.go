package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/proyeccion-moden/modengo/internal/middleware"
	"github.com/proyeccion-moden/modengo/internal/models"
	"github.com/proyeccion-moden/modengo/internal/pairing"
	"github.com/proyeccion-moden/modengo/internal/updates"
	"github.com/proyeccion-moden/modengo/internal/websocket"
	"gorm.io/datatypes"
)

// SessionCodeRequest asks for a deferred pairing code; the desk is chosen
// later by an operator
type SessionCodeRequest struct {
	ExistingCode string         `json:"existingCode,omitempty"`
	DeviceInfo   datatypes.JSON `json:"deviceInfo,omitempty"`
}

// requestSessionPairingCode mints (or re-fetches) a deferred pairing code
func (r *Router) requestSessionPairingCode(w http.ResponseWriter, req *http.Request) {
	var body SessionCodeRequest
	// Empty body is fine: a brand new device has nothing to send
	_ = json.NewDecoder(req.Body).Decode(&body)

	grant, err := r.sessions.RequestSessionCode(body.ExistingCode, body.DeviceInfo)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to issue pairing code")
		return
	}
	respondJSON(w, http.StatusOK, grant)
}

// pollPairingStatus reports pairing progress for a code. The raw device
// token appears in at most one response per pairing.
func (r *Router) pollPairingStatus(w http.ResponseWriter, req *http.Request) {
	result, err := r.sessions.PollStatus(req.URL.Query().Get("code"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to resolve pairing status")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// deviceHeartbeat records device liveness and optional diagnostics
func (r *Router) deviceHeartbeat(w http.ResponseWriter, req *http.Request) {
	desk := middleware.DeskFromContext(req.Context())
	if desk == nil {
		respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var info pairing.HeartbeatInfo
	_ = json.NewDecoder(req.Body).Decode(&info)

	if err := r.sessions.Heartbeat(desk.ID, &info); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to record heartbeat")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// deviceScreen is the plain-poll fallback to the websocket channel: the same
// snapshot payload over a single GET
func (r *Router) deviceScreen(w http.ResponseWriter, req *http.Request) {
	desk := middleware.DeskFromContext(req.Context())
	if desk == nil {
		respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	snap, err := updates.Snapshot(r.db.DB, desk.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read desk state")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// deviceCompleteWorkItem lets the paired device mark its own SHOWING item
// done. Devices are anonymous actors: no done_by is recorded.
func (r *Router) deviceCompleteWorkItem(w http.ResponseWriter, req *http.Request) {
	desk := middleware.DeskFromContext(req.Context())
	if desk == nil {
		respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	itemID := pathID(req)

	// Devices may only touch their own queue
	var owned models.WorkItem
	if err := r.db.Select("desk_id").First(&owned, itemID).Error; err != nil || owned.DeskID != desk.ID {
		respondError(w, http.StatusForbidden, "Work item belongs to another desk")
		return
	}

	item, err := r.queue.Complete(itemID, nil)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Cannot complete work item")
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// serveDeskChannel authenticates the device and hands the connection to the
// live update channel
func (r *Router) serveDeskChannel(w http.ResponseWriter, req *http.Request) {
	desk, err := r.sessions.Authenticate(middleware.BearerToken(req))
	if err != nil {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	interval := time.Duration(r.cfg.Pairing.PollIntervalSeconds) * time.Second
	websocket.ServeDesk(r.hub, r.db.DB, interval, desk, w, req)
}
