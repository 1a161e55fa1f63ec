package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/proyeccion-moden/modengo/internal/models"
	"github.com/proyeccion-moden/modengo/internal/pairing"
	"github.com/proyeccion-moden/modengo/internal/utils"
	"gorm.io/datatypes"
)

// listDesks returns all desks with their cached drawing preloaded
func (r *Router) listDesks(w http.ResponseWriter, req *http.Request) {
	var desks []models.Desk
	if err := r.db.Preload("CurrentDrawing").Order("id ASC").Find(&desks).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch desks")
		return
	}
	respondJSON(w, http.StatusOK, desks)
}

// createDesk registers a new physical desk
func (r *Router) createDesk(w http.ResponseWriter, req *http.Request) {
	var desk models.Desk
	if err := json.NewDecoder(req.Body).Decode(&desk); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if user := r.currentUser(req); user != nil && desk.OwnerID == nil {
		desk.OwnerID = &user.ID
	}
	if err := r.db.Create(&desk).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create desk")
		return
	}
	respondJSON(w, http.StatusCreated, desk)
}

// getDesk returns a single desk
func (r *Router) getDesk(w http.ResponseWriter, req *http.Request) {
	var desk models.Desk
	if err := r.db.Preload("CurrentDrawing").First(&desk, pathID(req)).Error; err != nil {
		respondError(w, http.StatusNotFound, "Desk not found")
		return
	}
	respondJSON(w, http.StatusOK, desk)
}

// DeskFlagsRequest toggles the desk's operational flags
type DeskFlagsRequest struct {
	Locked   *bool `json:"locked,omitempty"`
	Blackout *bool `json:"blackout,omitempty"`
}

// updateDeskFlags flips locked/blackout. The desk's UpdatedAt bump is what
// pushes the change to a connected device.
func (r *Router) updateDeskFlags(w http.ResponseWriter, req *http.Request) {
	var body DeskFlagsRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	updates := map[string]interface{}{}
	if body.Locked != nil {
		updates["locked"] = *body.Locked
	}
	if body.Blackout != nil {
		updates["blackout"] = *body.Blackout
	}
	if len(updates) == 0 {
		respondError(w, http.StatusBadRequest, "Nothing to update")
		return
	}

	res := r.db.Model(&models.Desk{}).Where("id = ?", pathID(req)).Updates(updates)
	if res.Error != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update desk")
		return
	}
	if res.RowsAffected == 0 {
		respondError(w, http.StatusNotFound, "Desk not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// updateCalibration replaces the desk's calibration payload (opaque to the
// server; the device interprets it)
func (r *Router) updateCalibration(w http.ResponseWriter, req *http.Request) {
	var payload datatypes.JSON
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid calibration payload")
		return
	}

	res := r.db.Model(&models.Desk{}).Where("id = ?", pathID(req)).
		Update("calibration", payload)
	if res.Error != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update calibration")
		return
	}
	if res.RowsAffected == 0 {
		respondError(w, http.StatusNotFound, "Desk not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// requestDeskPairingCode issues (or re-fetches) the pairing code for a desk
func (r *Router) requestDeskPairingCode(w http.ResponseWriter, req *http.Request) {
	grant, err := r.sessions.RequestDeskCode(pathID(req))
	if err != nil {
		respondError(w, http.StatusNotFound, "Desk not found")
		return
	}
	respondJSON(w, http.StatusOK, grant)
}

// ConfirmPairRequest links a device-shown code to a desk
type ConfirmPairRequest struct {
	DeskID      uint   `json:"deskId"`
	PairingCode string `json:"pairingCode"`
}

// confirmPair is the operator-side confirmation of a pairing code
func (r *Router) confirmPair(w http.ResponseWriter, req *http.Request) {
	var body ConfirmPairRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	if err := r.sessions.ConfirmPair(body.DeskID, body.PairingCode); err != nil {
		if errors.Is(err, pairing.ErrPairingFailed) {
			respondError(w, http.StatusBadRequest, "Pairing code expired")
			return
		}
		respondError(w, http.StatusNotFound, "Desk not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "paired"})
}

// unbindDesk clears the desk's device credential and pairing state
func (r *Router) unbindDesk(w http.ResponseWriter, req *http.Request) {
	if err := r.sessions.Unbind(pathID(req)); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to unbind desk")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "unbound"})
}

// RevokeRequest carries the shared setup credential
type RevokeRequest struct {
	SetupKey string `json:"setupKey"`
}

// revokeDesk is unbind gated by the setup credential or a supervisor JWT.
// It accepts either, so it lives outside the JWT-only middleware chain.
func (r *Router) revokeDesk(w http.ResponseWriter, req *http.Request) {
	var body RevokeRequest
	_ = json.NewDecoder(req.Body).Decode(&body)

	actor := r.userFromBearer(req)
	if err := r.sessions.Revoke(pathID(req), body.SetupKey, actor); err != nil {
		if errors.Is(err, pairing.ErrForbidden) {
			respondError(w, http.StatusForbidden, "Setup credential or supervisor role required")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to revoke desk")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// userFromBearer resolves an optional operator JWT on a route that is not
// behind the auth middleware. Invalid or missing tokens yield nil.
func (r *Router) userFromBearer(req *http.Request) *models.UserAuth {
	token := req.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(token) <= len(prefix) || token[:len(prefix)] != prefix {
		return nil
	}
	claims, err := utils.ValidateToken(token[len(prefix):], r.cfg.JWTSecret)
	if err != nil {
		return nil
	}
	id, _ := claims["id"].(string)
	if id == "" {
		return nil
	}
	var user models.UserAuth
	if err := r.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil
	}
	return &user
}
