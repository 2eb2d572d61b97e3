package api

import (
	"net/http"

	"github.com/shareprinto/dispatcher/core/dispatch"
)

// handleFarmerAvailability sets the farmer's manual availability toggle.
func (h *Handlers) handleFarmerAvailability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"userId"`
		Available bool   `json:"available"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	h.avail.SetAvailable(req.UserID, req.Available)
	h.log.Debugw("availability updated", map[string]any{
		"farmer":    req.UserID,
		"available": req.Available,
	})
	writeEnvelope(w, http.StatusOK, "availability updated", nil)
}

// handleOfferResponse forwards a farmer's accept or decline to the scheduler.
// A stale response is a success: the frontend treats it as "offer already
// handled" and refreshes.
func (h *Handlers) handleOfferResponse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OfferID  string `json:"offerId"`
		Accepted bool   `json:"accepted"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OfferID == "" {
		writeError(w, http.StatusBadRequest, "offerId is required")
		return
	}
	outcome, err := h.scheduler.SubmitResponse(req.OfferID, req.Accepted)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown offer")
		return
	}
	if outcome == dispatch.OutcomeStale {
		writeEnvelope(w, http.StatusOK, "offer already handled", nil)
		return
	}
	writeEnvelope(w, http.StatusOK, "response recorded", nil)
}

// handleActivity records a heartbeat or visibility signal and keeps the farmer
// marked online.
func (h *Handlers) handleActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"userId"`
		SessionID string `json:"sessionId"`
		Reason    string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	h.avail.Touch(req.UserID, req.SessionID)
	writeEnvelope(w, http.StatusOK, "activity recorded", nil)
}

// handleManualLogout clears the farmer's online flag for an explicit logout.
func (h *Handlers) handleManualLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"userId"`
		SessionID string `json:"sessionId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	h.avail.Logout(req.UserID, req.SessionID)
	writeEnvelope(w, http.StatusOK, "logged out", nil)
}

// handleBrowserClose handles the sendBeacon fired when the farmer's tab
// closes. A beacon from an old session must not log out a newer one, so a
// session mismatch is reported as success without clearing anything.
func (h *Handlers) handleBrowserClose(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"userId"`
		SessionID string `json:"sessionId"`
		Reason    string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if !h.avail.Logout(req.UserID, req.SessionID) {
		h.log.Debugw("stale browser-close beacon ignored", map[string]any{
			"farmer":  req.UserID,
			"session": req.SessionID,
			"reason":  req.Reason,
		})
	}
	writeEnvelope(w, http.StatusOK, "logged out", nil)
}
