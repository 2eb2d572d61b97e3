package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shareprinto/dispatcher/core/dispatch"
	"github.com/shareprinto/dispatcher/core/dispatch/audit"
	"github.com/shareprinto/dispatcher/core/model"
	"github.com/shareprinto/dispatcher/core/ranking"
)

// handleStartDispatch validates the order and starts a dispatch run. The
// response carries the initial run snapshot; progress is observed via the run
// status endpoint or the event stream.
func (h *Handlers) handleStartDispatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Order        model.Order          `json:"order"`
		Requirements ranking.Requirements `json:"requirements"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Order.CreatedAt.IsZero() {
		req.Order.CreatedAt = time.Now()
	}
	if req.Order.Status == "" {
		req.Order.Status = model.OrderPending
	}
	handle, err := h.scheduler.StartDispatch(r.Context(), req.Order, req.Requirements)
	if err != nil {
		if errors.Is(err, dispatch.ErrInvalidOrderState) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeEnvelope(w, http.StatusAccepted, "dispatch started", handle.Status())
}

// handleRunStatus serves the creator-facing progress snapshot.
func (h *Handlers) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	st, err := h.scheduler.RunStatus(orderID)
	if err != nil {
		writeError(w, http.StatusNotFound, "no dispatch run for order")
		return
	}
	writeEnvelope(w, http.StatusOK, "ok", st)
}

// handleCancelRun stops the run; the pending offer is cancelled and no
// further candidate is contacted.
func (h *Handlers) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	switch err := h.scheduler.Cancel(orderID); {
	case err == nil:
		writeEnvelope(w, http.StatusOK, "dispatch cancelled", nil)
	case errors.Is(err, dispatch.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "no dispatch run for order")
	case errors.Is(err, dispatch.ErrRunFinished):
		writeError(w, http.StatusConflict, "dispatch run already finished")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleLogs exposes archived run records. Requests must include an
// Authorization header with "Bearer <token>" when a token is configured.
func (h *Handlers) handleLogs(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "run logging is not enabled")
		return
	}
	if h.logToken != "" {
		auth := r.Header.Get("Authorization")
		if auth != "Bearer "+h.logToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}
	q := audit.Query{}
	if s := r.URL.Query().Get("start"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			q.Start = t
		}
	}
	if s := r.URL.Query().Get("end"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			q.End = t
		}
	}
	q.OrderID = r.URL.Query().Get("order_id")
	q.FarmerID = r.URL.Query().Get("farmer_id")
	records, err := h.audit.Query(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeEnvelope(w, http.StatusOK, "ok", records)
}
