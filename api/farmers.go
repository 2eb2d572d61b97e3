package api

import (
	"net/http"

	"github.com/shareprinto/dispatcher/core/model"
)

// handleUpsertFarmer creates or replaces a farmer profile.
func (h *Handlers) handleUpsertFarmer(w http.ResponseWriter, r *http.Request) {
	var f model.Farmer
	if !decodeBody(w, r, &f) {
		return
	}
	if err := h.registry.Upsert(f); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeEnvelope(w, http.StatusOK, "farmer saved", nil)
}

// handleListFarmers returns every known profile joined with its presence.
func (h *Handlers) handleListFarmers(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		model.Farmer
		Online    bool `json:"online"`
		Available bool `json:"available"`
	}
	list := h.registry.List()
	out := make([]entry, 0, len(list))
	for _, f := range list {
		e := entry{Farmer: f}
		if st, ok := h.avail.Get(f.ID); ok {
			e.Online = st.Online
			e.Available = st.Available
		}
		out = append(out, e)
	}
	writeEnvelope(w, http.StatusOK, "ok", out)
}
