package handlers

import (
	"net/http"
)

// ListEvents returns the repository's event log entries, newest first.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	repo := h.repoFromPath(w, r)
	if repo == nil {
		return
	}

	events, err := h.deps.Store.ListEvents(r.Context(), repo.ID, listLimit(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "listing events failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
