package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/autometric/autometric/internal/ingest"
	"github.com/autometric/autometric/pkg/types"
)

// Ingest validates and persists a runtime analytics event.
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	var req types.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	event, err := h.deps.Validator.Ingest(r.Context(), req)
	if err != nil {
		var verr *ingest.ValidationError
		if errors.As(err, &verr) {
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": verr.Reason})
			return
		}
		h.writeError(w, http.StatusInternalServerError, "ingest failed", err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, event)
}
