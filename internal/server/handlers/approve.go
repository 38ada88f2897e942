package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/autometric/autometric/internal/pr"
	"github.com/autometric/autometric/pkg/types"
)

// Approve opens (or returns the existing) instrumentation pull request for
// the given commit. File conflicts come back as a 409 listing every
// colliding path.
func (h *Handlers) Approve(w http.ResponseWriter, r *http.Request) {
	repo := h.repoFromPath(w, r)
	if repo == nil {
		return
	}

	var req types.ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	if req.CommitSHA == "" {
		h.writeError(w, http.StatusBadRequest, "commit_sha required", nil)
		return
	}

	result, err := h.deps.Integrator.Approve(r.Context(), repo, &req)
	if err != nil {
		var conflict *pr.ConflictError
		if errors.As(err, &conflict) {
			h.writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":     "files already exist at target commit",
				"conflicts": conflict.Paths,
			})
			return
		}
		h.writeError(w, http.StatusInternalServerError, "approve failed", err)
		return
	}

	status := http.StatusCreated
	if result.Status == types.ApproveExists {
		status = http.StatusOK
	}
	h.writeJSON(w, status, result)
}
