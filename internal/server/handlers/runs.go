package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/autometric/autometric/internal/store"
)

const defaultListLimit = 50

// ListRuns returns the repository's analyzer runs, newest first.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	repo := h.repoFromPath(w, r)
	if repo == nil {
		return
	}

	runs, err := h.deps.Store.ListRuns(r.Context(), repo.ID, listLimit(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "listing runs failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// GetRun returns a single analyzer run by id.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := h.deps.Store.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "run not found", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "run lookup failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// Analyze triggers a single worker pass over the run queue.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	if h.deps.Worker == nil {
		h.writeError(w, http.StatusServiceUnavailable, "analyzer not configured", nil)
		return
	}

	report, err := h.deps.Worker.RunOnce(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "analyzer invocation failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func listLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return defaultListLimit
}
