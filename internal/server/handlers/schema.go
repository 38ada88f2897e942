package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/autometric/autometric/internal/schema"
	"github.com/autometric/autometric/internal/store"
	"github.com/autometric/autometric/pkg/types"
)

// overrideRequest is the POST body for schema and route-graph overrides.
// Suggested is the full replacement payload; it wins over inferred entries
// unconditionally on every subsequent read.
type overrideRequest struct {
	Suggested json.RawMessage `json:"suggested"`
	CommitSHA string          `json:"commit_sha,omitempty"`
	Actor     string          `json:"actor,omitempty"`
}

// GetSchema returns the repository's resolved event schema.
func (h *Handlers) GetSchema(w http.ResponseWriter, r *http.Request) {
	repo := h.repoFromPath(w, r)
	if repo == nil {
		return
	}

	resolved, err := h.deps.Resolver.Resolve(r.Context(), repo.ID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "schema resolution failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resolved)
}

// OverrideSchema appends a schema_override entry for the repository.
func (h *Handlers) OverrideSchema(w http.ResponseWriter, r *http.Request) {
	var payload types.EventSchema
	h.override(w, r, types.VerbSchemaOverride, "events", &payload)
}

// GetRouteGraph returns the repository's resolved route graph, or 404 when
// none is declared.
func (h *Handlers) GetRouteGraph(w http.ResponseWriter, r *http.Request) {
	repo := h.repoFromPath(w, r)
	if repo == nil {
		return
	}

	graph, err := h.deps.Resolver.ResolveRouteGraph(r.Context(), repo.ID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "route graph resolution failed", err)
		return
	}
	if graph == nil {
		h.writeError(w, http.StatusNotFound, "no route graph declared", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, graph)
}

// OverrideRouteGraph appends a route_graph_override entry for the repository.
func (h *Handlers) OverrideRouteGraph(w http.ResponseWriter, r *http.Request) {
	var payload types.RouteGraph
	h.override(w, r, types.VerbRouteGraphOverride, "nodes", &payload)
}

// override is the shared write path for operator overrides. payload gives
// the concrete type the suggested document must decode into; shapeKey names
// the top-level key the document must carry, so an empty object cannot
// silently blank the resolved entry.
func (h *Handlers) override(w http.ResponseWriter, r *http.Request, verb types.Verb, shapeKey string, payload interface{}) {
	repo := h.repoFromPath(w, r)
	if repo == nil {
		return
	}

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	if len(req.Suggested) == 0 {
		h.writeError(w, http.StatusBadRequest, "suggested payload required", nil)
		return
	}
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(req.Suggested, &shape); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed suggested payload", err)
		return
	}
	if _, ok := shape[shapeKey]; !ok {
		h.writeError(w, http.StatusBadRequest, "suggested payload missing "+shapeKey, nil)
		return
	}
	if err := json.Unmarshal(req.Suggested, payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed suggested payload", err)
		return
	}

	actor := req.Actor
	if actor == "" {
		actor = "operator"
	}
	entry := types.EventLogEntry{
		RepositoryID: repo.ID,
		CommitSHA:    req.CommitSHA,
		Actor:        actor,
		Verb:         verb,
		Metadata:     map[string]interface{}{schema.SuggestedKey: payload},
		Timestamp:    time.Now().UTC(),
	}
	err := h.deps.Store.AppendEvent(r.Context(), entry)
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		h.writeError(w, http.StatusInternalServerError, "persisting override failed", err)
		return
	}

	h.deps.Resolver.Invalidate(r.Context(), repo.ID)
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"verb":      verb,
		"duplicate": errors.Is(err, store.ErrDuplicate),
	})
}
