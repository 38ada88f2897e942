// Package handlers implements HTTP request handlers for the Autometric API.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autometric/autometric/internal/analyzer"
	"github.com/autometric/autometric/internal/ingest"
	"github.com/autometric/autometric/internal/pr"
	"github.com/autometric/autometric/internal/schema"
	"github.com/autometric/autometric/internal/store"
	"github.com/autometric/autometric/internal/webhook"
	"github.com/autometric/autometric/pkg/types"
)

// Deps contains all HTTP handler dependencies.
type Deps struct {
	Store         store.Store
	Webhooks      *webhook.Router
	WebhookSecret string
	Resolver      *schema.Resolver
	Validator     *ingest.Validator
	Integrator    *pr.Integrator
	Worker        *analyzer.Worker
	Logger        *slog.Logger
}

// Handlers contains all HTTP handler state.
type Handlers struct {
	deps   Deps
	logger *slog.Logger
}

// New creates a new Handlers instance.
func New(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handlers{deps: deps, logger: deps.Logger}
}

// writeError logs the internal error and returns a sanitized JSON error to the client.
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		h.logger.Error(msg, "error", err, "status", status)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encoding response", "error", err)
	}
}

// repoFromPath resolves the {owner}/{repo} URL params to a repository row.
// A nil return means the response has already been written.
func (h *Handlers) repoFromPath(w http.ResponseWriter, r *http.Request) *types.Repository {
	owner := chi.URLParam(r, "owner")
	name := chi.URLParam(r, "repo")
	repo, err := h.deps.Store.FindRepository(r.Context(), types.DefaultProvider, owner, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "repository not found", nil)
			return nil
		}
		h.writeError(w, http.StatusInternalServerError, "repository lookup failed", err)
		return nil
	}
	return repo
}
