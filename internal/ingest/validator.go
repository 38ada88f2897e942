// Package ingest validates runtime analytics events against the resolved
// schema and enriches them with route-graph attribution.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/autometric/autometric/internal/metrics"
	"github.com/autometric/autometric/internal/routegraph"
	"github.com/autometric/autometric/internal/schema"
	"github.com/autometric/autometric/internal/store"
	"github.com/autometric/autometric/pkg/types"
)

// ValidationError is an expected rejection with a caller-facing reason.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validator runs the inline ingest path: resolve schema, check the
// required-field contract, attach route attribution, persist. It runs on
// every ingested event, so it makes no network calls beyond store reads.
type Validator struct {
	store    store.Store
	resolver *schema.Resolver
	logger   *slog.Logger
}

// NewValidator creates a Validator.
func NewValidator(st store.Store, resolver *schema.Resolver, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{store: st, resolver: resolver, logger: logger}
}

// Ingest validates req against the repository's resolved schema, enriches
// it, appends it to the event log, and returns the enriched event.
// Unknown verbs and missing required fields reject the whole event; there
// is no partial acceptance. Field checking is presence-only by contract.
func (v *Validator) Ingest(ctx context.Context, req types.IngestRequest) (*types.RuntimeEvent, error) {
	owner, name, err := types.SplitFullName(req.RepositoryFullName)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	repo, err := v.store.FindRepository(ctx, types.DefaultProvider, owner, name)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, &ValidationError{Reason: fmt.Sprintf("repository %s not found", req.RepositoryFullName)}
		}
		return nil, err
	}

	resolved, err := v.resolver.Resolve(ctx, repo.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving schema: %w", err)
	}
	def, ok := resolved.Definition(req.Verb)
	if !ok {
		metrics.IngestRejected.Add(1)
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown event verb %q", req.Verb)}
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	for _, field := range def.Required {
		if _, present := metadata[field]; !present {
			metrics.IngestRejected.Add(1)
			return nil, &ValidationError{Reason: fmt.Sprintf("missing required field %q for event %q", field, req.Verb)}
		}
	}

	event := types.RuntimeEvent{
		RepositoryID: repo.ID,
		Source:       req.Source,
		Verb:         req.Verb,
		Metadata:     metadata,
		Timestamp:    time.Now().UTC(),
	}
	if req.Timestamp != nil {
		event.Timestamp = req.Timestamp.UTC()
	}

	v.enrich(ctx, repo.ID, &event)

	if err := v.store.AppendEvent(ctx, types.EventLogEntry{
		RepositoryID: repo.ID,
		Actor:        req.Source,
		Verb:         req.Verb,
		Metadata:     metadata,
		NodeID:       event.NodeID,
		EdgeID:       event.EdgeID,
		Timestamp:    event.Timestamp,
	}); err != nil {
		return nil, fmt.Errorf("persisting event: %w", err)
	}

	metrics.EventsIngested.Add(1)
	return &event, nil
}

// enrich attaches node/edge attribution when a route graph exists and the
// event carries a route or page_url. Missing attribution is not an error:
// NodeID/EdgeID stay empty.
func (v *Validator) enrich(ctx context.Context, repositoryID string, event *types.RuntimeEvent) {
	graph, err := v.resolver.ResolveRouteGraph(ctx, repositoryID)
	if err != nil {
		v.logger.Warn("route graph resolution failed", "repositoryId", repositoryID, "error", err)
		return
	}
	if graph == nil {
		return
	}

	path := ""
	if route, ok := event.Metadata["route"].(string); ok && route != "" {
		path = routegraph.NormalizePath(route)
	} else if pageURL, ok := event.Metadata["page_url"].(string); ok && pageURL != "" {
		path = routegraph.PathFromURL(pageURL)
	}
	if path == "" {
		return
	}

	matcher := routegraph.CompileNodes(graph)
	event.NodeID = matcher.Match(path)
	if prev, ok := event.Metadata["prev_node_id"].(string); ok {
		event.EdgeID = routegraph.DeriveEdge(event.NodeID, prev)
	}
}
