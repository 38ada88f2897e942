// Package schema resolves the effective event schema and route graph for a
// repository as a read-side projection over the append-only event log.
package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/autometric/autometric/internal/cache"
	"github.com/autometric/autometric/internal/store"
	"github.com/autometric/autometric/pkg/types"
)

// SuggestedKey is the metadata key governance entries carry their payload
// under.
const SuggestedKey = "suggested"

// Resolver computes "override wins, else latest" projections. The optional
// cache only shortens the ingest hot path; correctness never depends on it.
type Resolver struct {
	store  store.Store
	cache  *cache.Cache
	logger *slog.Logger
}

// NewResolver creates a Resolver. cache may be nil.
func NewResolver(st store.Store, c *cache.Cache, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: st, cache: c, logger: logger}
}

// SchemaCacheKey returns the cache key for a repository's resolved schema.
func SchemaCacheKey(repositoryID string) string { return "schema:" + repositoryID }

// RouteGraphCacheKey returns the cache key for a repository's route graph.
func RouteGraphCacheKey(repositoryID string) string { return "routegraph:" + repositoryID }

// Resolve returns the effective event schema for a repository. The latest
// schema_override entry wins unconditionally regardless of recency versus
// schema entries; otherwise the latest schema entry applies. With neither,
// an empty schema is returned rather than an error. Every
// definition's required set is unioned with the core field set at read time.
func (r *Resolver) Resolve(ctx context.Context, repositoryID string) (types.EventSchema, error) {
	if r.cache != nil {
		var cached types.EventSchema
		if ok, err := r.cache.Get(ctx, SchemaCacheKey(repositoryID), &cached); err == nil && ok {
			return cached, nil
		}
	}

	schema, err := r.resolveSchema(ctx, repositoryID)
	if err != nil {
		return types.EventSchema{}, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, SchemaCacheKey(repositoryID), schema); err != nil {
			r.logger.Warn("schema cache write failed", "repositoryId", repositoryID, "error", err)
		}
	}
	return schema, nil
}

func (r *Resolver) resolveSchema(ctx context.Context, repositoryID string) (types.EventSchema, error) {
	entry, err := r.latestWithPrecedence(ctx, repositoryID, types.VerbSchemaOverride, types.VerbSchema)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.EventSchema{Events: []types.EventDefinition{}}, nil
		}
		return types.EventSchema{}, err
	}

	var schema types.EventSchema
	if err := decodeSuggested(entry, &schema); err != nil {
		return types.EventSchema{}, fmt.Errorf("decoding schema payload: %w", err)
	}
	for i := range schema.Events {
		schema.Events[i].Required = unionCoreFields(schema.Events[i].Required)
	}
	if schema.Events == nil {
		schema.Events = []types.EventDefinition{}
	}
	return schema, nil
}

// ResolveRouteGraph returns the effective route graph, or nil when the
// repository has none declared.
func (r *Resolver) ResolveRouteGraph(ctx context.Context, repositoryID string) (*types.RouteGraph, error) {
	if r.cache != nil {
		var cached types.RouteGraph
		if ok, err := r.cache.Get(ctx, RouteGraphCacheKey(repositoryID), &cached); err == nil && ok {
			return &cached, nil
		}
	}

	entry, err := r.latestWithPrecedence(ctx, repositoryID, types.VerbRouteGraphOverride, types.VerbRouteGraph)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var graph types.RouteGraph
	if err := decodeSuggested(entry, &graph); err != nil {
		return nil, fmt.Errorf("decoding route graph payload: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, RouteGraphCacheKey(repositoryID), graph); err != nil {
			r.logger.Warn("route graph cache write failed", "repositoryId", repositoryID, "error", err)
		}
	}
	return &graph, nil
}

// latestWithPrecedence returns the latest entry for overrideVerb if any
// exists, else the latest entry for baseVerb.
func (r *Resolver) latestWithPrecedence(ctx context.Context, repositoryID string, overrideVerb, baseVerb types.Verb) (*types.EventLogEntry, error) {
	entry, err := r.store.LatestEventByVerb(ctx, repositoryID, overrideVerb)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return r.store.LatestEventByVerb(ctx, repositoryID, baseVerb)
}

// Invalidate drops the repository's cached projections after an override
// write. Best effort: a failed delete only extends staleness to the TTL.
func (r *Resolver) Invalidate(ctx context.Context, repositoryID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, SchemaCacheKey(repositoryID), RouteGraphCacheKey(repositoryID)); err != nil {
		r.logger.Warn("cache invalidation failed", "repositoryId", repositoryID, "error", err)
	}
}

// decodeSuggested extracts the "suggested" payload of a governance entry
// into out via a JSON round trip.
func decodeSuggested(entry *types.EventLogEntry, out interface{}) error {
	raw, ok := entry.Metadata[SuggestedKey]
	if !ok {
		return fmt.Errorf("entry %d has no %q payload", entry.ID, SuggestedKey)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// unionCoreFields prepends the core required fields, preserving the
// proposed order and dropping duplicates.
func unionCoreFields(proposed []string) []string {
	seen := make(map[string]bool, len(types.CoreRequiredFields)+len(proposed))
	out := make([]string, 0, len(types.CoreRequiredFields)+len(proposed))
	for _, f := range types.CoreRequiredFields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, f := range proposed {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
