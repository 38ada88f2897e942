package schema

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autometric/autometric/internal/testutil"
	"github.com/autometric/autometric/pkg/types"
)

func appendSchema(t *testing.T, st *testutil.MockStore, repoID string, verb types.Verb, ts time.Time, events []types.EventDefinition) {
	t.Helper()
	err := st.AppendEvent(context.Background(), types.EventLogEntry{
		RepositoryID: repoID,
		Verb:         verb,
		Metadata: map[string]interface{}{
			SuggestedKey: types.EventSchema{Events: events},
		},
		Timestamp: ts,
	})
	require.NoError(t, err)
}

func TestResolveEmptySchema(t *testing.T) {
	st := testutil.NewMockStore()
	r := NewResolver(st, nil, nil)

	schema, err := r.Resolve(context.Background(), "repo-1")
	require.NoError(t, err)
	assert.NotNil(t, schema.Events)
	assert.Empty(t, schema.Events)
}

func TestResolveLatestSchemaEntry(t *testing.T) {
	st := testutil.NewMockStore()
	r := NewResolver(st, nil, nil)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	appendSchema(t, st, "repo-1", types.VerbSchema, base,
		[]types.EventDefinition{{Name: "signup"}})
	appendSchema(t, st, "repo-1", types.VerbSchema, base.Add(time.Hour),
		[]types.EventDefinition{{Name: "checkout", Required: []string{"cart_total"}}})

	schema, err := r.Resolve(context.Background(), "repo-1")
	require.NoError(t, err)
	require.Len(t, schema.Events, 1)
	assert.Equal(t, "checkout", schema.Events[0].Name)
}

func TestResolveOverrideWinsRegardlessOfRecency(t *testing.T) {
	st := testutil.NewMockStore()
	r := NewResolver(st, nil, nil)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Override is older than the later schema entry but still wins.
	appendSchema(t, st, "repo-1", types.VerbSchemaOverride, base,
		[]types.EventDefinition{{Name: "curated"}})
	appendSchema(t, st, "repo-1", types.VerbSchema, base.Add(48*time.Hour),
		[]types.EventDefinition{{Name: "inferred"}})

	schema, err := r.Resolve(context.Background(), "repo-1")
	require.NoError(t, err)
	require.Len(t, schema.Events, 1)
	assert.Equal(t, "curated", schema.Events[0].Name)
}

func TestResolveUnionsCoreFields(t *testing.T) {
	st := testutil.NewMockStore()
	r := NewResolver(st, nil, nil)

	appendSchema(t, st, "repo-1", types.VerbSchema, time.Now().UTC(),
		[]types.EventDefinition{{Name: "purchase", Required: []string{"order_id", "user_id"}}})

	schema, err := r.Resolve(context.Background(), "repo-1")
	require.NoError(t, err)
	require.Len(t, schema.Events, 1)

	got := schema.Events[0].Required
	for _, core := range types.CoreRequiredFields {
		assert.Contains(t, got, core)
	}
	assert.Contains(t, got, "order_id")

	// De-duplicated: user_id is both core and proposed.
	seen := map[string]int{}
	for _, f := range got {
		seen[f]++
	}
	assert.Equal(t, 1, seen["user_id"])
}

func TestResolveIsolatesRepositories(t *testing.T) {
	st := testutil.NewMockStore()
	r := NewResolver(st, nil, nil)

	appendSchema(t, st, "repo-1", types.VerbSchema, time.Now().UTC(),
		[]types.EventDefinition{{Name: "signup"}})

	schema, err := r.Resolve(context.Background(), "repo-2")
	require.NoError(t, err)
	assert.Empty(t, schema.Events)
}

func TestResolveRouteGraph(t *testing.T) {
	st := testutil.NewMockStore()
	r := NewResolver(st, nil, nil)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	graph, err := r.ResolveRouteGraph(context.Background(), "repo-1")
	require.NoError(t, err)
	assert.Nil(t, graph, "no declared graph resolves to nil")

	err = st.AppendEvent(context.Background(), types.EventLogEntry{
		RepositoryID: "repo-1",
		Verb:         types.VerbRouteGraph,
		Metadata: map[string]interface{}{
			SuggestedKey: types.RouteGraph{
				Nodes: []types.RouteNode{{ID: "home", Pattern: "/"}},
			},
		},
		Timestamp: base,
	})
	require.NoError(t, err)

	err = st.AppendEvent(context.Background(), types.EventLogEntry{
		RepositoryID: "repo-1",
		Verb:         types.VerbRouteGraphOverride,
		Metadata: map[string]interface{}{
			SuggestedKey: types.RouteGraph{
				Nodes: []types.RouteNode{
					{ID: "home", Pattern: "/"},
					{ID: "product", Pattern: "/product/:id"},
				},
			},
		},
		Timestamp: base.Add(-time.Hour),
	})
	require.NoError(t, err)

	graph, err = r.ResolveRouteGraph(context.Background(), "repo-1")
	require.NoError(t, err)
	require.NotNil(t, graph)
	assert.Len(t, graph.Nodes, 2, "override wins over the newer base entry")
}

func TestResolveMissingPayloadFails(t *testing.T) {
	st := testutil.NewMockStore()
	r := NewResolver(st, nil, nil)

	err := st.AppendEvent(context.Background(), types.EventLogEntry{
		RepositoryID: "repo-1",
		Verb:         types.VerbSchema,
		Metadata:     map[string]interface{}{"note": "no payload"},
		Timestamp:    time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "repo-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suggested")
}
