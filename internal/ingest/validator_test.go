package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autometric/autometric/internal/schema"
	"github.com/autometric/autometric/internal/testutil"
	"github.com/autometric/autometric/pkg/types"
)

func newFixture(t *testing.T) (*Validator, *testutil.MockStore, types.Repository) {
	t.Helper()
	st := testutil.NewMockStore()
	repo, err := st.EnsureRepository(context.Background(), types.Repository{
		ID:       "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Provider: types.DefaultProvider,
		Owner:    "acme",
		Name:     "shop",
	})
	require.NoError(t, err)

	err = st.AppendEvent(context.Background(), types.EventLogEntry{
		RepositoryID: repo.ID,
		Verb:         types.VerbSchema,
		Metadata: map[string]interface{}{
			schema.SuggestedKey: types.EventSchema{
				Events: []types.EventDefinition{
					{Name: "page_view", Required: []string{"page_url"}},
					{Name: "purchase", Required: []string{"order_id"}},
				},
			},
		},
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)

	v := NewValidator(st, schema.NewResolver(st, nil, nil), nil)
	return v, st, repo
}

func metadata(extra map[string]interface{}) map[string]interface{} {
	md := map[string]interface{}{
		"app_key":    "ak_test",
		"session_id": "s-1",
		"user_id":    "u-1",
		"timestamp":  "2026-03-01T00:00:00Z",
	}
	for k, val := range extra {
		md[k] = val
	}
	return md
}

func TestIngestAcceptsValidEvent(t *testing.T) {
	v, st, repo := newFixture(t)

	before := len(st.Events())
	ev, err := v.Ingest(context.Background(), types.IngestRequest{
		RepositoryFullName: "acme/shop",
		Source:             "web",
		Verb:               "purchase",
		Metadata:           metadata(map[string]interface{}{"order_id": "o-9"}),
	})
	require.NoError(t, err)
	assert.Equal(t, repo.ID, ev.RepositoryID)
	assert.Equal(t, "purchase", ev.Verb)
	assert.Len(t, st.Events(), before+1)
}

func TestIngestRejectsUnknownVerb(t *testing.T) {
	v, st, _ := newFixture(t)

	before := len(st.Events())
	_, err := v.Ingest(context.Background(), types.IngestRequest{
		RepositoryFullName: "acme/shop",
		Verb:               "rage_click",
		Metadata:           metadata(nil),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "rage_click")
	assert.Len(t, st.Events(), before, "rejected events are not persisted")
}

func TestIngestRejectsMissingRequiredField(t *testing.T) {
	v, _, _ := newFixture(t)

	md := metadata(nil)
	delete(md, "session_id")
	_, err := v.Ingest(context.Background(), types.IngestRequest{
		RepositoryFullName: "acme/shop",
		Verb:               "purchase",
		Metadata:           md,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "session_id")
}

func TestIngestRejectsEventSpecificMissingField(t *testing.T) {
	v, _, _ := newFixture(t)

	_, err := v.Ingest(context.Background(), types.IngestRequest{
		RepositoryFullName: "acme/shop",
		Verb:               "purchase",
		Metadata:           metadata(nil),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "order_id")
}

func TestIngestPresenceOnlyChecking(t *testing.T) {
	v, _, _ := newFixture(t)

	// Wrong-looking types still pass: the contract checks presence, not shape.
	ev, err := v.Ingest(context.Background(), types.IngestRequest{
		RepositoryFullName: "acme/shop",
		Verb:               "purchase",
		Metadata:           metadata(map[string]interface{}{"order_id": 12345}),
	})
	require.NoError(t, err)
	assert.NotNil(t, ev)
}

func TestIngestUnknownRepository(t *testing.T) {
	v, _, _ := newFixture(t)

	_, err := v.Ingest(context.Background(), types.IngestRequest{
		RepositoryFullName: "acme/ghost",
		Verb:               "purchase",
		Metadata:           metadata(nil),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "acme/ghost")
}

func TestIngestRouteAttribution(t *testing.T) {
	v, st, repo := newFixture(t)

	err := st.AppendEvent(context.Background(), types.EventLogEntry{
		RepositoryID: repo.ID,
		Verb:         types.VerbRouteGraph,
		Metadata: map[string]interface{}{
			schema.SuggestedKey: types.RouteGraph{
				Nodes: []types.RouteNode{
					{ID: "home", Pattern: "/"},
					{ID: "product", Pattern: "/product/:id"},
				},
			},
		},
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)

	ev, err := v.Ingest(context.Background(), types.IngestRequest{
		RepositoryFullName: "acme/shop",
		Verb:               "page_view",
		Metadata: metadata(map[string]interface{}{
			"page_url":     "https://shop.example.com/product/42",
			"prev_node_id": "home",
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, "product", ev.NodeID)
	assert.Equal(t, "home->product", ev.EdgeID)

	events := st.Events()
	last := events[len(events)-1]
	assert.Equal(t, "product", last.NodeID)
	assert.Equal(t, "home->product", last.EdgeID)
}

func TestIngestNoGraphLeavesAttributionEmpty(t *testing.T) {
	v, _, _ := newFixture(t)

	ev, err := v.Ingest(context.Background(), types.IngestRequest{
		RepositoryFullName: "acme/shop",
		Verb:               "page_view",
		Metadata:           metadata(map[string]interface{}{"page_url": "/about"}),
	})
	require.NoError(t, err)
	assert.Empty(t, ev.NodeID)
	assert.Empty(t, ev.EdgeID)
}
