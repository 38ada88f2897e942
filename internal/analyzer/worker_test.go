package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/autometric/autometric/internal/githost"
	"github.com/autometric/autometric/internal/inference"
	"github.com/autometric/autometric/internal/testutil"
	"github.com/autometric/autometric/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	baseSHA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	headSHA = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type fakeInferencer struct {
	result *inference.Result
	err    error
	gotReq *inference.Request
}

func (f *fakeInferencer) InferSchema(_ context.Context, req *inference.Request) (*inference.Result, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type captureNotifier struct {
	alerts []types.Alert
}

func (c *captureNotifier) Dispatch(_ context.Context, a types.Alert) {
	c.alerts = append(c.alerts, a)
}

func seedRun(t *testing.T, st *testutil.MockStore) (types.Repository, types.AnalyzerRun) {
	t.Helper()
	repo, err := st.EnsureRepository(context.Background(), types.Repository{
		ID:            "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Provider:      types.DefaultProvider,
		Owner:         "acme",
		Name:          "shop",
		DefaultBranch: "main",
	})
	require.NoError(t, err)

	run := types.AnalyzerRun{
		RunID:        "01BX5ZZKBKACTAV9WEVGEMMVRZ",
		RepositoryID: repo.ID,
		CommitSHA:    headSHA,
		Status:       types.RunQueued,
		TriggerKind:  types.TriggerPush,
		Summary:      map[string]interface{}{"base_sha": baseSHA},
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.InsertRun(context.Background(), run))
	return repo, run
}

func seedHost() *testutil.FakeGitHost {
	host := testutil.NewFakeGitHost()
	host.Commits[headSHA] = githost.CommitRef{SHA: headSHA, TreeSHA: "tree-root", Parents: []string{baseSHA}}
	host.Compares[baseSHA+".."+headSHA] = &githost.Comparison{
		Files: []githost.DiffFile{
			{Path: "src/pages/index.tsx", Status: "modified", Additions: 12},
			{Path: "README.md", Status: "modified", Additions: 1},
		},
		TotalCommits: 1,
	}
	host.Trees[headSHA] = []githost.TreeEntry{
		{Path: "package.json", Type: "blob"},
		{Path: "src/pages/index.tsx", Type: "blob"},
		{Path: "src/pages/product/[id].tsx", Type: "blob"},
	}
	host.Files["package.json"] = []byte(`{"dependencies": {"react": "18.3.1"}}`)
	return host
}

func TestRunOnceEmptyQueue(t *testing.T) {
	w := NewWorker(testutil.NewMockStore(), testutil.NewFakeGitHost(), &fakeInferencer{}, nil)

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Picked)
}

func TestRunOnceHappyPath(t *testing.T) {
	st := testutil.NewMockStore()
	repo, run := seedRun(t, st)
	infer := &fakeInferencer{result: &inference.Result{
		Schema: &types.EventSchema{
			Events: []types.EventDefinition{{Name: "add_to_cart", Required: []string{"sku"}}},
		},
		Graph: &types.RouteGraph{
			Nodes: []types.RouteNode{{ID: "home", Pattern: "/"}},
		},
	}}
	w := NewWorker(st, seedHost(), infer, nil)

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Picked)
	assert.Equal(t, types.RunCompleted, report.Status)
	assert.False(t, report.Fallback)
	assert.False(t, report.Skipped)
	assert.Equal(t, "acme/shop", report.Repository)

	require.NotNil(t, infer.gotReq)
	assert.Equal(t, []string{"react"}, infer.gotReq.Frameworks)
	assert.Contains(t, infer.gotReq.Routes, "/product/:id")
	assert.Contains(t, infer.gotReq.ChangedFiles, "src/pages/index.tsx")

	stored, err := st.GetRun(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, stored.Status)
	assert.Equal(t, 1, stored.Summary["events"])

	var schemaEntries, graphEntries int
	for _, e := range st.Events() {
		switch e.Verb {
		case types.VerbSchema:
			schemaEntries++
			assert.Equal(t, repo.ID, e.RepositoryID)
			assert.Equal(t, headSHA, e.CommitSHA)
			assert.Equal(t, "inference", e.Metadata["source"])
		case types.VerbRouteGraph:
			graphEntries++
		}
	}
	assert.Equal(t, 1, schemaEntries)
	assert.Equal(t, 1, graphEntries)
}

func TestRunOnceInferenceFallback(t *testing.T) {
	st := testutil.NewMockStore()
	_, run := seedRun(t, st)
	infer := &fakeInferencer{err: errors.New("inference unavailable")}
	w := NewWorker(st, seedHost(), infer, nil)

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, report.Status)
	assert.True(t, report.Fallback)

	stored, err := st.GetRun(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, stored.Status)
	assert.Equal(t, true, stored.Summary["fallback"])

	events := st.Events()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, types.VerbSchema, last.Verb)
	assert.Equal(t, "fallback", last.Metadata["source"])

	suggested, ok := last.Metadata["suggested"].(*types.EventSchema)
	require.True(t, ok)
	names := make([]string, 0, len(suggested.Events))
	for _, ev := range suggested.Events {
		names = append(names, ev.Name)
	}
	assert.ElementsMatch(t, []string{"page_view", "click"}, names)

	// The completed run is terminal and never picked up again.
	second, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Picked)
}

func TestRunOnceSkipsWithoutFrontendSignals(t *testing.T) {
	st := testutil.NewMockStore()
	_, run := seedRun(t, st)

	host := testutil.NewFakeGitHost()
	host.Commits[headSHA] = githost.CommitRef{SHA: headSHA, Parents: []string{baseSHA}}
	host.Compares[baseSHA+".."+headSHA] = &githost.Comparison{
		Files: []githost.DiffFile{{Path: "main.go", Status: "modified"}},
	}
	host.Trees[headSHA] = []githost.TreeEntry{
		{Path: "main.go", Type: "blob"},
		{Path: "go.mod", Type: "blob"},
	}
	w := NewWorker(st, host, &fakeInferencer{}, nil)

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, types.RunCompleted, report.Status)

	stored, err := st.GetRun(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, stored.Status)
	assert.Equal(t, true, stored.Summary["skipped"])

	for _, e := range st.Events() {
		assert.NotEqual(t, types.VerbSchema, e.Verb, "skipped runs emit no schema events")
	}
}

func TestRunOnceFailureRecordsAndAlerts(t *testing.T) {
	st := testutil.NewMockStore()
	run := types.AnalyzerRun{
		RunID:        "01BX5ZZKBKACTAV9WEVGEMMVS0",
		RepositoryID: "missing-repo",
		CommitSHA:    headSHA,
		Status:       types.RunQueued,
		TriggerKind:  types.TriggerPush,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.InsertRun(context.Background(), run))

	notifier := &captureNotifier{}
	w := NewWorker(st, testutil.NewFakeGitHost(), &fakeInferencer{}, nil, WithNotifier(notifier))

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err, "processing failures do not surface as RunOnce errors")
	assert.Equal(t, types.RunFailed, report.Status)
	assert.NotEmpty(t, report.Error)

	stored, err := st.GetRun(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, stored.Status)
	assert.NotEmpty(t, stored.Summary["error"])

	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, types.AlertLevelError, notifier.alerts[0].Level)
	assert.Equal(t, run.RunID, notifier.alerts[0].RunID)
}

func TestRunOnceDuplicateSchemaEventIsSuccess(t *testing.T) {
	st := testutil.NewMockStore()
	repo, run := seedRun(t, st)

	// A previous attempt already wrote the schema event for this commit.
	require.NoError(t, st.AppendEvent(context.Background(), types.EventLogEntry{
		RepositoryID: repo.ID,
		CommitSHA:    headSHA,
		Verb:         types.VerbSchema,
		Metadata:     map[string]interface{}{"suggested": types.EventSchema{}},
		Timestamp:    time.Now().UTC(),
	}))

	infer := &fakeInferencer{result: &inference.Result{Schema: &types.EventSchema{
		Events: []types.EventDefinition{{Name: "page_view"}},
	}}}
	w := NewWorker(st, seedHost(), infer, nil)

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, report.Status)

	stored, err := st.GetRun(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, stored.Status)
}

func TestSummarizeDiffBoundsContext(t *testing.T) {
	st := testutil.NewMockStore()
	seedRun(t, st)

	files := make([]githost.DiffFile, 0, 15)
	for i := 0; i < 15; i++ {
		files = append(files, githost.DiffFile{
			Path:      "src/pages/page" + string(rune('a'+i)) + ".tsx",
			Additions: i,
		})
	}
	host := seedHost()
	host.Compares[baseSHA+".."+headSHA] = &githost.Comparison{Files: files, TotalCommits: 3}

	w := NewWorker(st, host, &fakeInferencer{result: &inference.Result{Schema: &types.EventSchema{}}}, nil, WithMaxCostFiles(5))

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, report.Status)
}
