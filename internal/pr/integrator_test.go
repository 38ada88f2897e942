package pr

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autometric/autometric/internal/githost"
	"github.com/autometric/autometric/internal/schema"
	"github.com/autometric/autometric/internal/testutil"
	"github.com/autometric/autometric/pkg/types"
)

const targetSHA = "cccccccccccccccccccccccccccccccccccccccc"

func newFixture(t *testing.T, snippets []types.Snippet) (*Integrator, *testutil.FakeGitHost, *types.Repository) {
	t.Helper()
	st := testutil.NewMockStore()
	repo, err := st.EnsureRepository(context.Background(), types.Repository{
		ID:            "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Provider:      types.DefaultProvider,
		Owner:         "acme",
		Name:          "shop",
		DefaultBranch: "main",
	})
	require.NoError(t, err)

	err = st.AppendEvent(context.Background(), types.EventLogEntry{
		RepositoryID: repo.ID,
		Verb:         types.VerbSchema,
		Metadata: map[string]interface{}{
			schema.SuggestedKey: types.EventSchema{
				Events:   []types.EventDefinition{{Name: "page_view"}, {Name: "purchase"}},
				Snippets: snippets,
			},
		},
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)

	host := testutil.NewFakeGitHost()
	host.Commits[targetSHA] = githost.CommitRef{SHA: targetSHA, TreeSHA: "tree-root"}

	return NewIntegrator(schema.NewResolver(st, nil, nil), host, nil), host, &repo
}

func blobFor(t *testing.T, host *testutil.FakeGitHost, path string) string {
	t.Helper()
	require.NotEmpty(t, host.CreatedTrees)
	for _, entry := range host.CreatedTrees[len(host.CreatedTrees)-1].Entries {
		if entry.Path == path {
			return string(host.Blobs[entry.BlobSHA])
		}
	}
	t.Fatalf("no tree entry for %s", path)
	return ""
}

func TestBranchName(t *testing.T) {
	assert.Equal(t, "autometric/cccccccc", BranchName(targetSHA))
	assert.Equal(t, "autometric/abc", BranchName("abc"))
}

func TestApproveBootstrap(t *testing.T) {
	snippet := types.Snippet{Path: "src/autometric/events.js", Content: "export const events = [];\n"}
	i, host, repo := newFixture(t, []types.Snippet{snippet})

	res, err := i.Approve(context.Background(), repo, &types.ApproveRequest{CommitSHA: targetSHA})
	require.NoError(t, err)
	assert.Equal(t, types.ApproveCreated, res.Status)
	assert.True(t, res.Bootstrap)
	assert.Equal(t, "autometric/cccccccc", res.Branch)
	assert.Contains(t, res.Files, MarkerFile)
	assert.Contains(t, res.Files, "src/autometric/core.js")
	assert.Contains(t, res.Files, "src/autometric/tracker.js")
	assert.Contains(t, res.Files, snippet.Path)

	// One commit on top of the target, built from its tree.
	require.Len(t, host.CreatedCommits, 1)
	commit := host.CreatedCommits[0]
	assert.Equal(t, []string{targetSHA}, commit.Parents)
	assert.Contains(t, commit.Message, "Bootstrap")
	require.Len(t, host.CreatedTrees, 1)
	assert.Equal(t, "tree-root", host.CreatedTrees[0].Base)

	// Branch fast-forwarded to the new commit and a PR opened against main.
	assert.Equal(t, commit.SHA, host.Branches[res.Branch])
	require.Len(t, host.Pulls, 1)
	assert.Equal(t, res.Branch, host.Pulls[0].HeadRef)
	assert.Equal(t, "main", host.Pulls[0].BaseRef)
	assert.Equal(t, host.Pulls[0].Number, res.PRNumber)

	contract := blobFor(t, host, MarkerFile)
	assert.Contains(t, contract, `"acme/shop"`)
	assert.Contains(t, contract, targetSHA)
	assert.Contains(t, contract, "page_view")
}

func TestApproveInjectsEntryPointImport(t *testing.T) {
	i, host, repo := newFixture(t, []types.Snippet{{Path: "src/autometric/events.js", Content: "x"}})
	host.Files["src/main.tsx"] = []byte("import App from \"./App\";\n")

	res, err := i.Approve(context.Background(), repo, &types.ApproveRequest{CommitSHA: targetSHA})
	require.NoError(t, err)
	assert.Contains(t, res.Files, "src/main.tsx")

	injected := blobFor(t, host, "src/main.tsx")
	assert.True(t, strings.HasPrefix(injected, `import "./autometric/tracker";`))
	assert.Contains(t, injected, "import App")
}

func TestApproveSkipsInjectionWhenAlreadyImported(t *testing.T) {
	i, host, repo := newFixture(t, []types.Snippet{{Path: "src/autometric/events.js", Content: "x"}})
	host.Files["src/main.tsx"] = []byte("import \"./autometric/tracker\";\nimport App from \"./App\";\n")

	res, err := i.Approve(context.Background(), repo, &types.ApproveRequest{CommitSHA: targetSHA})
	require.NoError(t, err)
	assert.NotContains(t, res.Files, "src/main.tsx")
}

func TestApproveDeltaMode(t *testing.T) {
	i, host, repo := newFixture(t, nil)
	host.Files[MarkerFile] = []byte(`{"version": 1}`)

	res, err := i.Approve(context.Background(), repo, &types.ApproveRequest{
		CommitSHA: targetSHA,
		Files:     map[string]string{"src/autometric/checkout.js": "track();\n"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.ApproveCreated, res.Status)
	assert.False(t, res.Bootstrap)
	assert.Equal(t, []string{"src/autometric/checkout.js"}, res.Files)

	require.Len(t, host.CreatedCommits, 1)
	assert.NotContains(t, host.CreatedCommits[0].Message, "Bootstrap")
}

func TestApproveConflictWritesNothing(t *testing.T) {
	i, host, repo := newFixture(t, nil)
	host.Files[MarkerFile] = []byte(`{"version": 1}`)
	host.Files["src/autometric/checkout.js"] = []byte("old\n")

	_, err := i.Approve(context.Background(), repo, &types.ApproveRequest{
		CommitSHA: targetSHA,
		Files: map[string]string{
			"src/autometric/checkout.js": "new\n",
			"src/autometric/cart.js":     "cart\n",
		},
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"src/autometric/checkout.js"}, conflict.Paths)
	assert.Empty(t, host.CreatedCommits)
	assert.Empty(t, host.Pulls)
	assert.Empty(t, host.Branches)
}

func TestApproveForceOverridesConflict(t *testing.T) {
	i, host, repo := newFixture(t, nil)
	host.Files[MarkerFile] = []byte(`{"version": 1}`)
	host.Files["src/autometric/checkout.js"] = []byte("old\n")

	res, err := i.Approve(context.Background(), repo, &types.ApproveRequest{
		CommitSHA: targetSHA,
		Files:     map[string]string{"src/autometric/checkout.js": "new\n"},
		Force:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, types.ApproveCreated, res.Status)
	require.Len(t, host.CreatedCommits, 1)
}

func TestApproveReturnsExistingPull(t *testing.T) {
	i, host, repo := newFixture(t, []types.Snippet{{Path: "src/autometric/events.js", Content: "x"}})
	host.Pulls = append(host.Pulls, githost.PullRequest{
		Number: 7, URL: "https://example.com/acme/shop/pull/7",
		State: "open", HeadRef: BranchName(targetSHA), BaseRef: "main",
	})

	res, err := i.Approve(context.Background(), repo, &types.ApproveRequest{CommitSHA: targetSHA})
	require.NoError(t, err)
	assert.Equal(t, types.ApproveExists, res.Status)
	assert.Equal(t, 7, res.PRNumber)
	assert.Empty(t, host.CreatedCommits, "repeat approval writes nothing")
}

func TestApproveRequiresCommit(t *testing.T) {
	i, _, repo := newFixture(t, nil)
	_, err := i.Approve(context.Background(), repo, &types.ApproveRequest{})
	require.Error(t, err)
}

func TestApproveNoFiles(t *testing.T) {
	i, host, repo := newFixture(t, nil)
	host.Files[MarkerFile] = []byte(`{"version": 1}`)

	_, err := i.Approve(context.Background(), repo, &types.ApproveRequest{CommitSHA: targetSHA})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files to write")
}
