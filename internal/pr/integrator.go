// Package pr turns an approved schema into a pull request carrying the
// generated tracking files.
package pr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/autometric/autometric/internal/githost"
	"github.com/autometric/autometric/internal/metrics"
	"github.com/autometric/autometric/internal/schema"
	"github.com/autometric/autometric/pkg/types"
)

const (
	// MarkerFile decides bootstrap-vs-delta mode: absent at the target
	// commit means the repository has never been instrumented.
	MarkerFile = "autometric.contract.json"

	branchPrefix = "autometric/"
	runtimeDir   = "src/autometric/"

	blobUploadConcurrency = 4
)

// ConflictError lists every path that already exists at the target commit.
// The approve call writes nothing when this is returned.
type ConflictError struct {
	Paths []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("files already exist at target commit: %s", strings.Join(e.Paths, ", "))
}

// entryPointCandidates are scanned in order for best-effort tracker import
// injection. The first one present gets the import line.
var entryPointCandidates = []string{
	"src/main.tsx",
	"src/main.jsx",
	"src/main.ts",
	"src/main.js",
	"src/index.tsx",
	"src/index.jsx",
	"src/index.ts",
	"src/index.js",
	"pages/_app.tsx",
	"pages/_app.jsx",
	"app/layout.tsx",
}

const trackerImportLine = `import "./autometric/tracker";`

// Integrator assembles approved instrumentation files and opens pull
// requests on feature branches.
type Integrator struct {
	resolver *schema.Resolver
	host     githost.Client
	logger   *slog.Logger
}

// NewIntegrator creates an Integrator.
func NewIntegrator(resolver *schema.Resolver, host githost.Client, logger *slog.Logger) *Integrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Integrator{resolver: resolver, host: host, logger: logger}
}

// BranchName derives the deterministic feature branch for a commit.
func BranchName(commitSHA string) string {
	sha := commitSHA
	if len(sha) > 8 {
		sha = sha[:8]
	}
	return branchPrefix + sha
}

// Approve materializes the instrumentation file set for commitSHA as a
// single commit on a feature branch and opens a pull request against the
// repository's default branch. Calling it again for the same commit returns
// the already-open pull request unchanged.
func (i *Integrator) Approve(ctx context.Context, repo *types.Repository, req *types.ApproveRequest) (*types.ApproveResult, error) {
	if req.CommitSHA == "" {
		return nil, fmt.Errorf("commit sha required")
	}

	bootstrap, err := i.isBootstrap(ctx, repo, req.CommitSHA)
	if err != nil {
		return nil, err
	}

	files, err := i.assembleFiles(ctx, repo, req, bootstrap)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to write: no explicit files given and no schema snippets exist for %s", repo.FullName())
	}

	if !req.Force {
		if conflict, err := i.checkConflicts(ctx, repo, req.CommitSHA, files); err != nil {
			return nil, err
		} else if conflict != nil {
			return nil, conflict
		}
	}

	if bootstrap {
		i.injectEntryPoint(ctx, repo, req.CommitSHA, files)
	}

	branch := BranchName(req.CommitSHA)

	existing, err := i.host.FindOpenPull(ctx, repo.Owner, repo.Name, branch)
	if err != nil && !errors.Is(err, githost.ErrNotFound) {
		return nil, fmt.Errorf("looking up open pull request: %w", err)
	}
	if existing != nil {
		i.logger.Info("pull request already open", "repository", repo.FullName(), "branch", branch, "pr", existing.Number)
		return &types.ApproveResult{
			Status:    types.ApproveExists,
			PRNumber:  existing.Number,
			PRURL:     existing.URL,
			Branch:    branch,
			Bootstrap: bootstrap,
			Files:     sortedPaths(files),
		}, nil
	}

	baseSHA, err := i.materializeBranch(ctx, repo, branch, req.CommitSHA)
	if err != nil {
		return nil, err
	}

	commitSHA, err := i.commitFiles(ctx, repo, baseSHA, files, bootstrap)
	if err != nil {
		return nil, err
	}
	if err := i.host.UpdateBranch(ctx, repo.Owner, repo.Name, branch, commitSHA); err != nil {
		return nil, fmt.Errorf("advancing branch %s: %w", branch, err)
	}

	pull, err := i.openPull(ctx, repo, branch, files, bootstrap)
	if err != nil {
		return nil, err
	}
	metrics.PullRequestsOpened.Add(1)
	i.logger.Info("pull request opened", "repository", repo.FullName(), "branch", branch, "pr", pull.Number)

	return &types.ApproveResult{
		Status:    types.ApproveCreated,
		PRNumber:  pull.Number,
		PRURL:     pull.URL,
		Branch:    branch,
		Bootstrap: bootstrap,
		Files:     sortedPaths(files),
	}, nil
}

func (i *Integrator) isBootstrap(ctx context.Context, repo *types.Repository, commitSHA string) (bool, error) {
	_, err := i.host.GetFileContent(ctx, repo.Owner, repo.Name, MarkerFile, commitSHA)
	if errors.Is(err, githost.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking marker file: %w", err)
	}
	return false, nil
}

// assembleFiles builds the path-to-content set: explicit caller files win,
// else the latest resolved schema's snippets; bootstrap mode adds the fixed
// core runtime plus contract scaffolding.
func (i *Integrator) assembleFiles(ctx context.Context, repo *types.Repository, req *types.ApproveRequest, bootstrap bool) (map[string]string, error) {
	files := make(map[string]string)

	if len(req.Files) > 0 {
		for p, content := range req.Files {
			files[p] = content
		}
	} else {
		resolved, err := i.resolver.Resolve(ctx, repo.ID)
		if err != nil {
			return nil, fmt.Errorf("resolving schema: %w", err)
		}
		for _, snippet := range resolved.Snippets {
			if snippet.Path == "" {
				continue
			}
			files[snippet.Path] = snippet.Content
		}
		if bootstrap {
			contract, err := i.renderContract(ctx, repo, req.CommitSHA, &resolved)
			if err != nil {
				return nil, err
			}
			files[MarkerFile] = contract
		}
	}

	if bootstrap {
		files[runtimeDir+"core.js"] = runtimeCoreJS
		files[runtimeDir+"dom.js"] = runtimeDOMJS
		files[runtimeDir+"tracker.js"] = runtimeTrackerJS
		files[runtimeDir+"README.md"] = runtimeReadme
		files[runtimeDir+"adapters.json"] = runtimeAdapters
		if _, ok := files[MarkerFile]; !ok {
			contract, err := i.renderContract(ctx, repo, req.CommitSHA, nil)
			if err != nil {
				return nil, err
			}
			files[MarkerFile] = contract
		}
	}
	return files, nil
}

func (i *Integrator) renderContract(ctx context.Context, repo *types.Repository, commitSHA string, resolved *types.EventSchema) (string, error) {
	if resolved == nil {
		s, err := i.resolver.Resolve(ctx, repo.ID)
		if err != nil {
			return "", fmt.Errorf("resolving schema for contract: %w", err)
		}
		resolved = &s
	}
	names := make([]string, 0, len(resolved.Events))
	for _, ev := range resolved.Events {
		names = append(names, ev.Name)
	}
	contract := map[string]interface{}{
		"version":    1,
		"repository": repo.FullName(),
		"commit":     commitSHA,
		"events":     names,
	}
	data, err := json.MarshalIndent(contract, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

// checkConflicts probes every target path at commitSHA. All colliding paths
// are reported together so the caller sees the full conflict in one pass.
func (i *Integrator) checkConflicts(ctx context.Context, repo *types.Repository, commitSHA string, files map[string]string) (*ConflictError, error) {
	var colliding []string
	for _, p := range sortedPaths(files) {
		_, err := i.host.GetFileContent(ctx, repo.Owner, repo.Name, p, commitSHA)
		if errors.Is(err, githost.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("checking existing file %s: %w", p, err)
		}
		colliding = append(colliding, p)
	}
	if len(colliding) > 0 {
		return &ConflictError{Paths: colliding}, nil
	}
	return nil, nil
}

// injectEntryPoint prepends the tracker import to the first entry-point
// candidate found at commitSHA, unless the import is already present. This
// is heuristic and silently no-ops when no candidate exists.
func (i *Integrator) injectEntryPoint(ctx context.Context, repo *types.Repository, commitSHA string, files map[string]string) {
	for _, candidate := range entryPointCandidates {
		content, err := i.host.GetFileContent(ctx, repo.Owner, repo.Name, candidate, commitSHA)
		if errors.Is(err, githost.ErrNotFound) {
			continue
		}
		if err != nil {
			i.logger.Warn("entry point probe failed, skipping injection", "path", candidate, "error", err)
			return
		}
		if strings.Contains(string(content), "autometric/tracker") {
			return
		}
		files[candidate] = trackerImportLine + "\n" + string(content)
		i.logger.Info("injecting tracker import", "repository", repo.FullName(), "path", candidate)
		return
	}
}

// materializeBranch ensures the feature branch exists and returns the sha
// new commits should build on. An existing branch keeps its tip so repeated
// approvals append instead of rewriting history.
func (i *Integrator) materializeBranch(ctx context.Context, repo *types.Repository, branch, commitSHA string) (string, error) {
	tip, err := i.host.GetBranchSHA(ctx, repo.Owner, repo.Name, branch)
	if err == nil {
		return tip, nil
	}
	if !errors.Is(err, githost.ErrNotFound) {
		return "", fmt.Errorf("reading branch %s: %w", branch, err)
	}
	if err := i.host.CreateBranch(ctx, repo.Owner, repo.Name, branch, commitSHA); err != nil {
		return "", fmt.Errorf("creating branch %s: %w", branch, err)
	}
	return commitSHA, nil
}

// commitFiles writes all files as one commit: blob per file uploaded
// concurrently, one tree on top of the base commit's tree, one commit.
func (i *Integrator) commitFiles(ctx context.Context, repo *types.Repository, baseSHA string, files map[string]string, bootstrap bool) (string, error) {
	baseCommit, err := i.host.GetCommit(ctx, repo.Owner, repo.Name, baseSHA)
	if err != nil {
		return "", fmt.Errorf("reading base commit %s: %w", baseSHA, err)
	}

	paths := sortedPaths(files)
	specs := make([]githost.TreeSpec, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(blobUploadConcurrency)
	for idx, p := range paths {
		g.Go(func() error {
			blobSHA, err := i.host.CreateBlob(gctx, repo.Owner, repo.Name, []byte(files[p]))
			if err != nil {
				return fmt.Errorf("uploading blob for %s: %w", p, err)
			}
			specs[idx] = githost.TreeSpec{Path: p, BlobSHA: blobSHA}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	treeSHA, err := i.host.CreateTree(ctx, repo.Owner, repo.Name, baseCommit.TreeSHA, specs)
	if err != nil {
		return "", fmt.Errorf("creating tree: %w", err)
	}

	message := fmt.Sprintf("Add analytics instrumentation (%d files)", len(paths))
	if bootstrap {
		message = fmt.Sprintf("Bootstrap analytics instrumentation (%d files)", len(paths))
	}
	commitSHA, err := i.host.CreateCommit(ctx, repo.Owner, repo.Name, message, treeSHA, []string{baseSHA})
	if err != nil {
		return "", fmt.Errorf("creating commit: %w", err)
	}
	return commitSHA, nil
}

func (i *Integrator) openPull(ctx context.Context, repo *types.Repository, branch string, files map[string]string, bootstrap bool) (*githost.PullRequest, error) {
	title := "Add analytics instrumentation"
	if bootstrap {
		title = "Set up analytics instrumentation"
	}

	var b strings.Builder
	b.WriteString("Automated instrumentation proposed by autometric.\n\nFiles:\n")
	for _, p := range sortedPaths(files) {
		fmt.Fprintf(&b, "- `%s`\n", p)
	}
	fmt.Fprintf(&b, "\nGenerated %s.\n", time.Now().UTC().Format(time.DateOnly))

	pull, err := i.host.CreatePull(ctx, repo.Owner, repo.Name, title, b.String(), branch, repo.DefaultBranch)
	if err != nil {
		return nil, fmt.Errorf("opening pull request: %w", err)
	}
	return pull, nil
}

func sortedPaths(files map[string]string) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
