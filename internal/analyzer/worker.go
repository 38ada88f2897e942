package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"time"

	"github.com/autometric/autometric/internal/githost"
	"github.com/autometric/autometric/internal/inference"
	"github.com/autometric/autometric/internal/metrics"
	"github.com/autometric/autometric/internal/store"
	"github.com/autometric/autometric/pkg/types"
)

const (
	defaultMaxCostFiles = 10
	zeroSHA             = "0000000000000000000000000000000000000000"
)

// Notifier receives failure alerts. *alert.Dispatcher satisfies it.
type Notifier interface {
	Dispatch(ctx context.Context, alert types.Alert)
}

// Worker processes queued analyzer runs one at a time. It owns no in-memory
// state between invocations; all coordination goes through run rows.
type Worker struct {
	store        store.Store
	host         githost.Client
	infer        inference.Inferencer
	notifier     Notifier
	logger       *slog.Logger
	maxCostFiles int
}

// Option configures a Worker.
type Option func(*Worker)

// WithNotifier attaches a failure alert destination.
func WithNotifier(n Notifier) Option {
	return func(w *Worker) { w.notifier = n }
}

// WithMaxCostFiles caps the changed-file list sent to inference.
func WithMaxCostFiles(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxCostFiles = n
		}
	}
}

// NewWorker creates a Worker.
func NewWorker(st store.Store, host githost.Client, infer inference.Inferencer, logger *slog.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		store:        st,
		host:         host,
		infer:        infer,
		logger:       logger,
		maxCostFiles: defaultMaxCostFiles,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RunReport describes the outcome of a single worker invocation.
type RunReport struct {
	Picked     bool            `json:"picked"`
	RunID      string          `json:"runId,omitempty"`
	Repository string          `json:"repository,omitempty"`
	CommitSHA  string          `json:"commitSha,omitempty"`
	Status     types.RunStatus `json:"status,omitempty"`
	Skipped    bool            `json:"skipped,omitempty"`
	Fallback   bool            `json:"fallback,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// RunOnce claims the oldest queued push run and processes it to a terminal
// state. Returning with Picked=false means the queue was empty or another
// worker won the claim. Processing failures are recorded on the run and
// reported, they do not surface as a RunOnce error.
func (w *Worker) RunOnce(ctx context.Context) (*RunReport, error) {
	run, err := w.store.OldestQueuedRun(ctx, types.TriggerPush)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &RunReport{Picked: false}, nil
		}
		return nil, fmt.Errorf("picking queued run: %w", err)
	}

	claimed, err := w.store.ClaimRun(ctx, run.RunID, types.RunQueued, types.RunRunning, nil)
	if err != nil {
		return nil, fmt.Errorf("claiming run %s: %w", run.RunID, err)
	}
	if !claimed {
		w.logger.Info("run claimed by another worker", "runId", run.RunID)
		return &RunReport{Picked: false}, nil
	}

	report := &RunReport{Picked: true, RunID: run.RunID, CommitSHA: run.CommitSHA}
	if err := w.process(ctx, run, report); err != nil {
		w.fail(ctx, run, report, err)
		return report, nil
	}
	return report, nil
}

func (w *Worker) process(ctx context.Context, run *types.AnalyzerRun, report *RunReport) error {
	repo, err := w.store.GetRepository(ctx, run.RepositoryID)
	if err != nil {
		return fmt.Errorf("resolving repository %s: %w", run.RepositoryID, err)
	}
	report.Repository = repo.FullName()

	head := run.CommitSHA
	if head == "" {
		return fmt.Errorf("push run %s has no commit sha", run.RunID)
	}
	base := summaryString(run.Summary, "base_sha")
	if base == "" || base == zeroSHA {
		commit, err := w.host.GetCommit(ctx, repo.Owner, repo.Name, head)
		if err != nil {
			return fmt.Errorf("resolving parent of %s: %w", short(head), err)
		}
		if len(commit.Parents) > 0 {
			base = commit.Parents[0]
		}
	}

	diff, err := w.summarizeDiff(ctx, repo, base, head)
	if err != nil {
		return err
	}

	tree, err := w.host.GetTree(ctx, repo.Owner, repo.Name, head, true)
	if err != nil {
		return fmt.Errorf("fetching tree at %s: %w", short(head), err)
	}
	paths := make([]string, 0, len(tree))
	for _, e := range tree {
		if e.Type == "blob" {
			paths = append(paths, e.Path)
		}
	}

	manifest, err := w.host.GetFileContent(ctx, repo.Owner, repo.Name, "package.json", head)
	if err != nil && !errors.Is(err, githost.ErrNotFound) {
		return fmt.Errorf("fetching manifest: %w", err)
	}

	det := Detect(manifest, paths)

	if len(det.Frameworks) == 0 && len(det.Routes) == 0 && len(diff.frontendFiles) == 0 {
		report.Skipped = true
		return w.complete(ctx, run, report, map[string]interface{}{
			"skipped": true,
			"reason":  "no frontend signals detected",
		})
	}

	result, fellBack := w.inferSchema(ctx, repo, base, head, det, diff)
	report.Fallback = fellBack

	source := "inference"
	if fellBack {
		source = "fallback"
	}
	schemaEntry := types.EventLogEntry{
		RepositoryID: repo.ID,
		CommitSHA:    head,
		Actor:        "analyzer",
		Verb:         types.VerbSchema,
		Metadata: map[string]interface{}{
			"suggested":  result.Schema,
			"source":     source,
			"base_sha":   base,
			"frameworks": det.Frameworks,
		},
		Timestamp: time.Now().UTC(),
	}
	if err := w.store.AppendEvent(ctx, schemaEntry); err != nil && !errors.Is(err, store.ErrDuplicate) {
		return fmt.Errorf("persisting schema event: %w", err)
	}

	if result.Graph != nil {
		graphEntry := types.EventLogEntry{
			RepositoryID: repo.ID,
			CommitSHA:    head,
			Actor:        "analyzer",
			Verb:         types.VerbRouteGraph,
			Metadata: map[string]interface{}{
				"suggested": result.Graph,
				"source":    source,
			},
			Timestamp: time.Now().UTC(),
		}
		if err := w.store.AppendEvent(ctx, graphEntry); err != nil && !errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("persisting route graph event: %w", err)
		}
	}

	return w.complete(ctx, run, report, map[string]interface{}{
		"events":     len(result.Schema.Events),
		"fallback":   fellBack,
		"frameworks": det.Frameworks,
	})
}

// inferSchema invokes the external service and substitutes the deterministic
// fallback on any failure. Inference problems degrade the result, they never
// fail the run.
func (w *Worker) inferSchema(ctx context.Context, repo *types.Repository, base, head string, det Detection, diff *diffSummary) (*inference.Result, bool) {
	req := &inference.Request{
		RepositoryFullName: repo.FullName(),
		BaseSHA:            base,
		HeadSHA:            head,
		Frameworks:         det.Frameworks,
		Routes:             det.Routes,
		ChangedFiles:       diff.frontendFiles,
		DiffTotals:         diff.totalsByExt,
	}
	result, err := w.infer.InferSchema(ctx, req)
	if err != nil {
		metrics.InferenceFallbacks.Add(1)
		w.logger.Warn("inference failed, using fallback schema",
			"repository", repo.FullName(), "commit", short(head), "error", err)
		return inference.Fallback(det.Frameworks), true
	}
	if result.Schema.Snippets == nil {
		result.Schema.Snippets = []types.Snippet{}
	}
	return result, false
}

type diffSummary struct {
	frontendFiles []string
	totalsByExt   map[string]int
	totalCommits  int
}

// summarizeDiff compares base and head and extracts the bounded context the
// inference request carries. With no base (root commit) it returns an empty
// summary and lets tree detection drive the decision.
func (w *Worker) summarizeDiff(ctx context.Context, repo *types.Repository, base, head string) (*diffSummary, error) {
	summary := &diffSummary{totalsByExt: map[string]int{}}
	if base == "" {
		return summary, nil
	}

	cmp, err := w.host.CompareCommits(ctx, repo.Owner, repo.Name, base, head)
	if err != nil {
		return nil, fmt.Errorf("comparing %s..%s: %w", short(base), short(head), err)
	}
	summary.totalCommits = cmp.TotalCommits

	files := append([]githost.DiffFile(nil), cmp.Files...)
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Additions+files[i].Deletions > files[j].Additions+files[j].Deletions
	})
	for _, f := range files {
		if ext := path.Ext(f.Path); ext != "" {
			summary.totalsByExt[ext]++
		}
		if IsFrontendPath(f.Path) && len(summary.frontendFiles) < w.maxCostFiles {
			summary.frontendFiles = append(summary.frontendFiles, f.Path)
		}
	}
	return summary, nil
}

func (w *Worker) complete(ctx context.Context, run *types.AnalyzerRun, report *RunReport, updates map[string]interface{}) error {
	if _, err := w.store.ClaimRun(ctx, run.RunID, types.RunRunning, types.RunCompleted, mergeSummary(run.Summary, updates)); err != nil {
		return fmt.Errorf("completing run %s: %w", run.RunID, err)
	}
	report.Status = types.RunCompleted
	if report.Skipped {
		metrics.RunsSkipped.Add(1)
	} else {
		metrics.RunsCompleted.Add(1)
	}
	w.logger.Info("run completed", "runId", run.RunID,
		"repository", report.Repository, "skipped", report.Skipped, "fallback", report.Fallback)
	return nil
}

func (w *Worker) fail(ctx context.Context, run *types.AnalyzerRun, report *RunReport, cause error) {
	report.Status = types.RunFailed
	report.Error = cause.Error()
	metrics.RunsFailed.Add(1)
	w.logger.Error("run failed", "runId", run.RunID, "repository", report.Repository, "error", cause)

	summary := mergeSummary(run.Summary, map[string]interface{}{"error": cause.Error()})
	if _, err := w.store.ClaimRun(ctx, run.RunID, types.RunRunning, types.RunFailed, summary); err != nil {
		w.logger.Error("recording run failure", "runId", run.RunID, "error", err)
	}

	if w.notifier != nil {
		w.notifier.Dispatch(ctx, types.Alert{
			Level:      types.AlertLevelError,
			Repository: report.Repository,
			RunID:      run.RunID,
			Message:    fmt.Sprintf("analyzer run failed: %v", cause),
			Details:    map[string]interface{}{"commit": run.CommitSHA},
			Timestamp:  time.Now().UTC(),
		})
	}
}

func mergeSummary(base, updates map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(updates))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}

func summaryString(summary map[string]interface{}, key string) string {
	if summary == nil {
		return ""
	}
	if v, ok := summary[key].(string); ok {
		return v
	}
	return ""
}

func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
