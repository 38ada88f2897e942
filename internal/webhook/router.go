package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/autometric/autometric/internal/metrics"
	"github.com/autometric/autometric/internal/store"
	"github.com/autometric/autometric/pkg/types"
)

// Result summarizes what a webhook delivery produced.
type Result struct {
	Event     string `json:"event"`
	Enqueued  int    `json:"enqueued"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// Router dispatches verified webhook payloads to handlers that upsert
// repositories and enqueue analyzer runs. Callers must verify the signature
// before invoking Dispatch.
type Router struct {
	store  store.Store
	logger *slog.Logger
}

// NewRouter creates a webhook Router.
func NewRouter(st store.Store, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{store: st, logger: logger}
}

// Dispatch routes a verified payload by event kind. Unknown kinds are
// acknowledged without creating runs. A persistence failure aborts the
// handler: mid-batch failures surface to the caller, never get swallowed.
func (r *Router) Dispatch(ctx context.Context, event string, body []byte) (*Result, error) {
	switch event {
	case "installation":
		return r.handleInstallation(ctx, body)
	case "installation_repositories":
		return r.handleInstallationRepositories(ctx, body)
	case "push":
		return r.handlePush(ctx, body)
	default:
		return &Result{Event: event}, nil
	}
}

func (r *Router) handleInstallation(ctx context.Context, body []byte) (*Result, error) {
	var payload InstallationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing installation payload: %w", err)
	}

	res := &Result{Event: "installation"}
	for _, pr := range payload.Repositories {
		if err := r.enqueueFor(ctx, pr, payload.Installation.ID, types.TriggerInstall, nil); err != nil {
			return nil, err
		}
		res.Enqueued++
	}
	return res, nil
}

func (r *Router) handleInstallationRepositories(ctx context.Context, body []byte) (*Result, error) {
	var payload InstallationRepositoriesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing installation_repositories payload: %w", err)
	}

	res := &Result{Event: "installation_repositories"}
	for _, pr := range payload.RepositoriesAdded {
		if err := r.enqueueFor(ctx, pr, payload.Installation.ID, types.TriggerRepoAdded, nil); err != nil {
			return nil, err
		}
		res.Enqueued++
	}
	// Removal is recorded as a run; the repository row itself is never deleted.
	for _, pr := range payload.RepositoriesRemoved {
		if err := r.enqueueFor(ctx, pr, payload.Installation.ID, types.TriggerRepoRemoved, nil); err != nil {
			return nil, err
		}
		res.Enqueued++
	}
	return res, nil
}

func (r *Router) handlePush(ctx context.Context, body []byte) (*Result, error) {
	var payload PushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing push payload: %w", err)
	}
	if payload.After == "" || strings.HasPrefix(payload.After, "000000") {
		// Branch deletion push; nothing to analyze.
		return &Result{Event: "push"}, nil
	}

	repo, err := r.ensure(ctx, payload.Repository, payload.Installation.ID)
	if err != nil {
		return nil, err
	}

	// Redelivery check before insert: at most one run per (repository, head).
	if existing, err := r.store.FindRunByCommit(ctx, repo.ID, payload.After); err == nil && existing != nil {
		r.logger.Info("duplicate push delivery ignored",
			"repository", repo.FullName(), "commit", payload.After, "runId", existing.RunID)
		return &Result{Event: "push", Duplicate: true}, nil
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checking existing run: %w", err)
	}

	added, removed, modified := 0, 0, 0
	for _, c := range payload.Commits {
		added += len(c.Added)
		removed += len(c.Removed)
		modified += len(c.Modified)
	}
	summary := map[string]interface{}{
		"ref":            payload.Ref,
		"branch":         strings.TrimPrefix(payload.Ref, "refs/heads/"),
		"actor":          payload.Pusher.Name,
		"base_sha":       payload.Before,
		"head_sha":       payload.After,
		"files_added":    added,
		"files_removed":  removed,
		"files_modified": modified,
	}

	run := newRun(repo.ID, payload.After, types.TriggerPush, summary)
	if err := r.store.InsertRun(ctx, run); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Raced with a concurrent delivery of the same push.
			return &Result{Event: "push", Duplicate: true}, nil
		}
		return nil, fmt.Errorf("enqueueing run for %s@%s: %w", repo.FullName(), payload.After, err)
	}
	metrics.RunsEnqueued.Add(1)
	r.logger.Info("analyzer run enqueued",
		"repository", repo.FullName(), "commit", payload.After, "runId", run.RunID)
	return &Result{Event: "push", Enqueued: 1}, nil
}

func (r *Router) enqueueFor(ctx context.Context, pr PayloadRepository, installationID int64, trigger types.TriggerKind, summary map[string]interface{}) error {
	repo, err := r.ensure(ctx, pr, installationID)
	if err != nil {
		return err
	}
	run := newRun(repo.ID, "", trigger, summary)
	if err := r.store.InsertRun(ctx, run); err != nil {
		return fmt.Errorf("enqueueing %s run for %s: %w", trigger, repo.FullName(), err)
	}
	metrics.RunsEnqueued.Add(1)
	return nil
}

func (r *Router) ensure(ctx context.Context, pr PayloadRepository, installationID int64) (types.Repository, error) {
	owner, name, err := types.SplitFullName(pr.FullName)
	if err != nil {
		return types.Repository{}, err
	}
	repo, err := r.store.EnsureRepository(ctx, types.Repository{
		ID:             ulid.Make().String(),
		Provider:       types.DefaultProvider,
		Owner:          owner,
		Name:           name,
		DefaultBranch:  pr.DefaultBranch,
		InstallationID: installationID,
	})
	if err != nil {
		return types.Repository{}, fmt.Errorf("ensuring repository %s: %w", pr.FullName, err)
	}
	return repo, nil
}

func newRun(repositoryID, commitSHA string, trigger types.TriggerKind, summary map[string]interface{}) types.AnalyzerRun {
	now := time.Now().UTC()
	return types.AnalyzerRun{
		RunID:        ulid.Make().String(),
		RepositoryID: repositoryID,
		CommitSHA:    commitSHA,
		Status:       types.RunQueued,
		TriggerKind:  trigger,
		Summary:      summary,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
