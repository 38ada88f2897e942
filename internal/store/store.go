// Package store defines the durable storage interface for Autometric.
package store

import (
	"context"
	"errors"

	"github.com/autometric/autometric/pkg/types"
)

// ErrNotFound is returned when a repository, run, or event does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates an idempotency key
// ((repository, commit) for runs, (repository, commit, verb) for governance
// events). Callers on retry paths treat it as success.
var ErrDuplicate = errors.New("duplicate")

// Store is the narrow query interface over the durable store. All mutation
// is upsert or check-then-insert; coordination happens through row state and
// uniqueness constraints, never an external lock.
type Store interface {
	// Repositories. EnsureRepository upserts on (provider, owner, name),
	// merging non-empty supplied fields into an existing row, and returns
	// the canonical row. No delete is exposed.
	EnsureRepository(ctx context.Context, repo types.Repository) (types.Repository, error)
	FindRepository(ctx context.Context, provider, owner, name string) (*types.Repository, error)
	GetRepository(ctx context.Context, id string) (*types.Repository, error)

	// Analyzer runs. InsertRun returns ErrDuplicate when a run already
	// exists for (repository, non-empty commit sha). ClaimRun atomically
	// moves a run from expected to next status and reports whether this
	// caller won the claim.
	InsertRun(ctx context.Context, run types.AnalyzerRun) error
	GetRun(ctx context.Context, runID string) (*types.AnalyzerRun, error)
	FindRunByCommit(ctx context.Context, repositoryID, commitSHA string) (*types.AnalyzerRun, error)
	OldestQueuedRun(ctx context.Context, trigger types.TriggerKind) (*types.AnalyzerRun, error)
	ClaimRun(ctx context.Context, runID string, from, to types.RunStatus, summary map[string]interface{}) (bool, error)
	ListRuns(ctx context.Context, repositoryID string, limit int) ([]types.AnalyzerRun, error)

	// Event log. AppendEvent returns ErrDuplicate for governance verbs when
	// an entry already exists for (repository, commit, verb); runtime verbs
	// always append. LatestEventByVerb returns the most recent entry whose
	// verb is one of the given verbs, or ErrNotFound.
	AppendEvent(ctx context.Context, entry types.EventLogEntry) error
	LatestEventByVerb(ctx context.Context, repositoryID string, verbs ...types.Verb) (*types.EventLogEntry, error)
	ListEvents(ctx context.Context, repositoryID string, limit int) ([]types.EventLogEntry, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close()
}

// IsGovernanceVerb reports whether a verb is subject to the
// (repository, commit, verb) idempotency constraint.
func IsGovernanceVerb(verb types.Verb) bool {
	switch verb {
	case types.VerbSchema, types.VerbSchemaOverride, types.VerbRouteGraph, types.VerbRouteGraphOverride:
		return true
	}
	return false
}
