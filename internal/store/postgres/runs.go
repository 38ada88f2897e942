package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/autometric/autometric/internal/lifecycle"
	"github.com/autometric/autometric/internal/store"
	"github.com/autometric/autometric/pkg/types"
)

const runColumns = `run_id, repository_id, commit_sha, status, trigger_kind, summary, created_at, updated_at`

// InsertRun inserts a new analyzer run. A unique-index conflict on
// (repository, commit) surfaces as store.ErrDuplicate.
func (s *Store) InsertRun(ctx context.Context, run types.AnalyzerRun) error {
	summaryJSON, err := marshalJSON(run.Summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO analyzer_runs (run_id, repository_id, commit_sha, status, trigger_kind, summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, run.RunID, run.RepositoryID, run.CommitSHA, string(run.Status), string(run.TriggerKind),
		summaryJSON, run.CreatedAt, run.UpdatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

// GetRun retrieves a single run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*types.AnalyzerRun, error) {
	return s.scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM analyzer_runs WHERE run_id = $1`, runID))
}

// FindRunByCommit returns the run for (repository, commit), if one exists.
func (s *Store) FindRunByCommit(ctx context.Context, repositoryID, commitSHA string) (*types.AnalyzerRun, error) {
	return s.scanRun(s.pool.QueryRow(ctx, `
		SELECT `+runColumns+` FROM analyzer_runs
		WHERE repository_id = $1 AND commit_sha = $2 AND commit_sha <> ''
	`, repositoryID, commitSHA))
}

// OldestQueuedRun returns the oldest QUEUED run for a trigger kind, breaking
// creation-time ties by run id so pickup order is deterministic.
func (s *Store) OldestQueuedRun(ctx context.Context, trigger types.TriggerKind) (*types.AnalyzerRun, error) {
	return s.scanRun(s.pool.QueryRow(ctx, `
		SELECT `+runColumns+` FROM analyzer_runs
		WHERE status = $1 AND trigger_kind = $2
		ORDER BY created_at, run_id
		LIMIT 1
	`, string(types.RunQueued), string(trigger)))
}

// ClaimRun conditionally transitions a run from one status to another in a
// single statement. Returns false without error when the run was not in the
// expected status, so a racing claimer loses cleanly. A nil summary keeps
// the stored one.
func (s *Store) ClaimRun(ctx context.Context, runID string, from, to types.RunStatus, summary map[string]interface{}) (bool, error) {
	if err := lifecycle.Transition(from, to); err != nil {
		return false, err
	}
	summaryJSON, err := marshalJSON(summary)
	if err != nil {
		return false, fmt.Errorf("marshal run summary: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE analyzer_runs
		SET status = $3, summary = COALESCE($4, summary), updated_at = NOW()
		WHERE run_id = $1 AND status = $2
	`, runID, string(from), string(to), summaryJSON)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListRuns returns recent runs for a repository, most recent first.
func (s *Store) ListRuns(ctx context.Context, repositoryID string, limit int) ([]types.AnalyzerRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+` FROM analyzer_runs
		WHERE repository_id = $1
		ORDER BY created_at DESC, run_id DESC
		LIMIT $2
	`, repositoryID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []types.AnalyzerRun
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *Store) scanRun(row pgx.Row) (*types.AnalyzerRun, error) {
	run, err := scanRunRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return run, err
}

func scanRunRow(row pgx.Row) (*types.AnalyzerRun, error) {
	var (
		run         types.AnalyzerRun
		status      string
		trigger     string
		summaryJSON []byte
	)
	if err := row.Scan(&run.RunID, &run.RepositoryID, &run.CommitSHA, &status, &trigger,
		&summaryJSON, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	run.Status = types.RunStatus(status)
	run.TriggerKind = types.TriggerKind(trigger)
	if len(summaryJSON) > 0 {
		if err := json.Unmarshal(summaryJSON, &run.Summary); err != nil {
			return nil, fmt.Errorf("unmarshal run summary: %w", err)
		}
	}
	return &run, nil
}

// marshalJSON marshals a map for a JSONB column, passing through nil so
// COALESCE-style SQL can distinguish "absent" from "empty".
func marshalJSON(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
