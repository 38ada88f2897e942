package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/autometric/autometric/internal/store"
	"github.com/autometric/autometric/pkg/types"
)

const eventColumns = `id, repository_id, commit_sha, actor, verb, metadata, node_id, edge_id, timestamp`

// AppendEvent appends an entry to the event log. Governance entries that
// collide on (repository, commit, verb) surface as store.ErrDuplicate.
func (s *Store) AppendEvent(ctx context.Context, entry types.EventLogEntry) error {
	metaJSON, err := marshalJSON(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO event_log (repository_id, commit_sha, actor, verb, metadata, node_id, edge_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.RepositoryID, entry.CommitSHA, entry.Actor, entry.Verb, metaJSON,
		entry.NodeID, entry.EdgeID, entry.Timestamp)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

// LatestEventByVerb returns the most recent entry for any of the given
// verbs, ordering by timestamp with the serial id as tie-break.
func (s *Store) LatestEventByVerb(ctx context.Context, repositoryID string, verbs ...types.Verb) (*types.EventLogEntry, error) {
	if len(verbs) == 0 {
		return nil, store.ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+eventColumns+` FROM event_log
		WHERE repository_id = $1 AND verb = ANY($2)
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`, repositoryID, verbs)

	entry, err := scanEventRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return entry, err
}

// ListEvents returns recent entries for a repository, most recent first.
func (s *Store) ListEvents(ctx context.Context, repositoryID string, limit int) ([]types.EventLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+` FROM event_log
		WHERE repository_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`, repositoryID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []types.EventLogEntry
	for rows.Next() {
		entry, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanEventRow(row pgx.Row) (*types.EventLogEntry, error) {
	var (
		e        types.EventLogEntry
		metaJSON []byte
	)
	if err := row.Scan(&e.ID, &e.RepositoryID, &e.CommitSHA, &e.Actor, &e.Verb,
		&metaJSON, &e.NodeID, &e.EdgeID, &e.Timestamp); err != nil {
		return nil, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal event metadata: %w", err)
		}
	}
	return &e, nil
}
