package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/autometric/autometric/internal/store"
	"github.com/autometric/autometric/pkg/types"
)

// EnsureRepository upserts a repository on its natural key. Non-empty
// supplied fields overwrite the stored ones (last write wins); empty fields
// leave the existing values untouched. The canonical row is returned.
func (s *Store) EnsureRepository(ctx context.Context, repo types.Repository) (types.Repository, error) {
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO repositories (id, provider, owner, name, default_branch, installation_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (provider, owner, name) DO UPDATE SET
			default_branch = CASE WHEN EXCLUDED.default_branch <> ''
				THEN EXCLUDED.default_branch ELSE repositories.default_branch END,
			installation_id = CASE WHEN EXCLUDED.installation_id <> 0
				THEN EXCLUDED.installation_id ELSE repositories.installation_id END,
			updated_at = EXCLUDED.updated_at
		RETURNING id, provider, owner, name, default_branch, installation_id, created_at, updated_at
	`, repo.ID, repo.Provider, repo.Owner, repo.Name, repo.DefaultBranch, repo.InstallationID, now)

	var out types.Repository
	if err := row.Scan(&out.ID, &out.Provider, &out.Owner, &out.Name,
		&out.DefaultBranch, &out.InstallationID, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return types.Repository{}, fmt.Errorf("ensure repository %s/%s: %w", repo.Owner, repo.Name, err)
	}
	return out, nil
}

// FindRepository looks up a repository by natural key.
func (s *Store) FindRepository(ctx context.Context, provider, owner, name string) (*types.Repository, error) {
	return s.scanRepository(s.pool.QueryRow(ctx, `
		SELECT id, provider, owner, name, default_branch, installation_id, created_at, updated_at
		FROM repositories WHERE provider = $1 AND owner = $2 AND name = $3
	`, provider, owner, name))
}

// GetRepository looks up a repository by its durable identifier.
func (s *Store) GetRepository(ctx context.Context, id string) (*types.Repository, error) {
	return s.scanRepository(s.pool.QueryRow(ctx, `
		SELECT id, provider, owner, name, default_branch, installation_id, created_at, updated_at
		FROM repositories WHERE id = $1
	`, id))
}

func (s *Store) scanRepository(row pgx.Row) (*types.Repository, error) {
	var r types.Repository
	err := row.Scan(&r.ID, &r.Provider, &r.Owner, &r.Name,
		&r.DefaultBranch, &r.InstallationID, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
