// Package postgres implements the durable store on Postgres via pgx.
package postgres

const schemaDDL = `
CREATE TABLE IF NOT EXISTS repositories (
    id              TEXT PRIMARY KEY,
    provider        TEXT NOT NULL,
    owner           TEXT NOT NULL,
    name            TEXT NOT NULL,
    default_branch  TEXT NOT NULL DEFAULT '',
    installation_id BIGINT NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL,
    UNIQUE (provider, owner, name)
);

CREATE TABLE IF NOT EXISTS analyzer_runs (
    run_id        TEXT PRIMARY KEY,
    repository_id TEXT NOT NULL REFERENCES repositories (id),
    commit_sha    TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    trigger_kind  TEXT NOT NULL,
    summary       JSONB,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_repo_commit
    ON analyzer_runs (repository_id, commit_sha) WHERE commit_sha <> '';
CREATE INDEX IF NOT EXISTS idx_runs_pickup
    ON analyzer_runs (trigger_kind, status, created_at, run_id);
CREATE INDEX IF NOT EXISTS idx_runs_repo ON analyzer_runs (repository_id, created_at);

CREATE TABLE IF NOT EXISTS event_log (
    id            BIGSERIAL PRIMARY KEY,
    repository_id TEXT NOT NULL REFERENCES repositories (id),
    commit_sha    TEXT NOT NULL DEFAULT '',
    actor         TEXT NOT NULL DEFAULT '',
    verb          TEXT NOT NULL,
    metadata      JSONB,
    node_id       TEXT NOT NULL DEFAULT '',
    edge_id       TEXT NOT NULL DEFAULT '',
    timestamp     TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_governance_dedup
    ON event_log (repository_id, commit_sha, verb)
    WHERE commit_sha <> ''
      AND verb IN ('schema', 'schema_override', 'route_graph', 'route_graph_override');
CREATE INDEX IF NOT EXISTS idx_events_repo_verb ON event_log (repository_id, verb, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_events_repo_ts ON event_log (repository_id, timestamp DESC);
`
