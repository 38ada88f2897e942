// Package types defines the public domain types for the Autometric instrumentation service.
package types

import (
	"fmt"
	"strings"
	"time"
)

// DefaultProvider is the only Git hosting provider currently supported.
const DefaultProvider = "github"

// CoreRequiredFields are merged into every event definition's required set
// at resolution time, regardless of what the inference step proposed.
var CoreRequiredFields = []string{"app_key", "session_id", "user_id", "timestamp"}

// Repository identifies a hosted repository the service is installed on.
// Identity is (Provider, Owner, Name); DefaultBranch and InstallationID are
// mutable and refreshed on every webhook mention.
type Repository struct {
	ID             string    `json:"id"`
	Provider       string    `json:"provider"`
	Owner          string    `json:"owner"`
	Name           string    `json:"name"`
	DefaultBranch  string    `json:"defaultBranch,omitempty"`
	InstallationID int64     `json:"installationId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// FullName returns the owner/name form used by hosting APIs and webhooks.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// SplitFullName parses an "owner/name" string.
func SplitFullName(full string) (owner, name string, err error) {
	parts := strings.SplitN(full, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository full name %q", full)
	}
	return parts[0], parts[1], nil
}

// AnalyzerRun is a unit of analysis work keyed by (repository, commit).
// Status only moves forward: QUEUED -> RUNNING -> {COMPLETED, FAILED}.
// At most one run exists per (repository, non-empty CommitSHA).
type AnalyzerRun struct {
	RunID        string                 `json:"runId"`
	RepositoryID string                 `json:"repositoryId"`
	CommitSHA    string                 `json:"commitSha,omitempty"` // empty for non-push triggers
	Status       RunStatus              `json:"status"`
	TriggerKind  TriggerKind            `json:"triggerKind"`
	Summary      map[string]interface{} `json:"summary,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// EventLogEntry is an append-only record. Governance entries (schema,
// schema_override, route graph) carry their payload in Metadata; runtime
// analytics entries additionally carry route attribution in NodeID/EdgeID.
// Entries are never mutated or deleted.
type EventLogEntry struct {
	ID           int64                  `json:"id,omitempty"`
	RepositoryID string                 `json:"repositoryId"`
	CommitSHA    string                 `json:"commitSha,omitempty"`
	Actor        string                 `json:"actor,omitempty"`
	Verb         Verb                   `json:"verb"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	NodeID       string                 `json:"nodeId,omitempty"`
	EdgeID       string                 `json:"edgeId,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// EventDefinition declares a single trackable event and its field contract.
type EventDefinition struct {
	Name     string   `json:"name"`
	Required []string `json:"required,omitempty"`
	Optional []string `json:"optional,omitempty"`
}

// Snippet is a generated tracking-code file proposed by the inference step.
type Snippet struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// EventSchema is the instrumentation schema for a repository. It is not a
// stored entity of its own: it is the suggested payload of the most recent
// schema/schema_override event log entry, projected at read time.
type EventSchema struct {
	Frameworks []string          `json:"frameworks,omitempty"`
	Events     []EventDefinition `json:"events"`
	Snippets   []Snippet         `json:"snippets,omitempty"`
}

// Definition returns the event definition matching the given verb, if any.
func (s EventSchema) Definition(verb string) (EventDefinition, bool) {
	for _, def := range s.Events {
		if def.Name == verb {
			return def, true
		}
	}
	return EventDefinition{}, false
}

// RouteNode maps a path pattern to a logical UI node identifier. Pattern is
// a path template: literal segments, ":param" named segments, and a trailing
// "*" greedy splat.
type RouteNode struct {
	ID      string `json:"id"`
	Pattern string `json:"pattern"`
}

// RouteEdge is a declared navigation transition between two nodes.
type RouteEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// RouteGraph declares the navigation structure of an instrumented site.
// Node order is significant: matching tries patterns in declaration order.
type RouteGraph struct {
	Nodes []RouteNode `json:"nodes"`
	Edges []RouteEdge `json:"edges,omitempty"`
}

// IngestRequest is the POST /api/ingest payload from an instrumented site.
type IngestRequest struct {
	RepositoryFullName string                 `json:"repository_full_name"`
	Source             string                 `json:"source,omitempty"`
	Verb               string                 `json:"verb"`
	Timestamp          *time.Time             `json:"timestamp,omitempty"`
	Metadata           map[string]interface{} `json:"metadata"`
}

// RuntimeEvent is the validated, enriched form of an ingested event.
// NodeID and EdgeID are empty when no route graph exists or nothing matched.
type RuntimeEvent struct {
	RepositoryID string                 `json:"repository_id"`
	Source       string                 `json:"source,omitempty"`
	Verb         string                 `json:"verb"`
	Metadata     map[string]interface{} `json:"metadata"`
	NodeID       string                 `json:"node_id,omitempty"`
	EdgeID       string                 `json:"edge_id,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// ApproveRequest is the POST approve payload.
type ApproveRequest struct {
	CommitSHA string            `json:"commit_sha"`
	Files     map[string]string `json:"files,omitempty"` // path -> content
	Force     bool              `json:"force,omitempty"`
}

// ApproveStatus distinguishes a freshly created pull request from an
// already-open one returned unchanged.
type ApproveStatus string

const (
	ApproveCreated ApproveStatus = "created"
	ApproveExists  ApproveStatus = "exists"
)

// ApproveResult is the approve response body.
type ApproveResult struct {
	Status    ApproveStatus `json:"status"`
	PRNumber  int           `json:"pr_number"`
	PRURL     string        `json:"pr_url"`
	Branch    string        `json:"branch"`
	Bootstrap bool          `json:"bootstrap"`
	Files     []string      `json:"files"`
}

// Alert represents an alert event to be dispatched.
type Alert struct {
	Level      AlertLevel             `json:"level"`
	Repository string                 `json:"repository,omitempty"`
	RunID      string                 `json:"runId,omitempty"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}
