// Package testutil provides shared test utilities for Autometric.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/autometric/autometric/internal/lifecycle"
	"github.com/autometric/autometric/internal/store"
	"github.com/autometric/autometric/pkg/types"
)

// Compile-time interface satisfaction check.
var _ store.Store = (*MockStore)(nil)

// MockStore is an in-memory Store implementation for testing. It enforces
// the same idempotency keys as the real backends.
type MockStore struct {
	mu        sync.Mutex
	repos     map[string]types.Repository // key: provider#owner#name
	runs      map[string]types.AnalyzerRun
	events    []types.EventLogEntry
	nextEvent int64

	// FailAppendEvent, when set, makes AppendEvent return this error once.
	FailAppendEvent error
	// FailInsertRun, when set, makes InsertRun return this error.
	FailInsertRun error
}

// NewMockStore creates a new in-memory mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		repos:     make(map[string]types.Repository),
		runs:      make(map[string]types.AnalyzerRun),
		nextEvent: 1,
	}
}

func naturalKey(provider, owner, name string) string {
	return provider + "#" + owner + "#" + name
}

func (m *MockStore) EnsureRepository(_ context.Context, repo types.Repository) (types.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := naturalKey(repo.Provider, repo.Owner, repo.Name)
	now := time.Now().UTC()
	existing, ok := m.repos[key]
	if !ok {
		repo.CreatedAt = now
		repo.UpdatedAt = now
		m.repos[key] = repo
		return repo, nil
	}
	if repo.DefaultBranch != "" {
		existing.DefaultBranch = repo.DefaultBranch
	}
	if repo.InstallationID != 0 {
		existing.InstallationID = repo.InstallationID
	}
	existing.UpdatedAt = now
	m.repos[key] = existing
	return existing, nil
}

func (m *MockStore) FindRepository(_ context.Context, provider, owner, name string) (*types.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	repo, ok := m.repos[naturalKey(provider, owner, name)]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := repo
	return &out, nil
}

func (m *MockStore) GetRepository(_ context.Context, id string) (*types.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, repo := range m.repos {
		if repo.ID == id {
			out := repo
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MockStore) InsertRun(_ context.Context, run types.AnalyzerRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailInsertRun != nil {
		return m.FailInsertRun
	}
	if _, ok := m.runs[run.RunID]; ok {
		return store.ErrDuplicate
	}
	if run.CommitSHA != "" {
		for _, existing := range m.runs {
			if existing.RepositoryID == run.RepositoryID && existing.CommitSHA == run.CommitSHA {
				return store.ErrDuplicate
			}
		}
	}
	m.runs[run.RunID] = run
	return nil
}

func (m *MockStore) GetRun(_ context.Context, runID string) (*types.AnalyzerRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := run
	return &out, nil
}

func (m *MockStore) FindRunByCommit(_ context.Context, repositoryID, commitSHA string) (*types.AnalyzerRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, run := range m.runs {
		if run.RepositoryID == repositoryID && run.CommitSHA == commitSHA && commitSHA != "" {
			out := run
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MockStore) OldestQueuedRun(_ context.Context, trigger types.TriggerKind) (*types.AnalyzerRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *types.AnalyzerRun
	for _, run := range m.runs {
		run := run
		if run.Status != types.RunQueued || run.TriggerKind != trigger {
			continue
		}
		if oldest == nil || run.CreatedAt.Before(oldest.CreatedAt) ||
			(run.CreatedAt.Equal(oldest.CreatedAt) && run.RunID < oldest.RunID) {
			oldest = &run
		}
	}
	if oldest == nil {
		return nil, store.ErrNotFound
	}
	out := *oldest
	return &out, nil
}

func (m *MockStore) ClaimRun(_ context.Context, runID string, from, to types.RunStatus, summary map[string]interface{}) (bool, error) {
	if err := lifecycle.Transition(from, to); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok || run.Status != from {
		return false, nil
	}
	run.Status = to
	run.UpdatedAt = time.Now().UTC()
	if summary != nil {
		run.Summary = summary
	}
	m.runs[runID] = run
	return true, nil
}

func (m *MockStore) ListRuns(_ context.Context, repositoryID string, limit int) ([]types.AnalyzerRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	var runs []types.AnalyzerRun
	for _, run := range m.runs {
		if run.RepositoryID == repositoryID {
			runs = append(runs, run)
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *MockStore) AppendEvent(_ context.Context, entry types.EventLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAppendEvent != nil {
		err := m.FailAppendEvent
		m.FailAppendEvent = nil
		return err
	}
	if store.IsGovernanceVerb(entry.Verb) && entry.CommitSHA != "" {
		for _, existing := range m.events {
			if existing.RepositoryID == entry.RepositoryID &&
				existing.CommitSHA == entry.CommitSHA && existing.Verb == entry.Verb {
				return store.ErrDuplicate
			}
		}
	}
	entry.ID = m.nextEvent
	m.nextEvent++
	m.events = append(m.events, entry)
	return nil
}

func (m *MockStore) LatestEventByVerb(_ context.Context, repositoryID string, verbs ...types.Verb) (*types.EventLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *types.EventLogEntry
	for i := range m.events {
		e := m.events[i]
		if e.RepositoryID != repositoryID {
			continue
		}
		match := false
		for _, verb := range verbs {
			if e.Verb == verb {
				match = true
				break
			}
		}
		if !match {
			continue
		}
		if latest == nil || e.Timestamp.After(latest.Timestamp) ||
			(e.Timestamp.Equal(latest.Timestamp) && e.ID > latest.ID) {
			latest = &e
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	out := *latest
	return &out, nil
}

func (m *MockStore) ListEvents(_ context.Context, repositoryID string, limit int) ([]types.EventLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var entries []types.EventLogEntry
	for _, e := range m.events {
		if e.RepositoryID == repositoryID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Events returns a copy of all stored events, oldest first. Test helper.
func (m *MockStore) Events() []types.EventLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.EventLogEntry, len(m.events))
	copy(out, m.events)
	return out
}

// Runs returns a copy of all stored runs. Test helper.
func (m *MockStore) Runs() []types.AnalyzerRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.AnalyzerRun, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MockStore) Ping(context.Context) error { return nil }
func (m *MockStore) Close()                     {}
