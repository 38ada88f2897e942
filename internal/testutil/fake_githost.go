package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/autometric/autometric/internal/githost"
)

// CreatedTree records one CreateTree call.
type CreatedTree struct {
	SHA     string
	Base    string
	Entries []githost.TreeSpec
}

// CreatedCommit records one CreateCommit call.
type CreatedCommit struct {
	SHA     string
	Message string
	Tree    string
	Parents []string
}

// FakeGitHost is an in-memory githost.Client. Seed the exported maps before
// use; write operations record what they created.
type FakeGitHost struct {
	mu sync.Mutex

	Repo     githost.RepoInfo
	Commits  map[string]githost.CommitRef   // sha -> commit
	Compares map[string]*githost.Comparison // "base..head"
	Trees    map[string][]githost.TreeEntry // sha -> entries
	Files    map[string][]byte              // path -> content at any ref
	Branches map[string]string              // branch -> tip sha

	Blobs          map[string][]byte
	CreatedTrees   []CreatedTree
	CreatedCommits []CreatedCommit
	Pulls          []githost.PullRequest

	FailCompare    error
	FailCreateBlob error
	FailCreatePull error

	seq int
}

// NewFakeGitHost creates an empty FakeGitHost.
func NewFakeGitHost() *FakeGitHost {
	return &FakeGitHost{
		Commits:  map[string]githost.CommitRef{},
		Compares: map[string]*githost.Comparison{},
		Trees:    map[string][]githost.TreeEntry{},
		Files:    map[string][]byte{},
		Branches: map[string]string{},
		Blobs:    map[string][]byte{},
	}
}

func (f *FakeGitHost) nextSHA(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%04d", prefix, f.seq)
}

func (f *FakeGitHost) GetRepository(context.Context, string, string) (*githost.RepoInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Repo.FullName == "" {
		return nil, githost.ErrNotFound
	}
	repo := f.Repo
	return &repo, nil
}

func (f *FakeGitHost) GetCommit(_ context.Context, _, _, sha string) (*githost.CommitRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	commit, ok := f.Commits[sha]
	if !ok {
		return nil, githost.ErrNotFound
	}
	return &commit, nil
}

func (f *FakeGitHost) CompareCommits(_ context.Context, _, _, base, head string) (*githost.Comparison, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCompare != nil {
		return nil, f.FailCompare
	}
	if cmp, ok := f.Compares[base+".."+head]; ok {
		out := *cmp
		return &out, nil
	}
	return &githost.Comparison{}, nil
}

func (f *FakeGitHost) GetTree(_ context.Context, _, _, sha string, _ bool) ([]githost.TreeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]githost.TreeEntry(nil), f.Trees[sha]...), nil
}

func (f *FakeGitHost) GetFileContent(_ context.Context, _, _, path, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.Files[path]
	if !ok {
		return nil, githost.ErrNotFound
	}
	return append([]byte(nil), content...), nil
}

func (f *FakeGitHost) GetBranchSHA(_ context.Context, _, _, branch string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sha, ok := f.Branches[branch]
	if !ok {
		return "", githost.ErrNotFound
	}
	return sha, nil
}

func (f *FakeGitHost) CreateBranch(_ context.Context, _, _, branch, sha string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Branches[branch]; ok {
		return fmt.Errorf("branch %s already exists", branch)
	}
	f.Branches[branch] = sha
	return nil
}

func (f *FakeGitHost) UpdateBranch(_ context.Context, _, _, branch, sha string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Branches[branch]; !ok {
		return githost.ErrNotFound
	}
	f.Branches[branch] = sha
	return nil
}

func (f *FakeGitHost) CreateBlob(_ context.Context, _, _ string, content []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreateBlob != nil {
		return "", f.FailCreateBlob
	}
	sha := f.nextSHA("blob")
	f.Blobs[sha] = append([]byte(nil), content...)
	return sha, nil
}

func (f *FakeGitHost) CreateTree(_ context.Context, _, _, baseTree string, entries []githost.TreeSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sha := f.nextSHA("tree")
	f.CreatedTrees = append(f.CreatedTrees, CreatedTree{
		SHA:     sha,
		Base:    baseTree,
		Entries: append([]githost.TreeSpec(nil), entries...),
	})
	return sha, nil
}

func (f *FakeGitHost) CreateCommit(_ context.Context, _, _, message, tree string, parents []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sha := f.nextSHA("commit")
	f.CreatedCommits = append(f.CreatedCommits, CreatedCommit{
		SHA:     sha,
		Message: message,
		Tree:    tree,
		Parents: append([]string(nil), parents...),
	})
	f.Commits[sha] = githost.CommitRef{SHA: sha, TreeSHA: tree, Parents: parents}
	return sha, nil
}

func (f *FakeGitHost) FindOpenPull(_ context.Context, _, _, headBranch string) (*githost.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.Pulls {
		if f.Pulls[i].State == "open" && f.Pulls[i].HeadRef == headBranch {
			pull := f.Pulls[i]
			return &pull, nil
		}
	}
	return nil, githost.ErrNotFound
}

func (f *FakeGitHost) CreatePull(_ context.Context, owner, repo, _, _, headBranch, baseBranch string) (*githost.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreatePull != nil {
		return nil, f.FailCreatePull
	}
	pull := githost.PullRequest{
		Number:  len(f.Pulls) + 1,
		URL:     fmt.Sprintf("https://example.com/%s/%s/pull/%d", owner, repo, len(f.Pulls)+1),
		State:   "open",
		HeadRef: headBranch,
		BaseRef: baseBranch,
	}
	f.Pulls = append(f.Pulls, pull)
	return &pull, nil
}
