// Package githost abstracts the Git hosting API used for reading repository
// content and writing pull requests.
package githost

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a ref, path, or object does not exist on the
// remote repository.
var ErrNotFound = errors.New("githost: not found")

// RepoInfo is the subset of hosted-repository metadata the service reads.
type RepoInfo struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
}

// CommitRef is a commit with its parent shas and the sha of its root tree.
type CommitRef struct {
	SHA     string   `json:"sha"`
	TreeSHA string   `json:"tree_sha"`
	Parents []string `json:"parents"`
}

// DiffFile is a single changed file in a commit comparison.
type DiffFile struct {
	Path      string `json:"path"`
	Status    string `json:"status"` // added, removed, modified, renamed
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Comparison summarizes the diff between two commits.
type Comparison struct {
	Files        []DiffFile `json:"files"`
	TotalCommits int        `json:"total_commits"`
}

// TreeEntry is a single entry of a repository file tree.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // blob or tree
	Size int64  `json:"size,omitempty"`
}

// TreeSpec is one file entry of a tree to be created.
type TreeSpec struct {
	Path    string
	Mode    string // defaults to 100644
	BlobSHA string
}

// PullRequest is the subset of pull-request fields the service uses.
type PullRequest struct {
	Number  int    `json:"number"`
	URL     string `json:"url"`
	State   string `json:"state"`
	HeadRef string `json:"head_ref"`
	BaseRef string `json:"base_ref"`
}

// Client is the hosting API surface. Implementations must translate
// missing-object responses into ErrNotFound so callers can distinguish
// "absent" from "API failure".
type Client interface {
	GetRepository(ctx context.Context, owner, repo string) (*RepoInfo, error)
	GetCommit(ctx context.Context, owner, repo, sha string) (*CommitRef, error)
	CompareCommits(ctx context.Context, owner, repo, base, head string) (*Comparison, error)
	GetTree(ctx context.Context, owner, repo, sha string, recursive bool) ([]TreeEntry, error)
	GetFileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error)

	GetBranchSHA(ctx context.Context, owner, repo, branch string) (string, error)
	CreateBranch(ctx context.Context, owner, repo, branch, sha string) error
	UpdateBranch(ctx context.Context, owner, repo, branch, sha string) error

	CreateBlob(ctx context.Context, owner, repo string, content []byte) (string, error)
	CreateTree(ctx context.Context, owner, repo, baseTree string, entries []TreeSpec) (string, error)
	CreateCommit(ctx context.Context, owner, repo, message, tree string, parents []string) (string, error)

	FindOpenPull(ctx context.Context, owner, repo, headBranch string) (*PullRequest, error)
	CreatePull(ctx context.Context, owner, repo, title, body, headBranch, baseBranch string) (*PullRequest, error)
}
