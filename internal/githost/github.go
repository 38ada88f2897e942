package githost

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultAPIBase = "https://api.github.com"
	maxTries       = 4
)

// GitHub implements Client against the GitHub REST v3 API.
type GitHub struct {
	apiBase string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// GitHubOption configures a GitHub client.
type GitHubOption func(*GitHub)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) GitHubOption {
	return func(g *GitHub) { g.http = c }
}

// WithAPIBase points the client at a non-default API host, for GitHub
// Enterprise or test servers.
func WithAPIBase(base string) GitHubOption {
	return func(g *GitHub) { g.apiBase = strings.TrimRight(base, "/") }
}

// NewGitHub builds a GitHub REST client authenticated with token.
func NewGitHub(token string, logger *slog.Logger, opts ...GitHubOption) *GitHub {
	g := &GitHub{
		apiBase: defaultAPIBase,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// do issues one HTTP request and decodes a JSON response into out. Server
// errors and transport failures are retried with exponential backoff; client
// errors are permanent. A 404 maps to ErrNotFound.
func (g *GitHub) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	operation := func() (struct{}, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, g.apiBase+path, reader)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if g.token != "" {
			req.Header.Set("Authorization", "Bearer "+g.token)
		}

		resp, err := g.http.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return struct{}{}, backoff.Permanent(ErrNotFound)
		case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
			// Rate limited. Retryable, the backoff gives the window time to reset.
			return struct{}{}, fmt.Errorf("github: rate limited on %s %s", method, path)
		case resp.StatusCode >= 500:
			return struct{}{}, fmt.Errorf("github: %s %s returned %d", method, path, resp.StatusCode)
		case resp.StatusCode >= 400:
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return struct{}{}, backoff.Permanent(
				fmt.Errorf("github: %s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(detail))))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return struct{}{}, backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTries),
	)
	return err
}

func (g *GitHub) GetRepository(ctx context.Context, owner, repo string) (*RepoInfo, error) {
	var raw struct {
		FullName      string `json:"full_name"`
		DefaultBranch string `json:"default_branch"`
	}
	if err := g.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", owner, repo), nil, &raw); err != nil {
		return nil, err
	}
	return &RepoInfo{FullName: raw.FullName, DefaultBranch: raw.DefaultBranch}, nil
}

func (g *GitHub) GetCommit(ctx context.Context, owner, repo, sha string) (*CommitRef, error) {
	var raw struct {
		SHA     string `json:"sha"`
		Parents []struct {
			SHA string `json:"sha"`
		} `json:"parents"`
		Commit struct {
			Tree struct {
				SHA string `json:"sha"`
			} `json:"tree"`
		} `json:"commit"`
	}
	if err := g.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/commits/%s", owner, repo, sha), nil, &raw); err != nil {
		return nil, err
	}
	ref := &CommitRef{SHA: raw.SHA, TreeSHA: raw.Commit.Tree.SHA}
	for _, p := range raw.Parents {
		ref.Parents = append(ref.Parents, p.SHA)
	}
	return ref, nil
}

func (g *GitHub) CompareCommits(ctx context.Context, owner, repo, base, head string) (*Comparison, error) {
	var raw struct {
		TotalCommits int `json:"total_commits"`
		Files        []struct {
			Filename  string `json:"filename"`
			Status    string `json:"status"`
			Additions int    `json:"additions"`
			Deletions int    `json:"deletions"`
		} `json:"files"`
	}
	path := fmt.Sprintf("/repos/%s/%s/compare/%s...%s", owner, repo, base, head)
	if err := g.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	cmp := &Comparison{TotalCommits: raw.TotalCommits}
	for _, f := range raw.Files {
		cmp.Files = append(cmp.Files, DiffFile{
			Path:      f.Filename,
			Status:    f.Status,
			Additions: f.Additions,
			Deletions: f.Deletions,
		})
	}
	return cmp, nil
}

func (g *GitHub) GetTree(ctx context.Context, owner, repo, sha string, recursive bool) ([]TreeEntry, error) {
	path := fmt.Sprintf("/repos/%s/%s/git/trees/%s", owner, repo, sha)
	if recursive {
		path += "?recursive=1"
	}
	var raw struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
			Size int64  `json:"size"`
		} `json:"tree"`
		Truncated bool `json:"truncated"`
	}
	if err := g.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	if raw.Truncated && g.logger != nil {
		g.logger.Warn("git tree listing truncated by API", "repo", owner+"/"+repo, "sha", sha)
	}
	entries := make([]TreeEntry, 0, len(raw.Tree))
	for _, e := range raw.Tree {
		entries = append(entries, TreeEntry{Path: e.Path, Type: e.Type, Size: e.Size})
	}
	return entries, nil
}

func (g *GitHub) GetFileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	endpoint := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, url.PathEscape(path))
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}
	var raw struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := g.do(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, err
	}
	if raw.Encoding != "base64" {
		return nil, fmt.Errorf("github: unexpected content encoding %q for %s", raw.Encoding, path)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(raw.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("decode content of %s: %w", path, err)
	}
	return decoded, nil
}

func (g *GitHub) GetBranchSHA(ctx context.Context, owner, repo, branch string) (string, error) {
	var raw struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	path := fmt.Sprintf("/repos/%s/%s/git/ref/heads/%s", owner, repo, branch)
	if err := g.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return "", err
	}
	return raw.Object.SHA, nil
}

func (g *GitHub) CreateBranch(ctx context.Context, owner, repo, branch, sha string) error {
	body := map[string]string{"ref": "refs/heads/" + branch, "sha": sha}
	return g.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/git/refs", owner, repo), body, nil)
}

func (g *GitHub) UpdateBranch(ctx context.Context, owner, repo, branch, sha string) error {
	body := map[string]any{"sha": sha, "force": false}
	path := fmt.Sprintf("/repos/%s/%s/git/refs/heads/%s", owner, repo, branch)
	return g.do(ctx, http.MethodPatch, path, body, nil)
}

func (g *GitHub) CreateBlob(ctx context.Context, owner, repo string, content []byte) (string, error) {
	body := map[string]string{
		"content":  base64.StdEncoding.EncodeToString(content),
		"encoding": "base64",
	}
	var raw struct {
		SHA string `json:"sha"`
	}
	if err := g.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/git/blobs", owner, repo), body, &raw); err != nil {
		return "", err
	}
	return raw.SHA, nil
}

func (g *GitHub) CreateTree(ctx context.Context, owner, repo, baseTree string, entries []TreeSpec) (string, error) {
	type treeEntry struct {
		Path string `json:"path"`
		Mode string `json:"mode"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
	}
	spec := make([]treeEntry, 0, len(entries))
	for _, e := range entries {
		mode := e.Mode
		if mode == "" {
			mode = "100644"
		}
		spec = append(spec, treeEntry{Path: e.Path, Mode: mode, Type: "blob", SHA: e.BlobSHA})
	}
	body := map[string]any{"tree": spec}
	if baseTree != "" {
		body["base_tree"] = baseTree
	}
	var raw struct {
		SHA string `json:"sha"`
	}
	if err := g.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/git/trees", owner, repo), body, &raw); err != nil {
		return "", err
	}
	return raw.SHA, nil
}

func (g *GitHub) CreateCommit(ctx context.Context, owner, repo, message, tree string, parents []string) (string, error) {
	body := map[string]any{"message": message, "tree": tree, "parents": parents}
	var raw struct {
		SHA string `json:"sha"`
	}
	if err := g.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/git/commits", owner, repo), body, &raw); err != nil {
		return "", err
	}
	return raw.SHA, nil
}

func (g *GitHub) FindOpenPull(ctx context.Context, owner, repo, headBranch string) (*PullRequest, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls?state=open&head=%s", owner, repo,
		url.QueryEscape(owner+":"+headBranch))
	var raw []struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
		State   string `json:"state"`
		Head    struct {
			Ref string `json:"ref"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	}
	if err := g.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	p := raw[0]
	return &PullRequest{
		Number:  p.Number,
		URL:     p.HTMLURL,
		State:   p.State,
		HeadRef: p.Head.Ref,
		BaseRef: p.Base.Ref,
	}, nil
}

func (g *GitHub) CreatePull(ctx context.Context, owner, repo, title, body, headBranch, baseBranch string) (*PullRequest, error) {
	payload := map[string]string{
		"title": title,
		"body":  body,
		"head":  headBranch,
		"base":  baseBranch,
	}
	var raw struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
		State   string `json:"state"`
	}
	if err := g.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/pulls", owner, repo), payload, &raw); err != nil {
		return nil, err
	}
	return &PullRequest{
		Number:  raw.Number,
		URL:     raw.HTMLURL,
		State:   raw.State,
		HeadRef: headBranch,
		BaseRef: baseBranch,
	}, nil
}
