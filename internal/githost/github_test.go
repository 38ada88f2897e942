package githost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGitHub(t *testing.T, handler http.Handler) *GitHub {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGitHub("ghp_test", slog.Default(), WithAPIBase(srv.URL))
}

func TestGetRepository(t *testing.T) {
	g := newTestGitHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/shop", r.URL.Path)
		assert.Equal(t, "Bearer ghp_test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		json.NewEncoder(w).Encode(map[string]string{
			"full_name":      "acme/shop",
			"default_branch": "main",
		})
	}))

	info, err := g.GetRepository(context.Background(), "acme", "shop")
	require.NoError(t, err)
	assert.Equal(t, "acme/shop", info.FullName)
	assert.Equal(t, "main", info.DefaultBranch)
}

func TestGetCommitParsesTreeAndParents(t *testing.T) {
	g := newTestGitHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"sha": "head123",
			"parents": [{"sha": "parent1"}, {"sha": "parent2"}],
			"commit": {"tree": {"sha": "tree456"}}
		}`))
	}))

	ref, err := g.GetCommit(context.Background(), "acme", "shop", "head123")
	require.NoError(t, err)
	assert.Equal(t, "head123", ref.SHA)
	assert.Equal(t, "tree456", ref.TreeSHA)
	assert.Equal(t, []string{"parent1", "parent2"}, ref.Parents)
}

func TestGetFileContentDecodesBase64(t *testing.T) {
	// GitHub wraps base64 content with newlines.
	encoded := base64.StdEncoding.EncodeToString([]byte(`{"dependencies": {"react": "18"}}`))
	wrapped := encoded[:10] + "\n" + encoded[10:]

	g := newTestGitHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/shop/contents/package.json", r.URL.Path)
		assert.Equal(t, "head123", r.URL.Query().Get("ref"))
		json.NewEncoder(w).Encode(map[string]string{
			"content":  wrapped,
			"encoding": "base64",
		})
	}))

	content, err := g.GetFileContent(context.Background(), "acme", "shop", "package.json", "head123")
	require.NoError(t, err)
	assert.JSONEq(t, `{"dependencies": {"react": "18"}}`, string(content))
}

func TestGetFileContentNotFound(t *testing.T) {
	g := newTestGitHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := g.GetFileContent(context.Background(), "acme", "shop", "autometric.contract.json", "head123")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetFileContentRejectsUnexpectedEncoding(t *testing.T) {
	g := newTestGitHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"content": "hi", "encoding": "utf-8"})
	}))

	_, err := g.GetFileContent(context.Background(), "acme", "shop", "README.md", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoding")
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	g := newTestGitHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"full_name": "acme/shop"})
	}))

	info, err := g.GetRepository(context.Background(), "acme", "shop")
	require.NoError(t, err)
	assert.Equal(t, "acme/shop", info.FullName)
	assert.EqualValues(t, 3, calls.Load())
}

func TestDoClientErrorsArePermanent(t *testing.T) {
	var calls atomic.Int32
	g := newTestGitHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"message": "Validation Failed"}`, http.StatusUnprocessableEntity)
	}))

	_, err := g.GetRepository(context.Background(), "acme", "shop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.EqualValues(t, 1, calls.Load(), "4xx responses are not retried")
}

func TestCreateTreeDefaultsMode(t *testing.T) {
	var got struct {
		BaseTree string `json:"base_tree"`
		Tree     []struct {
			Path string `json:"path"`
			Mode string `json:"mode"`
			Type string `json:"type"`
			SHA  string `json:"sha"`
		} `json:"tree"`
	}
	g := newTestGitHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"sha": "tree789"})
	}))

	sha, err := g.CreateTree(context.Background(), "acme", "shop", "base456", []TreeSpec{
		{Path: "src/autometric/core.js", BlobSHA: "blob1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "tree789", sha)
	assert.Equal(t, "base456", got.BaseTree)
	require.Len(t, got.Tree, 1)
	assert.Equal(t, "100644", got.Tree[0].Mode)
	assert.Equal(t, "blob", got.Tree[0].Type)
}

func TestFindOpenPull(t *testing.T) {
	g := newTestGitHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "open", r.URL.Query().Get("state"))
		assert.Equal(t, "acme:autometric/abcd1234", r.URL.Query().Get("head"))
		w.Write([]byte(`[{
			"number": 12,
			"html_url": "https://github.com/acme/shop/pull/12",
			"state": "open",
			"head": {"ref": "autometric/abcd1234"},
			"base": {"ref": "main"}
		}]`))
	}))

	pull, err := g.FindOpenPull(context.Background(), "acme", "shop", "autometric/abcd1234")
	require.NoError(t, err)
	assert.Equal(t, 12, pull.Number)
	assert.Equal(t, "autometric/abcd1234", pull.HeadRef)
	assert.Equal(t, "main", pull.BaseRef)
}

func TestFindOpenPullEmpty(t *testing.T) {
	g := newTestGitHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))

	_, err := g.FindOpenPull(context.Background(), "acme", "shop", "autometric/abcd1234")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateBlobEncodesContent(t *testing.T) {
	var got map[string]string
	g := newTestGitHub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"sha": "blob42"})
	}))

	sha, err := g.CreateBlob(context.Background(), "acme", "shop", []byte("export const x = 1;\n"))
	require.NoError(t, err)
	assert.Equal(t, "blob42", sha)
	assert.Equal(t, "base64", got["encoding"])
	decoded, err := base64.StdEncoding.DecodeString(got["content"])
	require.NoError(t, err)
	assert.Equal(t, "export const x = 1;\n", string(decoded))
}
