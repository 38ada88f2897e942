// Package routegraph compiles declared path patterns into matchers and
// attributes observed paths to UI nodes. It is a pure package: no store
// access, no network.
package routegraph

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/autometric/autometric/pkg/types"
)

// Matcher holds compiled node patterns in declaration order. Order is a
// semantically significant tie-break the graph's author controls: the first
// matching pattern wins.
type Matcher struct {
	nodes []compiledNode
}

type compiledNode struct {
	id string
	re *regexp.Regexp
}

// paramSegment matches one path segment; splatSuffix greedily matches the
// rest of the path.
const (
	paramSegment = `[^/]+`
	splatSuffix  = `.*`
)

// CompileNodes compiles a route graph's node patterns. Patterns with
// un-compilable results are skipped rather than failing the whole graph,
// since graphs may be AI-inferred.
func CompileNodes(graph *types.RouteGraph) *Matcher {
	m := &Matcher{}
	if graph == nil {
		return m
	}
	for _, node := range graph.Nodes {
		re, err := regexp.Compile(compilePattern(node.Pattern))
		if err != nil {
			continue
		}
		m.nodes = append(m.nodes, compiledNode{id: node.ID, re: re})
	}
	return m
}

// compilePattern translates a path template into an anchored regexp:
// literal text is escaped, ":param" becomes a single-segment wildcard, and
// a trailing "*" (or "/*") becomes a greedy suffix wildcard.
func compilePattern(pattern string) string {
	if pattern == "" {
		pattern = "/"
	}
	if !strings.HasPrefix(pattern, "/") {
		pattern = "/" + pattern
	}

	splat := false
	if strings.HasSuffix(pattern, "*") {
		splat = true
		pattern = strings.TrimSuffix(pattern, "*")
	}

	var b strings.Builder
	b.WriteString(`^`)
	segments := strings.Split(strings.Trim(pattern, "/"), "/")
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		b.WriteString(`/`)
		if strings.HasPrefix(seg, ":") {
			b.WriteString(paramSegment)
		} else {
			b.WriteString(regexp.QuoteMeta(seg))
		}
	}
	if splat {
		b.WriteString(`/?`)
		b.WriteString(splatSuffix)
	} else if b.Len() == 1 {
		// Root pattern "/".
		b.WriteString(`/`)
	}
	b.WriteString(`$`)
	return b.String()
}

// Match returns the id of the first node whose pattern matches the path,
// or "" when nothing matches.
func (m *Matcher) Match(path string) string {
	path = NormalizePath(path)
	for _, node := range m.nodes {
		if node.re.MatchString(path) {
			return node.id
		}
	}
	return ""
}

// DeriveEdge encodes a navigation transition as the deterministic pair
// "{prev}->{node}". This is a lossy analytics aggregation key, not a
// referential-integrity edge. Empty when either endpoint is missing.
func DeriveEdge(nodeID, prevNodeID string) string {
	if nodeID == "" || prevNodeID == "" {
		return ""
	}
	return prevNodeID + "->" + nodeID
}

// NormalizePath strips query and fragment, ensures a leading slash, and
// collapses a trailing slash (except for the root path).
func NormalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

// PathFromURL extracts the path component from a full page URL; a bare
// path passes through unchanged.
func PathFromURL(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		return NormalizePath(u.Path)
	}
	return NormalizePath(raw)
}
