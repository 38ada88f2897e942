// Package inference calls the external schema-inference service and guards
// the rest of the system against its failures and malformed output.
package inference

import (
	"context"
	"fmt"
	"strings"

	"github.com/autometric/autometric/pkg/types"
)

// Request is the bounded analysis context sent to the inference service.
// Everything here is derived from the diff summary and tree scan, capped by
// the worker so prompt size stays predictable.
type Request struct {
	RepositoryFullName string            `json:"repository_full_name"`
	BaseSHA            string            `json:"base_sha"`
	HeadSHA            string            `json:"head_sha"`
	Frameworks         []string          `json:"frameworks"`
	Routes             []string          `json:"routes,omitempty"`
	ChangedFiles       []string          `json:"changed_files,omitempty"`
	DiffTotals         map[string]int    `json:"diff_totals,omitempty"`
	Extra              map[string]string `json:"extra,omitempty"`
}

// Result carries the validated inference output. Graph is nil when the
// service proposed no route graph.
type Result struct {
	Schema *types.EventSchema
	Graph  *types.RouteGraph
}

// Inferencer is the opaque schema-inference function. Implementations must
// return a structurally valid result or an error; they never return partial
// output.
type Inferencer interface {
	InferSchema(ctx context.Context, req *Request) (*Result, error)
}

// Prompt renders the request as the natural-language context block the
// service expects alongside the structured fields.
func (r *Request) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository %s changed from %s to %s.\n", r.RepositoryFullName, short(r.BaseSHA), short(r.HeadSHA))
	if len(r.Frameworks) > 0 {
		fmt.Fprintf(&b, "Detected frameworks: %s.\n", strings.Join(r.Frameworks, ", "))
	}
	if len(r.Routes) > 0 {
		fmt.Fprintf(&b, "Sampled routes: %s.\n", strings.Join(r.Routes, ", "))
	}
	if len(r.ChangedFiles) > 0 {
		fmt.Fprintf(&b, "Changed frontend files: %s.\n", strings.Join(r.ChangedFiles, ", "))
	}
	if len(r.DiffTotals) > 0 {
		fmt.Fprintf(&b, "Diff totals by extension: %v.\n", r.DiffTotals)
	}
	b.WriteString("Propose analytics event definitions and tracking snippets as JSON with top-level frameworks, events, and snippets fields, optionally a graph field.")
	return b.String()
}

func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	if sha == "" {
		return "(none)"
	}
	return sha
}
