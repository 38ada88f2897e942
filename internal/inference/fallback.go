package inference

import "github.com/autometric/autometric/pkg/types"

// Fallback returns the minimal deterministic schema used when the inference
// service fails or returns output that does not validate. It covers the two
// events every frontend can emit without any generated code.
func Fallback(frameworks []string) *Result {
	return &Result{
		Schema: &types.EventSchema{
			Frameworks: append([]string(nil), frameworks...),
			Events: []types.EventDefinition{
				{Name: "page_view", Required: []string{"page_url"}, Optional: []string{"referrer", "title"}},
				{Name: "click", Required: []string{"element"}, Optional: []string{"page_url", "text"}},
			},
			Snippets: []types.Snippet{},
		},
	}
}
