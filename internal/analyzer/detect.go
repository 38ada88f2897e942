// Package analyzer implements the queued-run worker: it claims the oldest
// queued push run, summarizes the commit, and turns inference output into
// schema events.
package analyzer

import (
	"encoding/json"
	"path"
	"sort"
	"strings"
)

// Detection is the result of scanning a repository tree and manifest for
// frontend signals. All fields are derived deterministically from the inputs.
type Detection struct {
	Frameworks []string
	Routes     []string
}

// frameworkMarkers maps manifest dependency names to framework labels.
// Order matters for output stability.
var frameworkMarkers = []struct {
	dep   string
	label string
}{
	{"next", "nextjs"},
	{"nuxt", "nuxt"},
	{"@sveltejs/kit", "sveltekit"},
	{"@remix-run/react", "remix"},
	{"gatsby", "gatsby"},
	{"@angular/core", "angular"},
	{"react", "react"},
	{"vue", "vue"},
	{"svelte", "svelte"},
}

// routeDirs are path prefixes whose contents declare routes by convention.
var routeDirs = []string{
	"pages/",
	"src/pages/",
	"src/routes/",
	"app/routes/",
}

var componentSuffixes = []string{".jsx", ".tsx", ".vue", ".svelte"}

const maxSampledRoutes = 20

// Detect scans a package manifest and a file-path listing for framework
// markers and route conventions. It is a pure function over its inputs.
func Detect(manifest []byte, paths []string) Detection {
	var det Detection

	if len(manifest) > 0 {
		deps := manifestDependencies(manifest)
		for _, m := range frameworkMarkers {
			if _, ok := deps[m.dep]; ok {
				det.Frameworks = append(det.Frameworks, m.label)
			}
		}
	}

	routes := map[string]struct{}{}
	for _, p := range paths {
		for _, dir := range routeDirs {
			if strings.HasPrefix(p, dir) && isRouteFile(p) {
				routes[routeFromFile(strings.TrimPrefix(p, dir))] = struct{}{}
				break
			}
		}
	}
	for r := range routes {
		det.Routes = append(det.Routes, r)
	}
	sort.Strings(det.Routes)
	if len(det.Routes) > maxSampledRoutes {
		det.Routes = det.Routes[:maxSampledRoutes]
	}
	return det
}

// IsFrontendPath reports whether a changed file looks like frontend code,
// used both for the early-exit policy and to bound the inference context.
func IsFrontendPath(p string) bool {
	for _, suffix := range componentSuffixes {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	for _, dir := range routeDirs {
		if strings.HasPrefix(p, dir) {
			return true
		}
	}
	if strings.HasSuffix(p, ".js") || strings.HasSuffix(p, ".ts") {
		return strings.Contains(p, "components/") || strings.Contains(p, "views/")
	}
	return false
}

func manifestDependencies(manifest []byte) map[string]struct{} {
	var parsed struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(manifest, &parsed); err != nil {
		return nil
	}
	deps := make(map[string]struct{}, len(parsed.Dependencies)+len(parsed.DevDependencies))
	for name := range parsed.Dependencies {
		deps[name] = struct{}{}
	}
	for name := range parsed.DevDependencies {
		deps[name] = struct{}{}
	}
	return deps
}

func isRouteFile(p string) bool {
	ext := path.Ext(p)
	switch ext {
	case ".js", ".jsx", ".ts", ".tsx", ".vue", ".svelte":
		return true
	}
	return false
}

// routeFromFile converts a route-directory file path into a path template:
// "product/[id].tsx" becomes "/product/:id", "index.tsx" becomes "/".
func routeFromFile(rel string) string {
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	segments := strings.Split(rel, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "index" || seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "[") && strings.HasSuffix(seg, "]") {
			name := strings.Trim(seg, "[]")
			if strings.HasPrefix(name, "...") {
				out = append(out, "*")
				continue
			}
			out = append(out, ":"+name)
			continue
		}
		out = append(out, seg)
	}
	return "/" + strings.Join(out, "/")
}
