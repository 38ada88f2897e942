package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFrameworks(t *testing.T) {
	manifest := []byte(`{
		"dependencies": {"next": "14.2.0", "react": "18.3.1"},
		"devDependencies": {"typescript": "5.4.5"}
	}`)

	det := Detect(manifest, nil)
	assert.Equal(t, []string{"nextjs", "react"}, det.Frameworks)
}

func TestDetectDevDependencyCounts(t *testing.T) {
	manifest := []byte(`{"devDependencies": {"vue": "3.4.0"}}`)
	det := Detect(manifest, nil)
	assert.Equal(t, []string{"vue"}, det.Frameworks)
}

func TestDetectMalformedManifest(t *testing.T) {
	det := Detect([]byte(`{not json`), []string{"src/pages/index.tsx"})
	assert.Empty(t, det.Frameworks)
	assert.Equal(t, []string{"/"}, det.Routes)
}

func TestDetectRoutes(t *testing.T) {
	paths := []string{
		"src/pages/index.tsx",
		"src/pages/about.tsx",
		"src/pages/product/[id].tsx",
		"src/pages/docs/[...slug].tsx",
		"src/pages/styles.css",
		"lib/util.ts",
	}
	det := Detect(nil, paths)
	assert.Equal(t, []string{"/", "/about", "/docs/*", "/product/:id"}, det.Routes)
}

func TestDetectDeduplicatesRoutes(t *testing.T) {
	paths := []string{
		"pages/about.tsx",
		"pages/about.jsx",
	}
	det := Detect(nil, paths)
	assert.Equal(t, []string{"/about"}, det.Routes)
}

func TestIsFrontendPath(t *testing.T) {
	cases := map[string]bool{
		"src/App.tsx":             true,
		"src/components/Nav.js":   true,
		"src/views/cart.ts":       true,
		"pages/index.tsx":         true,
		"app/routes/settings.tsx": true,
		"lib/util.ts":             false,
		"main.go":                 false,
		"README.md":               false,
		"src/widgets/button.vue":  true,
		"server/handlers/push.go": false,
	}
	for p, want := range cases {
		assert.Equal(t, want, IsFrontendPath(p), "path %q", p)
	}
}

func TestRouteFromFile(t *testing.T) {
	cases := map[string]string{
		"index.tsx":          "/",
		"about.tsx":          "/about",
		"product/[id].tsx":   "/product/:id",
		"docs/[...slug].tsx": "/docs/*",
		"blog/index.vue":     "/blog",
		"shop/cart/index.ts": "/shop/cart",
	}
	for in, want := range cases {
		assert.Equal(t, want, routeFromFile(in), "input %q", in)
	}
}
