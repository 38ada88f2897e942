package routegraph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autometric/autometric/pkg/types"
)

func graph(nodes ...types.RouteNode) *types.RouteGraph {
	return &types.RouteGraph{Nodes: nodes}
}

func TestMatchLiteralAndRoot(t *testing.T) {
	m := CompileNodes(graph(
		types.RouteNode{ID: "home", Pattern: "/"},
		types.RouteNode{ID: "about", Pattern: "/about"},
	))

	assert.Equal(t, "home", m.Match("/"))
	assert.Equal(t, "about", m.Match("/about"))
	assert.Equal(t, "about", m.Match("/about/"))
	assert.Equal(t, "", m.Match("/pricing"))
}

func TestMatchParamSegment(t *testing.T) {
	m := CompileNodes(graph(
		types.RouteNode{ID: "product", Pattern: "/product/:id"},
	))

	assert.Equal(t, "product", m.Match("/product/42"))
	assert.Equal(t, "product", m.Match("/product/sku-9"))
	assert.Equal(t, "", m.Match("/product"))
	assert.Equal(t, "", m.Match("/product/42/reviews"), "param spans one segment only")
}

func TestMatchSplat(t *testing.T) {
	m := CompileNodes(graph(
		types.RouteNode{ID: "docs", Pattern: "/docs/*"},
	))

	assert.Equal(t, "docs", m.Match("/docs"))
	assert.Equal(t, "docs", m.Match("/docs/getting-started"))
	assert.Equal(t, "docs", m.Match("/docs/api/v2/events"))
	assert.Equal(t, "", m.Match("/doc"))
}

func TestMatchDeclarationOrderWins(t *testing.T) {
	m := CompileNodes(graph(
		types.RouteNode{ID: "checkout", Pattern: "/shop/checkout"},
		types.RouteNode{ID: "shop-page", Pattern: "/shop/:page"},
	))
	assert.Equal(t, "checkout", m.Match("/shop/checkout"))
	assert.Equal(t, "shop-page", m.Match("/shop/cart"))

	// Reversed order: the generic pattern shadows the literal.
	m = CompileNodes(graph(
		types.RouteNode{ID: "shop-page", Pattern: "/shop/:page"},
		types.RouteNode{ID: "checkout", Pattern: "/shop/checkout"},
	))
	assert.Equal(t, "shop-page", m.Match("/shop/checkout"))
}

func TestMatchEscapesRegexMetacharacters(t *testing.T) {
	m := CompileNodes(graph(
		types.RouteNode{ID: "promo", Pattern: "/sale+deals"},
	))
	assert.Equal(t, "promo", m.Match("/sale+deals"))
	assert.Equal(t, "", m.Match("/saleedeals"))
}

func TestCompileNodesNilGraph(t *testing.T) {
	m := CompileNodes(nil)
	assert.Equal(t, "", m.Match("/"))
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"":                     "/",
		"/":                    "/",
		"about":                "/about",
		"/about/":              "/about",
		"/search?q=shoes":      "/search",
		"/docs#install":        "/docs",
		"/product/42/?ref=nav": "/product/42",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePath(in), "input %q", in)
	}
}

func TestPathFromURL(t *testing.T) {
	assert.Equal(t, "/product/42", PathFromURL("https://shop.example.com/product/42?utm=x"))
	assert.Equal(t, "/checkout", PathFromURL("/checkout"))
	assert.Equal(t, "/", PathFromURL("https://shop.example.com/"))
}

func TestDeriveEdge(t *testing.T) {
	assert.Equal(t, "home->product", DeriveEdge("product", "home"))
	assert.Equal(t, "", DeriveEdge("product", ""))
	assert.Equal(t, "", DeriveEdge("", "home"))
}
