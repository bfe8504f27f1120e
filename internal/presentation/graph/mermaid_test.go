package graph_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/weft/internal/presentation/graph"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/hash"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func id(e domain.Expression) string {
	return "n" + e.Hash().String()
}

func TestGenerateMermaid_Shapes(t *testing.T) {
	boom, err := domain.NewFailure(errors.New(`say "no"`))
	require.NoError(t, err)
	fetch := domain.NewEffect("fetch", "/a")
	name := domain.NewEffect("name", nil)
	root := domain.NewAsync(registry.Collect,
		domain.NewResult(1),
		fetch,
		name,
		domain.NewFallback(boom, domain.Pending{}),
		"bare",
	)

	out := graph.GenerateMermaid(root, nil)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	for _, want := range []string{
		id(root) + `[["collect"]]`,
		id(domain.NewResult(1)) + `["1"]`,
		id(fetch) + `[/"fetch /a"/]`,
		id(name) + `[/"name"/]`,
		id(boom) + `{{"say 'no'"}}`,
		id(domain.Pending{}) + `(("pending"))`,
		id(root) + ` -- "1" --> ` + id(fetch),
		`-. "else" .-> ` + id(domain.Pending{}),
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "bare", "plain arguments are not nodes")
	assert.NotContains(t, out, "classDef")
}

func TestGenerateMermaid_SharedNodesOnce(t *testing.T) {
	e := domain.NewEffect("fetch", 1)
	root := domain.NewAsync(registry.Collect, e, e)

	out := graph.GenerateMermaid(root, nil)
	assert.Equal(t, 1, strings.Count(out, id(e)+"[/"))
	assert.Equal(t, 2, strings.Count(out, "--> "+id(e)))
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	done := domain.NewEffect("a", nil)
	waiting := domain.NewEffect("b", nil)
	root := domain.NewAsync(registry.Collect, done, waiting)

	out := graph.GenerateMermaid(root, &graph.Overlay{
		Resolved:   []hash.Hash{done.ID},
		Unresolved: []hash.Hash{waiting.ID, domain.NewEffect("elsewhere", nil).ID},
	})

	assert.Contains(t, out, "class "+id(done)+" resolved;")
	assert.Contains(t, out, "class "+id(waiting)+" unresolved;")
	assert.Equal(t, 2, strings.Count(out, "class n"), "ids outside the tree are skipped")
}

func TestGenerateMermaid_TruncatesLongValues(t *testing.T) {
	out := graph.GenerateMermaid(domain.NewResult(strings.Repeat("x", 100)), nil)
	assert.Contains(t, out, strings.Repeat("x", 31)+"…")
	assert.NotContains(t, out, strings.Repeat("x", 32))
}
