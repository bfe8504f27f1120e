package cache

import (
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/hash"
)

// Collection summarizes one garbage collection pass.
type Collection struct {
	Collected int
	Freed     []*domain.Effect
}

// MajorGC advances the tick, marks everything reachable from roots and sweeps
// every node left unmarked. Effects whose expression is no longer indexed after
// the sweep are returned as freed.
func (g *Graph) MajorGC(roots []hash.Hash) Collection {
	tick := g.Advance()
	for _, r := range roots {
		if n, ok := g.Get(r); ok {
			g.VisitAll(n)
		}
	}

	var dead []*Node
	for n := range g.Nodes() {
		if n.LastVisited != tick {
			dead = append(dead, n)
		}
	}
	for _, n := range dead {
		g.Remove(n)
	}
	g.orphans = nil

	return Collection{Collected: len(dead), Freed: g.freed(dead)}
}

// MinorGC collects candidate nodes that nothing depends on and that are not the
// current node of a root, cascading into their dependencies. Batches are
// processed in the order given; callers pass the candidates of the least recently
// visited root first.
func (g *Graph) MinorGC(roots []hash.Hash, batches ...[]Index) Collection {
	protected := make(map[hash.Hash]struct{}, len(roots))
	for _, r := range roots {
		protected[r] = struct{}{}
	}

	keep := len(g.orphans)
	var dead []*Node
	for _, batch := range batches {
		queue := append([]Index(nil), batch...)
		for len(queue) > 0 {
			n := g.At(queue[0])
			queue = queue[1:]
			if n == nil || len(n.Dependents) > 0 {
				continue
			}
			if _, ok := protected[n.ID]; ok && g.Indexed(n) {
				continue
			}
			queue = append(queue, n.Deps...)
			g.Remove(n)
			dead = append(dead, n)
		}
	}
	// Removal records the dependencies it emptied; they were already queued.
	g.orphans = g.orphans[:keep]

	return Collection{Collected: len(dead), Freed: g.freed(dead)}
}

func (g *Graph) freed(dead []*Node) []*domain.Effect {
	var out []*domain.Effect
	seen := make(map[hash.Hash]struct{})
	for _, n := range dead {
		e, ok := n.Expression.(*domain.Effect)
		if !ok {
			continue
		}
		if _, indexed := g.index[e.ID]; indexed {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}
