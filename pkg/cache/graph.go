package cache

import (
	"iter"
	"slices"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/hash"
)

// Graph is the node arena plus the hash index. It is not safe for concurrent use.
type Graph struct {
	nodes []*Node
	free  []Index
	index map[hash.Hash]Index
	tick  uint64
	live  int

	// orphans are nodes that lost their last dependent or were superseded since
	// the last TakeOrphans.
	orphans []Index
}

// New returns an empty graph at tick 0.
func New() *Graph {
	return &Graph{index: make(map[hash.Hash]Index)}
}

// Tick is the current visitation tick.
func (g *Graph) Tick() uint64 { return g.tick }

// Advance starts a new visitation tick and returns it.
func (g *Graph) Advance() uint64 {
	g.tick++
	return g.tick
}

// Len is the number of live nodes, indexed or not.
func (g *Graph) Len() int { return g.live }

// Get returns the current node for id.
func (g *Graph) Get(id hash.Hash) (*Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

// At returns the node at i, or nil for a free slot.
func (g *Graph) At(i Index) *Node {
	if i < 0 || int(i) >= len(g.nodes) {
		return nil
	}
	return g.nodes[i]
}

// Indexed reports whether n is the current node for its expression.
func (g *Graph) Indexed(n *Node) bool {
	i, ok := g.index[n.ID]
	return ok && i == n.Index
}

// Nodes iterates over every live node in arena order.
func (g *Graph) Nodes() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for _, n := range g.nodes {
			if n != nil && !yield(n) {
				return
			}
		}
	}
}

// Create stores a freshly computed node and makes it current for its expression.
// A node previously current for the same expression is returned as superseded; it
// stays in the arena until garbage collected.
func (g *Graph) Create(expr domain.Expression, result domain.Expression, deps []Index) (created, superseded *Node) {
	n := &Node{
		ID:          expr.Hash(),
		Expression:  expr,
		Result:      result,
		LastVisited: g.tick,
	}
	if len(g.free) > 0 {
		n.Index = g.free[len(g.free)-1]
		g.free = g.free[:len(g.free)-1]
		g.nodes[n.Index] = n
	} else {
		n.Index = Index(len(g.nodes))
		g.nodes = append(g.nodes, n)
	}
	g.live++

	for _, d := range deps {
		g.AddEdge(n.Index, d)
	}
	g.settle(n)

	if old, ok := g.Get(n.ID); ok {
		superseded = old
		g.orphans = append(g.orphans, old.Index)
	}
	g.Set(n.ID, n.Index)
	return n, superseded
}

// Set makes the node at i current for id.
func (g *Graph) Set(id hash.Hash, i Index) {
	g.index[id] = i
}

// AddEdge records that from consumed the result of to.
func (g *Graph) AddEdge(from, to Index) {
	f, t := g.At(from), g.At(to)
	if f == nil || t == nil {
		return
	}
	f.Deps = append(f.Deps, to)
	t.Dependents = append(t.Dependents, from)
}

// Visit stamps n with the current tick.
func (g *Graph) Visit(n *Node) {
	n.LastVisited = g.tick
}

// VisitAll stamps n and everything it transitively depends on with the current
// tick. Subgraphs already stamped are not walked again.
func (g *Graph) VisitAll(n *Node) {
	stack := []*Node{n}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.LastVisited == g.tick && top != n {
			continue
		}
		top.LastVisited = g.tick
		for _, d := range top.Deps {
			if dn := g.At(d); dn != nil && dn.LastVisited != g.tick {
				stack = append(stack, dn)
			}
		}
	}
}

// Invalidate marks n dirty and flags its transitive dependents for a check. It
// returns how many dependents were newly flagged.
func (g *Graph) Invalidate(n *Node) int {
	n.flags.set(flagDirty)
	flagged := 0
	queue := slices.Clone(n.Dependents)
	for len(queue) > 0 {
		d := g.At(queue[0])
		queue = queue[1:]
		if d == nil || d.flags.has(flagCheck) {
			continue
		}
		d.flags.set(flagCheck)
		flagged++
		queue = append(queue, d.Dependents...)
	}
	return flagged
}

// Revalidate clears n's invalidation flags and replaces its edges with deps. The
// stored result is kept.
func (g *Graph) Revalidate(n *Node, deps []Index) {
	n.flags.clear(flagDirty | flagCheck)
	g.unlinkDeps(n)
	for _, d := range deps {
		g.AddEdge(n.Index, d)
	}
	g.settle(n)
	g.Visit(n)
}

// Remove deletes n from the arena and unlinks it from both edge directions.
func (g *Graph) Remove(n *Node) {
	if g.At(n.Index) != n {
		return
	}
	g.unlinkDeps(n)
	for _, di := range n.Dependents {
		if d := g.At(di); d != nil {
			d.Deps = slices.DeleteFunc(d.Deps, func(i Index) bool { return i == n.Index })
		}
	}
	n.Dependents = nil
	if g.Indexed(n) {
		delete(g.index, n.ID)
	}
	g.nodes[n.Index] = nil
	g.free = append(g.free, n.Index)
	g.live--
}

// TakeOrphans returns and forgets the nodes that became collection candidates
// since the previous call.
func (g *Graph) TakeOrphans() []Index {
	out := g.orphans
	g.orphans = nil
	return out
}

func (g *Graph) unlinkDeps(n *Node) {
	for _, di := range n.Deps {
		d := g.At(di)
		if d == nil {
			continue
		}
		d.Dependents = slices.DeleteFunc(d.Dependents, func(i Index) bool { return i == n.Index })
		if len(d.Dependents) == 0 {
			g.orphans = append(g.orphans, di)
		}
	}
	n.Deps = nil
}

func (g *Graph) settle(n *Node) {
	n.flags.clear(flagSettled)
	if _, pending := n.Result.(domain.Pending); pending {
		return
	}
	for _, di := range n.Deps {
		if d := g.At(di); d == nil || !d.Settled() {
			return
		}
	}
	n.flags.set(flagSettled)
}
