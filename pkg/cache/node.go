package cache

import (
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/hash"
)

// Index addresses a node in the arena.
type Index int

// NoIndex is the Index of no node.
const NoIndex Index = -1

type flags uint8

const (
	flagDirty   flags = 1 << iota // invalidated directly, must recompute
	flagCheck                     // a dependency was invalidated, verify before reuse
	flagSettled                   // result and every dependency are final
)

func (f flags) has(flag flags) bool { return f&flag != 0 }
func (f *flags) set(flag flags)     { *f |= flag }
func (f *flags) clear(flag flags)   { *f &^= flag }

// Node is one cached (expression, result) pair.
type Node struct {
	Index       Index
	ID          hash.Hash
	Expression  domain.Expression
	Result      domain.Expression
	LastVisited uint64

	// Deps are the nodes whose results this node consumed, in consumption order.
	Deps []Index
	// Dependents are the nodes that consumed this one.
	Dependents []Index

	flags flags
}

// Dirty reports whether the node was invalidated directly.
func (n *Node) Dirty() bool { return n.flags.has(flagDirty) }

// Stale reports whether a dependency was invalidated since the node was computed.
func (n *Node) Stale() bool { return n.flags.has(flagCheck) }

// Settled reports whether neither the result nor any dependency is Pending.
func (n *Node) Settled() bool { return n.flags.has(flagSettled) }

// IsEffect reports whether the node caches an effect resolution.
func (n *Node) IsEffect() bool {
	_, ok := n.Expression.(*domain.Effect)
	return ok
}
