// Package cache is the content-addressed dependency graph behind incremental
// evaluation.
//
// Nodes live in an arena and are addressed by Index; the expression hash maps to
// the current node for that expression. Edges are index lists in both directions,
// so removing a node never leaves a dangling reference. A node records the
// expression it was computed for, its terminal result, the nodes it consumed and
// the tick it was last reached on.
//
// Invalidation is two-level. Invalidate marks a node dirty and flags every
// transitive dependent for a check; a checked node is reused once each of its
// dependencies is shown to resolve to the same result hash as before.
package cache
