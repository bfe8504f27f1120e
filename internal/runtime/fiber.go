package runtime

import (
	"github.com/aretw0/weft/pkg/cache"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/hash"
)

type phase uint8

const (
	// phaseEnter consults the cache before evaluating.
	phaseEnter phase = iota
	// phaseEval evaluates without consulting the cache.
	phaseEval
	// phaseTail waits on a tail call whose result becomes this fiber's result.
	phaseTail
	// phaseJoin is a fork point waiting on its children.
	phaseJoin
	// phaseVerify checks an existing node's dependencies one at a time.
	phaseVerify
	// phaseAttempt is a fallback waiting on its attempt.
	phaseAttempt
	// phaseFallback is a fallback waiting on its alternative.
	phaseFallback
)

func (p phase) String() string {
	switch p {
	case phaseEnter:
		return "enter"
	case phaseEval:
		return "eval"
	case phaseTail:
		return "tail"
	case phaseJoin:
		return "join"
	case phaseVerify:
		return "verify"
	case phaseAttempt:
		return "attempt"
	case phaseFallback:
		return "fallback"
	}
	return "unknown"
}

// fiber is one frame of in-progress evaluation. A fiber that is not a fork root
// hands its result to parent, which may be off the stack; a fork root stores its
// result into the fork point at index.
type fiber struct {
	expr     domain.Expression
	id       hash.Hash
	parent   *fiber
	forkRoot bool
	index    int
	depth    int
	phase    phase

	// deps are the nodes consumed so far, in consumption order.
	deps []cache.Index

	// Fork point bookkeeping, indexed like the Suspense dependencies.
	results []domain.Expression
	nodes   []cache.Index

	// old is the node whose dependencies are being verified; verified counts how
	// many of them matched so far.
	old      *cache.Node
	verified int
}

func newFiber(expr domain.Expression, parent *fiber) *fiber {
	f := &fiber{expr: expr, id: expr.Hash(), parent: parent}
	if parent != nil {
		f.depth = parent.depth + 1
	}
	return f
}

func newForkRoot(expr domain.Expression, point *fiber, index int) *fiber {
	return &fiber{expr: expr, id: expr.Hash(), parent: point, forkRoot: true, index: index}
}
