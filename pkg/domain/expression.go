package domain

import (
	"errors"
	"fmt"

	"github.com/aretw0/weft/pkg/coroutine"
	"github.com/aretw0/weft/pkg/hash"
)

// Kind is the tag of an Expression variant.
type Kind uint8

const (
	KindResult Kind = iota + 1
	KindFailure
	KindEffect
	KindAsync
	KindSuspense
	KindPending
	KindFallback
)

func (k Kind) String() string {
	switch k {
	case KindResult:
		return "result"
	case KindFailure:
		return "failure"
	case KindEffect:
		return "effect"
	case KindAsync:
		return "async"
	case KindSuspense:
		return "suspense"
	case KindPending:
		return "pending"
	case KindFallback:
		return "fallback"
	}
	return "unknown"
}

// Expression is the closed union of evaluable values. Only this package can add
// variants.
type Expression interface {
	hash.Hashable
	Kind() Kind
	expression()
}

// IsTerminal reports whether expr needs no further evaluation.
func IsTerminal(expr Expression) bool {
	switch expr.(type) {
	case *Result, *Failure, Pending:
		return true
	}
	return false
}

// Result is a fully evaluated success.
type Result struct {
	Value any
	id    hash.Hash
}

// NewResult wraps v. It panics when v has no structural hash.
func NewResult(v any) *Result {
	return &Result{Value: v, id: mustTuple("result", v)}
}

// ResultOf is like NewResult but reports a value without a structural hash as an
// error instead of panicking.
func ResultOf(v any) (*Result, error) {
	h, err := hash.Tuple("result", v)
	if err != nil {
		return nil, err
	}
	return &Result{Value: v, id: h}, nil
}

func (r *Result) Kind() Kind      { return KindResult }
func (r *Result) Hash() hash.Hash { return r.id }
func (*Result) expression()       {}

func (r *Result) String() string { return fmt.Sprintf("Result(%v)", r.Value) }

// Failure is a fully evaluated error.
type Failure struct {
	Err error
	id  hash.Hash
}

// digester is implemented by thrown values that hash themselves and may fail to.
type digester interface {
	Digest() (hash.Hash, error)
}

// NewFailure wraps err. Errors that carry a thrown value are hashed by that value,
// so the call fails when the value has no structural hash.
func NewFailure(err error) (*Failure, error) {
	if err == nil {
		return nil, errors.New("failure with nil error")
	}
	var d digester
	if errors.As(err, &d) {
		inner, derr := d.Digest()
		if derr != nil {
			return nil, derr
		}
		h, herr := hash.Tuple("failure", inner)
		if herr != nil {
			return nil, herr
		}
		return &Failure{Err: err, id: h}, nil
	}
	h, herr := hash.Tuple("failure", err)
	if herr != nil {
		return nil, herr
	}
	return &Failure{Err: err, id: h}, nil
}

func (f *Failure) Kind() Kind      { return KindFailure }
func (f *Failure) Hash() hash.Hash { return f.id }
func (*Failure) expression()       {}

func (f *Failure) String() string { return fmt.Sprintf("Failure(%v)", f.Err) }

// Effect is a request for an externally produced value. ID is derived from Type
// and Payload, so equal requests share an identity.
type Effect struct {
	ID      hash.Hash
	Type    string
	Payload any
}

// NewEffect builds an effect request. It panics when payload has no structural hash.
func NewEffect(typ string, payload any) *Effect {
	return &Effect{ID: mustTuple("effect", typ, payload), Type: typ, Payload: payload}
}

func (e *Effect) Kind() Kind      { return KindEffect }
func (e *Effect) Hash() hash.Hash { return e.ID }
func (*Effect) expression()       {}

func (e *Effect) String() string { return fmt.Sprintf("Effect(%s, %s)", e.Type, e.ID) }

// Async is a lazy invocation of Target with Args.
type Async struct {
	Target *coroutine.Definition
	Args   []any
	id     hash.Hash
}

// NewAsync binds args to target. It panics when target is nil or an argument has
// no structural hash.
func NewAsync(target *coroutine.Definition, args ...any) *Async {
	if target == nil {
		panic("domain: async with nil target")
	}
	return &Async{Target: target, Args: args, id: mustTuple("async", target.Hash(), args)}
}

func (a *Async) Kind() Kind      { return KindAsync }
func (a *Async) Hash() hash.Hash { return a.id }
func (*Async) expression()       {}

func (a *Async) String() string { return fmt.Sprintf("Async(%s)", a.Target.Name) }

// Suspense is a suspended coroutine waiting on Dependencies. Parent resumes from
// State once every dependency has resolved.
type Suspense struct {
	Dependencies []Expression
	Parent       *coroutine.Definition
	State        *coroutine.State
	id           hash.Hash
}

// NewSuspense captures a suspension point. State must not be mutated afterwards.
// It fails when the state holds a value without a structural hash.
func NewSuspense(deps []Expression, parent *coroutine.Definition, st *coroutine.State) (*Suspense, error) {
	if parent == nil || st == nil {
		return nil, errors.New("suspense needs a parent definition and state")
	}
	for i, d := range deps {
		if d == nil {
			return nil, fmt.Errorf("suspense dependency %d: %w", i, ErrNilExpression)
		}
	}
	digest, err := st.Digest()
	if err != nil {
		return nil, err
	}
	h, err := hash.Tuple("suspense", deps, parent.Hash(), digest)
	if err != nil {
		return nil, err
	}
	return &Suspense{Dependencies: deps, Parent: parent, State: st, id: h}, nil
}

func (s *Suspense) Kind() Kind      { return KindSuspense }
func (s *Suspense) Hash() hash.Hash { return s.id }
func (*Suspense) expression()       {}

func (s *Suspense) String() string {
	return fmt.Sprintf("Suspense(%s, %d deps)", s.Parent.Name, len(s.Dependencies))
}

// Pending means blocked with no value yet. All Pending values are the same.
type Pending struct{}

var pendingHash = mustTuple("pending")

func (Pending) Kind() Kind      { return KindPending }
func (Pending) Hash() hash.Hash { return pendingHash }
func (Pending) expression()     {}

func (Pending) String() string { return "Pending" }

// Fallback evaluates Attempt and, while it is Pending, continues with Fallback
// instead. Both stay dependencies of the result.
type Fallback struct {
	Attempt  Expression
	Fallback Expression
	id       hash.Hash
}

// NewFallback pairs attempt with fallback. It panics when either is nil.
func NewFallback(attempt, fallback Expression) *Fallback {
	if attempt == nil || fallback == nil {
		panic("domain: fallback needs two expressions")
	}
	return &Fallback{
		Attempt:  attempt,
		Fallback: fallback,
		id:       mustTuple("fallback", attempt.Hash(), fallback.Hash()),
	}
}

func (f *Fallback) Kind() Kind      { return KindFallback }
func (f *Fallback) Hash() hash.Hash { return f.id }
func (*Fallback) expression()       {}

func (f *Fallback) String() string { return fmt.Sprintf("Fallback(%v, %v)", f.Attempt, f.Fallback) }

func mustTuple(tag string, parts ...any) hash.Hash {
	h, err := hash.Tuple(tag, parts...)
	if err != nil {
		panic(fmt.Sprintf("domain: %s: %v", tag, err))
	}
	return h
}
