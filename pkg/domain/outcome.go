package domain

import (
	"fmt"

	"github.com/aretw0/weft/pkg/hash"
)

// OutcomeStatus is the coarse result of an evaluation.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeError   OutcomeStatus = "error"
	OutcomePending OutcomeStatus = "pending"
)

// Outcome is the caller-facing projection of a terminal expression.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Value  any           `json:"value,omitempty"`
	Err    error         `json:"-"`
}

// OutcomeOf projects a terminal expression.
func OutcomeOf(expr Expression) (Outcome, error) {
	switch e := expr.(type) {
	case *Result:
		return Outcome{Status: OutcomeSuccess, Value: e.Value}, nil
	case *Failure:
		return Outcome{Status: OutcomeError, Err: e.Err}, nil
	case Pending:
		return Outcome{Status: OutcomePending}, nil
	case nil:
		return Outcome{}, ErrNilExpression
	case *Effect, *Async, *Suspense, *Fallback:
		return Outcome{}, fmt.Errorf("%s: %w", e.Kind(), ErrNotTerminal)
	default:
		return Outcome{}, ErrUnknownExpression
	}
}

func (o Outcome) String() string {
	switch o.Status {
	case OutcomeSuccess:
		return fmt.Sprintf("Success(%v)", o.Value)
	case OutcomeError:
		return fmt.Sprintf("Error(%v)", o.Err)
	}
	return "Pending"
}

// EffectTable maps effect identities to their current resolution. A missing key
// means the effect is still pending.
type EffectTable map[hash.Hash]Expression

// Resolve records value as the result of effect and returns the table.
func (t EffectTable) Resolve(effect *Effect, value any) EffectTable {
	t[effect.ID] = NewResult(value)
	return t
}

// Reject records err as the result of effect and returns the table.
func (t EffectTable) Reject(effect *Effect, err error) EffectTable {
	f, ferr := NewFailure(err)
	if ferr != nil {
		panic(fmt.Sprintf("domain: reject %s: %v", effect.ID, ferr))
	}
	t[effect.ID] = f
	return t
}
