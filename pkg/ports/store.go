package ports

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/hash"
)

// EffectSource supplies the current resolution of effects during an evaluation.
type EffectSource interface {
	// Lookup returns the expression an effect resolved to. ok is false while the
	// effect is still pending.
	Lookup(ctx context.Context, id hash.Hash) (expr domain.Expression, ok bool, err error)
}

// EffectStore persists effect resolutions so that evaluations can resume across
// processes.
type EffectStore interface {
	EffectSource

	// Resolve records value as the result of effect, replacing any earlier record.
	Resolve(ctx context.Context, effect *domain.Effect, value any) error

	// Reject records a failure for effect, replacing any earlier record.
	Reject(ctx context.Context, effect *domain.Effect, message string) error

	// Get returns the stored resolution.
	// Returns domain.ErrResolutionNotFound if the effect has none.
	Get(ctx context.Context, id hash.Hash) (*domain.Resolution, error)

	// Forget deletes the resolutions of ids. Unknown ids are ignored.
	Forget(ctx context.Context, ids ...hash.Hash) error

	// List returns the ids of every stored resolution.
	List(ctx context.Context) ([]hash.Hash, error)
}
