package domain

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/weft/pkg/hash"
)

// ErrResolutionNotFound is returned when a store holds no resolution for an effect.
var ErrResolutionNotFound = errors.New("resolution not found")

// Resolution is the persisted outcome of one effect.
type Resolution struct {
	EffectID  hash.Hash `json:"effect_id"`
	Type      string    `json:"type"`
	Value     any       `json:"value,omitempty"`
	Error     string    `json:"error,omitempty"`
	Failed    bool      `json:"failed,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expression turns the resolution into the expression an effect resumes with.
func (r *Resolution) Expression() (Expression, error) {
	if r.Failed {
		f, err := NewFailure(errors.New(r.Error))
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	res, err := ResultOf(r.Value)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Lookup lets an EffectTable serve as an effect source.
func (t EffectTable) Lookup(_ context.Context, id hash.Hash) (Expression, bool, error) {
	v, ok := t[id]
	return v, ok, nil
}
