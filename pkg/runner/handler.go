package runner

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
)

// Handler performs one effect. A returned error rejects the effect; its message
// becomes the failure the subscription observes.
type Handler interface {
	Handle(ctx context.Context, effect *domain.Effect) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, effect *domain.Effect) (any, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, effect *domain.Effect) (any, error) {
	return f(ctx, effect)
}
