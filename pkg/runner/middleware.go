package runner

import (
	"context"
	"fmt"
	"slices"

	"github.com/aretw0/weft/pkg/domain"
)

// EffectInterceptor is a middleware that can block an effect before its handler
// runs. It returns true if execution should proceed; otherwise reason becomes the
// rejection message.
type EffectInterceptor func(ctx context.Context, effect *domain.Effect) (allowed bool, reason string, err error)

// MultiInterceptor chains multiple interceptors.
func MultiInterceptor(interceptors ...EffectInterceptor) EffectInterceptor {
	return func(ctx context.Context, effect *domain.Effect) (bool, string, error) {
		for _, interceptor := range interceptors {
			allowed, reason, err := interceptor(ctx, effect)
			if err != nil {
				return false, "", err // System Error
			}
			if !allowed {
				return false, reason, nil // Blocked by policy
			}
		}
		return true, "", nil
	}
}

// AutoApproveMiddleware allows everything.
func AutoApproveMiddleware() EffectInterceptor {
	return func(ctx context.Context, effect *domain.Effect) (bool, string, error) {
		return true, "", nil
	}
}

// AllowTypesMiddleware only lets the listed effect types through.
func AllowTypesMiddleware(types ...string) EffectInterceptor {
	return func(ctx context.Context, effect *domain.Effect) (bool, string, error) {
		if slices.Contains(types, effect.Type) {
			return true, "", nil
		}
		return false, fmt.Sprintf("effect type %q denied by policy", effect.Type), nil
	}
}
