package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/weft/pkg/domain"
)

// LoggingHooks logs every lifecycle event. Node events are logged at debug level.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeCreated: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_created", "node_id", e.NodeID, "kind", e.Kind, "superseded", e.Superseded, "tick", e.Tick)
		},
		OnNodeRevalidated: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_revalidated", "node_id", e.NodeID, "kind", e.Kind, "tick", e.Tick)
		},
		OnEffectYield: func(ctx context.Context, e *domain.EffectEvent) {
			logger.InfoContext(ctx, "effect_yield", "effect_id", e.Effect.ID, "type", e.Effect.Type, "resolved", e.Resolved)
		},
		OnCollect: func(ctx context.Context, e *domain.CollectEvent) {
			logger.InfoContext(ctx, "collect", "major", e.Major, "collected", e.Collected, "freed", e.Freed)
		},
	}
}

// Chain combines hook sets; each event is delivered to every set in order.
func Chain(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, s := range sets {
		out.OnNodeCreated = chain(out.OnNodeCreated, s.OnNodeCreated)
		out.OnNodeRevalidated = chain(out.OnNodeRevalidated, s.OnNodeRevalidated)
		out.OnEffectYield = chain(out.OnEffectYield, s.OnEffectYield)
		out.OnCollect = chain(out.OnCollect, s.OnCollect)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
