package runtime

import (
	"log/slog"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
)

// Limits are the ceilings that turn runaway evaluation into a fatal error.
type Limits struct {
	// MaxStackSize bounds the number of outstanding fibers.
	MaxStackSize int `yaml:"max_stack_size" mapstructure:"max_stack_size"`
	// MaxTailCallDepth bounds the length of a chain of tail calls.
	MaxTailCallDepth int `yaml:"max_tail_call_depth" mapstructure:"max_tail_call_depth"`
}

// DefaultLimits are used for any limit left at zero.
var DefaultLimits = Limits{
	MaxStackSize:     100_000,
	MaxTailCallDepth: 10_000,
}

func (l Limits) withDefaults() Limits {
	if l.MaxStackSize <= 0 {
		l.MaxStackSize = DefaultLimits.MaxStackSize
	}
	if l.MaxTailCallDepth <= 0 {
		l.MaxTailCallDepth = DefaultLimits.MaxTailCallDepth
	}
	return l
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLimits sets the stack and tail-call ceilings.
func WithLimits(l Limits) Option {
	return func(e *Evaluator) {
		e.limits = l.withDefaults()
	}
}

// WithLogger sets the structured logger. Cache decisions are logged at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHooks registers lifecycle hooks for node creation and revalidation.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Evaluator) {
		e.hooks = hooks
	}
}

// WithStats accumulates counters into s instead of a private Stats.
func WithStats(s *Stats) Option {
	return func(e *Evaluator) {
		if s != nil {
			e.stats = s
		}
	}
}

func defaultLogger() *slog.Logger { return logging.NewNop() }
