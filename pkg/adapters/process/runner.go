package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/weft/pkg/domain"
)

// ErrNotRegistered is returned for effect types with no registered command.
var ErrNotRegistered = errors.New("process not registered")

// DefaultGracePeriod is how long a canceled process gets between the interrupt
// and the kill.
const DefaultGracePeriod = 5 * time.Second

// Runner performs effects by running local processes. Only commands on its
// allow-list run; the effect payload reaches them through the environment,
// never through the command line.
type Runner struct {
	registry    map[string]RegisteredProcess
	baseDir     string
	gracePeriod time.Duration
}

// RegisteredProcess is an allowed command.
type RegisteredProcess struct {
	Command string
	Args    []string
	Env     map[string]string
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry registers every configured process.
func WithRegistry(procs map[string]ProcessConfig) RunnerOption {
	return func(r *Runner) {
		for name, p := range procs {
			r.registry[name] = RegisteredProcess{Command: p.Command, Args: p.Args, Env: p.Environment}
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithGracePeriod overrides DefaultGracePeriod.
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.gracePeriod = d
	}
}

// NewRunner creates a process runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry:    make(map[string]RegisteredProcess),
		gracePeriod: DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list under an effect type.
func (r *Runner) Register(name string, command string, args ...string) {
	r.registry[name] = RegisteredProcess{
		Command: command,
		Args:    args,
	}
}

// Types lists the registered effect types.
func (r *Runner) Types() []string {
	return slices.Sorted(maps.Keys(r.registry))
}

// Handle runs the command registered for the effect's type. Stdout that parses
// as a JSON object or array becomes structured data; anything else is returned
// as trimmed text. A non-zero exit is an error carrying stderr.
func (r *Runner) Handle(ctx context.Context, effect *domain.Effect) (any, error) {
	proc, ok := r.registry[effect.Type]
	if !ok {
		return nil, fmt.Errorf("%s: %w", effect.Type, ErrNotRegistered)
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.gracePeriod

	env := cmd.Environ()
	for k, v := range proc.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = append(env, payloadEnv(effect)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", effect.Type, err, strings.TrimSpace(stderr.String()))
	}

	out := strings.TrimSpace(stdout.String())
	if (strings.HasPrefix(out, "{") && strings.HasSuffix(out, "}")) ||
		(strings.HasPrefix(out, "[") && strings.HasSuffix(out, "]")) {
		var v any
		if err := json.Unmarshal([]byte(out), &v); err == nil {
			return v, nil
		}
	}
	return out, nil
}

// payloadEnv exposes the effect to the process. Map payloads are flattened into
// one WEFT_ARG_<KEY> per entry; any payload is also given whole as WEFT_PAYLOAD.
func payloadEnv(effect *domain.Effect) []string {
	env := []string{
		"WEFT_EFFECT_TYPE=" + effect.Type,
		"WEFT_EFFECT_ID=" + effect.ID.String(),
	}
	if effect.Payload == nil {
		return env
	}
	env = append(env, "WEFT_PAYLOAD="+envValue(effect.Payload))
	if m, ok := effect.Payload.(map[string]any); ok {
		for _, k := range slices.Sorted(maps.Keys(m)) {
			env = append(env, fmt.Sprintf("WEFT_ARG_%s=%s", strings.ToUpper(k), envValue(m[k])))
		}
	}
	return env
}

func envValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case int, int64, float64, bool:
		return fmt.Sprint(v)
	case nil:
		return ""
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}
