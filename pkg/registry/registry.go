package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/weft/pkg/coroutine"
	"github.com/aretw0/weft/pkg/domain"
)

// ErrDefinitionNotFound is returned when no definition is registered under a name.
var ErrDefinitionNotFound = errors.New("definition not found")

// Registry manages named coroutine definitions.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*coroutine.Definition
}

// New creates a new empty registry.
func New() *Registry {
	return &Registry{
		defs: make(map[string]*coroutine.Definition),
	}
}

// Default creates a registry holding the built-in definitions.
func Default() *Registry {
	r := New()
	r.MustRegister(Builtins()...)
	return r
}

// Register adds a definition to the registry.
// If a definition with the same name exists, it is overwritten.
func (r *Registry) Register(def *coroutine.Definition) error {
	if def == nil {
		return errors.New("registry: nil definition")
	}
	if def.Name == "" {
		return errors.New("registry: definition without a name")
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
	return nil
}

// MustRegister is Register for static tables; it panics on an invalid definition.
func (r *Registry) MustRegister(defs ...*coroutine.Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

// Get looks up a definition by name.
func (r *Registry) Get(name string) (*coroutine.Definition, error) {
	r.mu.RLock()
	def, ok := r.defs[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrDefinitionNotFound)
	}
	return def, nil
}

// Names lists the registered definitions in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Call builds an Async expression invoking the named definition with args.
func (r *Registry) Call(name string, args ...any) (*domain.Async, error) {
	def, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return domain.NewAsync(def, args...), nil
}
