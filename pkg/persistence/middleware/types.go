package middleware

import "github.com/aretw0/weft/pkg/ports"

// Middleware allows wrapping an EffectStore to add behavior.
type Middleware func(ports.EffectStore) ports.EffectStore

// Wrap applies mws to store; the first middleware is the outermost.
func Wrap(store ports.EffectStore, mws ...Middleware) ports.EffectStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
