// Package middleware wraps a SessionStore with cross-cutting behavior, so
// backends stay free of logging and instrumentation concerns.
package middleware

import "github.com/oralsim/tribunal/pkg/ports"

// Middleware allows wrapping a SessionStore to add behavior.
type Middleware func(ports.SessionStore) ports.SessionStore

// Chain applies middlewares in order: the first middleware becomes the
// outermost layer.
func Chain(store ports.SessionStore, middlewares ...Middleware) ports.SessionStore {
	for i := len(middlewares) - 1; i >= 0; i-- {
		store = middlewares[i](store)
	}
	return store
}
