// Package graph loads dialogue graph definitions from YAML and keeps the
// validated graphs available to the coordinator.
package graph

import (
	"fmt"
	"sync"

	"github.com/oralsim/tribunal/pkg/domain"
)

// Registry manages the loaded dialogue graphs.
// Graphs are immutable once registered; the registry is safe for concurrent
// lookup while sessions run.
type Registry struct {
	mu     sync.RWMutex
	graphs map[string]*domain.Graph
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		graphs: make(map[string]*domain.Graph),
	}
}

// Register validates the graph and adds it. Registering an already-known ID
// is an error: graphs do not change at runtime.
func (r *Registry) Register(g *domain.Graph) error {
	if err := g.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.graphs[g.ID]; exists {
		return fmt.Errorf("graph %q already registered", g.ID)
	}
	r.graphs[g.ID] = g
	return nil
}

// Get looks up a graph by ID.
func (r *Registry) Get(id string) (*domain.Graph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.graphs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, id)
	}
	return g, nil
}

// List returns the registered graph IDs.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.graphs))
	for id := range r.graphs {
		ids = append(ids, id)
	}
	return ids
}
