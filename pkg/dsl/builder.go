package dsl

import (
	"fmt"

	"github.com/oralsim/tribunal/pkg/domain"
)

// Builder manages the graph construction. Nodes are emitted in the order
// they were first added, so option order and tie-breaks stay predictable.
type Builder struct {
	graph domain.Graph
	nodes map[string]*NodeBuilder
	order []string
}

// New creates a new builder for a graph with the given ID.
func New(id string) *Builder {
	return &Builder{
		graph: domain.Graph{ID: id},
		nodes: make(map[string]*NodeBuilder),
	}
}

// Title sets the human-readable graph title.
func (b *Builder) Title(title string) *Builder {
	b.graph.Title = title
	return b
}

// Roles declares the participant roles of the graph.
func (b *Builder) Roles(roles ...string) *Builder {
	b.graph.Roles = append(b.graph.Roles, roles...)
	return b
}

// Add creates a new node in the graph.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node:    domain.Node{ID: id},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Build compiles and validates the graph.
func (b *Builder) Build() (*domain.Graph, error) {
	g := b.graph
	g.Nodes = make([]domain.Node, 0, len(b.order))
	for _, id := range b.order {
		g.Nodes = append(g.Nodes, b.nodes[id].node)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("build graph %s: %w", g.ID, err)
	}
	return &g, nil
}
