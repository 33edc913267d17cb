package dsl

import (
	"fmt"

	"github.com/oralsim/tribunal/pkg/domain"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.Node
	builder *Builder
}

// Start marks this node as the graph's entry point and makes it a
// narrative node.
func (n *NodeBuilder) Start() *NodeBuilder {
	n.node.Start = true
	if n.node.Type == "" {
		n.node.Type = domain.NodeTypeStart
	}
	return n
}

// Text sets the content shown to participants when this node is active.
func (n *NodeBuilder) Text(content string) *NodeBuilder {
	n.node.Text = content
	return n
}

// Decision marks the node as a decision point owned by the given role.
func (n *NodeBuilder) Decision(role string) *NodeBuilder {
	n.node.Type = domain.NodeTypeDecision
	n.node.Role = role
	return n
}

// Narrative marks the node as a development beat with no owning role.
func (n *NodeBuilder) Narrative() *NodeBuilder {
	n.node.Type = domain.NodeTypeDevelopment
	n.node.Role = ""
	return n
}

// Terminal marks the node as an end of the simulation.
func (n *NodeBuilder) Terminal() *NodeBuilder {
	n.node.Type = domain.NodeTypeTerminal
	n.node.Terminal = true
	n.node.Options = nil
	return n
}

// Go adds a default narrative edge to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.node.Options = append(n.node.Options, domain.Option{
		ID:      fmt.Sprintf("%s-to-%s", n.node.ID, target),
		Target:  target,
		Default: true,
	})
	return n
}

// Option adds a choosable edge. Use OptionBuilder methods to refine it.
func (n *NodeBuilder) Option(id, label, target string) *OptionBuilder {
	n.node.Options = append(n.node.Options, domain.Option{
		ID:     id,
		Label:  label,
		Target: target,
	})
	return &OptionBuilder{node: n, index: len(n.node.Options) - 1}
}

// Build returns the underlying domain.Node.
// This is primarily used by the Builder, but exposed for advanced usage.
func (n *NodeBuilder) Build() domain.Node {
	return n.node
}

// OptionBuilder refines the last-added option of a node.
type OptionBuilder struct {
	node  *NodeBuilder
	index int
}

func (o *OptionBuilder) opt() *domain.Option {
	return &o.node.node.Options[o.index]
}

// Score sets the weight awarded when the option is chosen.
func (o *OptionBuilder) Score(score int) *OptionBuilder {
	o.opt().Score = score
	return o
}

// Default marks the option as the narrative-advance path.
func (o *OptionBuilder) Default() *OptionBuilder {
	o.opt().Default = true
	return o
}

// Priority orders default options under the explicit-priority policy.
func (o *OptionBuilder) Priority(priority int) *OptionBuilder {
	o.opt().Priority = priority
	return o
}

// RequiresRole gates the option on the chooser holding the given role.
func (o *OptionBuilder) RequiresRole(role string) *OptionBuilder {
	o.opt().Conditions = append(o.opt().Conditions, domain.Condition{
		Kind: domain.ConditionRequiresRole,
		Role: role,
	})
	return o
}

// RequiresRegisteredUser hides the option from guest participants.
func (o *OptionBuilder) RequiresRegisteredUser() *OptionBuilder {
	o.opt().Conditions = append(o.opt().Conditions, domain.Condition{
		Kind: domain.ConditionRequiresRegistered,
	})
	return o
}

// Node returns to the node builder for chaining further edges.
func (o *OptionBuilder) Node() *NodeBuilder {
	return o.node
}
