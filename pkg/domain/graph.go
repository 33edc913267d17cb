package domain

import "fmt"

// NodeType constants classify how a node behaves inside a running session.
const (
	// NodeTypeStart is the single entry point of a graph (narrative, no turn).
	NodeTypeStart = "start"
	// NodeTypeDevelopment displays content owned by one role and continues.
	NodeTypeDevelopment = "development"
	// NodeTypeDecision halts the session until the owning role picks an option.
	NodeTypeDecision = "decision"
	// NodeTypeTerminal ends the session when reached.
	NodeTypeTerminal = "terminal"
	// NodeTypeGroup addresses every participant at once (narrative, no turn).
	NodeTypeGroup = "group"
)

// Node represents one displayed unit of content in the dialogue graph.
type Node struct {
	ID   string `json:"id" yaml:"id"`
	Type string `json:"type" yaml:"type"`

	// Text is the content shown to participants when this node is active.
	Text string `json:"text" yaml:"text"`

	// Role owns this node: it is that role's turn while the node is active.
	// Empty for narrative nodes (start, group).
	Role string `json:"role,omitempty" yaml:"role,omitempty"`

	// Start marks the unique entry node of the graph.
	Start bool `json:"start,omitempty" yaml:"start,omitempty"`

	// Terminal marks a sink node: reaching it finishes the session.
	Terminal bool `json:"terminal,omitempty" yaml:"terminal,omitempty"`

	// Options are the outgoing edges, in stored order. Stored order matters:
	// it is the tie-break for multiple default options under the
	// first-by-order policy.
	Options []Option `json:"options,omitempty" yaml:"options,omitempty"`
}

// TurnRole returns the role whose turn it is while this node is active,
// or "" when the node is narrative and no decision is required.
func (n *Node) TurnRole() string {
	if n.Type == NodeTypeStart || n.Type == NodeTypeGroup {
		return ""
	}
	return n.Role
}

// Option is a directed edge from one node to another, selectable by the
// turn-holder.
type Option struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`

	// Target is the destination node ID. Empty means a terminal branch:
	// choosing this option finishes the session with no further node.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	// Score is the weight awarded when this option is chosen.
	Score int `json:"score,omitempty" yaml:"score,omitempty"`

	// Default marks the option taken by a narrative advance when no explicit
	// choice is made.
	Default bool `json:"default,omitempty" yaml:"default,omitempty"`

	// Priority orders default options under the explicit-priority tie-break
	// policy. Higher wins.
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`

	// Conditions gate eligibility. All must hold for the acting user.
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Graph is an immutable directed dialogue graph. Call Validate before use;
// it builds the lookup indexes and checks the structural invariants.
type Graph struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Roles is the set of roles participants can be assigned to.
	Roles []string `json:"roles,omitempty" yaml:"roles,omitempty"`

	Nodes []Node `json:"nodes" yaml:"nodes"`

	byID      map[string]*Node
	startID   string
	reachable int
}

// Validate checks the graph invariants and prepares the internal indexes:
// exactly one start node, the start node has no incoming options, at least
// one terminal node, and every option target resolves. It also counts the
// nodes reachable from the start, used for progress reporting.
func (g *Graph) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("graph has no id")
	}
	if len(g.Nodes) == 0 {
		return fmt.Errorf("graph %s has no nodes", g.ID)
	}

	g.byID = make(map[string]*Node, len(g.Nodes))
	g.startID = ""
	terminals := 0
	incoming := make(map[string]int)

	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID == "" {
			return fmt.Errorf("graph %s: node %d has no id", g.ID, i)
		}
		if _, dup := g.byID[n.ID]; dup {
			return fmt.Errorf("graph %s: duplicate node id %q", g.ID, n.ID)
		}
		g.byID[n.ID] = n

		if n.Start || n.Type == NodeTypeStart {
			if g.startID != "" {
				return fmt.Errorf("graph %s: multiple start nodes (%q and %q)", g.ID, g.startID, n.ID)
			}
			g.startID = n.ID
		}
		if n.Terminal || n.Type == NodeTypeTerminal {
			terminals++
		}

		seen := make(map[string]bool, len(n.Options))
		for j := range n.Options {
			opt := &n.Options[j]
			if opt.ID == "" {
				return fmt.Errorf("graph %s: node %q option %d has no id", g.ID, n.ID, j)
			}
			if seen[opt.ID] {
				return fmt.Errorf("graph %s: node %q has duplicate option id %q", g.ID, n.ID, opt.ID)
			}
			seen[opt.ID] = true
			if opt.Target != "" {
				incoming[opt.Target]++
			}
			for _, c := range opt.Conditions {
				if err := c.Validate(); err != nil {
					return fmt.Errorf("graph %s: node %q option %q: %w", g.ID, n.ID, opt.ID, err)
				}
			}
		}
	}

	if g.startID == "" {
		return fmt.Errorf("graph %s has no start node", g.ID)
	}
	if terminals == 0 {
		return fmt.Errorf("graph %s has no terminal node", g.ID)
	}
	if incoming[g.startID] > 0 {
		return fmt.Errorf("graph %s: start node %q has incoming options", g.ID, g.startID)
	}

	// Broken links.
	for i := range g.Nodes {
		n := &g.Nodes[i]
		for _, opt := range n.Options {
			if opt.Target != "" {
				if _, ok := g.byID[opt.Target]; !ok {
					return fmt.Errorf("graph %s: node %q option %q targets missing node %q", g.ID, n.ID, opt.ID, opt.Target)
				}
			}
		}
	}

	g.reachable = g.countReachable()
	return nil
}

// countReachable walks the graph from the start node (BFS).
func (g *Graph) countReachable() int {
	visited := map[string]bool{g.startID: true}
	queue := []string{g.startID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := g.byID[id]
		for _, opt := range n.Options {
			if opt.Target != "" && !visited[opt.Target] {
				visited[opt.Target] = true
				queue = append(queue, opt.Target)
			}
		}
	}
	return len(visited)
}

// StartNode returns the unique entry node. Only valid after Validate.
func (g *Graph) StartNode() *Node {
	return g.byID[g.startID]
}

// NodeByID looks up a node. Only valid after Validate.
func (g *Graph) NodeByID(id string) (*Node, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// ReachableCount is the number of nodes reachable from the start node.
func (g *Graph) ReachableCount() int {
	return g.reachable
}

// IsTerminal reports whether the node finishes the session when reached.
func (n *Node) IsTerminal() bool {
	return n.Terminal || n.Type == NodeTypeTerminal
}

// OptionByID finds an outgoing option of this node.
func (n *Node) OptionByID(id string) (*Option, bool) {
	for i := range n.Options {
		if n.Options[i].ID == id {
			return &n.Options[i], true
		}
	}
	return nil, false
}

// TieBreakPolicy selects among multiple default options at the same node.
// The source behavior is ambiguous here, so the policy is configurable
// rather than hard-coded.
type TieBreakPolicy string

const (
	// TieBreakFirstByOrder picks the first default option in stored order.
	TieBreakFirstByOrder TieBreakPolicy = "first_by_order"
	// TieBreakPriority picks the default option with the highest Priority,
	// falling back to stored order on equal priority.
	TieBreakPriority TieBreakPolicy = "priority"
)

// DefaultOption resolves the option a narrative advance should take: the
// single option if there is exactly one, otherwise the default option chosen
// by the tie-break policy. Returns nil when the node offers no unambiguous
// path forward.
func (n *Node) DefaultOption(policy TieBreakPolicy) *Option {
	if len(n.Options) == 1 {
		return &n.Options[0]
	}

	var pick *Option
	for i := range n.Options {
		opt := &n.Options[i]
		if !opt.Default {
			continue
		}
		if pick == nil {
			pick = opt
			continue
		}
		if policy == TieBreakPriority && opt.Priority > pick.Priority {
			pick = opt
		}
	}
	return pick
}
