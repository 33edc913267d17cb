package domain_test

import (
	"testing"

	"github.com/oralsim/tribunal/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validGraph() *domain.Graph {
	return &domain.Graph{
		ID:    "arraignment",
		Roles: []string{"judge", "prosecutor"},
		Nodes: []domain.Node{
			{
				ID:   "opening",
				Type: domain.NodeTypeStart,
				Options: []domain.Option{
					{ID: "continue", Target: "plea"},
				},
			},
			{
				ID:   "plea",
				Type: domain.NodeTypeDecision,
				Role: "prosecutor",
				Options: []domain.Option{
					{ID: "guilty", Target: "sentence", Score: 10},
					{ID: "not-guilty", Target: "trial", Score: 5},
				},
			},
			{ID: "sentence", Type: domain.NodeTypeTerminal},
			{ID: "trial", Type: domain.NodeTypeTerminal},
		},
	}
}

func TestGraphValidate(t *testing.T) {
	g := validGraph()
	require.NoError(t, g.Validate())

	assert.Equal(t, "opening", g.StartNode().ID)
	assert.Equal(t, 4, g.ReachableCount())

	plea, ok := g.NodeByID("plea")
	require.True(t, ok)
	assert.Equal(t, "prosecutor", plea.TurnRole())

	opening, ok := g.NodeByID("opening")
	require.True(t, ok)
	assert.Empty(t, opening.TurnRole(), "start nodes have no turn")
}

func TestGraphValidate_NoStart(t *testing.T) {
	g := validGraph()
	g.Nodes[0].Type = domain.NodeTypeDevelopment

	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no start node")
}

func TestGraphValidate_MultipleStarts(t *testing.T) {
	g := validGraph()
	g.Nodes[2] = domain.Node{ID: "sentence", Type: domain.NodeTypeStart}

	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple start nodes")
}

func TestGraphValidate_StartWithIncoming(t *testing.T) {
	g := validGraph()
	g.Nodes[1].Options = append(g.Nodes[1].Options, domain.Option{ID: "loop", Target: "opening"})

	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incoming options")
}

func TestGraphValidate_BrokenLink(t *testing.T) {
	g := validGraph()
	g.Nodes[1].Options[0].Target = "missing"

	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing node")
}

func TestGraphValidate_NoTerminal(t *testing.T) {
	g := &domain.Graph{
		ID: "loop",
		Nodes: []domain.Node{
			{ID: "a", Type: domain.NodeTypeStart, Options: []domain.Option{{ID: "go", Target: "b"}}},
			{ID: "b", Type: domain.NodeTypeDevelopment, Role: "judge"},
		},
	}
	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no terminal node")
}

func TestGraphValidate_UnknownCondition(t *testing.T) {
	g := validGraph()
	g.Nodes[1].Options[0].Conditions = []domain.Condition{{Kind: "requires_moon_phase"}}

	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown condition kind")
}

func TestGraphReachableCount_IgnoresOrphans(t *testing.T) {
	g := validGraph()
	g.Nodes = append(g.Nodes, domain.Node{ID: "unused", Type: domain.NodeTypeDevelopment, Role: "judge"})

	require.NoError(t, g.Validate())
	assert.Equal(t, 4, g.ReachableCount())
}

func TestDefaultOption(t *testing.T) {
	single := &domain.Node{
		ID:      "n",
		Options: []domain.Option{{ID: "only", Target: "x"}},
	}
	require.NotNil(t, single.DefaultOption(domain.TieBreakFirstByOrder))
	assert.Equal(t, "only", single.DefaultOption(domain.TieBreakFirstByOrder).ID)

	multi := &domain.Node{
		ID: "n",
		Options: []domain.Option{
			{ID: "a", Default: true, Priority: 1},
			{ID: "b", Default: true, Priority: 5},
			{ID: "c"},
		},
	}
	assert.Equal(t, "a", multi.DefaultOption(domain.TieBreakFirstByOrder).ID)
	assert.Equal(t, "b", multi.DefaultOption(domain.TieBreakPriority).ID)

	ambiguous := &domain.Node{
		ID: "n",
		Options: []domain.Option{
			{ID: "a"},
			{ID: "b"},
		},
	}
	assert.Nil(t, ambiguous.DefaultOption(domain.TieBreakFirstByOrder))
}
