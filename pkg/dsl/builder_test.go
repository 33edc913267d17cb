package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oralsim/tribunal/pkg/domain"
)

func TestBuilderBuildsValidGraph(t *testing.T) {
	b := New("cross-examination").
		Title("Cross examination drill").
		Roles("judge", "prosecutor", "defense")

	b.Add("opening").Start().Text("The witness is sworn in.").Go("question")
	b.Add("question").Decision("prosecutor").Text("Choose your question.").
		Option("leading", "Ask a leading question", "objection").Score(1).
		Node().
		Option("open", "Ask an open question", "answer").Score(5)
	b.Add("objection").Narrative().Text("Defense objects.").Go("answer")
	b.Add("answer").Terminal().Text("The witness answers.")

	g, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, "cross-examination", g.ID)
	require.Len(t, g.Nodes, 4)
	assert.Equal(t, "opening", g.Nodes[0].ID)
	assert.True(t, g.Nodes[0].Start)

	question, ok := g.NodeByID("question")
	require.True(t, ok)
	assert.Equal(t, "prosecutor", question.TurnRole())
	require.Len(t, question.Options, 2)
	assert.Equal(t, 5, question.Options[1].Score)
}

func TestBuilderGoProducesDefaultEdge(t *testing.T) {
	b := New("g")
	b.Add("a").Start().Go("b")
	b.Add("b").Terminal()

	g, err := b.Build()
	require.NoError(t, err)

	a, _ := g.NodeByID("a")
	require.Len(t, a.Options, 1)
	assert.True(t, a.Options[0].Default)
	assert.Equal(t, "b", a.Options[0].Target)
	assert.Equal(t, a.Options[0], *a.DefaultOption(domain.TieBreakFirstByOrder))
}

func TestBuilderConditions(t *testing.T) {
	b := New("g")
	b.Add("a").Start().Go("d")
	b.Add("d").Decision("defense").
		Option("x", "Registered only", "end").RequiresRegisteredUser().
		Node().
		Option("y", "Anyone", "end")
	b.Add("end").Terminal()

	g, err := b.Build()
	require.NoError(t, err)

	d, _ := g.NodeByID("d")
	guest := domain.RoleAssignment{Role: "defense", UserID: "u1", Guest: true}
	assert.False(t, d.Options[0].Eligible(guest))
	assert.True(t, d.Options[1].Eligible(guest))
}

func TestBuilderRejectsInvalidGraph(t *testing.T) {
	b := New("broken")
	b.Add("a").Start().Go("missing")

	_, err := b.Build()
	require.Error(t, err)
}
