package graph_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oralsim/tribunal/pkg/domain"
	"github.com/oralsim/tribunal/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGraph = `
id: arraignment
title: Arraignment hearing
roles: [judge, prosecutor, defense]
nodes:
  - id: opening
    type: start
    text: The bailiff calls the court to order.
    options:
      - id: continue
        target: plea
  - id: plea
    type: decision
    role: prosecutor
    text: How does the prosecution proceed?
    options:
      - id: press
        label: Press charges
        target: sentence
        score: 10
        conditions:
          - requires_registered_user
          - kind: requires_role
            role: prosecutor
      - id: drop
        label: Drop charges
        target: dismiss
        score: 2
  - id: sentence
    type: terminal
    text: The court proceeds to sentencing.
  - id: dismiss
    type: terminal
    text: Case dismissed.
`

func TestParse(t *testing.T) {
	g, err := graph.Parse([]byte(sampleGraph))
	require.NoError(t, err)

	assert.Equal(t, "arraignment", g.ID)
	assert.Equal(t, []string{"judge", "prosecutor", "defense"}, g.Roles)
	assert.Equal(t, "opening", g.StartNode().ID)
	assert.Equal(t, 4, g.ReachableCount())

	plea, ok := g.NodeByID("plea")
	require.True(t, ok)
	press, ok := plea.OptionByID("press")
	require.True(t, ok)
	require.Len(t, press.Conditions, 2)
	assert.Equal(t, domain.ConditionRequiresRegistered, press.Conditions[0].Kind)
	assert.Equal(t, domain.ConditionRequiresRole, press.Conditions[1].Kind)
	assert.Equal(t, "prosecutor", press.Conditions[1].Role)
}

func TestParse_InvalidGraph(t *testing.T) {
	_, err := graph.Parse([]byte("id: broken\nnodes:\n  - id: only\n    type: development\n"))
	require.Error(t, err)

	_, err = graph.Parse([]byte("not: [valid"))
	require.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "arraignment.yaml"), []byte(sampleGraph), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	registry, err := graph.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"arraignment"}, registry.List())

	g, err := registry.Get("arraignment")
	require.NoError(t, err)
	assert.Equal(t, "Arraignment hearing", g.Title)

	_, err = registry.Get("ghost")
	assert.ErrorIs(t, err, domain.ErrGraphNotFound)
}

func TestLoadDir_Empty(t *testing.T) {
	_, err := graph.LoadDir(t.TempDir())
	require.Error(t, err)
}

func TestRegistry_DuplicateID(t *testing.T) {
	registry := graph.NewRegistry()

	g1, err := graph.Parse([]byte(sampleGraph))
	require.NoError(t, err)
	require.NoError(t, registry.Register(g1))

	g2, err := graph.Parse([]byte(sampleGraph))
	require.NoError(t, err)
	assert.Error(t, registry.Register(g2))
}
