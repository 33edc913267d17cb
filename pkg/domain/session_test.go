package domain_test

import (
	"testing"
	"time"

	"github.com/oralsim/tribunal/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionApply(t *testing.T) {
	s := domain.NewSession("s1", "arraignment")
	require.Equal(t, domain.StatusScheduled, s.Status)
	require.Empty(t, s.CurrentNodeID)

	now := time.Now().UTC()
	s.Apply(domain.StateChange{
		NodeID:    "opening",
		Status:    domain.StatusStarted,
		StartedAt: &now,
	})
	assert.Equal(t, "opening", s.CurrentNodeID)
	assert.Equal(t, []string{"opening"}, s.History)
	require.NotNil(t, s.StartedAt)

	s.Apply(domain.StateChange{
		NodeID:     "plea",
		Status:     domain.StatusInProgress,
		ScoreDelta: 10,
	})
	assert.Equal(t, 10, s.Score)
	assert.Equal(t, []string{"opening", "plea"}, s.History)

	// Finishing through a terminal branch leaves no current node.
	end := time.Now().UTC()
	s.Apply(domain.StateChange{
		Status: domain.StatusFinished,
		EndedAt: &end,
	})
	assert.Empty(t, s.CurrentNodeID)
	assert.Len(t, s.History, 2, "empty node is not a visit")
}

func TestSessionClone_Isolated(t *testing.T) {
	s := domain.NewSession("s1", "g1")
	s.Variables["phase"] = "opening"
	s.History = []string{"opening"}

	c := s.Clone()
	c.Variables["phase"] = "plea"
	c.History = append(c.History, "plea")

	assert.Equal(t, "opening", s.Variables["phase"])
	assert.Len(t, s.History, 1)
}

func TestStatusActive(t *testing.T) {
	assert.False(t, domain.StatusScheduled.Active())
	assert.True(t, domain.StatusStarted.Active())
	assert.True(t, domain.StatusInProgress.Active())
	assert.False(t, domain.StatusPaused.Active())
	assert.False(t, domain.StatusFinished.Active())
}
