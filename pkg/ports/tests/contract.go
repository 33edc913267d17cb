// Package tests provides a reusable contract suite for SessionStore adapters.
package tests

import (
	"context"
	"testing"
	"time"

	"github.com/oralsim/tribunal/pkg/domain"
	"github.com/oralsim/tribunal/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract verifies that an adapter complies with
// ports.SessionStore, including the optimistic-concurrency semantics of
// CompareAndAdvance. Every adapter runs this suite.
func RunSessionStoreContract(t *testing.T, store ports.SessionStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetState_NotFound", func(t *testing.T) {
		_, err := store.GetState(ctx, "never-created")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Create_And_Load", func(t *testing.T) {
		s := domain.NewSession("contract-create", "g1")
		require.NoError(t, store.CreateSession(ctx, s))

		got, err := store.GetState(ctx, "contract-create")
		require.NoError(t, err)
		assert.Equal(t, "g1", got.GraphID)
		assert.Equal(t, domain.StatusScheduled, got.Status)
		assert.Empty(t, got.CurrentNodeID)

		err = store.CreateSession(ctx, domain.NewSession("contract-create", "g1"))
		assert.ErrorIs(t, err, domain.ErrSessionExists)
	})

	t.Run("GetState_SnapshotIsolation", func(t *testing.T) {
		s := domain.NewSession("contract-snapshot", "g1")
		s.Variables["phase"] = "opening"
		require.NoError(t, store.CreateSession(ctx, s))

		first, err := store.GetState(ctx, "contract-snapshot")
		require.NoError(t, err)
		first.Variables["phase"] = "tampered"
		first.History = append(first.History, "tampered")

		second, err := store.GetState(ctx, "contract-snapshot")
		require.NoError(t, err)
		assert.Equal(t, "opening", second.Variables["phase"])
		assert.Empty(t, second.History)
	})

	t.Run("CompareAndAdvance", func(t *testing.T) {
		require.NoError(t, store.CreateSession(ctx, domain.NewSession("contract-cas", "g1")))

		now := time.Now().UTC()
		err := store.CompareAndAdvance(ctx, "contract-cas", "", domain.StateChange{
			NodeID:    "opening",
			Status:    domain.StatusStarted,
			StartedAt: &now,
		})
		require.NoError(t, err)

		got, err := store.GetState(ctx, "contract-cas")
		require.NoError(t, err)
		assert.Equal(t, "opening", got.CurrentNodeID)
		assert.Equal(t, domain.StatusStarted, got.Status)
		assert.Equal(t, []string{"opening"}, got.History)
		require.NotNil(t, got.StartedAt)

		// Stale expectation loses.
		err = store.CompareAndAdvance(ctx, "contract-cas", "", domain.StateChange{
			NodeID: "elsewhere",
			Status: domain.StatusInProgress,
		})
		assert.ErrorIs(t, err, domain.ErrConflict)

		got, err = store.GetState(ctx, "contract-cas")
		require.NoError(t, err)
		assert.Equal(t, "opening", got.CurrentNodeID, "conflicting write must not mutate state")

		// Matching expectation advances and accumulates score.
		err = store.CompareAndAdvance(ctx, "contract-cas", "opening", domain.StateChange{
			NodeID:     "plea",
			Status:     domain.StatusInProgress,
			ScoreDelta: 10,
			Variables:  map[string]any{"phase": "plea"},
		})
		require.NoError(t, err)

		got, err = store.GetState(ctx, "contract-cas")
		require.NoError(t, err)
		assert.Equal(t, "plea", got.CurrentNodeID)
		assert.Equal(t, 10, got.Score)
		assert.Equal(t, []string{"opening", "plea"}, got.History)
		assert.Equal(t, "plea", got.Variables["phase"])

		err = store.CompareAndAdvance(ctx, "contract-missing", "", domain.StateChange{NodeID: "x"})
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("CompareAndAdvance_TerminalBranch", func(t *testing.T) {
		require.NoError(t, store.CreateSession(ctx, domain.NewSession("contract-terminal", "g1")))
		require.NoError(t, store.CompareAndAdvance(ctx, "contract-terminal", "", domain.StateChange{
			NodeID: "opening",
			Status: domain.StatusStarted,
		}))

		end := time.Now().UTC()
		require.NoError(t, store.CompareAndAdvance(ctx, "contract-terminal", "opening", domain.StateChange{
			Status:  domain.StatusFinished,
			EndedAt: &end,
		}))

		got, err := store.GetState(ctx, "contract-terminal")
		require.NoError(t, err)
		assert.Empty(t, got.CurrentNodeID)
		assert.Equal(t, domain.StatusFinished, got.Status)
		require.NotNil(t, got.EndedAt)
		assert.Equal(t, []string{"opening"}, got.History, "finishing with no node is not a visit")
	})

	t.Run("CompareAndAdvance_FinishedStaysFinished", func(t *testing.T) {
		require.NoError(t, store.CreateSession(ctx, domain.NewSession("contract-finished", "g1")))
		require.NoError(t, store.CompareAndAdvance(ctx, "contract-finished", "", domain.StateChange{
			NodeID: "opening",
			Status: domain.StatusStarted,
		}))

		// Terminal branch: the node goes back to empty, like a scheduled
		// session's.
		end := time.Now().UTC()
		require.NoError(t, store.CompareAndAdvance(ctx, "contract-finished", "opening", domain.StateChange{
			Status:  domain.StatusFinished,
			EndedAt: &end,
		}))

		// A start that read the session before it finished must not win the
		// empty-node match and resurrect it.
		start := time.Now().UTC()
		err := store.CompareAndAdvance(ctx, "contract-finished", "", domain.StateChange{
			NodeID:    "opening",
			Status:    domain.StatusStarted,
			StartedAt: &start,
		})
		assert.ErrorIs(t, err, domain.ErrConflict)

		got, err := store.GetState(ctx, "contract-finished")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFinished, got.Status)
		assert.Empty(t, got.CurrentNodeID)
	})

	t.Run("Decisions_AppendOnly", func(t *testing.T) {
		require.NoError(t, store.CreateSession(ctx, domain.NewSession("contract-decisions", "g1")))

		records, err := store.ListDecisions(ctx, "contract-decisions")
		require.NoError(t, err)
		assert.Empty(t, records)

		first := &domain.DecisionRecord{
			ID:        "d1",
			SessionID: "contract-decisions",
			Kind:      domain.DecisionKindChoice,
			NodeID:    "plea",
			OptionID:  "guilty",
			UserID:    "u2",
			Role:      "prosecutor",
			LatencyMs: 4200,
			Score:     10,
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, store.AppendDecision(ctx, first))
		require.NoError(t, store.AppendDecision(ctx, &domain.DecisionRecord{
			ID:        "d2",
			SessionID: "contract-decisions",
			Kind:      domain.DecisionKindAdvance,
			NodeID:    "opening",
			UserID:    "u1",
			CreatedAt: time.Now().UTC(),
		}))

		records, err = store.ListDecisions(ctx, "contract-decisions")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "d1", records[0].ID)
		assert.Equal(t, "d2", records[1].ID)
		assert.Equal(t, int64(4200), records[0].LatencyMs)
		assert.Equal(t, 10, records[0].Score)
	})

	t.Run("RoleAssignments", func(t *testing.T) {
		require.NoError(t, store.CreateSession(ctx, domain.NewSession("contract-roles", "g1")))

		require.NoError(t, store.AssignRole(ctx, domain.RoleAssignment{
			SessionID: "contract-roles", Role: "judge", UserID: "u1",
		}))
		require.NoError(t, store.AssignRole(ctx, domain.RoleAssignment{
			SessionID: "contract-roles", Role: "witness", UserID: "g1", Guest: true,
		}))

		err := store.AssignRole(ctx, domain.RoleAssignment{
			SessionID: "contract-roles", Role: "judge", UserID: "u9",
		})
		assert.ErrorIs(t, err, domain.ErrRoleTaken)

		err = store.AssignRole(ctx, domain.RoleAssignment{
			SessionID: "contract-roles", Role: "prosecutor", UserID: "u1",
		})
		assert.ErrorIs(t, err, domain.ErrUserTaken)

		assignments, err := store.GetRoleAssignments(ctx, "contract-roles")
		require.NoError(t, err)
		require.Len(t, assignments, 2)
		assert.Equal(t, "u1", assignments["judge"].UserID)
		assert.True(t, assignments["witness"].Guest)
	})

	t.Run("ArchiveSession", func(t *testing.T) {
		require.NoError(t, store.CreateSession(ctx, domain.NewSession("contract-archive", "g1")))
		require.NoError(t, store.AppendDecision(ctx, &domain.DecisionRecord{
			ID: "d-archive", SessionID: "contract-archive",
			Kind: domain.DecisionKindChoice, NodeID: "n", UserID: "u1",
			CreatedAt: time.Now().UTC(),
		}))

		require.NoError(t, store.ArchiveSession(ctx, "contract-archive"))

		got, err := store.GetState(ctx, "contract-archive")
		require.NoError(t, err)
		assert.True(t, got.Archived)

		// Archival never touches the audit trail.
		records, err := store.ListDecisions(ctx, "contract-archive")
		require.NoError(t, err)
		assert.Len(t, records, 1)

		assert.ErrorIs(t, store.ArchiveSession(ctx, "contract-archive-missing"), domain.ErrSessionNotFound)
	})
}
