package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/oralsim/tribunal/pkg/adapters/redis"
	"github.com/oralsim/tribunal/pkg/domain"
	"github.com/oralsim/tribunal/pkg/ports/tests"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *redis.Store {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return redis.NewFromClient(client)
}

func TestRedisStore_Contract(t *testing.T) {
	tests.RunSessionStoreContract(t, newTestStore(t))
}

// A write sneaking in between the read and the transactional SET must abort
// the advance.
func TestRedisStore_AdvanceConflictOnStaleRead(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateSession(ctx, domain.NewSession("interleave", "g1")))
	require.NoError(t, store.CompareAndAdvance(ctx, "interleave", "", domain.StateChange{
		NodeID: "opening",
		Status: domain.StatusStarted,
	}))

	// First writer wins.
	require.NoError(t, store.CompareAndAdvance(ctx, "interleave", "opening", domain.StateChange{
		NodeID: "plea",
		Status: domain.StatusInProgress,
	}))

	// Second writer raced on the same observed node and must lose.
	err := store.CompareAndAdvance(ctx, "interleave", "opening", domain.StateChange{
		NodeID: "sentence",
		Status: domain.StatusInProgress,
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	state, err := store.GetState(ctx, "interleave")
	require.NoError(t, err)
	require.Equal(t, "plea", state.CurrentNodeID)
	require.Equal(t, []string{"opening", "plea"}, state.History)
}
