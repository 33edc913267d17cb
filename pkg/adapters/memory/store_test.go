package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/oralsim/tribunal/pkg/adapters/memory"
	"github.com/oralsim/tribunal/pkg/domain"
	"github.com/oralsim/tribunal/pkg/ports/tests"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	tests.RunSessionStoreContract(t, memory.NewStore())
}

// Many goroutines race the same CAS; only one may win.
func TestMemoryStore_ConcurrentAdvance(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.CreateSession(ctx, domain.NewSession("race", "g1")))
	require.NoError(t, store.CompareAndAdvance(ctx, "race", "", domain.StateChange{
		NodeID: "opening",
		Status: domain.StatusStarted,
	}))

	const racers = 16
	var wg sync.WaitGroup
	results := make(chan error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.CompareAndAdvance(ctx, "race", "opening", domain.StateChange{
				NodeID: "plea",
				Status: domain.StatusInProgress,
			})
		}()
	}
	wg.Wait()
	close(results)

	wins, conflicts := 0, 0
	for err := range results {
		switch err {
		case nil:
			wins++
		case domain.ErrConflict:
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, racers-1, conflicts)

	state, err := store.GetState(ctx, "race")
	require.NoError(t, err)
	require.Equal(t, []string{"opening", "plea"}, state.History, "exactly one advance recorded")
}
