package middleware

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oralsim/tribunal/internal/logging"
	"github.com/oralsim/tribunal/pkg/adapters/memory"
	"github.com/oralsim/tribunal/pkg/domain"
	"github.com/oralsim/tribunal/pkg/ports/tests"
)

// The wrapped store must still satisfy the full contract: middleware adds
// behavior, never changes semantics.
func TestChainedStoreContract(t *testing.T) {
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_store_ops_total"}, []string{"op", "outcome"})
	store := Chain(memory.NewStore(),
		NewLoggingMiddleware(logging.NewNop()),
		NewInstrumentationMiddleware(ops),
	)
	tests.RunSessionStoreContract(t, store)
}

func TestInstrumentationOutcomes(t *testing.T) {
	ctx := context.Background()
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_store_ops_total"}, []string{"op", "outcome"})
	store := NewInstrumentationMiddleware(ops)(memory.NewStore())

	session := domain.NewSession("s1", "g1")
	session.CurrentNodeID = "n1"
	session.Status = domain.StatusStarted
	require.NoError(t, store.CreateSession(ctx, session))

	// Stale expectation counts as a conflict, not an error.
	err := store.CompareAndAdvance(ctx, "s1", "other-node", domain.StateChange{NodeID: "n2"})
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = store.GetState(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	assert.Equal(t, float64(1), testutil.ToFloat64(ops.WithLabelValues("create_session", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ops.WithLabelValues("compare_and_advance", "conflict")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ops.WithLabelValues("get_state", "error")))
}
