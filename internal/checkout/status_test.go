package checkout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	happyPath := []Status{
		StatusPending, StatusConfirmed, StatusProcessing,
		StatusReady, StatusOutForDelivery, StatusDelivered,
	}
	for i := 0; i < len(happyPath)-1; i++ {
		require.True(t, CanTransition(happyPath[i], happyPath[i+1]),
			"%s -> %s", happyPath[i], happyPath[i+1])
	}

	// No skipping ahead and no going back.
	require.False(t, CanTransition(StatusPending, StatusProcessing))
	require.False(t, CanTransition(StatusPending, StatusDelivered))
	require.False(t, CanTransition(StatusConfirmed, StatusPending))
	require.False(t, CanTransition(StatusDelivered, StatusOutForDelivery))

	// Every non-terminal status can cancel.
	for _, s := range happyPath[:len(happyPath)-1] {
		require.True(t, CanTransition(s, StatusCancelled), "%s -> cancelled", s)
	}
	require.False(t, CanTransition(StatusDelivered, StatusCancelled))
	require.False(t, CanTransition(StatusCancelled, StatusPending))
	require.False(t, CanTransition(StatusCancelled, StatusCancelled))
}

func TestStatus_Terminal(t *testing.T) {
	t.Parallel()

	require.True(t, StatusDelivered.Terminal())
	require.True(t, StatusCancelled.Terminal())
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusReady, StatusOutForDelivery} {
		require.False(t, s.Terminal(), "%s", s)
	}
}
