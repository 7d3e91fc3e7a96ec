package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/escrowmarket/internal/events"
)

func TestLocalBusPubSub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := events.NewLocalBus()

	exact, err := bus.Subscribe(ctx, "events")
	require.NoError(t, err)
	glob, err := bus.Subscribe(ctx, "ev*")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "events", []byte("a")))
	require.NoError(t, bus.Publish(ctx, "other", []byte("b")))

	require.Equal(t, []byte("a"), <-exact)
	require.Equal(t, []byte("a"), <-glob)
	require.Empty(t, exact)

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-exact
		return !open
	}, time.Second, 10*time.Millisecond)
}

func TestLocalBusStreams(t *testing.T) {
	ctx := context.Background()
	bus := events.NewLocalBus()
	for _, p := range []string{"1", "2", "3"} {
		require.NoError(t, bus.StreamAppend(ctx, "events", []byte(p)))
	}

	all, err := bus.StreamRead(ctx, "events", "0", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	rest, err := bus.StreamRead(ctx, "events", all[0].ID, 1)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, []byte("2"), rest[0].Payload)
}
