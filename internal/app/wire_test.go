package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/escrowmarket/internal/config"
	"github.com/alanyoungcy/escrowmarket/internal/domain"
	"github.com/alanyoungcy/escrowmarket/internal/store/memory"
)

func TestSeedMediaKeepsAdminChanges(t *testing.T) {
	ctx := context.Background()
	settings := memory.NewSettingsStore(memory.NewDB())
	usdc := common.HexToAddress("0x7500000000000000000000000000000000000020")
	seed := []config.MediumConfig{{Address: usdc.Hex(), Symbol: "usdc", Decimals: 6}}

	require.NoError(t, seedMedia(ctx, settings, seed))
	m, err := settings.GetMedium(ctx, usdc)
	require.NoError(t, err)
	require.Equal(t, domain.Medium{Address: usdc, Symbol: "USDC", Decimals: 6, Enabled: true}, m)

	m.Enabled = false
	require.NoError(t, settings.UpsertMedium(ctx, m))
	require.NoError(t, seedMedia(ctx, settings, seed))

	m, err = settings.GetMedium(ctx, usdc)
	require.NoError(t, err)
	require.False(t, m.Enabled, "a restart must not re-enable a medium an admin disabled")
}

func TestRunEvery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		runEvery(ctx, time.Millisecond, func() {
			if calls.Add(1) == 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runEvery did not stop after cancel")
	}
	require.GreaterOrEqual(t, calls.Load(), int32(3))
}
