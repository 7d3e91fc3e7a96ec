package payment_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
	"github.com/alanyoungcy/escrowmarket/internal/payment"
	"github.com/alanyoungcy/escrowmarket/internal/store/memory"
)

var (
	custody = common.HexToAddress("0xc500000000000000000000000000000000000001")
	alice   = common.HexToAddress("0xa100000000000000000000000000000000000001")
	token   = common.HexToAddress("0x7500000000000000000000000000000000000020")
)

func TestCustodialPullPush(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedgerStore(memory.NewDB())
	gw := payment.NewCustodial(ledger, custody)

	require.NoError(t, gw.Deposit(ctx, domain.NativeMedium, alice, big.NewInt(50)))

	err := gw.Pull(ctx, domain.NativeMedium, alice, big.NewInt(60))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	require.NoError(t, gw.Pull(ctx, domain.NativeMedium, alice, big.NewInt(30)))
	avail, err := gw.Available(ctx, domain.NativeMedium, alice)
	require.NoError(t, err)
	require.Equal(t, int64(20), avail.Int64())

	held, err := gw.Available(ctx, domain.NativeMedium, custody)
	require.NoError(t, err)
	require.Equal(t, int64(30), held.Int64())

	require.NoError(t, gw.Push(ctx, domain.NativeMedium, alice, big.NewInt(30)))
	avail, err = gw.Available(ctx, domain.NativeMedium, alice)
	require.NoError(t, err)
	require.Equal(t, int64(50), avail.Int64())

	require.Error(t, gw.Deposit(ctx, domain.NativeMedium, alice, big.NewInt(0)))
}

// countingGateway records which media reached it.
type countingGateway struct {
	domain.PaymentGateway
	pulls []common.Address
}

func (g *countingGateway) Pull(_ context.Context, medium, _ common.Address, _ *big.Int) error {
	g.pulls = append(g.pulls, medium)
	return nil
}

func TestRouter(t *testing.T) {
	testCases := []struct {
		name         string
		withToken    bool
		medium       common.Address
		expectNative int
		expectToken  int
	}{
		{name: "native medium goes native", withToken: true, medium: domain.NativeMedium, expectNative: 1},
		{name: "token medium goes to token gateway", withToken: true, medium: token, expectToken: 1},
		{name: "token medium falls back without token gateway", medium: token, expectNative: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			native := &countingGateway{}
			tok := &countingGateway{}
			var r *payment.Router
			if tc.withToken {
				r = payment.NewRouter(native, tok)
			} else {
				r = payment.NewRouter(native, nil)
			}

			require.NoError(t, r.Pull(context.Background(), tc.medium, alice, big.NewInt(1)))
			require.Len(t, native.pulls, tc.expectNative)
			require.Len(t, tok.pulls, tc.expectToken)
		})
	}
}

func TestRouterDepositsOnlyNative(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedgerStore(memory.NewDB())
	r := payment.NewRouter(payment.NewCustodial(ledger, custody), &countingGateway{})

	require.NoError(t, r.Deposit(ctx, domain.NativeMedium, alice, big.NewInt(70)))
	avail, err := r.Available(ctx, domain.NativeMedium, alice)
	require.NoError(t, err)
	require.Equal(t, int64(70), avail.Int64())

	err = r.Deposit(ctx, token, alice, big.NewInt(70))
	require.ErrorIs(t, err, domain.ErrMediumNotAccepted)

	err = payment.NewRouter(&countingGateway{}, nil).Deposit(ctx, domain.NativeMedium, alice, big.NewInt(1))
	require.ErrorIs(t, err, domain.ErrMediumNotAccepted)
}
