package market_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
	"github.com/alanyoungcy/escrowmarket/internal/market"
	"github.com/alanyoungcy/escrowmarket/internal/payment"
	"github.com/alanyoungcy/escrowmarket/internal/store/memory"
)

// refusingTokens stands in for the ERC-20 gateway; any call reaching it fails.
type refusingTokens struct{}

func (refusingTokens) Pull(context.Context, common.Address, common.Address, *big.Int) error {
	return errTransferRejected
}

func (refusingTokens) Push(context.Context, common.Address, common.Address, *big.Int) error {
	return errTransferRejected
}

func (refusingTokens) Available(context.Context, common.Address, common.Address) (*big.Int, error) {
	return new(big.Int), nil
}

// newBareEngine builds an engine over db with the given collaborators and
// no publisher or lock manager.
func newBareEngine(t *testing.T, db *memory.DB, ledger domain.LedgerStore, assets domain.AssetGateway, payments domain.PaymentGateway) *market.Engine {
	t.Helper()
	engine, err := market.NewEngine(market.Config{
		Operator: operator,
		Admins:   []common.Address{admin},
		Bounds: domain.Bounds{
			MinBiddingDuration: time.Hour,
			MaxBiddingDuration: 30 * 24 * time.Hour,
			StaleAfter:         staleAfter,
		},
		DefaultBiddingDuration: biddingDuration,
	}, market.Deps{
		Orders:   memory.NewOrderStore(db),
		Bids:     memory.NewBidStore(db),
		Ledger:   ledger,
		Settings: memory.NewSettingsStore(db),
		Assets:   assets,
		Payments: payments,
	})
	require.NoError(t, err)
	require.NoError(t, engine.Init(context.Background()))
	return engine
}

func TestNativePurchaseWithTokenGateway(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	ledger := memory.NewLedgerStore(db)
	router := payment.NewRouter(payment.NewCustodial(ledger, custody), refusingTokens{})

	assets := newFakeAssets()
	assets.mint(nft, 1, seller)
	assets.approveAll(nft, seller, operator, true)

	engine := newBareEngine(t, db, ledger, assets, router)

	o, err := engine.CreateFixedPrice(ctx, domain.OrderParams{
		Seller:        seller,
		AssetContract: nft,
		AssetID:       amt(1),
		AssetKind:     domain.AssetKindSingleOwner,
		PaymentMedium: native,
		BasePrice:     amt(100),
	})
	require.NoError(t, err)

	_, err = engine.BuyOrder(ctx, o.ID, alice, amt(100))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	require.NoError(t, router.Deposit(ctx, native, alice, amt(100)))
	sold, err := engine.BuyOrder(ctx, o.ID, alice, amt(100))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeSold, sold.Outcome)
	require.Equal(t, alice, assets.owner(nft, 1))

	proceeds, err := ledger.Balance(ctx, domain.BookWallet, seller, native)
	require.NoError(t, err)
	require.Equal(t, int64(100), proceeds.Int64())
	left, err := ledger.Balance(ctx, domain.BookWallet, custody, native)
	require.NoError(t, err)
	require.Zero(t, left.Sign())
}

// stallingAssets blocks ownership reads of one asset id until release is
// closed.
type stallingAssets struct {
	*fakeAssets
	stallID int64
	entered chan struct{}
	release chan struct{}
}

func (a *stallingAssets) OwnerOf(ctx context.Context, contract common.Address, id *big.Int) (common.Address, error) {
	if id.Int64() == a.stallID {
		close(a.entered)
		<-a.release
	}
	return a.fakeAssets.OwnerOf(ctx, contract, id)
}

func TestListingDoesNotWaitOnAnotherHoldingCheck(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	ledger := memory.NewLedgerStore(db)
	assets := &stallingAssets{
		fakeAssets: newFakeAssets(),
		stallID:    1,
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	assets.mint(nft, 1, seller)
	assets.mint(nft, 2, seller)
	engine := newBareEngine(t, db, ledger, assets, payment.NewCustodial(ledger, custody))

	params := func(id int64) domain.OrderParams {
		return domain.OrderParams{
			Seller:        seller,
			AssetContract: nft,
			AssetID:       amt(id),
			AssetKind:     domain.AssetKindSingleOwner,
			PaymentMedium: native,
			BasePrice:     amt(10),
		}
	}

	slow := make(chan error, 1)
	go func() {
		_, err := engine.CreateFixedPrice(ctx, params(1))
		slow <- err
	}()
	<-assets.entered

	fast := make(chan error, 1)
	go func() {
		_, err := engine.CreateFixedPrice(ctx, params(2))
		fast <- err
	}()
	select {
	case err := <-fast:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listing blocked behind another listing's holding check")
	}

	close(assets.release)
	require.NoError(t, <-slow)

	count, err := engine.CountOpenOrders(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}
