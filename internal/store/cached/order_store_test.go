package cached_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
	"github.com/alanyoungcy/escrowmarket/internal/store/cached"
	"github.com/alanyoungcy/escrowmarket/internal/store/memory"
)

// countingStore counts reads that reach the backing store.
type countingStore struct {
	domain.OrderStore
	reads int
}

func (c *countingStore) GetByID(ctx context.Context, id uint64) (domain.Order, error) {
	c.reads++
	return c.OrderStore.GetByID(ctx, id)
}

func TestOrderStoreCachesClosedOrders(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{OrderStore: memory.NewOrderStore(memory.NewDB())}
	store, err := cached.NewOrderStore(backing, 16)
	require.NoError(t, err)

	o, err := store.Create(ctx, domain.Order{BasePrice: big.NewInt(1), ListedAt: time.Now()})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := store.GetByID(ctx, o.ID)
		require.NoError(t, err)
	}
	require.Equal(t, 2, backing.reads, "open orders are read through")
	require.Zero(t, store.Len())

	_, err = store.Close(ctx, o.ID, domain.Closure{ClosedAt: time.Now(), Outcome: domain.OutcomeCancelled}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	closed, err := store.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCancelled, closed.Outcome)
	require.Equal(t, 2, backing.reads)

	_, err = store.GetByID(ctx, 99)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
