package market

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// GetOrder returns an order by id, open or closed.
func (e *Engine) GetOrder(ctx context.Context, id uint64) (domain.Order, error) {
	o, err := e.orders.GetByID(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("market: get order %d: %w", id, err)
	}
	return o, nil
}

// ListOpenOrders returns open orders in ascending id order.
func (e *Engine) ListOpenOrders(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	return e.orders.ListOpen(ctx, opts)
}

// ListAllOrders returns every order ever created, open or closed.
func (e *Engine) ListAllOrders(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	return e.orders.ListAll(ctx, opts)
}

// CountOpenOrders returns how many orders are still open.
func (e *Engine) CountOpenOrders(ctx context.Context) (int64, error) {
	return e.orders.CountOpen(ctx)
}

// Bids returns the bid history of an order, oldest first.
func (e *Engine) Bids(ctx context.Context, orderID uint64) ([]domain.Bid, error) {
	if _, err := e.orders.GetByID(ctx, orderID); err != nil {
		return nil, fmt.Errorf("market: get order %d: %w", orderID, err)
	}
	return e.bids.ListByOrder(ctx, orderID)
}

// HighestBid returns the current highest bid, or ErrNotFound when the
// auction has none.
func (e *Engine) HighestBid(ctx context.Context, orderID uint64) (domain.Bid, error) {
	return e.bids.Highest(ctx, orderID)
}

// Balances returns what the marketplace owes account, per medium.
func (e *Engine) Balances(ctx context.Context, account common.Address) ([]domain.Balance, error) {
	all, err := e.ledger.ListBalances(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("market: balances of %s: %w", account.Hex(), err)
	}
	owed := make([]domain.Balance, 0, len(all))
	for _, b := range all {
		if b.Book == domain.BookPayable && b.Amount.Sign() > 0 {
			owed = append(owed, b)
		}
	}
	return owed, nil
}

// AcceptedMedia returns the payment registry, disabled entries included.
func (e *Engine) AcceptedMedia(ctx context.Context) ([]domain.Medium, error) {
	return e.settings.ListMedia(ctx)
}

// Settings returns the current administrative settings.
func (e *Engine) Settings(ctx context.Context) (domain.Settings, error) {
	return e.settings.Get(ctx)
}
