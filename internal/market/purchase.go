package market

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
	"github.com/alanyoungcy/escrowmarket/internal/telemetry"
)

// BuyOrder purchases an open fixed-price order at its base price.
func (e *Engine) BuyOrder(ctx context.Context, orderID uint64, buyer common.Address, supplied *big.Int) (domain.Order, error) {
	if err := e.requireActive(ctx); err != nil {
		return domain.Order{}, err
	}
	unlock, err := e.lockOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer unlock()

	o, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("market: get order %d: %w", orderID, err)
	}
	if o.IsAuction() {
		return domain.Order{}, fmt.Errorf("market: order %d: %w", orderID, domain.ErrNotFixedPrice)
	}
	if !o.IsOpen() {
		return domain.Order{}, fmt.Errorf("market: order %d: %w", orderID, domain.ErrOrderNotOpen)
	}
	if buyer == o.Seller {
		return domain.Order{}, fmt.Errorf("market: order %d: %w", orderID, domain.ErrSelfPurchase)
	}

	s := sale{order: o, buyer: buyer, price: o.BasePrice, supplied: supplied}
	credits, err := e.settle(ctx, s)
	if err != nil {
		return domain.Order{}, err
	}
	return e.closeSold(ctx, s, credits)
}

// CancelOrder withdraws an open fixed-price order. Only its seller may
// cancel it.
func (e *Engine) CancelOrder(ctx context.Context, caller common.Address, orderID uint64) (domain.Order, error) {
	if err := e.requireActive(ctx); err != nil {
		return domain.Order{}, err
	}
	return e.cancel(ctx, caller, orderID)
}

// CancelOrders cancels each id independently.
func (e *Engine) CancelOrders(ctx context.Context, caller common.Address, ids []uint64) []domain.BatchResult {
	results := make([]domain.BatchResult, 0, len(ids))
	if err := e.requireActive(ctx); err != nil {
		for _, id := range ids {
			results = append(results, domain.BatchResult{OrderID: id, Err: err})
		}
		return results
	}
	for _, id := range ids {
		_, err := e.cancel(ctx, caller, id)
		results = append(results, domain.BatchResult{OrderID: id, Err: err})
	}
	return results
}

func (e *Engine) cancel(ctx context.Context, caller common.Address, orderID uint64) (domain.Order, error) {
	unlock, err := e.lockOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer unlock()

	o, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("market: get order %d: %w", orderID, err)
	}
	if o.IsAuction() {
		return domain.Order{}, fmt.Errorf("market: order %d: %w", orderID, domain.ErrNotFixedPrice)
	}
	if caller != o.Seller {
		return domain.Order{}, fmt.Errorf("market: %s is not the seller of order %d: %w", caller.Hex(), orderID, domain.ErrUnauthorized)
	}
	if !o.IsOpen() {
		return domain.Order{}, fmt.Errorf("market: order %d: %w", orderID, domain.ErrAlreadyClosed)
	}

	closed, err := e.orders.Close(ctx, orderID, domain.Closure{ClosedAt: e.now(), Outcome: domain.OutcomeCancelled}, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("market: close order %d: %w", orderID, err)
	}

	telemetry.OrdersClosedCounter.WithLabelValues(string(domain.OutcomeCancelled)).Inc()
	e.logger.InfoContext(ctx, "market: order cancelled", slog.Uint64("order_id", orderID))
	e.emit(ctx, domain.Event{Type: domain.EventOrderCancelled, OrderID: orderID, Actor: caller})
	return closed, nil
}
