package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
	"github.com/alanyoungcy/escrowmarket/internal/telemetry"
)

// PlaceBid records a funded bid on an open auction. The new bid must reach
// max(basePrice, current highest) + bidIncrement. A bidder raising their own
// highest bid only supplies the difference; an outbid bidder's escrow is
// credited back to them in the same commit as the new bid.
func (e *Engine) PlaceBid(ctx context.Context, orderID uint64, bidder common.Address, amount, supplied *big.Int) (domain.Bid, error) {
	if err := e.requireActive(ctx); err != nil {
		return domain.Bid{}, err
	}
	unlock, err := e.lockOrder(ctx, orderID)
	if err != nil {
		return domain.Bid{}, err
	}
	defer unlock()

	o, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("market: get order %d: %w", orderID, err)
	}
	if !o.IsAuction() || !o.IsOpen() {
		return domain.Bid{}, fmt.Errorf("market: order %d: %w", orderID, domain.ErrAuctionClosed)
	}
	now := e.now()
	if o.Expired(now) {
		return domain.Bid{}, fmt.Errorf("market: order %d: %w", orderID, domain.ErrAuctionExpired)
	}
	if bidder == o.Seller {
		return domain.Bid{}, fmt.Errorf("market: order %d: %w", orderID, domain.ErrSelfBid)
	}

	prev, hasPrev, err := e.highest(ctx, orderID)
	if err != nil {
		return domain.Bid{}, err
	}
	floor := o.BasePrice
	if hasPrev && prev.Amount.Cmp(floor) > 0 {
		floor = prev.Amount
	}
	minBid := new(big.Int).Add(floor, o.BidIncrement)
	if amount == nil || amount.Cmp(minBid) < 0 {
		return domain.Bid{}, fmt.Errorf("market: bid %s below minimum %s: %w", amountString(amount), minBid, domain.ErrBidTooLow)
	}

	required := amount
	sameBidder := hasPrev && prev.Bidder == bidder
	if sameBidder {
		required = new(big.Int).Sub(amount, prev.Amount)
	}
	if err := e.collect(ctx, o.PaymentMedium, bidder, required, supplied); err != nil {
		return domain.Bid{}, err
	}

	var credits []domain.Credit
	if hasPrev && !sameBidder {
		credits = append(credits, domain.Credit{
			Book:    domain.BookPayable,
			Account: prev.Bidder,
			Medium:  o.PaymentMedium,
			Amount:  new(big.Int).Set(prev.Amount),
			Reason:  "outbid",
			OrderID: orderID,
		})
	}

	_, stored, err := e.bids.Append(ctx, domain.Bid{
		OrderID:  orderID,
		Bidder:   bidder,
		Amount:   new(big.Int).Set(amount),
		PlacedAt: now,
	}, credits)
	if err != nil {
		e.returnFunds(ctx, orderID, o.PaymentMedium, bidder, required)
		return domain.Bid{}, fmt.Errorf("market: record bid on order %d: %w", orderID, err)
	}

	telemetry.BidsCounter.Inc()
	e.logger.InfoContext(ctx, "market: bid placed",
		slog.Uint64("order_id", orderID),
		slog.Uint64("seq", uint64(stored.Seq)),
		slog.String("bidder", bidder.Hex()),
		slog.String("amount", amount.String()),
	)
	e.emit(ctx, domain.Event{
		Type:    domain.EventHighestBidChanged,
		OrderID: orderID,
		Actor:   bidder,
		Medium:  o.PaymentMedium,
		Amount:  stored.Amount,
		Detail:  map[string]any{"seq": stored.Seq},
	})

	if len(credits) > 0 {
		telemetry.RefundsQueuedCounter.Inc()
		e.emit(ctx, domain.Event{
			Type:    domain.EventRefundQueued,
			OrderID: orderID,
			Actor:   prev.Bidder,
			Medium:  o.PaymentMedium,
			Amount:  prev.Amount,
			Detail:  map[string]any{"reason": "outbid"},
		})
		e.deliverRefund(ctx, orderID, prev.Bidder, o.PaymentMedium)
	}
	return stored, nil
}

// FinalizeAuction closes an expired auction. With more than two bids the
// highest bidder wins and the escrow settles the sale; otherwise the
// auction ends unsold and any escrow is refunded.
func (e *Engine) FinalizeAuction(ctx context.Context, orderID uint64) (domain.Order, error) {
	if err := e.requireActive(ctx); err != nil {
		return domain.Order{}, err
	}
	return e.finalize(ctx, orderID)
}

// FinalizeAuctions finalizes each id independently.
func (e *Engine) FinalizeAuctions(ctx context.Context, ids []uint64) []domain.BatchResult {
	results := make([]domain.BatchResult, 0, len(ids))
	if err := e.requireActive(ctx); err != nil {
		for _, id := range ids {
			results = append(results, domain.BatchResult{OrderID: id, Err: err})
		}
		return results
	}
	for _, id := range ids {
		_, err := e.finalize(ctx, id)
		results = append(results, domain.BatchResult{OrderID: id, Err: err})
	}
	return results
}

func (e *Engine) finalize(ctx context.Context, orderID uint64) (domain.Order, error) {
	unlock, err := e.lockOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer unlock()

	o, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("market: get order %d: %w", orderID, err)
	}
	if !o.IsAuction() {
		return domain.Order{}, fmt.Errorf("market: order %d: %w", orderID, domain.ErrNotAuction)
	}
	if !o.IsOpen() {
		return domain.Order{}, fmt.Errorf("market: order %d: %w", orderID, domain.ErrAlreadyClosed)
	}
	if !o.Expired(e.now()) {
		return domain.Order{}, fmt.Errorf("market: order %d ends at %s: %w", orderID, o.ExpiresAt, domain.ErrAuctionActive)
	}

	top, hasBid, err := e.highest(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	if hasBid && o.HighestBidCount > minBidsForSale {
		s := sale{order: o, buyer: top.Bidder, price: top.Amount, escrowed: true}
		credits, err := e.settle(ctx, s)
		if errors.Is(err, errAssetUnavailable) {
			// The seller no longer holds or has revoked the asset; the sale
			// can never complete, so the winner's escrow is released.
			e.logger.WarnContext(ctx, "market: auction asset unavailable, closing unsold",
				slog.Uint64("order_id", orderID),
				slog.String("error", err.Error()),
			)
			return e.closeUnsold(ctx, o, top, true, "asset_unavailable")
		}
		if err != nil {
			return domain.Order{}, err
		}
		return e.closeSold(ctx, s, credits)
	}
	return e.closeUnsold(ctx, o, top, hasBid, "unsold")
}

// closeUnsold ends an auction without a sale and credits the escrow of the
// highest bid, if any, back to its bidder.
func (e *Engine) closeUnsold(ctx context.Context, o domain.Order, top domain.Bid, hasBid bool, reason string) (domain.Order, error) {
	var credits []domain.Credit
	if hasBid {
		credits = append(credits, domain.Credit{
			Book:    domain.BookPayable,
			Account: top.Bidder,
			Medium:  o.PaymentMedium,
			Amount:  new(big.Int).Set(top.Amount),
			Reason:  reason,
			OrderID: o.ID,
		})
	}
	closed, err := e.orders.Close(ctx, o.ID, domain.Closure{
		ClosedAt: e.now(),
		Outcome:  domain.OutcomeUnsold,
	}, credits)
	if err != nil {
		return domain.Order{}, fmt.Errorf("market: close order %d: %w", o.ID, err)
	}

	telemetry.OrdersClosedCounter.WithLabelValues(string(domain.OutcomeUnsold)).Inc()
	e.logger.InfoContext(ctx, "market: auction unsold",
		slog.Uint64("order_id", o.ID),
		slog.Uint64("bids", uint64(closed.HighestBidCount)),
		slog.String("reason", reason),
	)
	e.emit(ctx, domain.Event{
		Type:    domain.EventAuctionUnsold,
		OrderID: o.ID,
		Actor:   closed.Seller,
		Medium:  closed.PaymentMedium,
		Detail:  map[string]any{"bids": closed.HighestBidCount, "reason": reason},
	})
	if hasBid {
		telemetry.RefundsQueuedCounter.Inc()
		e.emit(ctx, domain.Event{
			Type:    domain.EventRefundQueued,
			OrderID: o.ID,
			Actor:   top.Bidder,
			Medium:  o.PaymentMedium,
			Amount:  top.Amount,
			Detail:  map[string]any{"reason": reason},
		})
		e.deliverRefund(ctx, o.ID, top.Bidder, o.PaymentMedium)
	}
	return closed, nil
}

// highest returns the current highest bid of an order, if any.
func (e *Engine) highest(ctx context.Context, orderID uint64) (domain.Bid, bool, error) {
	b, err := e.bids.Highest(ctx, orderID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Bid{}, false, nil
	}
	if err != nil {
		return domain.Bid{}, false, fmt.Errorf("market: highest bid of order %d: %w", orderID, err)
	}
	return b, true, nil
}
