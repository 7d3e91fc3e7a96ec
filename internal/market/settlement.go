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

// sale describes one settlement: the asset of order moves to buyer for price.
// When escrowed is set the price is already in custody; otherwise it is
// collected from buyer, who attached supplied.
type sale struct {
	order    domain.Order
	buyer    common.Address
	price    *big.Int
	escrowed bool
	supplied *big.Int
}

// settle executes a sale in a fixed order. The asset is verified before any
// funds move, and funds collected for a sale whose asset transfer fails are
// handed back. Payouts that cannot be pushed are returned as payable credits
// for the caller to store together with the order closure.
func (e *Engine) settle(ctx context.Context, s sale) ([]domain.Credit, error) {
	o := s.order
	h, err := e.handlerFor(o.AssetKind)
	if err != nil {
		return nil, err
	}

	// Prepare: the seller must still hold the asset and the approval.
	if err := h.checkHolding(ctx, o); err != nil {
		telemetry.SettlementFailuresCounter.Inc()
		return nil, fmt.Errorf("market: settle order %d: %w: %w", o.ID, domain.ErrAssetTransferUnauthorized, err)
	}
	if err := h.checkApproval(ctx, o, e.operator); err != nil {
		telemetry.SettlementFailuresCounter.Inc()
		return nil, fmt.Errorf("market: settle order %d: %w: %w", o.ID, domain.ErrAssetTransferUnauthorized, err)
	}

	if !s.escrowed {
		if err := e.collect(ctx, o.PaymentMedium, s.buyer, s.price, s.supplied); err != nil {
			return nil, err
		}
	}

	// Execute: move the asset, aborting with a refund of collected funds.
	if err := h.transfer(ctx, o, s.buyer); err != nil {
		telemetry.SettlementFailuresCounter.Inc()
		if !s.escrowed {
			e.returnFunds(ctx, o.ID, o.PaymentMedium, s.buyer, s.price)
		}
		return nil, fmt.Errorf("market: settle order %d: %w: %w", o.ID, domain.ErrAssetTransferUnauthorized, err)
	}

	receiver, royalty := e.royalty(ctx, o, s.price)
	proceeds := new(big.Int).Sub(s.price, royalty)

	var credits []domain.Credit
	credits = append(credits, e.payout(ctx, o.ID, o.PaymentMedium, receiver, royalty, "royalty")...)
	credits = append(credits, e.payout(ctx, o.ID, o.PaymentMedium, o.Seller, proceeds, "seller")...)
	return credits, nil
}

// royalty returns the royalty due on a sale, capped at price. Lookup
// failures and zero receivers mean no royalty.
func (e *Engine) royalty(ctx context.Context, o domain.Order, price *big.Int) (common.Address, *big.Int) {
	receiver, amount, err := e.assets.RoyaltyInfo(ctx, o.AssetContract, o.AssetID, price)
	if err != nil {
		e.logger.WarnContext(ctx, "market: royalty lookup failed",
			slog.Uint64("order_id", o.ID),
			slog.String("error", err.Error()),
		)
		return common.Address{}, new(big.Int)
	}
	if receiver == (common.Address{}) || amount == nil || amount.Sign() <= 0 {
		return common.Address{}, new(big.Int)
	}
	if amount.Cmp(price) > 0 {
		amount = price
	}
	return receiver, new(big.Int).Set(amount)
}

// closeSold records the sale and emits the sold event.
func (e *Engine) closeSold(ctx context.Context, s sale, credits []domain.Credit) (domain.Order, error) {
	closed, err := e.orders.Close(ctx, s.order.ID, domain.Closure{
		ClosedAt:     e.now(),
		Outcome:      domain.OutcomeSold,
		Buyer:        s.buyer,
		SettledPrice: new(big.Int).Set(s.price),
	}, credits)
	if err != nil {
		e.logger.ErrorContext(ctx, "market: record sale failed after settlement",
			slog.Uint64("order_id", s.order.ID),
			slog.String("buyer", s.buyer.Hex()),
			slog.String("price", s.price.String()),
			slog.String("error", err.Error()),
		)
		return domain.Order{}, fmt.Errorf("market: record sale of order %d: %w", s.order.ID, err)
	}

	telemetry.OrdersClosedCounter.WithLabelValues(string(domain.OutcomeSold)).Inc()
	e.logger.InfoContext(ctx, "market: order sold",
		slog.Uint64("order_id", closed.ID),
		slog.String("kind", string(closed.Kind)),
		slog.String("buyer", s.buyer.Hex()),
		slog.String("price", s.price.String()),
	)
	e.emit(ctx, domain.Event{
		Type:    domain.EventOrderSold,
		OrderID: closed.ID,
		Actor:   s.buyer,
		Medium:  closed.PaymentMedium,
		Amount:  closed.SettledPrice,
		Detail:  map[string]any{"kind": string(closed.Kind), "seller": closed.Seller.Hex()},
	})
	for _, c := range credits {
		e.emit(ctx, domain.Event{
			Type:    domain.EventPayoutQueued,
			OrderID: closed.ID,
			Actor:   c.Account,
			Medium:  c.Medium,
			Amount:  c.Amount,
			Detail:  map[string]any{"reason": c.Reason},
		})
	}
	return closed, nil
}
