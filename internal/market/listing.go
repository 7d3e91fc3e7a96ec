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

const registryLockKey = "registry"

// CreateFixedPrice lists an asset for direct sale at p.BasePrice.
func (e *Engine) CreateFixedPrice(ctx context.Context, p domain.OrderParams) (domain.Order, error) {
	return e.createOrder(ctx, domain.OrderKindFixedPrice, p)
}

// CreateAuction lists an asset for an ascending-bid auction that runs for the
// bidding duration in effect at listing time.
func (e *Engine) CreateAuction(ctx context.Context, p domain.OrderParams) (domain.Order, error) {
	return e.createOrder(ctx, domain.OrderKindAuction, p)
}

// CreateFixedPriceBatch lists each element independently. A failing element
// is reported in its result and does not stop the others.
func (e *Engine) CreateFixedPriceBatch(ctx context.Context, ps []domain.OrderParams) []domain.BatchResult {
	return e.createBatch(ctx, domain.OrderKindFixedPrice, ps)
}

// CreateAuctionBatch is the auction counterpart of CreateFixedPriceBatch.
func (e *Engine) CreateAuctionBatch(ctx context.Context, ps []domain.OrderParams) []domain.BatchResult {
	return e.createBatch(ctx, domain.OrderKindAuction, ps)
}

func (e *Engine) createBatch(ctx context.Context, kind domain.OrderKind, ps []domain.OrderParams) []domain.BatchResult {
	results := make([]domain.BatchResult, 0, len(ps))
	for _, p := range ps {
		o, err := e.createOrder(ctx, kind, p)
		results = append(results, domain.BatchResult{OrderID: o.ID, Err: err})
	}
	return results
}

func (e *Engine) createOrder(ctx context.Context, kind domain.OrderKind, p domain.OrderParams) (domain.Order, error) {
	if err := e.requireActive(ctx); err != nil {
		return domain.Order{}, err
	}

	o, err := buildOrder(kind, p)
	if err != nil {
		return domain.Order{}, fmt.Errorf("market: create order: %w", err)
	}
	h, err := e.handlerFor(o.AssetKind)
	if err != nil {
		return domain.Order{}, fmt.Errorf("market: create order: %w", err)
	}

	if err := h.checkHolding(ctx, o); err != nil {
		return domain.Order{}, fmt.Errorf("market: create order: %w: %w", domain.ErrInvalidOrder, err)
	}

	// The registry lock covers the medium check and id allocation only.
	unlock, err := e.locks.acquire(ctx, registryLockKey)
	if err != nil {
		return domain.Order{}, fmt.Errorf("market: lock registry: %w", err)
	}
	defer unlock()

	if err := e.requireAccepted(ctx, o.PaymentMedium); err != nil {
		return domain.Order{}, fmt.Errorf("market: create order: %w", err)
	}

	s, err := e.settings.Get(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("market: load settings: %w", err)
	}
	o.ListedAt = e.now()
	if kind == domain.OrderKindAuction {
		o.ExpiresAt = o.ListedAt.Add(s.BiddingDuration)
	}

	stored, err := e.orders.Create(ctx, o)
	if err != nil {
		return domain.Order{}, fmt.Errorf("market: create order: %w", err)
	}

	telemetry.OrdersListedCounter.WithLabelValues(string(kind)).Inc()
	e.logger.InfoContext(ctx, "market: order listed",
		slog.Uint64("order_id", stored.ID),
		slog.String("kind", string(kind)),
		slog.String("seller", stored.Seller.Hex()),
		slog.String("base_price", stored.BasePrice.String()),
	)
	e.emit(ctx, domain.Event{
		Type:    domain.EventOrderListed,
		OrderID: stored.ID,
		Actor:   stored.Seller,
		Medium:  stored.PaymentMedium,
		Amount:  stored.BasePrice,
		Detail:  map[string]any{"kind": string(kind), "expires_at": stored.ExpiresAt},
	})
	return stored, nil
}

// buildOrder validates p and normalizes it into an unsaved Order.
func buildOrder(kind domain.OrderKind, p domain.OrderParams) (domain.Order, error) {
	switch {
	case p.Seller == (common.Address{}):
		return domain.Order{}, fmt.Errorf("%w: seller is required", domain.ErrInvalidOrder)
	case p.AssetContract == (common.Address{}):
		return domain.Order{}, fmt.Errorf("%w: asset contract is required", domain.ErrInvalidOrder)
	case p.AssetID == nil || p.AssetID.Sign() < 0:
		return domain.Order{}, fmt.Errorf("%w: asset id is required", domain.ErrInvalidOrder)
	case !p.AssetKind.Valid():
		return domain.Order{}, fmt.Errorf("%w: unknown asset kind %q", domain.ErrInvalidOrder, p.AssetKind)
	case p.BasePrice == nil || p.BasePrice.Sign() <= 0:
		return domain.Order{}, fmt.Errorf("%w: base price must be positive", domain.ErrInvalidOrder)
	}

	amount := big.NewInt(1)
	switch p.AssetKind {
	case domain.AssetKindSingleOwner:
		if p.AssetAmount != nil && p.AssetAmount.Cmp(amount) != 0 {
			return domain.Order{}, fmt.Errorf("%w: single-owner assets are listed one at a time", domain.ErrInvalidOrder)
		}
	case domain.AssetKindBalanceBased:
		if p.AssetAmount == nil || p.AssetAmount.Sign() <= 0 {
			return domain.Order{}, fmt.Errorf("%w: asset amount must be positive", domain.ErrInvalidOrder)
		}
		amount = new(big.Int).Set(p.AssetAmount)
	}

	increment := new(big.Int)
	if kind == domain.OrderKindAuction {
		if p.BidIncrement == nil || p.BidIncrement.Sign() <= 0 {
			return domain.Order{}, fmt.Errorf("%w: bid increment must be positive", domain.ErrInvalidOrder)
		}
		increment.Set(p.BidIncrement)
	}

	return domain.Order{
		AssetContract: p.AssetContract,
		AssetID:       new(big.Int).Set(p.AssetID),
		AssetAmount:   amount,
		PaymentMedium: p.PaymentMedium,
		BasePrice:     new(big.Int).Set(p.BasePrice),
		BidIncrement:  increment,
		Seller:        p.Seller,
		Kind:          kind,
		AssetKind:     p.AssetKind,
	}, nil
}

// requireAccepted fails unless medium is registered and enabled. The native
// medium is always accepted.
func (e *Engine) requireAccepted(ctx context.Context, medium common.Address) error {
	if domain.IsNative(medium) {
		return nil
	}
	m, err := e.settings.GetMedium(ctx, medium)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: %w: %s", domain.ErrInvalidOrder, domain.ErrMediumNotAccepted, medium.Hex())
	}
	if err != nil {
		return fmt.Errorf("load medium %s: %w", medium.Hex(), err)
	}
	if !m.Enabled {
		return fmt.Errorf("%w: %w: %s", domain.ErrInvalidOrder, domain.ErrMediumNotAccepted, medium.Hex())
	}
	return nil
}

// SetAcceptedMedium adds, updates or disables an entry of the accepted
// payment registry. Disabling a medium only affects future listings.
func (e *Engine) SetAcceptedMedium(ctx context.Context, caller common.Address, m domain.Medium) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if domain.IsNative(m.Address) && !m.Enabled {
		return fmt.Errorf("market: native medium cannot be disabled: %w", domain.ErrOutOfBounds)
	}
	if m.Decimals < 0 || m.Decimals > 77 {
		return fmt.Errorf("market: decimals %d: %w", m.Decimals, domain.ErrOutOfBounds)
	}

	unlock, err := e.locks.acquire(ctx, registryLockKey)
	if err != nil {
		return fmt.Errorf("market: lock registry: %w", err)
	}
	defer unlock()

	if err := e.settings.UpsertMedium(ctx, m); err != nil {
		return fmt.Errorf("market: set medium %s: %w", m.Address.Hex(), err)
	}
	e.logger.InfoContext(ctx, "market: payment medium updated",
		slog.String("medium", m.Address.Hex()),
		slog.String("symbol", m.Symbol),
		slog.Bool("enabled", m.Enabled),
	)
	e.emit(ctx, domain.Event{
		Type:   domain.EventMediumChanged,
		Actor:  caller,
		Medium: m.Address,
		Detail: map[string]any{"symbol": m.Symbol, "enabled": m.Enabled},
	})
	return nil
}
