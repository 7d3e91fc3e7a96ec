package market

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
	"github.com/alanyoungcy/escrowmarket/internal/telemetry"
)

// Pause halts listing, bidding, buying, cancelling and finalizing.
func (e *Engine) Pause(ctx context.Context, caller common.Address) error {
	return e.setPaused(ctx, caller, true)
}

// Unpause resumes normal operation.
func (e *Engine) Unpause(ctx context.Context, caller common.Address) error {
	return e.setPaused(ctx, caller, false)
}

func (e *Engine) setPaused(ctx context.Context, caller common.Address, paused bool) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.settings.SetPaused(ctx, paused); err != nil {
		return fmt.Errorf("market: set paused: %w", err)
	}
	evt := domain.EventUnpaused
	if paused {
		evt = domain.EventPaused
	}
	e.logger.InfoContext(ctx, "market: pause state changed",
		slog.Bool("paused", paused),
		slog.String("by", caller.Hex()),
	)
	e.emit(ctx, domain.Event{Type: evt, Actor: caller})
	return nil
}

// SetBiddingDuration changes the duration applied to auctions listed from now
// on. It must lie strictly between the configured bounds.
func (e *Engine) SetBiddingDuration(ctx context.Context, caller common.Address, d time.Duration) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if !withinBounds(d, e.bounds) {
		return fmt.Errorf("market: bidding duration %s outside (%s, %s): %w",
			d, e.bounds.MinBiddingDuration, e.bounds.MaxBiddingDuration, domain.ErrOutOfBounds)
	}

	unlock, err := e.locks.acquire(ctx, registryLockKey)
	if err != nil {
		return fmt.Errorf("market: lock registry: %w", err)
	}
	defer unlock()

	if err := e.settings.SetBiddingDuration(ctx, d); err != nil {
		return fmt.Errorf("market: set bidding duration: %w", err)
	}
	e.logger.InfoContext(ctx, "market: bidding duration changed", slog.Duration("duration", d))
	e.emit(ctx, domain.Event{
		Type:   domain.EventDurationChanged,
		Actor:  caller,
		Detail: map[string]any{"duration": d.String()},
	})
	return nil
}

// ReapStaleOrders closes fixed-price orders listed longer than the staleness
// threshold. Each id is handled independently.
func (e *Engine) ReapStaleOrders(ctx context.Context, caller common.Address, ids []uint64) ([]domain.BatchResult, error) {
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	results := make([]domain.BatchResult, 0, len(ids))
	for _, id := range ids {
		err := e.reap(ctx, caller, id)
		results = append(results, domain.BatchResult{OrderID: id, Err: err})
	}
	return results, nil
}

func (e *Engine) reap(ctx context.Context, caller common.Address, orderID uint64) error {
	unlock, err := e.lockOrder(ctx, orderID)
	if err != nil {
		return err
	}
	defer unlock()

	o, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("market: get order %d: %w", orderID, err)
	}
	if o.IsAuction() {
		return fmt.Errorf("market: order %d: %w", orderID, domain.ErrNotFixedPrice)
	}
	if !o.IsOpen() {
		return fmt.Errorf("market: order %d: %w", orderID, domain.ErrAlreadyClosed)
	}
	now := e.now()
	if now.Sub(o.ListedAt) <= e.bounds.StaleAfter {
		return fmt.Errorf("market: order %d listed at %s: %w", orderID, o.ListedAt, domain.ErrNotStale)
	}

	if _, err := e.orders.Close(ctx, orderID, domain.Closure{ClosedAt: now, Outcome: domain.OutcomeReaped}, nil); err != nil {
		return fmt.Errorf("market: close order %d: %w", orderID, err)
	}
	telemetry.OrdersClosedCounter.WithLabelValues(string(domain.OutcomeReaped)).Inc()
	e.logger.InfoContext(ctx, "market: stale order reaped", slog.Uint64("order_id", orderID))
	e.emit(ctx, domain.Event{Type: domain.EventOrderReaped, OrderID: orderID, Actor: caller})
	return nil
}
