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

// collect takes required from payer into custody. For the native medium the
// caller must also have attached at least required with the request.
func (e *Engine) collect(ctx context.Context, medium, payer common.Address, required, supplied *big.Int) error {
	if isZero(required) {
		return nil
	}
	if domain.IsNative(medium) && (supplied == nil || supplied.Cmp(required) < 0) {
		return fmt.Errorf("market: supplied %s, need %s: %w", amountString(supplied), required, domain.ErrInsufficientFunds)
	}
	avail, err := e.payments.Available(ctx, medium, payer)
	if err != nil {
		return fmt.Errorf("market: available funds: %w", err)
	}
	if avail == nil || avail.Cmp(required) < 0 {
		return fmt.Errorf("market: available %s, need %s: %w", amountString(avail), required, domain.ErrInsufficientFunds)
	}
	if err := e.payments.Pull(ctx, medium, payer, required); err != nil {
		return fmt.Errorf("market: collect funds: %w", err)
	}
	return nil
}

// returnFunds gives back funds collected for an operation that did not
// complete. If the push fails the amount is owed through the payable book.
func (e *Engine) returnFunds(ctx context.Context, orderID uint64, medium, to common.Address, amount *big.Int) {
	if isZero(amount) {
		return
	}
	err := e.payments.Push(ctx, medium, to, amount)
	if err == nil {
		return
	}
	telemetry.TransferFailuresCounter.WithLabelValues("return").Inc()
	e.logger.WarnContext(ctx, "market: return of collected funds failed, crediting payable",
		slog.Uint64("order_id", orderID),
		slog.String("account", to.Hex()),
		slog.String("amount", amount.String()),
		slog.String("error", err.Error()),
	)
	c := domain.Credit{Book: domain.BookPayable, Account: to, Medium: medium, Amount: amount, Reason: "return", OrderID: orderID}
	if cerr := e.ledger.Credit(ctx, c); cerr != nil {
		e.logger.ErrorContext(ctx, "market: credit payable failed",
			slog.Uint64("order_id", orderID),
			slog.String("account", to.Hex()),
			slog.String("amount", amount.String()),
			slog.String("error", cerr.Error()),
		)
	}
}

// payout pushes amount to account. A failed push is returned as a payable
// credit for the caller to persist with the order closure.
func (e *Engine) payout(ctx context.Context, orderID uint64, medium, to common.Address, amount *big.Int, reason string) []domain.Credit {
	if isZero(amount) {
		return nil
	}
	err := e.payments.Push(ctx, medium, to, amount)
	if err == nil {
		return nil
	}
	telemetry.TransferFailuresCounter.WithLabelValues(reason).Inc()
	e.logger.WarnContext(ctx, "market: payout failed, queued as payable",
		slog.Uint64("order_id", orderID),
		slog.String("reason", reason),
		slog.String("account", to.Hex()),
		slog.String("amount", amount.String()),
		slog.String("error", err.Error()),
	)
	return []domain.Credit{{
		Book:    domain.BookPayable,
		Account: to,
		Medium:  medium,
		Amount:  new(big.Int).Set(amount),
		Reason:  reason,
		OrderID: orderID,
	}}
}

// deliver pushes the whole payable balance of (account, medium). On failure
// the balance is restored and remains withdrawable.
func (e *Engine) deliver(ctx context.Context, account, medium common.Address) (*big.Int, error) {
	unlock, err := e.locks.acquire(ctx, payableLockKey(account, medium))
	if err != nil {
		return nil, fmt.Errorf("market: lock payable: %w", err)
	}
	defer unlock()

	bal, err := e.ledger.Balance(ctx, domain.BookPayable, account, medium)
	if err != nil {
		return nil, fmt.Errorf("market: payable balance: %w", err)
	}
	if isZero(bal) {
		return new(big.Int), nil
	}
	if err := e.ledger.Debit(ctx, domain.BookPayable, account, medium, bal); err != nil {
		return nil, fmt.Errorf("market: debit payable: %w", err)
	}
	if err := e.payments.Push(ctx, medium, account, bal); err != nil {
		restore := domain.Credit{Book: domain.BookPayable, Account: account, Medium: medium, Amount: bal, Reason: "redeliver"}
		if cerr := e.ledger.Credit(ctx, restore); cerr != nil {
			e.logger.ErrorContext(ctx, "market: restore payable failed",
				slog.String("account", account.Hex()),
				slog.String("amount", bal.String()),
				slog.String("error", cerr.Error()),
			)
		}
		return nil, fmt.Errorf("market: deliver %s to %s: %w: %w", bal, account.Hex(), domain.ErrTransferFailed, err)
	}
	return bal, nil
}

// deliverRefund is the best-effort push used right after a refund is queued.
func (e *Engine) deliverRefund(ctx context.Context, orderID uint64, account, medium common.Address) {
	if e.refundMode != RefundPush {
		return
	}
	amount, err := e.deliver(ctx, account, medium)
	if err != nil {
		telemetry.TransferFailuresCounter.WithLabelValues("refund").Inc()
		e.logger.WarnContext(ctx, "market: refund delivery deferred",
			slog.Uint64("order_id", orderID),
			slog.String("account", account.Hex()),
			slog.String("error", err.Error()),
		)
		return
	}
	if amount.Sign() > 0 {
		e.emit(ctx, domain.Event{
			Type:    domain.EventRefundDelivered,
			OrderID: orderID,
			Actor:   account,
			Medium:  medium,
			Amount:  amount,
		})
	}
}

// Withdraw delivers everything the marketplace owes account in medium.
// It stays available while the marketplace is paused.
func (e *Engine) Withdraw(ctx context.Context, account, medium common.Address) (*big.Int, error) {
	amount, err := e.deliver(ctx, account, medium)
	if err != nil {
		telemetry.TransferFailuresCounter.WithLabelValues("withdraw").Inc()
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, fmt.Errorf("market: nothing owed to %s: %w", account.Hex(), domain.ErrInsufficientFunds)
	}
	e.logger.InfoContext(ctx, "market: withdrawal",
		slog.String("account", account.Hex()),
		slog.String("medium", medium.Hex()),
		slog.String("amount", amount.String()),
	)
	e.emit(ctx, domain.Event{Type: domain.EventWithdrawal, Actor: account, Medium: medium, Amount: amount})
	return amount, nil
}

// SweepPayables retries delivery of up to limit outstanding payable balances
// and returns how many were delivered.
func (e *Engine) SweepPayables(ctx context.Context, limit int) (int, error) {
	owed, err := e.ledger.ListOutstanding(ctx, domain.BookPayable, limit)
	if err != nil {
		return 0, fmt.Errorf("market: list payables: %w", err)
	}
	delivered := 0
	for _, b := range owed {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		amount, err := e.deliver(ctx, b.Account, b.Medium)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return delivered, err
			}
			e.logger.DebugContext(ctx, "market: payable still undeliverable",
				slog.String("account", b.Account.Hex()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if amount.Sign() > 0 {
			delivered++
			e.emit(ctx, domain.Event{Type: domain.EventRefundDelivered, Actor: b.Account, Medium: b.Medium, Amount: amount})
		}
	}
	return delivered, nil
}

func payableLockKey(account, medium common.Address) string {
	return "payable:" + account.Hex() + ":" + medium.Hex()
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
