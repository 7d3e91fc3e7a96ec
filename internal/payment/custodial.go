// Package payment provides PaymentGateway implementations: a custodial
// gateway backed by the wallet book of the ledger and a router that picks a
// gateway per payment medium.
package payment

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// Custodial moves funds between wallet balances held in the ledger and the
// marketplace custody account, which is itself a wallet entry.
type Custodial struct {
	ledger  domain.LedgerStore
	custody common.Address
}

// NewCustodial returns a gateway whose custody balance is kept under the
// custody account.
func NewCustodial(ledger domain.LedgerStore, custody common.Address) *Custodial {
	return &Custodial{ledger: ledger, custody: custody}
}

// Deposit credits a wallet. It backs the deposit endpoint and test setup.
func (c *Custodial) Deposit(ctx context.Context, medium, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("payment: deposit amount must be positive")
	}
	return c.ledger.Credit(ctx, domain.Credit{
		Book:    domain.BookWallet,
		Account: account,
		Medium:  medium,
		Amount:  new(big.Int).Set(amount),
		Reason:  "deposit",
	})
}

func (c *Custodial) Pull(ctx context.Context, medium, from common.Address, amount *big.Int) error {
	return c.move(ctx, medium, from, c.custody, amount)
}

func (c *Custodial) Push(ctx context.Context, medium, to common.Address, amount *big.Int) error {
	return c.move(ctx, medium, c.custody, to, amount)
}

func (c *Custodial) Available(ctx context.Context, medium, account common.Address) (*big.Int, error) {
	bal, err := c.ledger.Balance(ctx, domain.BookWallet, account, medium)
	if err != nil {
		return nil, fmt.Errorf("payment: wallet balance: %w", err)
	}
	return bal, nil
}

func (c *Custodial) move(ctx context.Context, medium, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := c.ledger.Debit(ctx, domain.BookWallet, from, medium, amount); err != nil {
		return fmt.Errorf("payment: debit %s: %w", from.Hex(), err)
	}
	err := c.ledger.Credit(ctx, domain.Credit{
		Book:    domain.BookWallet,
		Account: to,
		Medium:  medium,
		Amount:  new(big.Int).Set(amount),
		Reason:  "transfer",
	})
	if err != nil {
		restore := domain.Credit{Book: domain.BookWallet, Account: from, Medium: medium, Amount: new(big.Int).Set(amount), Reason: "rollback"}
		if rerr := c.ledger.Credit(ctx, restore); rerr != nil {
			return fmt.Errorf("payment: credit %s: %w (rollback failed: %v)", to.Hex(), err, rerr)
		}
		return fmt.Errorf("payment: credit %s: %w", to.Hex(), err)
	}
	return nil
}
