package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PaymentGateway moves funds of one payment medium between accounts and the
// marketplace custody account.
type PaymentGateway interface {
	// Pull moves amount from account into marketplace custody. It returns
	// ErrInsufficientFunds when the account cannot cover it.
	Pull(ctx context.Context, medium, from common.Address, amount *big.Int) error
	// Push moves amount from marketplace custody to account.
	Push(ctx context.Context, medium, to common.Address, amount *big.Int) error
	// Available returns how much Pull could currently take from account:
	// the spendable balance for the native medium, the allowance granted to
	// the marketplace for token media.
	Available(ctx context.Context, medium, account common.Address) (*big.Int, error)
}
