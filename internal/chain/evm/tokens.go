package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// TokenGateway implements domain.PaymentGateway for ERC-20 media. Custody is
// the operator account: Pull spends the payer's allowance to the operator and
// Push transfers from it.
type TokenGateway struct {
	c *Client
}

func NewTokenGateway(c *Client) *TokenGateway {
	return &TokenGateway{c: c}
}

func (g *TokenGateway) Pull(ctx context.Context, medium, from common.Address, amount *big.Int) error {
	avail, err := g.Available(ctx, medium, from)
	if err != nil {
		return err
	}
	if avail.Cmp(amount) < 0 {
		return fmt.Errorf("evm: pull %s from %s: %w", amount, from.Hex(), domain.ErrInsufficientFunds)
	}
	return g.c.transact(ctx, erc20, medium, "transferFrom", from, g.c.Operator(), amount)
}

func (g *TokenGateway) Push(ctx context.Context, medium, to common.Address, amount *big.Int) error {
	return g.c.transact(ctx, erc20, medium, "transfer", to, amount)
}

// Available is the smaller of the allowance granted to the operator and the
// account's token balance.
func (g *TokenGateway) Available(ctx context.Context, medium, account common.Address) (*big.Int, error) {
	out, err := g.c.call(ctx, erc20, medium, "allowance", account, g.c.Operator())
	if err != nil {
		return nil, err
	}
	allowance, err := outBigInt(out, 0)
	if err != nil {
		return nil, err
	}
	out, err = g.c.call(ctx, erc20, medium, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	balance, err := outBigInt(out, 0)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(allowance) < 0 {
		return balance, nil
	}
	return allowance, nil
}

var _ domain.PaymentGateway = (*TokenGateway)(nil)
