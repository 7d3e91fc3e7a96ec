package payment

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// Router dispatches native-medium payments to one gateway and token payments
// to another.
type Router struct {
	native domain.PaymentGateway
	token  domain.PaymentGateway
}

// NewRouter builds a Router. A nil token gateway routes tokens to native.
func NewRouter(native, token domain.PaymentGateway) *Router {
	if token == nil {
		token = native
	}
	return &Router{native: native, token: token}
}

func (r *Router) pick(medium common.Address) domain.PaymentGateway {
	if domain.IsNative(medium) {
		return r.native
	}
	return r.token
}

func (r *Router) Pull(ctx context.Context, medium, from common.Address, amount *big.Int) error {
	return r.pick(medium).Pull(ctx, medium, from, amount)
}

func (r *Router) Push(ctx context.Context, medium, to common.Address, amount *big.Int) error {
	return r.pick(medium).Push(ctx, medium, to, amount)
}

func (r *Router) Available(ctx context.Context, medium, account common.Address) (*big.Int, error) {
	return r.pick(medium).Available(ctx, medium, account)
}

type depositor interface {
	Deposit(ctx context.Context, medium, account common.Address, amount *big.Int) error
}

// Deposit credits a native-medium wallet through the native gateway. Token
// media are paid from allowances and take no deposits.
func (r *Router) Deposit(ctx context.Context, medium, account common.Address, amount *big.Int) error {
	if !domain.IsNative(medium) {
		return fmt.Errorf("payment: %s is paid by allowance: %w", medium.Hex(), domain.ErrMediumNotAccepted)
	}
	d, ok := r.native.(depositor)
	if !ok {
		return fmt.Errorf("payment: native gateway takes no deposits: %w", domain.ErrMediumNotAccepted)
	}
	return d.Deposit(ctx, medium, account, amount)
}
