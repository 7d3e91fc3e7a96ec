package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// errAssetUnavailable marks a holding or approval check that the chain
// answered negatively, as opposed to one that could not be answered.
var errAssetUnavailable = errors.New("asset unavailable to the marketplace")

// assetHandler captures what differs between asset kinds: how holding is
// verified, how approval is checked and how the asset moves.
type assetHandler interface {
	checkHolding(ctx context.Context, o domain.Order) error
	checkApproval(ctx context.Context, o domain.Order, operator common.Address) error
	transfer(ctx context.Context, o domain.Order, to common.Address) error
}

func (e *Engine) handlerFor(kind domain.AssetKind) (assetHandler, error) {
	switch kind {
	case domain.AssetKindSingleOwner:
		return singleOwner{gw: e.assets}, nil
	case domain.AssetKindBalanceBased:
		return balanceBased{gw: e.assets}, nil
	default:
		return nil, fmt.Errorf("unknown asset kind %q: %w", kind, domain.ErrInvalidOrder)
	}
}

type singleOwner struct {
	gw domain.AssetGateway
}

func (h singleOwner) checkHolding(ctx context.Context, o domain.Order) error {
	owner, err := h.gw.OwnerOf(ctx, o.AssetContract, o.AssetID)
	if err != nil {
		return fmt.Errorf("owner of %s#%s: %w", o.AssetContract.Hex(), o.AssetID, err)
	}
	if owner != o.Seller {
		return fmt.Errorf("%w: %s does not own %s#%s", errAssetUnavailable, o.Seller.Hex(), o.AssetContract.Hex(), o.AssetID)
	}
	return nil
}

func (h singleOwner) checkApproval(ctx context.Context, o domain.Order, operator common.Address) error {
	all, err := h.gw.IsApprovedForAll(ctx, o.AssetContract, o.Seller, operator)
	if err != nil {
		return fmt.Errorf("approval for all: %w", err)
	}
	if all {
		return nil
	}
	approved, err := h.gw.GetApproved(ctx, o.AssetContract, o.AssetID)
	if err != nil {
		return fmt.Errorf("approved operator: %w", err)
	}
	if approved != operator {
		return fmt.Errorf("%w: operator %s not approved for %s#%s", errAssetUnavailable, operator.Hex(), o.AssetContract.Hex(), o.AssetID)
	}
	return nil
}

func (h singleOwner) transfer(ctx context.Context, o domain.Order, to common.Address) error {
	return h.gw.TransferSingle(ctx, o.AssetContract, o.Seller, to, o.AssetID)
}

type balanceBased struct {
	gw domain.AssetGateway
}

func (h balanceBased) checkHolding(ctx context.Context, o domain.Order) error {
	bal, err := h.gw.BalanceOf(ctx, o.AssetContract, o.Seller, o.AssetID)
	if err != nil {
		return fmt.Errorf("balance of %s#%s: %w", o.AssetContract.Hex(), o.AssetID, err)
	}
	if bal == nil || bal.Cmp(o.AssetAmount) < 0 {
		held := big.NewInt(0)
		if bal != nil {
			held = bal
		}
		return fmt.Errorf("%w: %s holds %s of %s#%s, needs %s", errAssetUnavailable, o.Seller.Hex(), held, o.AssetContract.Hex(), o.AssetID, o.AssetAmount)
	}
	return nil
}

func (h balanceBased) checkApproval(ctx context.Context, o domain.Order, operator common.Address) error {
	ok, err := h.gw.IsApprovedForAll(ctx, o.AssetContract, o.Seller, operator)
	if err != nil {
		return fmt.Errorf("approval for all: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: operator %s not approved by %s", errAssetUnavailable, operator.Hex(), o.Seller.Hex())
	}
	return nil
}

func (h balanceBased) transfer(ctx context.Context, o domain.Order, to common.Address) error {
	return h.gw.TransferBalance(ctx, o.AssetContract, o.Seller, to, o.AssetID, o.AssetAmount)
}
