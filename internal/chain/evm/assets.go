package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// AssetGateway implements domain.AssetGateway over ERC-721, ERC-1155 and
// ERC-2981 contracts. Transfers are sent by the operator account, which
// sellers approve.
type AssetGateway struct {
	c *Client
}

func NewAssetGateway(c *Client) *AssetGateway {
	return &AssetGateway{c: c}
}

func (g *AssetGateway) OwnerOf(ctx context.Context, contract common.Address, id *big.Int) (common.Address, error) {
	out, err := g.c.call(ctx, erc721, contract, "ownerOf", id)
	if err != nil {
		return common.Address{}, err
	}
	return outAddress(out)
}

func (g *AssetGateway) BalanceOf(ctx context.Context, contract, holder common.Address, id *big.Int) (*big.Int, error) {
	out, err := g.c.call(ctx, erc1155, contract, "balanceOf", holder, id)
	if err != nil {
		return nil, err
	}
	return outBigInt(out, 0)
}

// IsApprovedForAll has the same signature on ERC-721 and ERC-1155.
func (g *AssetGateway) IsApprovedForAll(ctx context.Context, contract, holder, operator common.Address) (bool, error) {
	out, err := g.c.call(ctx, erc721, contract, "isApprovedForAll", holder, operator)
	if err != nil {
		return false, err
	}
	return outBool(out)
}

func (g *AssetGateway) GetApproved(ctx context.Context, contract common.Address, id *big.Int) (common.Address, error) {
	out, err := g.c.call(ctx, erc721, contract, "getApproved", id)
	if err != nil {
		return common.Address{}, err
	}
	return outAddress(out)
}

func (g *AssetGateway) TransferSingle(ctx context.Context, contract, from, to common.Address, id *big.Int) error {
	return g.c.transact(ctx, erc721, contract, "safeTransferFrom", from, to, id)
}

func (g *AssetGateway) TransferBalance(ctx context.Context, contract, from, to common.Address, id, amount *big.Int) error {
	return g.c.transact(ctx, erc1155, contract, "safeTransferFrom", from, to, id, amount, []byte{})
}

// RoyaltyInfo queries ERC-2981. Contracts without it fail the call, which the
// engine reads as no royalty.
func (g *AssetGateway) RoyaltyInfo(ctx context.Context, contract common.Address, id, salePrice *big.Int) (common.Address, *big.Int, error) {
	out, err := g.c.call(ctx, erc721, contract, "royaltyInfo", id, salePrice)
	if err != nil {
		return common.Address{}, nil, err
	}
	receiver, err := outAddress(out)
	if err != nil {
		return common.Address{}, nil, err
	}
	amount, err := outBigInt(out, 1)
	if err != nil {
		return common.Address{}, nil, err
	}
	return receiver, amount, nil
}

var _ domain.AssetGateway = (*AssetGateway)(nil)
