package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetGateway is the read/transfer surface of the external asset contracts.
// The marketplace never mints or tracks ownership itself.
type AssetGateway interface {
	// OwnerOf returns the holder of a single-owner asset.
	OwnerOf(ctx context.Context, contract common.Address, id *big.Int) (common.Address, error)
	// BalanceOf returns the quantity of a balance-based asset held by holder.
	BalanceOf(ctx context.Context, contract, holder common.Address, id *big.Int) (*big.Int, error)
	// IsApprovedForAll reports whether operator may move every asset of holder.
	IsApprovedForAll(ctx context.Context, contract, holder, operator common.Address) (bool, error)
	// GetApproved returns the operator approved for one single-owner asset.
	GetApproved(ctx context.Context, contract common.Address, id *big.Int) (common.Address, error)
	// TransferSingle moves a single-owner asset.
	TransferSingle(ctx context.Context, contract, from, to common.Address, id *big.Int) error
	// TransferBalance moves amount units of a balance-based asset.
	TransferBalance(ctx context.Context, contract, from, to common.Address, id, amount *big.Int) error
	// RoyaltyInfo returns the royalty receiver and amount for a sale. A zero
	// receiver or amount means no royalty applies.
	RoyaltyInfo(ctx context.Context, contract common.Address, id, salePrice *big.Int) (common.Address, *big.Int, error)
}
