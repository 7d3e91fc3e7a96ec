package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OrderKind distinguishes direct sales from ascending-bid auctions.
type OrderKind string

const (
	OrderKindFixedPrice OrderKind = "fixed_price"
	OrderKindAuction    OrderKind = "auction"
)

// AssetKind selects the transfer semantics of the listed asset.
type AssetKind string

const (
	AssetKindSingleOwner  AssetKind = "single_owner"  // one holder per id (ERC-721 style)
	AssetKindBalanceBased AssetKind = "balance_based" // quantity per holder (ERC-1155 style)
)

// Valid reports whether k is a known asset kind.
func (k AssetKind) Valid() bool {
	return k == AssetKindSingleOwner || k == AssetKindBalanceBased
}

// Outcome records how an order was closed.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeSold      Outcome = "sold"
	OutcomeUnsold    Outcome = "unsold"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeReaped    Outcome = "reaped"
)

// Order is a single listing. An order whose ClosedAt is set is terminal and
// never mutated again.
type Order struct {
	ID              uint64         `json:"id"`
	AssetContract   common.Address `json:"asset_contract"`
	AssetID         *big.Int       `json:"asset_id"`
	AssetAmount     *big.Int       `json:"asset_amount"`
	PaymentMedium   common.Address `json:"payment_medium"`
	BasePrice       *big.Int       `json:"base_price"`
	BidIncrement    *big.Int       `json:"bid_increment"`
	ListedAt        time.Time      `json:"listed_at"`
	ExpiresAt       time.Time      `json:"expires_at"` // zero for fixed-price orders
	ClosedAt        time.Time      `json:"closed_at"`  // zero while open
	HighestBidCount uint32         `json:"highest_bid_count"`
	Seller          common.Address `json:"seller"`
	Kind            OrderKind      `json:"kind"`
	AssetKind       AssetKind      `json:"asset_kind"`

	// Written once, together with ClosedAt.
	Outcome      Outcome        `json:"outcome,omitempty"`
	Buyer        common.Address `json:"buyer"`
	SettledPrice *big.Int       `json:"settled_price,omitempty"`
}

// IsOpen reports whether the order has not been closed yet.
func (o Order) IsOpen() bool {
	return o.ClosedAt.IsZero()
}

// IsAuction reports whether the order is an auction.
func (o Order) IsAuction() bool {
	return o.Kind == OrderKindAuction
}

// Expired reports whether an auction's deadline has passed at now.
// Fixed-price orders never expire.
func (o Order) Expired(now time.Time) bool {
	if o.Kind != OrderKindAuction || o.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(o.ExpiresAt)
}

// Closure carries the terminal fields written when an order is closed.
type Closure struct {
	ClosedAt     time.Time
	Outcome      Outcome
	Buyer        common.Address
	SettledPrice *big.Int
}

// OrderParams are the seller-supplied fields of a new listing.
type OrderParams struct {
	Seller        common.Address `json:"seller"`
	AssetContract common.Address `json:"asset_contract"`
	AssetID       *big.Int       `json:"asset_id"`
	AssetAmount   *big.Int       `json:"asset_amount"`
	AssetKind     AssetKind      `json:"asset_kind"`
	PaymentMedium common.Address `json:"payment_medium"`
	BasePrice     *big.Int       `json:"base_price"`
	BidIncrement  *big.Int       `json:"bid_increment"`
}

// BatchResult reports the outcome of one element of a batch operation.
// A failed element never prevents the rest of the batch from running.
type BatchResult struct {
	OrderID uint64 `json:"order_id"`
	Err     error  `json:"-"`
}

// OK reports whether the element succeeded.
func (r BatchResult) OK() bool {
	return r.Err == nil
}
