package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Bid is one funded offer against an auction. Bids are append-only; Seq is
// 1-based and contiguous per order.
type Bid struct {
	OrderID  uint64         `json:"order_id"`
	Seq      uint32         `json:"seq"`
	Bidder   common.Address `json:"bidder"`
	Amount   *big.Int       `json:"amount"`
	PlacedAt time.Time      `json:"placed_at"`
}
