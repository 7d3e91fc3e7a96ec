package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType names a market state change.
type EventType string

const (
	EventOrderListed       EventType = "order_listed"
	EventHighestBidChanged EventType = "highest_bid_changed"
	EventRefundQueued      EventType = "refund_queued"
	EventRefundDelivered   EventType = "refund_delivered"
	EventOrderSold         EventType = "order_sold"
	EventAuctionUnsold     EventType = "auction_unsold"
	EventOrderCancelled    EventType = "order_cancelled"
	EventOrderReaped       EventType = "order_reaped"
	EventPayoutQueued      EventType = "payout_queued"
	EventWithdrawal        EventType = "withdrawal"
	EventPaused            EventType = "paused"
	EventUnpaused          EventType = "unpaused"
	EventMediumChanged     EventType = "medium_changed"
	EventDurationChanged   EventType = "bidding_duration_changed"
)

// Event is a notification emitted after a state change has been committed.
type Event struct {
	ID      string
	Type    EventType
	OrderID uint64
	Actor   common.Address
	Medium  common.Address
	Amount  *big.Int
	At      time.Time
	Detail  map[string]any
}
