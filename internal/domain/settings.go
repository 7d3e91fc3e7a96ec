package domain

import "time"

// Settings is the global administrative state of the marketplace.
type Settings struct {
	Paused          bool          `json:"paused"`
	BiddingDuration time.Duration `json:"bidding_duration"`
}

// Bounds are the fixed limits applied to administrative changes. They are
// set from configuration at startup and never change at runtime.
type Bounds struct {
	MinBiddingDuration time.Duration `json:"min_bidding_duration"`
	MaxBiddingDuration time.Duration `json:"max_bidding_duration"`
	StaleAfter         time.Duration `json:"stale_after"`
}
