package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
	ErrLockLost      = errors.New("lock lost")
	ErrSigningFailed = errors.New("signing failed")

	// Order lifecycle.
	ErrInvalidOrder   = errors.New("invalid order parameters")
	ErrAlreadyClosed  = errors.New("order already closed")
	ErrOrderNotOpen   = errors.New("order not open")
	ErrNotAuction     = errors.New("order is not an auction")
	ErrNotFixedPrice  = errors.New("order is not fixed price")
	ErrNotStale       = errors.New("order is not stale")
	ErrAuctionClosed  = errors.New("auction closed")
	ErrAuctionExpired = errors.New("auction expired")
	ErrAuctionActive  = errors.New("auction still running")

	// Trading.
	ErrSelfBid                   = errors.New("seller cannot bid on own auction")
	ErrSelfPurchase              = errors.New("seller cannot buy own order")
	ErrBidTooLow                 = errors.New("bid too low")
	ErrInsufficientFunds         = errors.New("insufficient funds")
	ErrAssetTransferUnauthorized = errors.New("asset transfer unauthorized")
	ErrTransferFailed            = errors.New("transfer failed")
	ErrMediumNotAccepted         = errors.New("payment medium not accepted")

	// Administration.
	ErrSystemPaused = errors.New("system paused")
	ErrOutOfBounds  = errors.New("value out of bounds")
)
