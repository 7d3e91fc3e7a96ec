package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderStore owns Order records. Identifiers are allocated by the store,
// strictly increasing and never reused.
type OrderStore interface {
	// Create assigns the next identifier, persists o and returns the stored order.
	Create(ctx context.Context, o Order) (Order, error)
	GetByID(ctx context.Context, id uint64) (Order, error)
	// Close writes the closure fields of an open order and applies credits in
	// the same transaction. It returns ErrAlreadyClosed if the order is closed.
	Close(ctx context.Context, id uint64, c Closure, credits []Credit) (Order, error)
	// ListOpen returns open orders in ascending id order.
	ListOpen(ctx context.Context, opts ListOpts) ([]Order, error)
	// ListAll returns every order ever created in ascending id order.
	ListAll(ctx context.Context, opts ListOpts) ([]Order, error)
	CountOpen(ctx context.Context) (int64, error)
	// ListClosed returns orders with since <= closedAt < until, oldest first.
	ListClosed(ctx context.Context, since, until time.Time) ([]Order, error)
}

// BidStore owns the per-order bid ledger.
type BidStore interface {
	// Append stores bid as the next sequence entry of its order, increments
	// the order's HighestBidCount and applies credits, all in one
	// transaction. The assigned sequence is returned in the stored Bid. It
	// returns ErrAlreadyClosed if the order is closed.
	Append(ctx context.Context, bid Bid, credits []Credit) (Order, Bid, error)
	ListByOrder(ctx context.Context, orderID uint64) ([]Bid, error)
	// Highest returns the latest bid of the order, or ErrNotFound.
	Highest(ctx context.Context, orderID uint64) (Bid, error)
}

// LedgerStore keeps per (book, account, medium) balances.
type LedgerStore interface {
	Credit(ctx context.Context, c Credit) error
	// Debit lowers a balance; ErrInsufficientFunds if it would go negative.
	Debit(ctx context.Context, book Book, account, medium common.Address, amount *big.Int) error
	Balance(ctx context.Context, book Book, account, medium common.Address) (*big.Int, error)
	ListBalances(ctx context.Context, account common.Address) ([]Balance, error)
	// ListOutstanding returns non-zero balances of a book.
	ListOutstanding(ctx context.Context, book Book, limit int) ([]Balance, error)
}

// SettingsStore persists administrative state and the accepted-payment registry.
type SettingsStore interface {
	// EnsureDefaults stores s unless settings already exist.
	EnsureDefaults(ctx context.Context, s Settings) error
	Get(ctx context.Context) (Settings, error)
	SetPaused(ctx context.Context, paused bool) error
	SetBiddingDuration(ctx context.Context, d time.Duration) error
	GetMedium(ctx context.Context, addr common.Address) (Medium, error)
	UpsertMedium(ctx context.Context, m Medium) error
	ListMedia(ctx context.Context) ([]Medium, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
