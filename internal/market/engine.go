// Package market implements the order, auction and settlement engine of the
// marketplace: listing, bidding with escrow, fixed-price purchase, auction
// finalization, refunds and administrative lifecycle control.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// minBidsForSale is the number of bids an auction must exceed to be sold at
// finalization. Auctions with this many bids or fewer end unsold.
const minBidsForSale = 2

// RefundMode selects how released escrow reaches a bidder.
type RefundMode string

const (
	// RefundPush credits the refund and immediately tries to deliver it.
	RefundPush RefundMode = "push"
	// RefundPull only credits the refund; the bidder calls Withdraw.
	RefundPull RefundMode = "pull"
)

// Publisher receives committed state changes.
type Publisher interface {
	Publish(ctx context.Context, evt domain.Event) error
}

// Config holds the engine parameters.
type Config struct {
	// Operator is the marketplace account that sellers approve to move
	// their assets.
	Operator common.Address
	Admins   []common.Address
	Bounds   domain.Bounds
	// DefaultBiddingDuration seeds the settings store on first start.
	DefaultBiddingDuration time.Duration
	RefundMode             RefundMode
	LockTTL                time.Duration
	LockRetry              time.Duration
}

// Deps bundles the collaborators of the engine. Publisher, LockManager and
// Clock are optional.
type Deps struct {
	Orders      domain.OrderStore
	Bids        domain.BidStore
	Ledger      domain.LedgerStore
	Settings    domain.SettingsStore
	Assets      domain.AssetGateway
	Payments    domain.PaymentGateway
	Publisher   Publisher
	LockManager domain.LockManager
	Clock       func() time.Time
	Logger      *slog.Logger
}

// Engine is the marketplace core. All mutating operations are serialized per
// order id; listing and registry changes are serialized globally.
type Engine struct {
	orders    domain.OrderStore
	bids      domain.BidStore
	ledger    domain.LedgerStore
	settings  domain.SettingsStore
	assets    domain.AssetGateway
	payments  domain.PaymentGateway
	publisher Publisher
	locks     *locker

	operator   common.Address
	admins     map[common.Address]bool
	bounds     domain.Bounds
	defaultDur time.Duration
	refundMode RefundMode

	now    func() time.Time
	logger *slog.Logger
}

// NewEngine validates cfg and builds an Engine.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.Orders == nil || deps.Bids == nil || deps.Ledger == nil || deps.Settings == nil {
		return nil, errors.New("market: stores are required")
	}
	if deps.Assets == nil || deps.Payments == nil {
		return nil, errors.New("market: asset and payment gateways are required")
	}
	if cfg.Bounds.MinBiddingDuration >= cfg.Bounds.MaxBiddingDuration {
		return nil, fmt.Errorf("market: min bidding duration %s must be below max %s",
			cfg.Bounds.MinBiddingDuration, cfg.Bounds.MaxBiddingDuration)
	}
	if !withinBounds(cfg.DefaultBiddingDuration, cfg.Bounds) {
		return nil, fmt.Errorf("market: default bidding duration %s: %w", cfg.DefaultBiddingDuration, domain.ErrOutOfBounds)
	}

	admins := make(map[common.Address]bool, len(cfg.Admins))
	for _, a := range cfg.Admins {
		admins[a] = true
	}

	mode := cfg.RefundMode
	if mode == "" {
		mode = RefundPush
	}

	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "market"))
	pub := deps.Publisher
	if pub == nil {
		pub = nopPublisher{}
	}

	return &Engine{
		orders:     deps.Orders,
		bids:       deps.Bids,
		ledger:     deps.Ledger,
		settings:   deps.Settings,
		assets:     deps.Assets,
		payments:   deps.Payments,
		publisher:  pub,
		locks:      newLocker(deps.LockManager, cfg.LockTTL, cfg.LockRetry, logger),
		operator:   cfg.Operator,
		admins:     admins,
		bounds:     cfg.Bounds,
		defaultDur: cfg.DefaultBiddingDuration,
		refundMode: mode,
		now:        clock,
		logger:     logger,
	}, nil
}

// Init seeds default settings and registers the native medium. It is safe to
// call on every start.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.settings.EnsureDefaults(ctx, domain.Settings{BiddingDuration: e.defaultDur}); err != nil {
		return fmt.Errorf("market: seed settings: %w", err)
	}
	if _, err := e.settings.GetMedium(ctx, domain.NativeMedium); errors.Is(err, domain.ErrNotFound) {
		native := domain.Medium{Address: domain.NativeMedium, Symbol: "NATIVE", Decimals: 18, Enabled: true}
		if err := e.settings.UpsertMedium(ctx, native); err != nil {
			return fmt.Errorf("market: register native medium: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("market: load native medium: %w", err)
	}
	return nil
}

// IsAdmin reports whether account holds the admin role.
func (e *Engine) IsAdmin(account common.Address) bool {
	return e.admins[account]
}

// Operator returns the account sellers must approve.
func (e *Engine) Operator() common.Address {
	return e.operator
}

// Bounds returns the fixed administrative limits.
func (e *Engine) Bounds() domain.Bounds {
	return e.bounds
}

func (e *Engine) requireAdmin(caller common.Address) error {
	if !e.IsAdmin(caller) {
		return fmt.Errorf("market: %s is not an admin: %w", caller.Hex(), domain.ErrUnauthorized)
	}
	return nil
}

// requireActive fails with ErrSystemPaused while the marketplace is paused.
func (e *Engine) requireActive(ctx context.Context) error {
	s, err := e.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("market: load settings: %w", err)
	}
	if s.Paused {
		return domain.ErrSystemPaused
	}
	return nil
}

func (e *Engine) lockOrder(ctx context.Context, id uint64) (func(), error) {
	unlock, err := e.locks.acquire(ctx, orderLockKey(id))
	if err != nil {
		return nil, fmt.Errorf("market: lock order %d: %w", id, err)
	}
	return unlock, nil
}

func orderLockKey(id uint64) string {
	return "order:" + strconv.FormatUint(id, 10)
}

// emit publishes evt after a committed change. Publication failures are
// logged; they never undo the change.
func (e *Engine) emit(ctx context.Context, evt domain.Event) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.At.IsZero() {
		evt.At = e.now()
	}
	if err := e.publisher.Publish(ctx, evt); err != nil {
		e.logger.WarnContext(ctx, "market: publish event failed",
			slog.String("event", string(evt.Type)),
			slog.Uint64("order_id", evt.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

func withinBounds(d time.Duration, b domain.Bounds) bool {
	return d > b.MinBiddingDuration && d < b.MaxBiddingDuration
}

func isZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.Event) error { return nil }
