package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

const (
	// Channel is the pub/sub channel carrying live market events.
	Channel = "events"
	// Stream is the durable stream holding the event history.
	Stream = "events"

	subscriberBuffer = 128
)

// Notifier receives a human-readable rendering of selected events.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// MediaLookup resolves a payment medium for display.
type MediaLookup interface {
	GetMedium(ctx context.Context, addr common.Address) (domain.Medium, error)
}

// Publisher implements market.Publisher. Any of bus, audit and notifier may
// be nil. Notifications are sent in the background so that slow senders never
// hold up the caller.
type Publisher struct {
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier Notifier
	media    MediaLookup
	logger   *slog.Logger

	pending sync.WaitGroup
}

// NewPublisher creates a Publisher.
func NewPublisher(bus domain.SignalBus, audit domain.AuditStore, notifier Notifier, media MediaLookup, logger *slog.Logger) *Publisher {
	return &Publisher{
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		media:    media,
		logger:   logger.With(slog.String("component", "events")),
	}
}

// Publish records ev in the audit log, appends it to the stream and
// broadcasts it. Every sink is attempted; their failures are joined.
func (p *Publisher) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error

	if p.audit != nil {
		if err := p.audit.Log(ctx, string(ev.Type), auditDetail(ev)); err != nil {
			errs = append(errs, err)
		}
	}

	if p.bus != nil {
		payload, err := Encode(ev)
		if err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := p.bus.StreamAppend(ctx, Stream, payload); err != nil {
			errs = append(errs, err)
		}
		if err := p.bus.Publish(ctx, Channel, payload); err != nil {
			errs = append(errs, err)
		}
	}

	if p.notifier != nil {
		title, msg := Describe(ev, p.medium(ctx, ev.Medium))
		nctx := context.WithoutCancel(ctx)
		p.pending.Add(1)
		go func() {
			defer p.pending.Done()
			if err := p.notifier.Notify(nctx, string(ev.Type), title, msg); err != nil {
				p.logger.WarnContext(nctx, "notification failed",
					slog.String("event", string(ev.Type)),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	if len(errs) > 0 {
		return fmt.Errorf("events: publish %s: %w", ev.Type, errors.Join(errs...))
	}
	return nil
}

// Wait blocks until every notification started by Publish has finished.
func (p *Publisher) Wait() {
	p.pending.Wait()
}

func (p *Publisher) medium(ctx context.Context, addr common.Address) domain.Medium {
	if p.media != nil {
		if m, err := p.media.GetMedium(ctx, addr); err == nil {
			return m
		}
	}
	if domain.IsNative(addr) {
		return domain.Medium{Symbol: "NATIVE", Decimals: 18}
	}
	return domain.Medium{Address: addr}
}

// Describe renders ev for operators.
func Describe(ev domain.Event, m domain.Medium) (title, message string) {
	amount := m.Display(ev.Amount)
	switch ev.Type {
	case domain.EventOrderListed:
		return "Order listed", fmt.Sprintf("Order #%d listed by %s", ev.OrderID, ev.Actor.Hex())
	case domain.EventHighestBidChanged:
		return "New highest bid", fmt.Sprintf("Order #%d: %s bid %s", ev.OrderID, ev.Actor.Hex(), amount)
	case domain.EventOrderSold:
		return "Order sold", fmt.Sprintf("Order #%d sold to %s for %s", ev.OrderID, ev.Actor.Hex(), amount)
	case domain.EventAuctionUnsold:
		return "Auction unsold", fmt.Sprintf("Order #%d closed without a sale", ev.OrderID)
	case domain.EventRefundQueued, domain.EventPayoutQueued:
		return "Payment queued", fmt.Sprintf("%s owed to %s (order #%d)", amount, ev.Actor.Hex(), ev.OrderID)
	case domain.EventPaused:
		return "Marketplace paused", "Paused by " + ev.Actor.Hex()
	case domain.EventUnpaused:
		return "Marketplace resumed", "Unpaused by " + ev.Actor.Hex()
	default:
		return string(ev.Type), fmt.Sprintf("order #%d actor %s amount %s", ev.OrderID, ev.Actor.Hex(), amount)
	}
}
