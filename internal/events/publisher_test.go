package events_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
	"github.com/alanyoungcy/escrowmarket/internal/events"
	"github.com/alanyoungcy/escrowmarket/internal/store/memory"
)

var (
	bidder = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	usdc   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  map[string][][]byte
	err       error
}

func newMemBus() *memBus {
	return &memBus{published: map[string][][]byte{}, streamed: map[string][][]byte{}}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed[stream] = append(b.streamed[stream], payload)
	return nil
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type note struct{ event, title, message string }

type recordingNotifier struct {
	mu    sync.Mutex
	notes []note
	// release, when set, blocks Notify until it is closed.
	release chan struct{}
}

func (n *recordingNotifier) Notify(_ context.Context, event, title, message string) error {
	if n.release != nil {
		<-n.release
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note{event, title, message})
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes)
}

type PublisherTestSuite struct {
	suite.Suite

	ctx      context.Context
	bus      *memBus
	audit    *memory.AuditStore
	notifier *recordingNotifier
	pub      *events.Publisher
}

func TestPublisherTestSuite(t *testing.T) {
	suite.Run(t, new(PublisherTestSuite))
}

func (s *PublisherTestSuite) SetupTest() {
	s.ctx = context.Background()
	db := memory.NewDB()
	settings := memory.NewSettingsStore(db)
	s.Require().NoError(settings.UpsertMedium(s.ctx, domain.Medium{Address: usdc, Symbol: "USDC", Decimals: 6, Enabled: true}))

	s.bus = newMemBus()
	s.audit = memory.NewAuditStore(db)
	s.notifier = &recordingNotifier{}
	s.pub = events.NewPublisher(s.bus, s.audit, s.notifier, settings, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *PublisherTestSuite) bidEvent() domain.Event {
	return domain.Event{
		ID:      "evt-1",
		Type:    domain.EventHighestBidChanged,
		OrderID: 42,
		Actor:   bidder,
		Medium:  usdc,
		Amount:  big.NewInt(2_500_000),
		At:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Detail:  map[string]any{"seq": uint32(3), "expires_at": time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
	}
}

func (s *PublisherTestSuite) TestPublishFansOut() {
	s.Require().NoError(s.pub.Publish(s.ctx, s.bidEvent()))

	s.Require().Len(s.bus.published[events.Channel], 1)
	s.Require().Len(s.bus.streamed[events.Stream], 1)

	got, err := events.Decode(s.bus.published[events.Channel][0])
	s.Require().NoError(err)
	s.Require().Equal("evt-1", got.ID)
	s.Require().Equal(domain.EventHighestBidChanged, got.Type)
	s.Require().Equal(uint64(42), got.OrderID)
	s.Require().Equal(bidder, got.Actor)
	s.Require().Equal(usdc, got.Medium)
	s.Require().Equal("2500000", got.Amount.String())
	s.Require().True(got.At.Equal(s.bidEvent().At))
	s.Require().Equal(float64(3), got.Detail["seq"])
	s.Require().Equal("2026-03-02T00:00:00Z", got.Detail["expires_at"])

	entries, err := s.audit.List(s.ctx, domain.ListOpts{})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Require().Equal(string(domain.EventHighestBidChanged), entries[0].Event)
	s.Require().Equal("2500000", entries[0].Detail["amount"])

	s.pub.Wait()
	s.Require().Len(s.notifier.notes, 1)
	s.Require().Equal("New highest bid", s.notifier.notes[0].title)
	s.Require().Contains(s.notifier.notes[0].message, "2.5 USDC")
}

func (s *PublisherTestSuite) TestPublishReportsBusFailure() {
	s.bus.err = errors.New("bus down")

	err := s.pub.Publish(s.ctx, s.bidEvent())
	s.Require().ErrorContains(err, "bus down")

	// The other sinks still saw the event.
	s.Require().Len(s.bus.streamed[events.Stream], 1)
	s.pub.Wait()
	s.Require().Equal(1, s.notifier.count())
}

func (s *PublisherTestSuite) TestPublishDoesNotWaitForNotifications() {
	s.notifier.release = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- s.pub.Publish(s.ctx, s.bidEvent()) }()

	select {
	case err := <-done:
		s.Require().NoError(err)
	case <-time.After(2 * time.Second):
		s.FailNow("publish blocked on a slow notifier")
	}
	s.Require().Len(s.bus.published[events.Channel], 1)
	s.Require().Zero(s.notifier.count())

	close(s.notifier.release)
	s.pub.Wait()
	s.Require().Equal(1, s.notifier.count())
}

func (s *PublisherTestSuite) TestPublishWithoutSinks() {
	pub := events.NewPublisher(nil, nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(pub.Publish(s.ctx, s.bidEvent()))
}

func TestDescribeUsesNativeFallback(t *testing.T) {
	title, msg := events.Describe(domain.Event{
		Type:    domain.EventOrderSold,
		OrderID: 7,
		Actor:   bidder,
		Amount:  big.NewInt(1_000_000_000_000_000_000),
	}, domain.Medium{Symbol: "NATIVE", Decimals: 18})
	require.Equal(t, "Order sold", title)
	require.Equal(t, "Order #7 sold to "+bidder.Hex()+" for 1 NATIVE", msg)
}
