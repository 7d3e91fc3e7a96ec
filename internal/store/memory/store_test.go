package memory_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
	"github.com/alanyoungcy/escrowmarket/internal/store/memory"
)

var (
	seller = common.HexToAddress("0x5e00000000000000000000000000000000000001")
	alice  = common.HexToAddress("0xa100000000000000000000000000000000000001")
	t0     = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

type StoreTestSuite struct {
	suite.Suite

	ctx    context.Context
	orders *memory.OrderStore
	bids   *memory.BidStore
	ledger *memory.LedgerStore
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) SetupTest() {
	db := memory.NewDB()
	s.ctx = context.Background()
	s.orders = memory.NewOrderStore(db)
	s.bids = memory.NewBidStore(db)
	s.ledger = memory.NewLedgerStore(db)
}

func (s *StoreTestSuite) create(listedAt time.Time) domain.Order {
	o, err := s.orders.Create(s.ctx, domain.Order{
		Seller:       seller,
		AssetID:      big.NewInt(1),
		BasePrice:    big.NewInt(10),
		BidIncrement: big.NewInt(1),
		Kind:         domain.OrderKindAuction,
		ListedAt:     listedAt,
	})
	s.Require().NoError(err)
	return o
}

func (s *StoreTestSuite) TestCloseIsTerminal() {
	o := s.create(t0)
	credit := domain.Credit{Book: domain.BookPayable, Account: alice, Amount: big.NewInt(7)}

	closed, err := s.orders.Close(s.ctx, o.ID, domain.Closure{ClosedAt: t0.Add(time.Hour), Outcome: domain.OutcomeUnsold}, []domain.Credit{credit})
	s.Require().NoError(err)
	s.Require().False(closed.IsOpen())

	_, err = s.orders.Close(s.ctx, o.ID, domain.Closure{ClosedAt: t0.Add(2 * time.Hour), Outcome: domain.OutcomeSold}, []domain.Credit{credit})
	s.Require().ErrorIs(err, domain.ErrAlreadyClosed)

	bal, err := s.ledger.Balance(s.ctx, domain.BookPayable, alice, domain.NativeMedium)
	s.Require().NoError(err)
	s.Require().Equal(int64(7), bal.Int64())

	_, _, err = s.bids.Append(s.ctx, domain.Bid{OrderID: o.ID, Bidder: alice, Amount: big.NewInt(20)}, nil)
	s.Require().ErrorIs(err, domain.ErrAlreadyClosed)
}

func (s *StoreTestSuite) TestAppendAssignsSequence() {
	o := s.create(t0)
	for i := 1; i <= 3; i++ {
		updated, bid, err := s.bids.Append(s.ctx, domain.Bid{OrderID: o.ID, Bidder: alice, Amount: big.NewInt(int64(10 * i))}, nil)
		s.Require().NoError(err)
		s.Require().Equal(uint32(i), bid.Seq)
		s.Require().Equal(uint32(i), updated.HighestBidCount)
	}

	top, err := s.bids.Highest(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Require().Equal(int64(30), top.Amount.Int64())

	_, err = s.bids.Highest(s.ctx, 99)
	s.Require().ErrorIs(err, domain.ErrNotFound)
}

func (s *StoreTestSuite) TestListing() {
	first := s.create(t0)
	second := s.create(t0.Add(time.Hour))
	third := s.create(t0.Add(2 * time.Hour))
	_, err := s.orders.Close(s.ctx, second.ID, domain.Closure{ClosedAt: t0.Add(3 * time.Hour), Outcome: domain.OutcomeCancelled}, nil)
	s.Require().NoError(err)

	testCases := []struct {
		name     string
		list     func() ([]domain.Order, error)
		expected []uint64
	}{
		{
			name:     "open orders",
			list:     func() ([]domain.Order, error) { return s.orders.ListOpen(s.ctx, domain.ListOpts{}) },
			expected: []uint64{first.ID, third.ID},
		},
		{
			name:     "all orders",
			list:     func() ([]domain.Order, error) { return s.orders.ListAll(s.ctx, domain.ListOpts{}) },
			expected: []uint64{first.ID, second.ID, third.ID},
		},
		{
			name:     "all orders paginated",
			list:     func() ([]domain.Order, error) { return s.orders.ListAll(s.ctx, domain.ListOpts{Offset: 1, Limit: 1}) },
			expected: []uint64{second.ID},
		},
		{
			name: "closed in window",
			list: func() ([]domain.Order, error) {
				return s.orders.ListClosed(s.ctx, t0, t0.Add(4*time.Hour))
			},
			expected: []uint64{second.ID},
		},
		{
			name: "closed window excludes its end",
			list: func() ([]domain.Order, error) {
				return s.orders.ListClosed(s.ctx, t0, t0.Add(3*time.Hour))
			},
			expected: []uint64{},
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			orders, err := tc.list()
			s.Require().NoError(err)
			ids := make([]uint64, 0, len(orders))
			for _, o := range orders {
				ids = append(ids, o.ID)
			}
			s.Require().Equal(tc.expected, ids)
		})
	}

	count, err := s.orders.CountOpen(s.ctx)
	s.Require().NoError(err)
	s.Require().Equal(int64(2), count)
}

func (s *StoreTestSuite) TestLedgerDebit() {
	s.Require().NoError(s.ledger.Credit(s.ctx, domain.Credit{Book: domain.BookWallet, Account: alice, Amount: big.NewInt(5)}))

	err := s.ledger.Debit(s.ctx, domain.BookWallet, alice, domain.NativeMedium, big.NewInt(6))
	s.Require().ErrorIs(err, domain.ErrInsufficientFunds)

	s.Require().NoError(s.ledger.Debit(s.ctx, domain.BookWallet, alice, domain.NativeMedium, big.NewInt(5)))
	owed, err := s.ledger.ListOutstanding(s.ctx, domain.BookWallet, 0)
	s.Require().NoError(err)
	s.Require().Empty(owed)
}

func (s *StoreTestSuite) TestReturnedOrdersAreCopies() {
	o := s.create(t0)
	o.BasePrice.SetInt64(999)

	stored, err := s.orders.GetByID(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Require().Equal(int64(10), stored.BasePrice.Int64())
}
