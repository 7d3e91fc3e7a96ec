package memory

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// BidStore implements domain.BidStore on a DB.
type BidStore struct {
	db *DB
}

func NewBidStore(db *DB) *BidStore {
	return &BidStore{db: db}
}

func (s *BidStore) Append(_ context.Context, bid domain.Bid, credits []domain.Credit) (domain.Order, domain.Bid, error) {
	if err := validCredits(credits); err != nil {
		return domain.Order{}, domain.Bid{}, err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	o, ok := s.db.orders[bid.OrderID]
	if !ok {
		return domain.Order{}, domain.Bid{}, fmt.Errorf("memory: order %d: %w", bid.OrderID, domain.ErrNotFound)
	}
	if !o.IsOpen() {
		return domain.Order{}, domain.Bid{}, fmt.Errorf("memory: order %d: %w", bid.OrderID, domain.ErrAlreadyClosed)
	}

	o.HighestBidCount++
	bid = cloneBid(bid)
	bid.Seq = o.HighestBidCount
	s.db.orders[o.ID] = o
	s.db.bids[o.ID] = append(s.db.bids[o.ID], bid)
	s.db.applyCredits(credits)
	return cloneOrder(o), cloneBid(bid), nil
}

func (s *BidStore) ListByOrder(_ context.Context, orderID uint64) ([]domain.Bid, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	bids := s.db.bids[orderID]
	out := make([]domain.Bid, len(bids))
	for i, b := range bids {
		out[i] = cloneBid(b)
	}
	return out, nil
}

func (s *BidStore) Highest(_ context.Context, orderID uint64) (domain.Bid, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	bids := s.db.bids[orderID]
	if len(bids) == 0 {
		return domain.Bid{}, fmt.Errorf("memory: bids of order %d: %w", orderID, domain.ErrNotFound)
	}
	return cloneBid(bids[len(bids)-1]), nil
}
