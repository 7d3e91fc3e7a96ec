package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// OrderStore implements domain.OrderStore on a DB.
type OrderStore struct {
	db *DB
}

func NewOrderStore(db *DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) Create(_ context.Context, o domain.Order) (domain.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	o = cloneOrder(o)
	o.ID = s.db.nextID
	s.db.nextID++
	o.ClosedAt = time.Time{}
	o.Outcome = domain.OutcomeNone
	o.HighestBidCount = 0
	s.db.orders[o.ID] = o
	s.db.open[o.ID] = struct{}{}
	return cloneOrder(o), nil
}

func (s *OrderStore) GetByID(_ context.Context, id uint64) (domain.Order, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	o, ok := s.db.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("memory: order %d: %w", id, domain.ErrNotFound)
	}
	return cloneOrder(o), nil
}

func (s *OrderStore) Close(_ context.Context, id uint64, c domain.Closure, credits []domain.Credit) (domain.Order, error) {
	if err := validCredits(credits); err != nil {
		return domain.Order{}, err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	o, ok := s.db.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("memory: order %d: %w", id, domain.ErrNotFound)
	}
	if !o.IsOpen() {
		return domain.Order{}, fmt.Errorf("memory: order %d: %w", id, domain.ErrAlreadyClosed)
	}
	o.ClosedAt = c.ClosedAt
	o.Outcome = c.Outcome
	o.Buyer = c.Buyer
	o.SettledPrice = cloneInt(c.SettledPrice)
	s.db.orders[id] = o
	delete(s.db.open, id)
	s.db.applyCredits(credits)
	return cloneOrder(o), nil
}

func (s *OrderStore) ListOpen(_ context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	ids := make([]uint64, 0, len(s.db.open))
	for id := range s.db.open {
		ids = append(ids, id)
	}
	return s.collect(ids, opts), nil
}

func (s *OrderStore) ListAll(_ context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	ids := make([]uint64, 0, len(s.db.orders))
	for id := range s.db.orders {
		ids = append(ids, id)
	}
	return s.collect(ids, opts), nil
}

// collect must be called with mu held.
func (s *OrderStore) collect(ids []uint64, opts domain.ListOpts) []domain.Order {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		o := s.db.orders[id]
		if !inWindow(o.ListedAt, opts) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	return paginate(out, opts)
}

func (s *OrderStore) CountOpen(_ context.Context) (int64, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return int64(len(s.db.open)), nil
}

func (s *OrderStore) ListClosed(_ context.Context, since, until time.Time) ([]domain.Order, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []domain.Order
	for _, o := range s.db.orders {
		if o.IsOpen() || o.ClosedAt.Before(since) || !o.ClosedAt.Before(until) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClosedAt.Equal(out[j].ClosedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ClosedAt.Before(out[j].ClosedAt)
	})
	return out, nil
}
