// Package cached decorates domain stores with in-process read caches.
package cached

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// OrderStore caches closed orders in an LRU. Closed orders are immutable, so
// cached entries never go stale; open orders are always read through.
type OrderStore struct {
	domain.OrderStore
	closed *lru.Cache[uint64, domain.Order]
}

// NewOrderStore wraps next with a cache of up to size closed orders.
func NewOrderStore(next domain.OrderStore, size int) (*OrderStore, error) {
	c, err := lru.New[uint64, domain.Order](size)
	if err != nil {
		return nil, fmt.Errorf("cached: new order cache: %w", err)
	}
	return &OrderStore{OrderStore: next, closed: c}, nil
}

func (s *OrderStore) GetByID(ctx context.Context, id uint64) (domain.Order, error) {
	if o, ok := s.closed.Get(id); ok {
		return o, nil
	}
	o, err := s.OrderStore.GetByID(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !o.IsOpen() {
		s.closed.Add(id, o)
	}
	return o, nil
}

func (s *OrderStore) Close(ctx context.Context, id uint64, c domain.Closure, credits []domain.Credit) (domain.Order, error) {
	o, err := s.OrderStore.Close(ctx, id, c, credits)
	if err != nil {
		return domain.Order{}, err
	}
	s.closed.Add(id, o)
	return o, nil
}

// Len reports how many closed orders are cached.
func (s *OrderStore) Len() int {
	return s.closed.Len()
}
