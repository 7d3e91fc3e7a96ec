// Package memory provides in-process implementations of the domain stores.
// They share one DB so that order closures, bids and ledger credits commit
// together, matching the transactional behaviour of the postgres stores.
package memory

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

type ledgerKey struct {
	book    domain.Book
	account common.Address
	medium  common.Address
}

// DB is the shared state behind the memory stores.
type DB struct {
	mu sync.RWMutex

	nextID  uint64
	orders  map[uint64]domain.Order
	open    map[uint64]struct{}
	bids    map[uint64][]domain.Bid
	ledger  map[ledgerKey]*big.Int
	media   map[common.Address]domain.Medium
	audit   []domain.AuditEntry
	setting *domain.Settings
}

// NewDB returns an empty database.
func NewDB() *DB {
	return &DB{
		nextID: 1,
		orders: make(map[uint64]domain.Order),
		open:   make(map[uint64]struct{}),
		bids:   make(map[uint64][]domain.Bid),
		ledger: make(map[ledgerKey]*big.Int),
		media:  make(map[common.Address]domain.Medium),
	}
}

// applyCredits must be called with mu held for writing.
func (db *DB) applyCredits(credits []domain.Credit) {
	for _, c := range credits {
		if c.Amount == nil || c.Amount.Sign() <= 0 {
			continue
		}
		k := ledgerKey{book: c.Book, account: c.Account, medium: c.Medium}
		cur, ok := db.ledger[k]
		if !ok {
			cur = new(big.Int)
			db.ledger[k] = cur
		}
		cur.Add(cur, c.Amount)
	}
}

func validCredits(credits []domain.Credit) error {
	for _, c := range credits {
		if c.Amount != nil && c.Amount.Sign() < 0 {
			return errNegativeCredit
		}
	}
	return nil
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func cloneOrder(o domain.Order) domain.Order {
	o.AssetID = cloneInt(o.AssetID)
	o.AssetAmount = cloneInt(o.AssetAmount)
	o.BasePrice = cloneInt(o.BasePrice)
	o.BidIncrement = cloneInt(o.BidIncrement)
	o.SettledPrice = cloneInt(o.SettledPrice)
	return o
}

func cloneBid(b domain.Bid) domain.Bid {
	b.Amount = cloneInt(b.Amount)
	return b
}

func inWindow(t time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && t.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && t.After(*opts.Until) {
		return false
	}
	return true
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return []T{}
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
