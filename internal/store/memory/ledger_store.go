package memory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

var errNegativeCredit = errors.New("memory: negative credit")

// LedgerStore implements domain.LedgerStore on a DB.
type LedgerStore struct {
	db *DB
}

func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Credit(_ context.Context, c domain.Credit) error {
	if err := validCredits([]domain.Credit{c}); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.applyCredits([]domain.Credit{c})
	return nil
}

func (s *LedgerStore) Debit(_ context.Context, book domain.Book, account, medium common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("memory: invalid debit amount")
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	k := ledgerKey{book: book, account: account, medium: medium}
	cur, ok := s.db.ledger[k]
	if !ok || cur.Cmp(amount) < 0 {
		return fmt.Errorf("memory: debit %s from %s: %w", amount, account.Hex(), domain.ErrInsufficientFunds)
	}
	cur.Sub(cur, amount)
	return nil
}

func (s *LedgerStore) Balance(_ context.Context, book domain.Book, account, medium common.Address) (*big.Int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	cur, ok := s.db.ledger[ledgerKey{book: book, account: account, medium: medium}]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(cur), nil
}

func (s *LedgerStore) ListBalances(_ context.Context, account common.Address) ([]domain.Balance, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []domain.Balance
	for k, v := range s.db.ledger {
		if k.account == account {
			out = append(out, domain.Balance{Book: k.book, Account: k.account, Medium: k.medium, Amount: new(big.Int).Set(v)})
		}
	}
	sortBalances(out)
	return out, nil
}

func (s *LedgerStore) ListOutstanding(_ context.Context, book domain.Book, limit int) ([]domain.Balance, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []domain.Balance
	for k, v := range s.db.ledger {
		if k.book == book && v.Sign() > 0 {
			out = append(out, domain.Balance{Book: k.book, Account: k.account, Medium: k.medium, Amount: new(big.Int).Set(v)})
		}
	}
	sortBalances(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortBalances(bs []domain.Balance) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].Book != bs[j].Book {
			return bs[i].Book < bs[j].Book
		}
		if c := bs[i].Account.Cmp(bs[j].Account); c != 0 {
			return c < 0
		}
		return bs[i].Medium.Cmp(bs[j].Medium) < 0
	})
}
