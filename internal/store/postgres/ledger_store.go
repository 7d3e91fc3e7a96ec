package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL. Balances are
// kept in the balances table; every movement is also appended to
// ledger_entries.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Credit raises one balance.
func (s *LedgerStore) Credit(ctx context.Context, c domain.Credit) error {
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		return applyCredits(ctx, tx, []domain.Credit{c})
	})
	if err != nil {
		return fmt.Errorf("postgres: credit %s: %w", c.Account.Hex(), err)
	}
	return nil
}

// Debit lowers one balance; it never lets a balance go negative.
func (s *LedgerStore) Debit(ctx context.Context, book domain.Book, account, medium common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("postgres: invalid debit amount")
	}
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE balances SET amount = amount - $4::TEXT::NUMERIC, updated_at = NOW()
			 WHERE book = $1 AND account = $2 AND medium = $3 AND amount >= $4::TEXT::NUMERIC`,
			string(book), hexAddr(account), hexAddr(medium), numeric(amount),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrInsufficientFunds
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO ledger_entries (book, account, medium, amount, reason)
			 VALUES ($1, $2, $3, -($4::TEXT::NUMERIC), 'debit')`,
			string(book), hexAddr(account), hexAddr(medium), numeric(amount),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres: debit %s from %s: %w", amount, account.Hex(), err)
	}
	return nil
}

// Balance returns the current balance, zero when none was ever recorded.
func (s *LedgerStore) Balance(ctx context.Context, book domain.Book, account, medium common.Address) (*big.Int, error) {
	var amount string
	err := s.pool.QueryRow(ctx,
		`SELECT amount::TEXT FROM balances WHERE book = $1 AND account = $2 AND medium = $3`,
		string(book), hexAddr(account), hexAddr(medium),
	).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: balance of %s: %w", account.Hex(), err)
	}
	return parseNumeric(amount)
}

// ListBalances returns every balance row of account.
func (s *LedgerStore) ListBalances(ctx context.Context, account common.Address) ([]domain.Balance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT book, account, medium, amount::TEXT FROM balances
		 WHERE account = $1 ORDER BY book, medium`, hexAddr(account))
	if err != nil {
		return nil, fmt.Errorf("postgres: list balances: %w", err)
	}
	defer rows.Close()
	return scanBalances(rows)
}

// ListOutstanding returns non-zero balances of book, oldest update first.
func (s *LedgerStore) ListOutstanding(ctx context.Context, book domain.Book, limit int) ([]domain.Balance, error) {
	query := `SELECT book, account, medium, amount::TEXT FROM balances
		WHERE book = $1 AND amount > 0 ORDER BY updated_at ASC`
	args := []any{string(book)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list outstanding %s: %w", book, err)
	}
	defer rows.Close()
	return scanBalances(rows)
}

func scanBalances(rows pgx.Rows) ([]domain.Balance, error) {
	var out []domain.Balance
	for rows.Next() {
		var book, account, medium, amount string
		if err := rows.Scan(&book, &account, &medium, &amount); err != nil {
			return nil, fmt.Errorf("postgres: scan balance: %w", err)
		}
		v, err := parseNumeric(amount)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan balance: %w", err)
		}
		out = append(out, domain.Balance{
			Book:    domain.Book(book),
			Account: parseAddr(account),
			Medium:  parseAddr(medium),
			Amount:  v,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: balances rows: %w", err)
	}
	return out, nil
}

// applyCredits upserts balances and journals each credit inside tx.
func applyCredits(ctx context.Context, tx pgx.Tx, credits []domain.Credit) error {
	for _, c := range credits {
		if c.Amount == nil || c.Amount.Sign() == 0 {
			continue
		}
		if c.Amount.Sign() < 0 {
			return fmt.Errorf("negative credit for %s", c.Account.Hex())
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO balances (book, account, medium, amount)
			 VALUES ($1, $2, $3, $4::TEXT::NUMERIC)
			 ON CONFLICT (book, account, medium)
			 DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = NOW()`,
			string(c.Book), hexAddr(c.Account), hexAddr(c.Medium), numeric(c.Amount),
		)
		if err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}

		var orderID *int64
		if c.OrderID != 0 {
			id := int64(c.OrderID)
			orderID = &id
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO ledger_entries (book, account, medium, amount, reason, order_id)
			 VALUES ($1, $2, $3, $4::TEXT::NUMERIC, $5, $6)`,
			string(c.Book), hexAddr(c.Account), hexAddr(c.Medium), numeric(c.Amount), c.Reason, orderID,
		)
		if err != nil {
			return fmt.Errorf("journal credit: %w", err)
		}
	}
	return nil
}
