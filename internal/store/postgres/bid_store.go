package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// BidStore implements domain.BidStore using PostgreSQL.
type BidStore struct {
	pool *pgxpool.Pool
}

// NewBidStore creates a new BidStore backed by the given connection pool.
func NewBidStore(pool *pgxpool.Pool) *BidStore {
	return &BidStore{pool: pool}
}

// Append bumps the order's bid counter, stores the bid under the new counter
// value and applies credits in one transaction. The counter update takes the
// row lock that serializes concurrent appends to the same order.
func (s *BidStore) Append(ctx context.Context, bid domain.Bid, credits []domain.Credit) (domain.Order, domain.Bid, error) {
	var (
		order  domain.Order
		stored domain.Bid
	)
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		const bump = `
			UPDATE orders SET highest_bid_count = highest_bid_count + 1
			WHERE id = $1 AND closed_at IS NULL
			RETURNING ` + orderSelectCols

		o, err := scanOrder(tx.QueryRow(ctx, bump, int64(bid.OrderID)))
		if errors.Is(err, pgx.ErrNoRows) {
			return missingOrClosed(ctx, tx, bid.OrderID)
		}
		if err != nil {
			return err
		}

		stored = bid
		stored.Seq = o.HighestBidCount
		_, err = tx.Exec(ctx,
			`INSERT INTO bids (order_id, seq, bidder, amount, placed_at)
			 VALUES ($1, $2, $3, $4::TEXT::NUMERIC, $5)`,
			int64(bid.OrderID), int32(stored.Seq), hexAddr(bid.Bidder), numeric(bid.Amount), bid.PlacedAt,
		)
		if err != nil {
			return fmt.Errorf("insert bid: %w", err)
		}
		if err := applyCredits(ctx, tx, credits); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return domain.Order{}, domain.Bid{}, fmt.Errorf("postgres: append bid to order %d: %w", bid.OrderID, err)
	}
	return order, stored, nil
}

// ListByOrder returns the bids of an order in sequence order.
func (s *BidStore) ListByOrder(ctx context.Context, orderID uint64) ([]domain.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bidSelectCols+` FROM bids WHERE order_id = $1 ORDER BY seq ASC`, int64(orderID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list bids of order %d: %w", orderID, err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bids rows: %w", err)
	}
	return bids, nil
}

// Highest returns the latest bid of an order.
func (s *BidStore) Highest(ctx context.Context, orderID uint64) (domain.Bid, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bidSelectCols+` FROM bids WHERE order_id = $1 ORDER BY seq DESC LIMIT 1`, int64(orderID))
	b, err := scanBid(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bid{}, fmt.Errorf("postgres: bids of order %d: %w", orderID, domain.ErrNotFound)
		}
		return domain.Bid{}, fmt.Errorf("postgres: highest bid of order %d: %w", orderID, err)
	}
	return b, nil
}

const bidSelectCols = `order_id, seq, bidder, amount::TEXT, placed_at`

func scanBid(scanner interface{ Scan(dest ...any) error }) (domain.Bid, error) {
	var b domain.Bid
	var orderID int64
	var seq int32
	var bidder, amount string

	if err := scanner.Scan(&orderID, &seq, &bidder, &amount, &b.PlacedAt); err != nil {
		return domain.Bid{}, err
	}
	v, err := parseNumeric(amount)
	if err != nil {
		return domain.Bid{}, err
	}
	b.OrderID = uint64(orderID)
	b.Seq = uint32(seq)
	b.Bidder = parseAddr(bidder)
	b.Amount = v
	return b, nil
}
